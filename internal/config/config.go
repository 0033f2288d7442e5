package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port             int
	DatabaseURL      string
	LogLevel         string
	NatsURL          string
	NatsToken        string
	RedisURL         string
	StateDir         string
	StateTTL         time.Duration
	VoiceURL         string
	VoiceAPIKey      string
	FeedbackURL      string
	FeedbackTimeout  time.Duration
	SessionRetention time.Duration
	ProfilePath      string
	ExportDir        string
	ExportSchedule   string
	SlackBotToken    string
	SlackChannel     string
	APIToken         string
}

func Load() Config {
	return Config{
		Port:             envInt("RECRUITER_PORT", 8760),
		DatabaseURL:      envStr("DATABASE_URL", ""),
		LogLevel:         envStr("LOG_LEVEL", "info"),
		NatsURL:          envStr("NATS_URL", ""),
		NatsToken:        envStr("NATS_TOKEN", ""),
		RedisURL:         envStr("REDIS_URL", ""),
		StateDir:         envStr("STATE_DIR", "./state"),
		StateTTL:         time.Duration(envInt("STATE_TTL_HOURS", 72)) * time.Hour,
		VoiceURL:         envStr("VOICE_URL", ""),
		VoiceAPIKey:      envStr("VOICE_API_KEY", ""),
		FeedbackURL:      envStr("FEEDBACK_URL", "http://localhost:3000/api/ai-feedback"),
		FeedbackTimeout:  time.Duration(envInt("FEEDBACK_TIMEOUT_SECONDS", 120)) * time.Second,
		SessionRetention: time.Duration(envInt("SESSION_RETENTION_MINUTES", 10)) * time.Minute,
		ProfilePath:      envStr("ASSISTANT_PROFILE", ""),
		ExportDir:        envStr("EXPORT_DIR", "./exports"),
		ExportSchedule:   envStr("EXPORT_SCHEDULE", ""),
		SlackBotToken:    envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:     envStr("SLACK_RESULTS_CHANNEL", ""),
		APIToken:         envStr("RECRUITER_API_TOKEN", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
