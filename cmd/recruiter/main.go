package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MikeSquared-Agency/recruiter/internal/api"
	"github.com/MikeSquared-Agency/recruiter/internal/call"
	"github.com/MikeSquared-Agency/recruiter/internal/config"
	"github.com/MikeSquared-Agency/recruiter/internal/export"
	"github.com/MikeSquared-Agency/recruiter/internal/feedback"
	"github.com/MikeSquared-Agency/recruiter/internal/hermes"
	"github.com/MikeSquared-Agency/recruiter/internal/localstore"
	"github.com/MikeSquared-Agency/recruiter/internal/slack"
	"github.com/MikeSquared-Agency/recruiter/internal/store"
	"github.com/MikeSquared-Agency/recruiter/internal/voice"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("recruiter starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected")

	// Persisted interview info
	var state localstore.Store
	if cfg.RedisURL != "" {
		rdb, err := localstore.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		state = localstore.NewRedisStore(rdb, "recruiter", cfg.StateTTL)
		slog.Info("redis state store ready")
	} else {
		state = localstore.NewFileStore(cfg.StateDir)
		slog.Info("file state store ready", "dir", cfg.StateDir)
	}

	// NATS/Hermes (optional)
	var hermesClient *hermes.Client
	if cfg.NatsURL != "" {
		hermesClient, err = hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer hermesClient.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured, lifecycle events will not be published")
	}

	// Slack poster (optional)
	var slackPoster *slack.Poster
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		slackPoster = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		slog.Info("slack poster ready", "channel", cfg.SlackChannel)
	}

	profile, err := call.LoadProfile(cfg.ProfilePath)
	if err != nil {
		slog.Error("failed to load assistant profile", "error", err)
		os.Exit(1)
	}

	// Feedback pipeline. Optional collaborators stay untyped nil when absent.
	var publisher feedback.Publisher
	if hermesClient != nil {
		publisher = hermesClient
	}
	var poster feedback.SummaryPoster
	if slackPoster != nil {
		poster = slackPoster
	}
	gen := feedback.NewClient(cfg.FeedbackURL, cfg.FeedbackTimeout, slog.Default())
	pipeline := feedback.NewPipeline(gen, db, publisher, poster, slog.Default())

	// Export snapshots
	scheduler := export.NewScheduler(db, cfg.ExportDir, cfg.ExportSchedule, slog.Default())
	if err := scheduler.Start(ctx); err != nil {
		slog.Error("failed to start export scheduler", "error", err)
		os.Exit(1)
	}
	defer scheduler.Stop()

	if hermesClient != nil {
		if err := hermesClient.Subscribe(hermes.SubjectExportRequested, func(_ string, _ []byte) {
			if _, err := scheduler.RunNow(ctx); err != nil {
				slog.Error("requested export failed", "error", err)
			}
		}); err != nil {
			slog.Error("failed to subscribe to export requests", "error", err)
			os.Exit(1)
		}
	}

	// HTTP API
	var dial api.Dialer
	if cfg.VoiceURL != "" {
		dial = func(ctx context.Context) (voice.Session, error) {
			return voice.Dial(ctx, cfg.VoiceURL, cfg.VoiceAPIKey, slog.Default())
		}
	} else {
		slog.Warn("VOICE_URL not set, calls cannot be started")
	}
	var callPublisher call.Publisher
	if hermesClient != nil {
		callPublisher = hermesClient
	}

	srv := api.NewServer(api.Deps{
		Port:             cfg.Port,
		APIToken:         cfg.APIToken,
		State:            state,
		Dial:             dial,
		Profile:          profile,
		Finisher:         pipeline,
		Publisher:        callPublisher,
		Results:          db,
		FeedbackTimeout:  cfg.FeedbackTimeout,
		SessionRetention: cfg.SessionRetention,
		Logger:           slog.Default(),
	})
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("recruiter ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown error", "error", err)
	}
	cancel()
	slog.Info("recruiter stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
