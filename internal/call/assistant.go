package call

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/recruiter/internal/interview"
	"github.com/MikeSquared-Agency/recruiter/internal/voice"
)

// Profile selects the assistant persona and providers used for every call.
// Greeting and SystemPrompt are templates: {candidate}, {job} and
// {questions} are substituted per interview.
type Profile struct {
	Name         string `yaml:"name"`
	Greeting     string `yaml:"greeting"`
	SystemPrompt string `yaml:"system_prompt"`

	Transcriber struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		Language string `yaml:"language"`
	} `yaml:"transcriber"`

	Voice struct {
		Provider string `yaml:"provider"`
		VoiceID  string `yaml:"voice_id"`
	} `yaml:"voice"`

	Model struct {
		Provider string `yaml:"provider"`
		Name     string `yaml:"name"`
	} `yaml:"model"`
}

const defaultSystemPrompt = `You are an AI voice assistant conducting interviews.
Ask one question at a time and wait for the candidate's response before proceeding.
Keep the questions clear, concise, and friendly.
After completing all questions, wrap up with encouraging feedback.
Questions: {questions}`

func DefaultProfile() Profile {
	var p Profile
	p.Name = "AI Recruiter"
	p.Greeting = "Hi {candidate}, how are you? Ready for your interview on {job}?"
	p.SystemPrompt = defaultSystemPrompt
	p.Transcriber.Provider = "deepgram"
	p.Transcriber.Model = "nova-3"
	p.Transcriber.Language = "en-US"
	p.Voice.Provider = "playht"
	p.Voice.VoiceID = "jennifer"
	p.Model.Provider = "openai"
	p.Model.Name = "gpt-4"
	return p
}

// LoadProfile reads a YAML profile. Fields the file leaves out keep their
// defaults. An empty path returns the defaults.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return p, nil
}

// BuildAssistantOptions renders the start request for cfg.
func BuildAssistantOptions(cfg *interview.Config, p Profile) voice.AssistantOptions {
	r := strings.NewReplacer(
		"{candidate}", cfg.CandidateName,
		"{job}", cfg.JobPosition,
		"{questions}", strings.Join(cfg.Questions(), ","),
	)

	return voice.AssistantOptions{
		Name:         p.Name,
		FirstMessage: r.Replace(p.Greeting),
		Transcriber: voice.Transcriber{
			Provider: p.Transcriber.Provider,
			Model:    p.Transcriber.Model,
			Language: p.Transcriber.Language,
		},
		Voice: voice.Voice{
			Provider: p.Voice.Provider,
			VoiceID:  p.Voice.VoiceID,
		},
		Model: voice.Model{
			Provider: p.Model.Provider,
			Model:    p.Model.Name,
			Messages: []voice.ModelMessage{
				{Role: "system", Content: strings.TrimSpace(r.Replace(p.SystemPrompt))},
			},
		},
	}
}
