package voice

// AssistantOptions configures the assistant the voice platform runs for a call.
type AssistantOptions struct {
	Name         string      `json:"name"`
	FirstMessage string      `json:"firstMessage"`
	Transcriber  Transcriber `json:"transcriber"`
	Voice        Voice       `json:"voice"`
	Model        Model       `json:"model"`
}

type Transcriber struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Language string `json:"language"`
}

type Voice struct {
	Provider string `json:"provider"`
	VoiceID  string `json:"voiceId"`
}

type Model struct {
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	Messages []ModelMessage `json:"messages"`
}

type ModelMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
