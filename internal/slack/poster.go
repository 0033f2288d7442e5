package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// ResultSummary is the recruiter-facing digest of one completed interview.
type ResultSummary struct {
	Candidate      string
	Email          string
	JobPosition    string
	InterviewID    string
	Score          string
	Recommendation string
	Message        string
}

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostResultSummary posts a completed interview to the recruiters' channel.
func (p *Poster) PostResultSummary(ctx context.Context, s ResultSummary) error {
	text := formatResultMessage(s)

	body, err := json.Marshal(map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return fmt.Errorf("slack error: %s", slackResp.Error)
	}

	p.logger.Info("posted result summary to slack", "ts", slackResp.TS, "interview_id", s.InterviewID)
	return nil
}

func formatResultMessage(s ResultSummary) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*Interview completed:* %s\n", s.JobPosition)
	fmt.Fprintf(&sb, "*Candidate:* %s", s.Candidate)
	if s.Email != "" {
		fmt.Fprintf(&sb, " (%s)", s.Email)
	}
	sb.WriteString("\n")

	if s.Score != "" {
		fmt.Fprintf(&sb, "*Score:* %s/10\n", s.Score)
	} else {
		sb.WriteString("*Score:* _no numeric ratings_\n")
	}
	if s.Recommendation != "" {
		fmt.Fprintf(&sb, "*Recommendation:* %s\n", s.Recommendation)
	}
	if s.Message != "" {
		fmt.Fprintf(&sb, "> %s\n", strings.ReplaceAll(strings.TrimSpace(s.Message), "\n", "\n> "))
	}
	fmt.Fprintf(&sb, "_Interview %s_", s.InterviewID)

	return sb.String()
}
