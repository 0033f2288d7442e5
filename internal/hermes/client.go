package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// SubjectResultStored is published once a completed interview's feedback
	// has been persisted.
	SubjectResultStored = "interview.result.stored"
	// SubjectCallEnded is published when a call session ends, before
	// feedback is generated.
	SubjectCallEnded = "interview.call.ended"
	// SubjectExportRequested asks the service to write a fresh candidates export.
	SubjectExportRequested = "interview.export.requested"
)

// ResultStored is the payload of SubjectResultStored.
type ResultStored struct {
	ResultID       string `json:"result_id"`
	InterviewID    string `json:"interview_id"`
	Candidate      string `json:"candidate"`
	Email          string `json:"email"`
	JobPosition    string `json:"job_position"`
	Score          string `json:"score"`
	Recommendation string `json:"recommendation"`
	CompletedAt    string `json:"completed_at"`
}

// CallEnded is the payload of SubjectCallEnded.
type CallEnded struct {
	InterviewID    string `json:"interview_id"`
	ElapsedSeconds int    `json:"elapsed_seconds"`
	EndedAt        string `json:"ended_at"`
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("recruiter"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
