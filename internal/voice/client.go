package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultConnectTimeout = 15 * time.Second
	writeTimeout          = 10 * time.Second
)

// ErrNotConnected is returned when the session has no live connection.
var ErrNotConnected = errors.New("voice session not connected")

type frame struct {
	Type      string            `json:"type"`
	Assistant *AssistantOptions `json:"assistant,omitempty"`
	Message   *Message          `json:"message,omitempty"`
}

// Client is a voice platform call session over a WebSocket. Incoming frames
// are decoded by one read loop and emitted in arrival order.
type Client struct {
	Emitter

	conn   *websocket.Conn
	logger *slog.Logger

	writeMu   sync.Mutex
	closed    atomic.Bool
	ended     atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the voice platform at url.
func Dial(ctx context.Context, url, apiKey string, logger *slog.Logger) (*Client, error) {
	headers := make(http.Header)
	if apiKey != "" {
		headers.Set("Authorization", "Bearer "+apiKey)
	}

	dialCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, url, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &Client{
		conn:   conn,
		logger: logger,
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) Start(_ context.Context, opts AssistantOptions) error {
	if err := c.write(frame{Type: "start", Assistant: &opts}); err != nil {
		return fmt.Errorf("send start: %w", err)
	}
	return nil
}

func (c *Client) Stop() error {
	if err := c.write(frame{Type: "stop"}); err != nil {
		return fmt.Errorf("send stop: %w", err)
	}
	return nil
}

// Close drops the connection and waits for the read loop to exit. It does
// not emit call-end.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
		<-c.done
	})
	return err
}

func (c *Client) write(f frame) error {
	if c.closed.Load() {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(f)
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Warn("voice connection lost", "error", err)
				c.closed.Store(true)
				c.emitEnd()
			}
			return
		}

		var f frame
		if err := json.Unmarshal(payload, &f); err != nil {
			c.logger.Warn("failed to decode voice frame", "error", err)
			continue
		}

		switch t := EventType(f.Type); t {
		case EventCallEnd:
			c.emitEnd()
		case EventCallStart, EventSpeechStart, EventSpeechEnd:
			c.Emit(Event{Type: t})
		case EventMessage:
			if f.Message == nil {
				continue
			}
			c.Emit(Event{Type: t, Message: f.Message})
		default:
			c.logger.Debug("ignoring voice frame", "type", f.Type)
		}
	}
}

func (c *Client) emitEnd() {
	if c.ended.CompareAndSwap(false, true) {
		c.Emit(Event{Type: EventCallEnd})
	}
}
