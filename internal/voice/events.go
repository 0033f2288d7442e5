package voice

import (
	"context"
	"encoding/json"
	"sync"
)

// EventType names a lifecycle notification from the voice platform.
type EventType string

const (
	EventCallStart   EventType = "call-start"
	EventCallEnd     EventType = "call-end"
	EventSpeechStart EventType = "speech-start"
	EventSpeechEnd   EventType = "speech-end"
	EventMessage     EventType = "message"
)

// Message is the payload of a message event. Assistant transcript updates
// carry Role and Content; conversation updates carry the full log.
type Message struct {
	Type string `json:"type,omitempty"`
	Role string `json:"role,omitempty"`
	// Content is set only when the platform sent plain text.
	Content string `json:"content,omitempty"`
	// Conversation holds the log entries exactly as the platform sent them.
	Conversation []json.RawMessage `json:"conversation,omitempty"`
}

// UnmarshalJSON decodes a message leniently: fields of an unexpected type
// are left empty instead of failing the whole frame.
func (m *Message) UnmarshalJSON(data []byte) error {
	var aux struct {
		Type         json.RawMessage `json:"type"`
		Role         json.RawMessage `json:"role"`
		Content      json.RawMessage `json:"content"`
		Conversation json.RawMessage `json:"conversation"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*m = Message{
		Type:    text(aux.Type),
		Role:    text(aux.Role),
		Content: text(aux.Content),
	}
	var entries []json.RawMessage
	if len(aux.Conversation) > 0 && json.Unmarshal(aux.Conversation, &entries) == nil {
		m.Conversation = entries
	}
	return nil
}

// EntryRole returns the role of one conversation entry, or "".
func EntryRole(entry json.RawMessage) string {
	var e struct {
		Role json.RawMessage `json:"role"`
	}
	if json.Unmarshal(entry, &e) != nil {
		return ""
	}
	return text(e.Role)
}

func text(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

type Event struct {
	Type    EventType
	Message *Message
}

type Handler func(Event)

// Transport is a single call session on the voice platform.
type Transport interface {
	// Start asks the platform to begin the call. It does not wait for the
	// call to be live; EventCallStart reports that.
	Start(ctx context.Context, opts AssistantOptions) error
	// Stop asks the platform to hang up. The call is over only once
	// EventCallEnd is delivered.
	Stop() error
	// On registers h for event and returns a func that removes it.
	On(event EventType, h Handler) (off func())
}

// Session is a Transport that owns a connection.
type Session interface {
	Transport
	Close() error
}

// Emitter keeps listener registrations and delivers events to them in
// registration order.
type Emitter struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[EventType][]listener
}

type listener struct {
	id uint64
	h  Handler
}

func (e *Emitter) On(event EventType, h Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[EventType][]listener)
	}
	e.nextID++
	id := e.nextID
	e.listeners[event] = append(e.listeners[event], listener{id: id, h: h})

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(event, id) })
	}
}

func (e *Emitter) remove(event EventType, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ls := e.listeners[event]
	for i, l := range ls {
		if l.id == id {
			e.listeners[event] = append(ls[:i:i], ls[i+1:]...)
			return
		}
	}
}

// Emit calls every handler registered for evt.Type. Handlers run on the
// caller's goroutine, outside the registry lock.
func (e *Emitter) Emit(evt Event) {
	e.mu.Lock()
	ls := append([]listener(nil), e.listeners[evt.Type]...)
	e.mu.Unlock()
	for _, l := range ls {
		l.h(evt)
	}
}

// Count returns how many handlers are registered for event.
func (e *Emitter) Count(event EventType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}
