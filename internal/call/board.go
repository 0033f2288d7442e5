package call

import (
	"sync"
	"time"
)

// Notification is one transient message shown to the candidate.
type Notification struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Board collects the notifications and route changes of one candidate
// session so they can be served with the next snapshot. It implements
// interview.UI.
type Board struct {
	mu    sync.Mutex
	notes []Notification
	route string
	now   func() time.Time
}

func NewBoard() *Board {
	return &Board{now: time.Now}
}

func (b *Board) Info(msg string)    { b.add("info", msg) }
func (b *Board) Success(msg string) { b.add("success", msg) }
func (b *Board) Error(msg string)   { b.add("error", msg) }

func (b *Board) Replace(route string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.route = route
}

func (b *Board) add(level, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notes = append(b.notes, Notification{Level: level, Message: msg, At: b.now().UTC()})
}

// Notifications returns a copy of everything posted so far.
func (b *Board) Notifications() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Notification, len(b.notes))
	copy(out, b.notes)
	return out
}

// Route is the last route requested, or "".
func (b *Board) Route() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.route
}
