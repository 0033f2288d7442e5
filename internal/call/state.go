// Package call drives one interview call session.
//
// State graph:
//
//	IDLE ──► STARTING ──► ACTIVE ──► ENDING ──► ENDED
//	  ▲         │                      ▲
//	  └─────────┤                      │
//	            └──────────────────────┘
//
// A failed start returns STARTING to IDLE. A call that ends before the
// platform confirms it started goes straight from STARTING to ENDING.
// ENDED is terminal.
package call

// State is the lifecycle position of a call session.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateActive   State = "active"
	StateEnding   State = "ending"
	StateEnded    State = "ended"
)

var validTransitions = map[State][]State{
	StateIdle:     {StateStarting},
	StateStarting: {StateActive, StateIdle, StateEnding},
	StateActive:   {StateEnding},
	StateEnding:   {StateEnded},
}

// CanTransition reports whether moving from → to is permitted.
func CanTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// live reports whether lifecycle events still update the session.
func (s State) live() bool {
	return s == StateStarting || s == StateActive
}
