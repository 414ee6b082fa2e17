// File: internal/bridge/state.go
package bridge

import "go.uber.org/zap"

// State is the lifecycle position of one collect call.
type State int

const (
	StateCreated State = iota
	StateAwaiting
	StateCompleted
	StateTimedOut
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAwaiting:
		return "awaiting"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateTimedOut || s == StateFailed
}

// call tracks a single Collect invocation.
type call struct {
	sessionID string
	state     State
	log       *zap.Logger
}

func newCall(sessionID string, logger *zap.Logger) *call {
	return &call{
		sessionID: sessionID,
		state:     StateCreated,
		log:       logger.With(zap.String("session_id", sessionID)),
	}
}

// enter moves the call to next. Transitions out of a terminal state are ignored.
func (c *call) enter(next State, fields ...zap.Field) {
	if c.state.Terminal() {
		return
	}
	fields = append(fields, zap.Stringer("from", c.state), zap.Stringer("to", next))
	c.state = next
	c.log.Info("Collect state changed", fields...)
}
