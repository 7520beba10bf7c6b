package audit

import (
	"context"
	"time"
)

// Event is one security-relevant outcome: a login, a refresh, a detected
// replay, a logout.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	EventType  string            `json:"event_type"`
	Success    bool              `json:"success"`
	UserID     string            `json:"user_id,omitempty"`
	Username   string            `json:"username,omitempty"`
	DeviceID   string            `json:"device_id,omitempty"`
	ClientType string            `json:"client_type,omitempty"`
	TokenID    string            `json:"jti,omitempty"`
	IP         string            `json:"ip,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events. Implementations must be safe for use
// from the dispatcher goroutine while callers emit concurrently.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event)

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }
