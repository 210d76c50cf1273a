// Package signal broadcasts best-effort notifications about store mutations.
// Emission never fails the operation that triggered it.
package signal

import (
	"context"
	"time"
)

// Type identifies a signal
type Type string

const (
	TypeStored              Type = "stored"
	TypeProcessed           Type = "processed"
	TypeFailed              Type = "failed"
	TypeSubscriptionCreated Type = "subscription_created"
	TypeReplayStarted       Type = "replay_started"
	TypeProjectionCreated   Type = "projection_created"
)

// Signal is a single broadcast notification
type Signal struct {
	Type       Type           `json:"type"`
	Subject    string         `json:"subject"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// New builds a signal stamped with the current time
func New(t Type, subject string, data map[string]any) Signal {
	return Signal{
		Type:       t,
		Subject:    subject,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}

// Emitter accepts signals without blocking and without reporting failure
type Emitter interface {
	Emit(ctx context.Context, s Signal)
}

// Publisher delivers a signal to the broadcast channel
type Publisher interface {
	Publish(ctx context.Context, s Signal) error
	Close() error
}

// Nop discards every signal
type Nop struct{}

func (Nop) Emit(context.Context, Signal) {}
