// Package notify delivers outreach messages to partners through in-app and
// e-mail channels.
package notify

import (
	"context"
	"errors"
)

// ErrNoRecipient is returned when a message lacks the address a channel needs.
var ErrNoRecipient = errors.New("no recipient for channel")

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Message is one invitation addressed to a partner. UserID feeds the in-app
// channel and Email the e-mail channel.
type Message struct {
	UserID   string
	Email    string
	Kind     string
	Title    string
	Body     string
	Priority Priority
	Data     map[string]any
}

// Channel enqueues a message for its recipient. Delivery is fire-and-forget.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}
