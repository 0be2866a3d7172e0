package event

import (
	"context"
	"errors"
)

// Event is one message fanned out to every subscriber of a group.
type Event struct {
	Type string `json:"type"`

	// RecipientID addresses a per-user event. Subscribers owned by other users drop it.
	RecipientID int64 `json:"recipient_id,omitempty"`
	Data        any   `json:"data,omitempty"`
}

const (
	EventTypeNotification = "notification"
	EventTypeIssueUpdate  = "issue_update"
)

var (
	ErrSlowConsumer     = errors.New("subscriber outbound queue is full")
	ErrConnectionClosed = errors.New("subscriber connection is closed")
)

// Subscriber is a live connection handle that can receive events.
// Deliver must not block; it either queues the event or reports why it cannot.
type Subscriber interface {
	ID() string
	Deliver(ev Event) error
}

// Directory resolves group membership for a publish and prunes dead subscribers.
type Directory interface {
	MembersOf(group string) []Subscriber
	Evict(ctx context.Context, subscriberID string)
}

// Publisher fans an event out to a group.
type Publisher interface {
	Publish(ctx context.Context, group string, ev Event) error
}
