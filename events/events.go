package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeCallStarted  Type = "CallStarted"
	TypeCallFinish   Type = "CallFinish"
	TypeChildAdded   Type = "ChildAdded"
	TypeChildRemoved Type = "ChildRemoved"
)

// Event is the observation record emitted to off-process consumers.
// Fields not relevant to a given type are left empty.
type Event struct {
	EventID   string    `json:"event_id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"ts"`

	Resource    string `json:"resource,omitempty"`
	Submitter   string `json:"submitter,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Succeeded   *bool  `json:"succeeded,omitempty"`

	Parent string `json:"parent,omitempty"`
	Child  string `json:"child,omitempty"`
}

func New(t Type) Event {
	return Event{
		EventID:   "evt_" + uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UTC(),
	}
}

type Sink interface {
	Emit(ctx context.Context, e Event) error
	Close() error
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Emit(ctx context.Context, e Event) error { return nil }
func (NopSink) Close() error                            { return nil }
