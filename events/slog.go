package events

import (
	"context"
	"log/slog"
)

// SlogSink mirrors events into a structured logger. Useful when no
// durable sink is configured.
type SlogSink struct {
	Log *slog.Logger
}

func NewSlogSink(log *slog.Logger) *SlogSink {
	if log == nil {
		log = slog.Default()
	}
	return &SlogSink{Log: log}
}

func (s *SlogSink) Emit(ctx context.Context, e Event) error {
	if s == nil || s.Log == nil {
		return nil
	}
	attrs := []any{
		"event_id", e.EventID,
		"type", string(e.Type),
	}
	if e.Resource != "" {
		attrs = append(attrs, "resource", e.Resource)
	}
	if e.Submitter != "" {
		attrs = append(attrs, "submitter", e.Submitter)
	}
	if e.Fingerprint != "" {
		attrs = append(attrs, "fingerprint", e.Fingerprint)
	}
	if e.Succeeded != nil {
		attrs = append(attrs, "succeeded", *e.Succeeded)
	}
	if e.Parent != "" {
		attrs = append(attrs, "parent", e.Parent)
	}
	if e.Child != "" {
		attrs = append(attrs, "child", e.Child)
	}
	s.Log.InfoContext(ctx, "observation", attrs...)
	return nil
}

func (s *SlogSink) Close() error { return nil }
