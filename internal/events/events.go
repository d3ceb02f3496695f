// Package events publishes run lifecycle notifications to an optional
// external sink, so long batches can be watched from outside the process.
package events

import (
	"context"
	"time"
)

// Type names a run lifecycle stage.
type Type string

const (
	TypeBatchStarted  Type = "batch_started"
	TypeRunStarted    Type = "run_started"
	TypeRunSucceeded  Type = "run_succeeded"
	TypeRunFailed     Type = "run_failed"
	TypeBatchFinished Type = "batch_finished"
)

// Event is one lifecycle notification.
type Event struct {
	Type       Type
	Assignment string
	Dir        string
	Error      string
	Time       time.Time
}

// Sink receives lifecycle events. Publish must not block the caller on a
// slow or unreachable endpoint beyond the context's lifetime.
type Sink interface {
	Publish(ctx context.Context, event Event)
	Close() error
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) {}
func (NopSink) Close() error                   { return nil }
