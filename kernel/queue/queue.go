// Package queue provides the thread-safe external-event inbox an engine
// drains once per cycle (§5/NEW): an in-memory channel-backed
// implementation for the single-process case, and a Redis-backed
// implementation for a controller split across processes.
package queue

import (
	"context"

	"github.com/taskplan/kernel/plan"
)

// Queue accepts external events from any goroutine and hands a batch to
// the engine's own goroutine once per cycle. Producers may be concurrent;
// Drain itself is always called by a single consumer.
type Queue interface {
	Push(ctx context.Context, ev plan.ExternalEvent) error
	Drain(ctx context.Context) ([]plan.ExternalEvent, error)
}
