package queue

import (
	"context"

	"github.com/taskplan/kernel/plan"
)

// MemQueue is a channel-backed Queue for the single-process case.
type MemQueue struct {
	ch chan plan.ExternalEvent
}

// NewMemQueue constructs a MemQueue buffering up to capacity pending
// events before Push blocks.
func NewMemQueue(capacity int) *MemQueue {
	return &MemQueue{ch: make(chan plan.ExternalEvent, capacity)}
}

// Push enqueues ev, blocking if the queue is full, until ctx is done.
func (q *MemQueue) Push(ctx context.Context, ev plan.ExternalEvent) error {
	select {
	case q.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain returns every event currently buffered without blocking.
func (q *MemQueue) Drain(ctx context.Context) ([]plan.ExternalEvent, error) {
	var out []plan.ExternalEvent
	for {
		select {
		case ev := <-q.ch:
			out = append(out, ev)
		default:
			return out, nil
		}
	}
}

var _ Queue = (*MemQueue)(nil)
