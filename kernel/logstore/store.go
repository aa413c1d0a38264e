// Package logstore persists the information needed to reproduce a plan's
// execution: the sequence of completed cycles (clock values and the external
// events injected into each one) and, for audit, the raw method/args log a
// Plan emits via SetLogSink (§6). Replaying a persisted cycle log against a
// freshly built plan (same model) must reproduce identical plan state,
// cycle-by-cycle (§8's round-trip law), as long as task commands are
// themselves deterministic given plan state — the same assumption a durable
// workflow engine makes of its activities.
package logstore

import (
	"context"

	"github.com/taskplan/kernel/plan"
)

// CycleRecord captures everything RunOneCycle needs to reproduce one cycle:
// the clock reading it ran under and the external events it drained.
type CycleRecord struct {
	Seconds  int64
	Micros   int32
	External []plan.ExternalEvent
}

// Store persists cycle records and raw log entries, keyed by plan ID. An
// implementation must preserve append order: LoadCycles and LoadLog return
// entries in the order they were appended.
type Store interface {
	AppendCycle(ctx context.Context, planID string, rec CycleRecord) error
	AppendLog(ctx context.Context, planID string, entry plan.LogEntry) error
	LoadCycles(ctx context.Context, planID string) ([]CycleRecord, error)
	LoadLog(ctx context.Context, planID string) ([]plan.LogEntry, error)
}
