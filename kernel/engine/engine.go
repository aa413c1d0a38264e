// Package engine defines the pluggable cycle-driver abstraction for running
// a plan (§4.7): one cycle is external-event injection, propagation drain,
// error detection, garbage collection, and bookkeeping. The in-process
// cooperative loop (kernel/engine/inmem) implements Engine without the plan
// package knowing which driver is in use; the Temporal adapter shares
// RunOneCycle but does not implement Engine.
package engine

import (
	"context"
	"time"

	"github.com/taskplan/kernel/errs"
	"github.com/taskplan/kernel/plan"
	"github.com/taskplan/kernel/telemetry"
)

type (
	// Engine drives cycles over a plan. Implementations translate this
	// generic shape into backend-specific primitives (an in-process
	// goroutine loop in kernel/engine/inmem).
	Engine interface {
		// RunCycle executes exactly one cycle: inject external, drain
		// propagation, run polls, collect garbage, and return a report.
		RunCycle(ctx context.Context, p *plan.Plan, external []plan.ExternalEvent) (CycleReport, error)

		// Run drives cycles at the given period until ctx is cancelled.
		Run(ctx context.Context, p *plan.Plan, queue ExternalQueue, period time.Duration) error
	}

	// ExternalQueue is the thread-safe inbox an engine drains exactly once
	// per cycle, on its own goroutine, at cycle start (§5 NEW). Producers
	// may run concurrently; Drain itself never is.
	ExternalQueue interface {
		Drain(ctx context.Context) ([]plan.ExternalEvent, error)
	}

	// CycleReport summarizes one completed cycle for logging/metrics.
	CycleReport struct {
		Seconds      int64
		Micros       int32
		Errors       errs.SynchronousEventProcessingMultipleErrors
		GarbagedIDs  []plan.ID
		FinalizedIDs []plan.ID
	}

	// Clock abstracts wall-clock time so the same cycle-driver logic can
	// run against a deterministic test clock.
	Clock func() time.Time
)

// RealClock returns the current wall-clock time.
func RealClock() time.Time { return time.Now() }

// RunOneCycle executes the unchanged-across-backends cycle body (§4.7):
// inject external events, drain propagation (tolerating same-cycle
// self-emission, deferring precedence-blocked steps), run every running
// task's polls, and collect garbage. It is shared by every Engine
// implementation so cycle semantics never drift between them.
func RunOneCycle(p *plan.Plan, external []plan.ExternalEvent, clock Clock, log telemetry.Logger, ctx context.Context) CycleReport {
	now := clock()
	seconds, micros := now.Unix(), int32(now.Nanosecond()/1000)

	p.BeginCycle()

	var agg errs.SynchronousEventProcessingMultipleErrors
	agg = append(agg, p.InjectExternal(external, seconds, micros)...)
	agg = append(agg, p.DrainPropagation(seconds, micros)...)

	for _, t := range p.Tasks() {
		t.RunPolls()
	}
	agg = append(agg, p.DrainPropagation(seconds, micros)...)

	before := len(p.Garbaged())
	beforeFin := len(p.Finalized())
	p.CollectGarbage()

	report := CycleReport{
		Seconds:      seconds,
		Micros:       micros,
		Errors:       agg,
		GarbagedIDs:  p.Garbaged()[before:],
		FinalizedIDs: p.Finalized()[beforeFin:],
	}

	if log != nil && len(agg) > 0 {
		log.Warn(ctx, "cycle completed with errors", "count", len(agg))
	}
	return report
}
