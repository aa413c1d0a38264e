// Package supervisor composes an engine.Engine, its external queue, and a
// logstore.Store into the process a cmd/ binary actually runs: one
// goroutine paces and drives cycles, a second persists each completed
// cycle's record in the background, and golang.org/x/sync/errgroup
// coordinates their shutdown — if either goroutine fails, both stop — while
// the cycle body itself stays single-threaded (§5): pacing and persistence
// never run a cycle concurrently with another cycle.
package supervisor

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/taskplan/kernel/engine"
	"github.com/taskplan/kernel/logstore"
	"github.com/taskplan/kernel/plan"
	"github.com/taskplan/kernel/telemetry"
)

// Supervisor drives plan through Engine at Period, persisting each
// completed cycle's record to Store under PlanID.
type Supervisor struct {
	Engine engine.Engine
	Plan   *plan.Plan
	Queue  engine.ExternalQueue
	Store  logstore.Store
	PlanID string
	Period time.Duration
	Logger telemetry.Logger

	// RecordBuffer sizes the channel between the cycle loop and the
	// background log writer; a full buffer blocks the cycle loop until
	// the writer catches up, preserving at-least-once delivery order.
	RecordBuffer int
}

// Run drives cycles until ctx is cancelled or either goroutine errors.
func (s *Supervisor) Run(ctx context.Context) error {
	buf := s.RecordBuffer
	if buf <= 0 {
		buf = 16
	}
	records := make(chan logstore.CycleRecord, buf)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(records)
		return s.runCycles(ctx, records)
	})

	g.Go(func() error {
		return s.writeRecords(ctx, records)
	})

	return g.Wait()
}

func (s *Supervisor) runCycles(ctx context.Context, records chan<- logstore.CycleRecord) error {
	limiter := rate.NewLimiter(rate.Every(s.Period), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			// Wait also fails before ctx is done when the next token lies
			// past ctx's deadline; block until ctx is done so Run reports it.
			<-ctx.Done()
			return ctx.Err()
		}
		external, err := s.Queue.Drain(ctx)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Error(ctx, "external queue drain failed", "error", err)
			}
			continue
		}
		report, err := s.Engine.RunCycle(ctx, s.Plan, external)
		if err != nil {
			return err
		}
		rec := logstore.CycleRecord{Seconds: report.Seconds, Micros: report.Micros, External: external}
		select {
		case records <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Supervisor) writeRecords(ctx context.Context, records <-chan logstore.CycleRecord) error {
	for {
		select {
		case rec, ok := <-records:
			if !ok {
				return nil
			}
			if err := s.Store.AppendCycle(ctx, s.PlanID, rec); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
