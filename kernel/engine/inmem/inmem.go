// Package inmem is the default single-process Engine: a cooperative,
// single-goroutine cycle loop driven by a time.Ticker, with no durability
// backend (§4.7, §5). It is the engine cmd/planctl's inmem backend builds.
package inmem

import (
	"context"
	"time"

	"github.com/taskplan/kernel/engine"
	"github.com/taskplan/kernel/plan"
	"github.com/taskplan/kernel/telemetry"
)

// Engine is the in-process cooperative cycle driver.
type Engine struct {
	Clock   engine.Clock
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
}

// New constructs an in-memory engine with real wall-clock time and no-op
// telemetry; override the fields to plug in test clocks or real telemetry.
func New() *Engine {
	return &Engine{
		Clock:   engine.RealClock,
		Logger:  telemetry.NewNoopLogger(),
		Metrics: telemetry.NewNoopMetrics(),
	}
}

// RunCycle executes exactly one cycle synchronously on the calling
// goroutine.
func (e *Engine) RunCycle(ctx context.Context, p *plan.Plan, external []plan.ExternalEvent) (engine.CycleReport, error) {
	report := engine.RunOneCycle(p, external, e.Clock, e.Logger, ctx)
	if e.Metrics != nil {
		e.Metrics.IncCounter("plan.cycle", 1)
		e.Metrics.RecordGauge("plan.garbaged_total", float64(len(p.Garbaged())))
		if len(report.Errors) > 0 {
			e.Metrics.IncCounter("plan.cycle_errors", float64(len(report.Errors)))
		}
	}
	return report, nil
}

// Run drains queue once per period and runs a cycle, until ctx is
// cancelled. This is the engine's own goroutine: queue producers may run
// concurrently, but Run's own Drain call never overlaps with itself (§5).
func (e *Engine) Run(ctx context.Context, p *plan.Plan, queue engine.ExternalQueue, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			external, err := queue.Drain(ctx)
			if err != nil {
				e.Logger.Error(ctx, "external queue drain failed", "error", err)
				continue
			}
			if _, err := e.RunCycle(ctx, p, external); err != nil {
				e.Logger.Error(ctx, "cycle failed", "error", err)
			}
		}
	}
}

var _ engine.Engine = (*Engine)(nil)
