package logstore

import (
	"context"
	"fmt"
	"time"

	"github.com/taskplan/kernel/engine"
	"github.com/taskplan/kernel/plan"
	"github.com/taskplan/kernel/telemetry"
)

// Rebuilder replays a persisted cycle log against a plan built from the same
// model as the original, reproducing its state cycle by cycle.
type Rebuilder struct {
	Logger telemetry.Logger
}

// Replay runs p through every record in order, using each record's own
// clock reading instead of wall-clock time, and returns the per-cycle
// reports in the same order. It stops at the first cycle whose errors are
// non-empty only if failFast is true; otherwise it replays every record and
// lets the caller inspect CycleReport.Errors.
func (r *Rebuilder) Replay(ctx context.Context, p *plan.Plan, records []CycleRecord, failFast bool) ([]engine.CycleReport, error) {
	reports := make([]engine.CycleReport, 0, len(records))
	for i, rec := range records {
		clock := fixedClock(rec.Seconds, rec.Micros)
		report := engine.RunOneCycle(p, rec.External, clock, r.Logger, ctx)
		reports = append(reports, report)
		if failFast && len(report.Errors) > 0 {
			return reports, fmt.Errorf("replay stopped at cycle %d: %w", i, report.Errors)
		}
	}
	return reports, nil
}

func fixedClock(seconds int64, micros int32) engine.Clock {
	t := time.Unix(seconds, int64(micros)*1000)
	return func() time.Time { return t }
}
