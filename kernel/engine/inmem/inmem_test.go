package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskplan/kernel/engine"
	"github.com/taskplan/kernel/plan"
	"github.com/taskplan/kernel/queue"
	"github.com/taskplan/kernel/telemetry"
)

type spyMetrics struct {
	counters map[string]float64
	gauges   map[string]float64
}

func newSpyMetrics() *spyMetrics {
	return &spyMetrics{counters: map[string]float64{}, gauges: map[string]float64{}}
}
func (s *spyMetrics) IncCounter(name string, v float64, _ ...string)        { s.counters[name] += v }
func (s *spyMetrics) RecordGauge(name string, v float64, _ ...string)       { s.gauges[name] = v }
func (s *spyMetrics) RecordTimer(string, time.Duration, ...string)          {}

// TestNewEngineHasWorkingDefaults verifies New wires real wall-clock time
// and no-op telemetry by default, so a caller need only override what it
// wants to test.
func TestNewEngineHasWorkingDefaults(t *testing.T) {
	e := New()
	require.NotNil(t, e.Clock)
	require.NotNil(t, e.Logger)
	require.NotNil(t, e.Metrics)

	_, err := e.RunCycle(context.Background(), plan.New(), nil)
	require.NoError(t, err)
}

// TestRunCycleRecordsMetrics verifies RunCycle increments the cycle
// counter, records the garbaged-total gauge, and increments the
// cycle-errors counter only when the cycle produced errors.
func TestRunCycleRecordsMetrics(t *testing.T) {
	metrics := newSpyMetrics()
	e := &Engine{Clock: func() time.Time { return time.Unix(0, 0) }, Logger: telemetry.NewNoopLogger(), Metrics: metrics}

	p := plan.New()
	_, err := e.RunCycle(context.Background(), p, nil)
	require.NoError(t, err)

	require.Equal(t, float64(1), metrics.counters["plan.cycle"])
	require.Contains(t, metrics.gauges, "plan.garbaged_total")
	require.NotContains(t, metrics.counters, "plan.cycle_errors")
}

// TestRunDrainsQueueEachTickUntilCancelled verifies Run drains the external
// queue and executes a cycle on every tick, and returns the context's error
// once cancelled.
func TestRunDrainsQueueEachTickUntilCancelled(t *testing.T) {
	m := plan.NewModel("inmem-fixture")
	m.Events["start"] = plan.EventDecl{Name: "start", Controllable: true, Command: func(t *plan.Task, ctx any) error {
		_, err := t.Events["start"].Emit(ctx, nil, 0, 0)
		return err
	}}
	p := plan.New()
	task, err := p.NewTask(m, nil)
	require.NoError(t, err)

	q := queue.NewMemQueue(4)
	require.NoError(t, q.Push(context.Background(), plan.ExternalEvent{GeneratorID: task.Events["start"].ID()}))

	e := New()
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	runErr := e.Run(ctx, p, q, 2*time.Millisecond)
	require.ErrorIs(t, runErr, context.DeadlineExceeded)
	require.True(t, task.Events["start"].Emitted())
}

var _ engine.Engine = (*Engine)(nil)
