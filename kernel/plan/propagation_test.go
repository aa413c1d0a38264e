package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestForwardEmitsTargetDirectlyWithoutCommand verifies a forward edge
// emits the target generator directly, bypassing its command, carrying the
// source as a direct provenance entry (§4.2).
func TestForwardEmitsTargetDirectlyWithoutCommand(t *testing.T) {
	p := New()
	commandCalled := false
	target := p.NewFreeEvent(func(*Task, any) error {
		commandCalled = true
		return nil
	})
	source := p.NewFreeEvent(nil)
	require.NoError(t, p.AddForward(source.id, target.id))

	ev, err := source.Emit(nil, nil, 0, 0)
	require.NoError(t, err)
	agg := p.DrainPropagation(0, 0)
	require.Empty(t, agg)

	require.True(t, target.Emitted())
	require.False(t, commandCalled)
	last, ok := target.LastEvent()
	require.True(t, ok)
	require.Contains(t, last.DirectSources, source.id)
	_ = ev
}

// TestSignalActuallyInvokesCommand verifies a signal edge invokes the
// target's command rather than emitting it directly.
func TestSignalActuallyInvokesCommand(t *testing.T) {
	p := New()
	commandCalled := false
	target := p.NewFreeEvent(func(*Task, any) error {
		commandCalled = true
		return nil
	})
	source := p.NewFreeEvent(nil)
	require.NoError(t, p.AddSignal(source.id, target.id))

	_, err := source.Emit(nil, nil, 0, 0)
	require.NoError(t, err)
	agg := p.DrainPropagation(0, 0)
	require.Empty(t, agg)

	require.True(t, commandCalled)
	require.False(t, target.Emitted()) // the command itself never calls Emit
}

// TestPrecedenceBlocksUntilParentEmittedThenDeferredToNextCycle verifies a
// signal/forward step blocked by an unemitted precedence parent is
// deferred rather than delivered, and only promoted at the start of the
// next cycle via BeginCycle (§4.3 materialization, §5 ordering guarantee).
func TestPrecedenceBlocksUntilParentEmittedThenDeferredToNextCycle(t *testing.T) {
	p := New()
	target := p.NewFreeEvent(nil)
	source := p.NewFreeEvent(nil)
	parent := p.NewFreeEvent(nil)

	require.NoError(t, p.AddForward(source.id, target.id))
	require.NoError(t, p.AddPrecedence(parent.id, target.id))

	_, err := source.Emit(nil, nil, 0, 0)
	require.NoError(t, err)

	p.DrainPropagation(0, 0)
	require.False(t, target.Emitted(), "target must stay blocked until its precedence parent emits")

	_, err = parent.Emit(nil, nil, 0, 0)
	require.NoError(t, err)
	p.DrainPropagation(0, 0)
	require.False(t, target.Emitted(), "the deferred step is not retried until the next cycle begins")

	p.BeginCycle()
	p.DrainPropagation(0, 0)
	require.True(t, target.Emitted())
}

// TestPropagationDispatchIsInsertionOrdered verifies signal/forward steps
// enqueued from one emission are delivered in the order their edges were
// added (§5 ordering guarantee).
func TestPropagationDispatchIsInsertionOrdered(t *testing.T) {
	p := New()
	var order []int
	mk := func(n int) *EventGenerator {
		return p.NewFreeEvent(func(*Task, any) error {
			order = append(order, n)
			return nil
		})
	}
	source := p.NewFreeEvent(nil)
	t1, t2, t3 := mk(1), mk(2), mk(3)
	require.NoError(t, p.AddSignal(source.id, t1.id))
	require.NoError(t, p.AddSignal(source.id, t2.id))
	require.NoError(t, p.AddSignal(source.id, t3.id))

	_, err := source.Emit(nil, nil, 0, 0)
	require.NoError(t, err)
	p.DrainPropagation(0, 0)

	require.Equal(t, []int{1, 2, 3}, order)
}

// TestDrainPropagationAggregatesErrorsWithoutAborting verifies a failing
// signal delivery is collected into the aggregate error rather than
// stopping delivery of the remaining queued steps (§4.2/§7).
func TestDrainPropagationAggregatesErrorsWithoutAborting(t *testing.T) {
	p := New()
	failing := p.NewFreeEvent(func(*Task, any) error { return errors.New("boom") })
	var secondCalled bool
	succeeding := p.NewFreeEvent(func(*Task, any) error {
		secondCalled = true
		return nil
	})
	source := p.NewFreeEvent(nil)
	require.NoError(t, p.AddSignal(source.id, failing.id))
	require.NoError(t, p.AddSignal(source.id, succeeding.id))

	_, err := source.Emit(nil, nil, 0, 0)
	require.NoError(t, err)
	agg := p.DrainPropagation(0, 0)

	require.NotEmpty(t, agg)
	require.True(t, secondCalled)
}
