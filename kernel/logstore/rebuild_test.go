package logstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskplan/kernel/logstore"
	"github.com/taskplan/kernel/model"
	"github.com/taskplan/kernel/plan"
)

func buildModel() *plan.Model {
	noop := func(t *plan.Task, ctx any) error { return nil }
	b := model.New("counter", nil).
		Event("start", true, false, noop).
		Event("bump", true, false, noop)
	return b.Model()
}

func buildPlan(t *testing.T, m *plan.Model) (*plan.Plan, *plan.Task) {
	t.Helper()
	p := plan.New()
	task, err := p.NewTask(m, map[string]any{})
	require.NoError(t, err)
	p.SetMission(task.ID(), true)
	require.NoError(t, task.Start(nil))
	return p, task
}

func containsID(ids []plan.ID, id plan.ID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// assertObservablesEquivalent compares the public observables spec.md's §8
// log-replay round-trip law names — mission_tasks, permanent_tasks, emitted
// histories, garbage sets — between a plan built directly and one rebuilt by
// replay, at one cycle boundary. IDs themselves are never compared directly:
// each plan assigns its own random task/event IDs, so only membership
// relative to that plan's own task, and set sizes, are meaningful across the
// two plan instances.
func assertObservablesEquivalent(t *testing.T, label string, original, rebuilt *plan.Plan, originalTask, rebuiltTask *plan.Task) {
	t.Helper()

	require.Equal(t, len(original.MissionIDs()), len(rebuilt.MissionIDs()), "%s: mission_tasks count", label)
	require.Equal(t,
		containsID(original.MissionIDs(), originalTask.ID()),
		containsID(rebuilt.MissionIDs(), rebuiltTask.ID()),
		"%s: mission_tasks membership of the tracked task", label)

	require.Equal(t, len(original.PermanentIDs()), len(rebuilt.PermanentIDs()), "%s: permanent_tasks count", label)

	require.Equal(t, len(original.Garbaged()), len(rebuilt.Garbaged()), "%s: garbage set size", label)
	require.Equal(t, len(original.Finalized()), len(rebuilt.Finalized()), "%s: finalized set size", label)

	require.Equal(t, originalTask.Status(), rebuiltTask.Status(), "%s: task status", label)
	for symbol, gen := range originalTask.Events {
		rebuiltGen, ok := rebuiltTask.Events[symbol]
		require.True(t, ok, "%s: rebuilt task missing event %q", label, symbol)
		require.Equal(t, gen.Emitted(), rebuiltGen.Emitted(), "%s: event %q emitted", label, symbol)
		require.Equal(t, len(gen.History()), len(rebuiltGen.History()), "%s: event %q history length", label, symbol)
	}
}

// TestRebuilderReplayReproducesState exercises the round-trip law: a plan
// rebuilt from the same model and replayed cycle-by-cycle against the
// persisted cycle log reaches the same mission_tasks/permanent_tasks,
// emitted histories, and garbage sets as the original run, at every cycle
// boundary along the way, not just at the end.
func TestRebuilderReplayReproducesState(t *testing.T) {
	ctx := context.Background()
	m := buildModel()

	original, originalTask := buildPlan(t, m)
	rebuilt, rebuiltTask := buildPlan(t, m)
	rb := &logstore.Rebuilder{}

	runAndCompare := func(label string, seconds int64, micros int32, originalExternal, rebuiltExternal []plan.ExternalEvent) {
		original.BeginCycle()
		original.InjectExternal(originalExternal, seconds, micros)
		original.DrainPropagation(seconds, micros)
		original.CollectGarbage()

		_, err := rb.Replay(ctx, rebuilt, []logstore.CycleRecord{
			{Seconds: seconds, Micros: micros, External: rebuiltExternal},
		}, false)
		require.NoError(t, err)

		assertObservablesEquivalent(t, label, original, rebuilt, originalTask, rebuiltTask)
	}

	runAndCompare("cycle 1 (bump)", 1, 0,
		[]plan.ExternalEvent{{GeneratorID: originalTask.Events["bump"].ID()}},
		[]plan.ExternalEvent{{GeneratorID: rebuiltTask.Events["bump"].ID()}})
	runAndCompare("cycle 2 (idle)", 2, 0, nil, nil)
	runAndCompare("cycle 3 (bump again)", 3, 0,
		[]plan.ExternalEvent{{GeneratorID: originalTask.Events["bump"].ID()}},
		[]plan.ExternalEvent{{GeneratorID: rebuiltTask.Events["bump"].ID()}})
}
