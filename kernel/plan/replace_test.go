package plan

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

// TestReplaceByEdgeRewiringProperty verifies universal invariant 6 (§8):
// after replace_by completes, every non-strong external relation edge
// incident to the replaced task is incident to its replacement, except
// that replace_subplan_by never moves the replaced task's own outgoing
// (child-side) edges, and a copy_on_replace relation leaves the edge on
// both tasks rather than moving it.
func TestReplaceByEdgeRewiringProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	relations := []string{relDependency, relErrorHandler}

	properties.Property("replace_by honors edge rewiring rules", prop.ForAll(
		func(relIdx int, oldIsParent, subplan bool) bool {
			rel := relations[relIdx%len(relations)]

			m := simpleCommandModel()
			p := New()
			oldTask, err := p.NewTask(m, nil)
			if err != nil {
				return false
			}
			newTask, err := p.NewTask(m, nil)
			if err != nil {
				return false
			}
			other, err := p.NewTask(m, nil)
			if err != nil {
				return false
			}

			var from, to ID
			if oldIsParent {
				from, to = oldTask.ID(), other.ID()
			} else {
				from, to = other.ID(), oldTask.ID()
			}
			if err := p.AddEdge(rel, from, to); err != nil {
				return false
			}

			_, copyOnReplace, strong, _ := p.RelationMeta(rel)

			if err := ReplaceTask(p, oldTask, newTask, subplan); err != nil {
				return false
			}

			var newFrom, newTo ID
			if oldIsParent {
				newFrom, newTo = newTask.ID(), other.ID()
			} else {
				newFrom, newTo = other.ID(), newTask.ID()
			}

			oldStillHasEdge := p.HasEdge(rel, from, to)
			newHasEdge := p.HasEdge(rel, newFrom, newTo)

			shouldMove := true
			if oldIsParent {
				shouldMove = !subplan // child-side edge, suppressed under subplan
			}

			switch {
			case strong, !shouldMove:
				return oldStillHasEdge && !newHasEdge
			case copyOnReplace:
				return oldStillHasEdge && newHasEdge
			default:
				return !oldStillHasEdge && newHasEdge
			}
		},
		gen.IntRange(0, len(relations)-1),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestReplacementHandlerCopyScenario is end-to-end scenario 3 (§8): an
// on(:start, on_replace: :copy) handler survives onto the replacement's
// corresponding event and fires for both tasks; a :drop handler fires only
// for the original.
func TestReplacementHandlerCopyScenario(t *testing.T) {
	emittingStart := func(t *Task, ctx any) error {
		_, err := t.Events["start"].Emit(ctx, nil, 0, 0)
		return err
	}
	m := NewModel("handler-copy")
	m.Events["start"] = EventDecl{Name: "start", Controllable: true, Command: emittingStart}

	p := New()
	a, err := p.NewTask(m, nil)
	require.NoError(t, err)
	b, err := p.NewTask(m, nil)
	require.NoError(t, err)

	var copiedCount, dropCount int
	a.Events["start"].OnEmit(func(*Task, *Event) error {
		copiedCount++
		return nil
	}, OnReplaceCopy)
	a.Events["start"].OnEmit(func(*Task, *Event) error {
		dropCount++
		return nil
	}, OnReplaceDrop)

	require.NoError(t, ReplaceTask(p, a, b, false))

	require.NoError(t, a.Start(nil))
	require.NoError(t, b.Start(nil))

	require.Equal(t, 2, copiedCount)
	require.Equal(t, 1, dropCount)
}

// TestTransactionReplaceSubplanByPreservesSourceOutgoingSignal is the
// edge-rewiring half of end-to-end scenario 6 (§8): given a.start signals
// c.start, replace_subplan_by(a, b) staged inside a transaction leaves that
// signal edge untouched after commit, since a subplan replacement only
// rewires edges incident to a as a child, never a's own outgoing edges.
// Which IDs this staging wraps is not asserted here; transaction_test.go
// checks Transaction.WrappedIDs separately, and there tx.Task wraps the
// task IDs a and b themselves rather than only a.start and b.start.
func TestTransactionReplaceSubplanByPreservesSourceOutgoingSignal(t *testing.T) {
	m := simpleCommandModel()
	p := New()
	a, err := p.NewTask(m, nil)
	require.NoError(t, err)
	b, err := p.NewTask(m, nil)
	require.NoError(t, err)
	c, err := p.NewTask(m, nil)
	require.NoError(t, err)

	require.NoError(t, p.AddSignal(a.Events["start"].id, c.Events["start"].id))

	tx := NewTransaction(p)
	ta := tx.Task(a)
	tb := tx.Task(b)
	require.NoError(t, ta.ReplaceSubplanBy(tb))
	require.NoError(t, tx.Commit())

	require.True(t, p.HasEdge(relSignal, a.Events["start"].id, c.Events["start"].id))
	require.False(t, p.HasEdge(relSignal, b.Events["start"].id, c.Events["start"].id))
}
