package plan

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/taskplan/kernel/errs"
)

// TestTransactionCommitIsAllOrNothingProperty verifies universal invariant
// 7 (§8) for the two cases a transaction's own validation guarantees: a
// transaction whose staged edits are all still valid against the live plan
// becomes entirely visible on Commit, and a discarded transaction leaves
// the plan exactly as it was (zero edits visible).
func TestTransactionCommitIsAllOrNothingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("commit applies every staged edge, discard applies none", prop.ForAll(
		func(numEdges int, commit bool) bool {
			m := simpleCommandModel()
			p := New()

			tasks := make([]*Task, numEdges+1)
			for i := range tasks {
				task, err := p.NewTask(m, nil)
				if err != nil {
					return false
				}
				tasks[i] = task
			}

			tx := NewTransaction(p)
			type edge struct{ from, to ID }
			var staged []edge
			for i := 0; i < numEdges; i++ {
				from, to := tasks[i].ID(), tasks[i+1].ID()
				if err := tx.AddEdge(relDependency, from, to); err != nil {
					return false
				}
				staged = append(staged, edge{from, to})
			}

			if commit {
				if err := tx.Commit(); err != nil {
					return false
				}
				for _, e := range staged {
					if !p.HasEdge(relDependency, e.from, e.to) {
						return false
					}
				}
				return true
			}

			tx.Discard()
			for _, e := range staged {
				if p.HasEdge(relDependency, e.from, e.to) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 5),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestTransactionNotVisibleBeforeCommit is a direct sanity check that
// staged edits are invisible on the live plan until Commit runs.
func TestTransactionNotVisibleBeforeCommit(t *testing.T) {
	m := simpleCommandModel()
	p := New()
	a, err := p.NewTask(m, nil)
	require.NoError(t, err)
	b, err := p.NewTask(m, nil)
	require.NoError(t, err)

	tx := NewTransaction(p)
	require.NoError(t, tx.AddEdge(relDependency, a.ID(), b.ID()))

	require.False(t, p.HasEdge(relDependency, a.ID(), b.ID()))
	require.True(t, tx.HasEdge(relDependency, a.ID(), b.ID()))

	require.NoError(t, tx.Commit())
	require.True(t, p.HasEdge(relDependency, a.ID(), b.ID()))
}

// TestTaskProxyDependsOnAndHandledByStageCorrectRelations verifies the
// TaskProxy convenience methods stage edges into the relations they name
// rather than confusing dependency and error-handling edges.
func TestTaskProxyDependsOnAndHandledByStageCorrectRelations(t *testing.T) {
	m := simpleCommandModel()
	p := New()
	a, err := p.NewTask(m, nil)
	require.NoError(t, err)
	b, err := p.NewTask(m, nil)
	require.NoError(t, err)

	tx := NewTransaction(p)
	ta, tb := tx.Task(a), tx.Task(b)
	require.NoError(t, ta.DependsOn(tb))
	require.NoError(t, ta.HandledBy(tb))
	require.NoError(t, tx.Commit())

	require.True(t, p.HasEdge(relDependency, a.ID(), b.ID()))
	require.True(t, p.HasEdge(relErrorHandler, a.ID(), b.ID()))
}

// TestTransactionRejectsCycleAcrossOverlayAndLivePlan verifies AddEdge on a
// DAG-flagged relation rejects a cycle formed by combining the plan's live
// edges with edges already staged in this same transaction.
func TestTransactionRejectsCycleAcrossOverlayAndLivePlan(t *testing.T) {
	m := simpleCommandModel()
	p := New()
	a, err := p.NewTask(m, nil)
	require.NoError(t, err)
	b, err := p.NewTask(m, nil)
	require.NoError(t, err)
	c, err := p.NewTask(m, nil)
	require.NoError(t, err)

	require.NoError(t, p.AddEdge(relDependency, a.ID(), b.ID()))

	tx := NewTransaction(p)
	require.NoError(t, tx.AddEdge(relDependency, b.ID(), c.ID()))

	err = tx.AddEdge(relDependency, c.ID(), a.ID())
	require.Error(t, err)
	var cycleErr *errs.CycleFound
	require.ErrorAs(t, err, &cycleErr)
}

// TestTransactionRemoveEdgeOverlaySemantics verifies RemoveEdge staged
// against a live edge hides it from the overlay view but leaves the live
// plan untouched until Commit.
func TestTransactionRemoveEdgeOverlaySemantics(t *testing.T) {
	m := simpleCommandModel()
	p := New()
	a, err := p.NewTask(m, nil)
	require.NoError(t, err)
	b, err := p.NewTask(m, nil)
	require.NoError(t, err)
	require.NoError(t, p.AddEdge(relDependency, a.ID(), b.ID()))

	tx := NewTransaction(p)
	tx.RemoveEdge(relDependency, a.ID(), b.ID())
	require.False(t, tx.HasEdge(relDependency, a.ID(), b.ID()))
	require.True(t, p.HasEdge(relDependency, a.ID(), b.ID()), "live plan unaffected before commit")

	require.NoError(t, tx.Commit())
	require.False(t, p.HasEdge(relDependency, a.ID(), b.ID()))
}

// TestTransactionCommitTwiceFails verifies a transaction cannot be
// committed twice (§4.5).
func TestTransactionCommitTwiceFails(t *testing.T) {
	p := New()
	tx := NewTransaction(p)
	require.NoError(t, tx.Commit())
	require.Error(t, tx.Commit())
}

// TestTransactionWrappedIDsTracksOnlyExplicitlyOrEditTouchedObjects verifies
// the proxy-wrapping minimality invariant WrappedIDs exists to expose (§8):
// a proxy exists, and its ID appears in WrappedIDs, iff code has explicitly
// asked for one via Task/Event or a staged edit actually touched it.
// Objects never referenced by this transaction never appear.
func TestTransactionWrappedIDsTracksOnlyExplicitlyOrEditTouchedObjects(t *testing.T) {
	m := simpleCommandModel()
	p := New()
	a, err := p.NewTask(m, nil)
	require.NoError(t, err)
	b, err := p.NewTask(m, nil)
	require.NoError(t, err)
	c, err := p.NewTask(m, nil)
	require.NoError(t, err)

	tx := NewTransaction(p)
	ta := tx.Task(a)
	tb := tx.Task(b)
	require.ElementsMatch(t, []ID{a.ID(), b.ID()}, tx.WrappedIDs(),
		"tx.Task wraps exactly the task asked for, not its events")

	aStart := ta.Event("start")
	require.Contains(t, tx.WrappedIDs(), aStart.ID(), "tx.Event wraps the generator explicitly requested")

	require.NoError(t, ta.DependsOn(tb))
	require.ElementsMatch(t, []ID{a.ID(), b.ID(), aStart.ID()}, tx.WrappedIDs(),
		"the staged dependency edge touches only a and b, both already wrapped")

	require.NotContains(t, tx.WrappedIDs(), c.ID(), "c was never referenced by this transaction")
}
