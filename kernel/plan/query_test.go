package plan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestQueryCombinatorsAndPredicates verifies And/Or/Not compose the plan-
// level predicates (Mission, Running, HasArgument, ...) as plain boolean
// combinators over a task set (§4.7/NEW).
func TestQueryCombinatorsAndPredicates(t *testing.T) {
	m := NewModel("query-combinators")
	m.Events["start"] = EventDecl{Name: "start", Controllable: true, Command: func(t *Task, ctx any) error {
		_, err := t.Events["start"].Emit(ctx, nil, 0, 0)
		return err
	}}

	p := New()
	a, err := p.NewTask(m, map[string]any{"x": 1})
	require.NoError(t, err)
	b, err := p.NewTask(m, nil)
	require.NoError(t, err)
	c, err := p.NewTask(m, nil)
	require.NoError(t, err)

	p.SetMission(a.id, true)
	require.NoError(t, a.Start(nil))
	require.NoError(t, b.Start(nil))

	hasX := NewQuery(HasArgument("x")).Each(p)
	require.ElementsMatch(t, []*Task{a}, hasX)

	running := NewQuery(Running()).Each(p)
	require.ElementsMatch(t, []*Task{a, b}, running)

	missionOrPending := NewQuery(Or(Mission(p), Pending())).Each(p)
	require.ElementsMatch(t, []*Task{a, c}, missionOrPending)

	notRunning := NewQuery(Not(Running())).Each(p)
	require.ElementsMatch(t, []*Task{c}, notRunning)

	missionAndRunning := NewQuery(And(Mission(p), Running())).Each(p)
	require.ElementsMatch(t, []*Task{a}, missionAndRunning)
}

// TestQueryDependsOnAndPermanent checks the DependsOn and Permanent
// predicates against the dependency graph and the GC permanence mark.
func TestQueryDependsOnAndPermanent(t *testing.T) {
	m := simpleCommandModel()
	p := New()
	a, err := p.NewTask(m, nil)
	require.NoError(t, err)
	b, err := p.NewTask(m, nil)
	require.NoError(t, err)

	require.NoError(t, p.AddEdge(relDependency, a.id, b.id))
	p.SetPermanent(b.id, true)

	dependsOnB := NewQuery(DependsOn(p, b.id)).Each(p)
	require.ElementsMatch(t, []*Task{a}, dependsOnB)

	permanent := NewQuery(Permanent(p)).Each(p)
	require.ElementsMatch(t, []*Task{b}, permanent)
}

// TestQueryEachOrderIsStableInsertionOrder verifies Each always walks tasks
// in the plan's stable per-call insertion order (§4.7/NEW), regardless of
// which tasks match.
func TestQueryEachOrderIsStableInsertionOrder(t *testing.T) {
	m := simpleCommandModel()
	p := New()
	var ids []ID
	for i := 0; i < 5; i++ {
		task, err := p.NewTask(m, nil)
		require.NoError(t, err)
		ids = append(ids, task.id)
	}

	matchAll := NewQuery(func(*Task) bool { return true }).Each(p)
	require.Len(t, matchAll, 5)
	for i, task := range matchAll {
		require.Equal(t, ids[i], task.id)
	}
}
