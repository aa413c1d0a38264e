package plan

import "github.com/taskplan/kernel/errs"

type (
	// RelationHooks lets a plan object react to edges being added or
	// removed from a relation graph it participates in. All methods are
	// optional: embed RelationHooksBase to get no-op defaults (§4.4).
	RelationHooks interface {
		AddingChild(g *RelationGraph, child ID, info any) error
		AddedChild(g *RelationGraph, child ID, info any)
		AddingParent(g *RelationGraph, parent ID, info any) error
		AddedParent(g *RelationGraph, parent ID, info any)
		UpdatedChild(g *RelationGraph, child ID, info any)
		UpdatedParent(g *RelationGraph, parent ID, info any)
		RemovedChild(g *RelationGraph, child ID)
		RemovedParent(g *RelationGraph, parent ID)
	}

	// RelationHooksBase provides no-op implementations of RelationHooks so
	// plan object types only need to override the hooks they care about.
	RelationHooksBase struct{}

	// RelationGraph is a typed directed graph between plan object IDs. A
	// DAG-flagged graph rejects edges that would close a cycle;
	// CopyOnReplace/Strong govern replacement-time rewiring (§4.4, §4.6).
	RelationGraph struct {
		Name          string
		DAG           bool
		CopyOnReplace bool
		Strong        bool

		plan      *Plan
		children  map[ID]map[ID]any // parent -> child -> edge info
		childSeq  map[ID][]ID       // parent -> children in insertion order (§5 ordering guarantee)
		parents   map[ID]map[ID]bool
	}
)

func (RelationHooksBase) AddingChild(*RelationGraph, ID, any) error  { return nil }
func (RelationHooksBase) AddedChild(*RelationGraph, ID, any)        {}
func (RelationHooksBase) AddingParent(*RelationGraph, ID, any) error { return nil }
func (RelationHooksBase) AddedParent(*RelationGraph, ID, any)       {}
func (RelationHooksBase) UpdatedChild(*RelationGraph, ID, any)      {}
func (RelationHooksBase) UpdatedParent(*RelationGraph, ID, any)     {}
func (RelationHooksBase) RemovedChild(*RelationGraph, ID)           {}
func (RelationHooksBase) RemovedParent(*RelationGraph, ID)          {}

func newRelationGraph(p *Plan, name string, dag, copyOnReplace, strong bool) *RelationGraph {
	return &RelationGraph{
		Name:          name,
		DAG:           dag,
		CopyOnReplace: copyOnReplace,
		Strong:        strong,
		plan:          p,
		children:      make(map[ID]map[ID]any),
		childSeq:      make(map[ID][]ID),
		parents:       make(map[ID]map[ID]bool),
	}
}

// OrderedChildren returns the direct children of id in the order their
// edges were first added (§5 ordering guarantee: signal/forward edges from
// a given event dispatch in insertion order).
func (g *RelationGraph) OrderedChildren(id ID) []ID {
	return append([]ID(nil), g.childSeq[id]...)
}

// HasEdge reports whether from->to is a direct edge.
func (g *RelationGraph) HasEdge(from, to ID) bool {
	m, ok := g.children[from]
	if !ok {
		return false
	}
	_, ok = m[to]
	return ok
}

// EdgeInfo returns the info attached to from->to, if the edge exists.
func (g *RelationGraph) EdgeInfo(from, to ID) (any, bool) {
	m, ok := g.children[from]
	if !ok {
		return nil, false
	}
	v, ok := m[to]
	return v, ok
}

// Children returns the direct children of id, in no particular order.
func (g *RelationGraph) Children(id ID) []ID {
	m := g.children[id]
	out := make([]ID, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	return out
}

// Parents returns the direct parents of id.
func (g *RelationGraph) Parents(id ID) []ID {
	m := g.parents[id]
	out := make([]ID, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	return out
}

// wouldCycle reports whether adding from->to would create a cycle, i.e.
// whether to can already reach from.
func (g *RelationGraph) wouldCycle(from, to ID) bool {
	if from == to {
		return true
	}
	visited := make(map[ID]bool)
	var stack []ID
	stack = append(stack, to)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == from {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		for c := range g.children[n] {
			stack = append(stack, c)
		}
	}
	return false
}

// AddEdge adds from->to with the given edge info, invoking the symmetric
// adding_child/added_child and adding_parent/added_parent hooks (§4.4). A
// DAG-flagged graph that would close a cycle rejects the edge with
// CycleFound before any hook fires. If an adding_* hook returns an error
// the edge is not added; if an added_* hook returns (panics aside) the edge
// remains added — hooks here return no error by signature so that
// guarantee is automatic.
func (g *RelationGraph) AddEdge(from, to ID, info any) error {
	if g.DAG && g.wouldCycle(from, to) {
		return &errs.CycleFound{Relation: g.Name, From: string(from), To: string(to)}
	}

	if g.HasEdge(from, to) {
		g.UpdateEdgeInfo(from, to, info)
		return nil
	}

	parentHooks, _ := g.plan.hooksFor(from)
	childHooks, _ := g.plan.hooksFor(to)

	if parentHooks != nil {
		if err := parentHooks.AddingChild(g, to, info); err != nil {
			return err
		}
	}
	if childHooks != nil {
		if err := childHooks.AddingParent(g, from, info); err != nil {
			return err
		}
	}

	if g.children[from] == nil {
		g.children[from] = make(map[ID]any)
	}
	g.children[from][to] = info
	g.childSeq[from] = append(g.childSeq[from], to)
	if g.parents[to] == nil {
		g.parents[to] = make(map[ID]bool)
	}
	g.parents[to][from] = true

	if parentHooks != nil {
		parentHooks.AddedChild(g, to, info)
	}
	if childHooks != nil {
		childHooks.AddedParent(g, from, info)
	}
	return nil
}

// UpdateEdgeInfo replaces the info on an existing edge and fires the
// info-only update hooks.
func (g *RelationGraph) UpdateEdgeInfo(from, to ID, info any) {
	if g.children[from] == nil {
		return
	}
	if _, ok := g.children[from][to]; !ok {
		return
	}
	g.children[from][to] = info
	if h, _ := g.plan.hooksFor(from); h != nil {
		h.UpdatedChild(g, to, info)
	}
	if h, _ := g.plan.hooksFor(to); h != nil {
		h.UpdatedParent(g, from, info)
	}
}

// RemoveEdge removes from->to if present.
func (g *RelationGraph) RemoveEdge(from, to ID) {
	if m := g.children[from]; m != nil {
		delete(m, to)
	}
	if seq := g.childSeq[from]; seq != nil {
		filtered := seq[:0]
		for _, c := range seq {
			if c != to {
				filtered = append(filtered, c)
			}
		}
		g.childSeq[from] = filtered
	}
	if m := g.parents[to]; m != nil {
		delete(m, from)
	}
	if h, _ := g.plan.hooksFor(from); h != nil {
		h.RemovedChild(g, to)
	}
	if h, _ := g.plan.hooksFor(to); h != nil {
		h.RemovedParent(g, from)
	}
}

// RemoveAllFor removes every edge incident to id, in either direction.
func (g *RelationGraph) RemoveAllFor(id ID) {
	for c := range g.children[id] {
		g.RemoveEdge(id, c)
	}
	for p := range g.parents[id] {
		g.RemoveEdge(p, id)
	}
}
