package plan

// graphAccessor abstracts reading and writing one relation graph's edges so
// that the replacement algorithm (§4.6) can run identically whether it is
// mutating a plan directly or staging mutations inside a transaction
// (§4.5's invariant that a transaction commit must reproduce the same plan
// state as the same mutation performed directly, §8 invariant 7).
type graphAccessor interface {
	Parents(relation string, id ID) []ID
	Children(relation string, id ID) []ID
	HasEdge(relation string, from, to ID) bool
	AddEdge(relation string, from, to ID) error
	RemoveEdge(relation string, from, to ID)
	RelationMeta(relation string) (dag, copyOnReplace, strong bool, ok bool)
}

// relationGraph resolves a relation graph by name across both the
// event-level and task-level graph sets.
func (p *Plan) relationGraph(name string) *RelationGraph {
	if g, ok := p.eventGraphs[name]; ok {
		return g
	}
	if g, ok := p.taskGraphs[name]; ok {
		return g
	}
	return nil
}

// eventRelationNames and taskRelationNames list the relations the
// replacement algorithm walks for event-owned and task-owned nodes
// respectively.
func eventRelationNames() []string {
	return []string{relSignal, relForward, relPrecedence, relCausalLink}
}

func taskRelationNames() []string {
	return []string{relDependency, relErrorHandler}
}

// --- Plan as a direct graphAccessor ---

func (p *Plan) Parents(relation string, id ID) []ID {
	g := p.relationGraph(relation)
	if g == nil {
		return nil
	}
	return g.Parents(id)
}

func (p *Plan) Children(relation string, id ID) []ID {
	g := p.relationGraph(relation)
	if g == nil {
		return nil
	}
	return g.OrderedChildren(id)
}

func (p *Plan) HasEdge(relation string, from, to ID) bool {
	g := p.relationGraph(relation)
	if g == nil {
		return false
	}
	return g.HasEdge(from, to)
}

func (p *Plan) AddEdge(relation string, from, to ID) error {
	g := p.relationGraph(relation)
	if g == nil {
		return nil
	}
	return g.AddEdge(from, to, nil)
}

func (p *Plan) RemoveEdge(relation string, from, to ID) {
	g := p.relationGraph(relation)
	if g == nil {
		return
	}
	g.RemoveEdge(from, to)
}

func (p *Plan) RelationMeta(relation string) (dag, copyOnReplace, strong bool, ok bool) {
	g := p.relationGraph(relation)
	if g == nil {
		return false, false, false, false
	}
	return g.DAG, g.CopyOnReplace, g.Strong, true
}
