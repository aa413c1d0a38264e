package plan

import "github.com/taskplan/kernel/errs"

type (
	relationOverlay struct {
		added    map[ID]map[ID]bool
		addedSeq map[ID][]ID
		removed  map[ID]map[ID]bool
	}

	editRef struct {
		relation string
		add      bool
		from, to ID
	}

	// Transaction stages relation edits against a plan without mutating it.
	// A proxy exists for a plan object iff some staged mutation has touched
	// it, or code has explicitly asked for one via Task/Event; Commit
	// replays every staged edit, in the order it was made, against the real
	// plan, invoking the same relation hooks a direct mutation would (§4.5).
	Transaction struct {
		plan *Plan

		overlays  map[string]*relationOverlay
		editOrder []editRef

		wrapped map[ID]bool

		taskProxies  map[ID]*TaskProxy
		eventProxies map[ID]*EventProxy

		committed bool
		discarded bool
	}

	// TaskProxy is the transaction-scoped view of a task: relation queries
	// see the overlay; relation mutations stage into the transaction rather
	// than touching the plan (§4.5).
	TaskProxy struct {
		tx   *Transaction
		task *Task
	}

	// EventProxy is the transaction-scoped view of an event generator.
	EventProxy struct {
		tx  *Transaction
		gen *EventGenerator
	}
)

// NewTransaction opens a transaction against p.
func NewTransaction(p *Plan) *Transaction {
	return &Transaction{
		plan:         p,
		overlays:     make(map[string]*relationOverlay),
		wrapped:      make(map[ID]bool),
		taskProxies:  make(map[ID]*TaskProxy),
		eventProxies: make(map[ID]*EventProxy),
	}
}

func (tx *Transaction) overlay(relation string) *relationOverlay {
	o, ok := tx.overlays[relation]
	if !ok {
		o = &relationOverlay{
			added:    make(map[ID]map[ID]bool),
			addedSeq: make(map[ID][]ID),
			removed:  make(map[ID]map[ID]bool),
		}
		tx.overlays[relation] = o
	}
	return o
}

func (tx *Transaction) markWrapped(ids ...ID) {
	for _, id := range ids {
		tx.wrapped[id] = true
	}
}

// Parents returns id's parents in relation, merging the plan's live edges
// with this transaction's staged edits.
func (tx *Transaction) Parents(relation string, id ID) []ID {
	base := tx.plan.Parents(relation, id)
	o := tx.overlays[relation]
	out := make([]ID, 0, len(base))
	for _, p := range base {
		if o != nil && o.removed[p] != nil && o.removed[p][id] {
			continue
		}
		out = append(out, p)
	}
	if o != nil {
		for from, tos := range o.added {
			if tos[id] {
				out = append(out, from)
			}
		}
	}
	return out
}

// Children returns id's children in relation, insertion-order for the
// plan's own edges followed by this transaction's staged additions.
func (tx *Transaction) Children(relation string, id ID) []ID {
	base := tx.plan.Children(relation, id)
	o := tx.overlays[relation]
	out := make([]ID, 0, len(base))
	for _, c := range base {
		if o != nil && o.removed[id] != nil && o.removed[id][c] {
			continue
		}
		out = append(out, c)
	}
	if o != nil {
		out = append(out, o.addedSeq[id]...)
	}
	return out
}

// HasEdge reports whether from->to holds once the transaction's staged
// edits are applied over the plan's live edges.
func (tx *Transaction) HasEdge(relation string, from, to ID) bool {
	if o := tx.overlays[relation]; o != nil {
		if o.removed[from] != nil && o.removed[from][to] {
			return false
		}
		if o.added[from] != nil && o.added[from][to] {
			return true
		}
	}
	return tx.plan.HasEdge(relation, from, to)
}

func (tx *Transaction) wouldCycle(relation string, from, to ID) bool {
	if from == to {
		return true
	}
	visited := make(map[ID]bool)
	stack := []ID{to}
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
		stack = append(stack, tx.Children(relation, n)...)
	}
	return false
}

// AddEdge stages from->to for relation. A DAG-flagged relation rejects an
// edge that would close a cycle across the merged (plan+overlay) graph.
func (tx *Transaction) AddEdge(relation string, from, to ID) error {
	if dag, _, _, ok := tx.plan.RelationMeta(relation); ok && dag {
		if tx.wouldCycle(relation, from, to) {
			return &errs.CycleFound{Relation: relation, From: string(from), To: string(to)}
		}
	}
	if tx.HasEdge(relation, from, to) {
		return nil
	}
	o := tx.overlay(relation)
	if o.removed[from] != nil && o.removed[from][to] {
		delete(o.removed[from], to)
		tx.markWrapped(from, to)
		return nil
	}
	if o.added[from] == nil {
		o.added[from] = make(map[ID]bool)
	}
	o.added[from][to] = true
	o.addedSeq[from] = append(o.addedSeq[from], to)
	tx.editOrder = append(tx.editOrder, editRef{relation: relation, add: true, from: from, to: to})
	tx.markWrapped(from, to)
	return nil
}

// RemoveEdge stages from->to's removal for relation.
func (tx *Transaction) RemoveEdge(relation string, from, to ID) {
	o := tx.overlay(relation)
	if o.added[from] != nil && o.added[from][to] {
		delete(o.added[from], to)
		seq := o.addedSeq[from][:0]
		for _, c := range o.addedSeq[from] {
			if c != to {
				seq = append(seq, c)
			}
		}
		o.addedSeq[from] = seq
		tx.markWrapped(from, to)
		return
	}
	if !tx.plan.HasEdge(relation, from, to) {
		return
	}
	if o.removed[from] == nil {
		o.removed[from] = make(map[ID]bool)
	}
	o.removed[from][to] = true
	tx.editOrder = append(tx.editOrder, editRef{relation: relation, add: false, from: from, to: to})
	tx.markWrapped(from, to)
}

// RelationMeta delegates to the plan: a relation's DAG/CopyOnReplace/Strong
// flags are fixed at graph construction and are never part of the overlay.
func (tx *Transaction) RelationMeta(relation string) (dag, copyOnReplace, strong bool, ok bool) {
	return tx.plan.RelationMeta(relation)
}

// Task returns the transaction-scoped proxy for t, creating it on first
// access (§4.5: a proxy exists iff something in the transaction references
// it).
func (tx *Transaction) Task(t *Task) *TaskProxy {
	if p, ok := tx.taskProxies[t.id]; ok {
		return p
	}
	tx.markWrapped(t.id)
	p := &TaskProxy{tx: tx, task: t}
	tx.taskProxies[t.id] = p
	return p
}

// Event returns the transaction-scoped proxy for g, creating it on first
// access.
func (tx *Transaction) Event(g *EventGenerator) *EventProxy {
	if p, ok := tx.eventProxies[g.id]; ok {
		return p
	}
	tx.markWrapped(g.id)
	p := &EventProxy{tx: tx, gen: g}
	tx.eventProxies[g.id] = p
	return p
}

// WrappedIDs returns every plan object ID this transaction has wrapped so
// far, for tests asserting on proxy-wrapping minimality (§8).
func (tx *Transaction) WrappedIDs() []ID {
	out := make([]ID, 0, len(tx.wrapped))
	for id := range tx.wrapped {
		out = append(out, id)
	}
	return out
}

// Commit replays every staged edit, in staging order, against the live
// plan. A failure partway through (a DAG relation rejecting an edge whose
// precondition changed since it was staged) leaves the plan partially
// mutated; callers wanting strict atomicity should validate with a fresh
// Transaction immediately before committing.
func (tx *Transaction) Commit() error {
	if tx.committed || tx.discarded {
		return &errs.ModelViolation{Detail: "transaction already closed"}
	}
	for _, e := range tx.editOrder {
		if e.add {
			if err := tx.plan.AddEdge(e.relation, e.from, e.to); err != nil {
				return err
			}
		} else {
			tx.plan.RemoveEdge(e.relation, e.from, e.to)
		}
	}
	tx.committed = true
	return nil
}

// Discard abandons every staged edit.
func (tx *Transaction) Discard() {
	tx.discarded = true
	tx.overlays = nil
	tx.editOrder = nil
}

// ID returns the wrapped task's stable identity.
func (tp *TaskProxy) ID() ID { return tp.task.ID() }

// Unwrap returns the underlying task this proxy wraps.
func (tp *TaskProxy) Unwrap() *Task { return tp.task }

// Event returns the transaction-scoped proxy for one of the task's own
// events.
func (tp *TaskProxy) Event(symbol string) *EventProxy {
	g, ok := tp.task.Events[symbol]
	if !ok {
		return nil
	}
	return tp.tx.Event(g)
}

// DependsOn stages a dependency edge from this task to child.
func (tp *TaskProxy) DependsOn(child *TaskProxy) error {
	return tp.tx.AddEdge(relDependency, tp.task.id, child.task.id)
}

// HandledBy stages an error_handling edge from this task to handler.
func (tp *TaskProxy) HandledBy(handler *TaskProxy) error {
	return tp.tx.AddEdge(relErrorHandler, tp.task.id, handler.task.id)
}

// ReplaceBy stages the full replace_by operator (§4.6) against this
// transaction, to take effect on Commit.
func (tp *TaskProxy) ReplaceBy(replacement *TaskProxy) error {
	return replaceTask(tp.tx, tp.task, replacement.task, false)
}

// ReplaceSubplanBy stages the replace_subplan_by operator (§4.6).
func (tp *TaskProxy) ReplaceSubplanBy(replacement *TaskProxy) error {
	return replaceTask(tp.tx, tp.task, replacement.task, true)
}

// ID returns the wrapped generator's stable identity.
func (ep *EventProxy) ID() ID { return ep.gen.ID() }

// Unwrap returns the underlying generator this proxy wraps.
func (ep *EventProxy) Unwrap() *EventGenerator { return ep.gen }

// Signal stages a signal edge from this event to to.
func (ep *EventProxy) Signal(to *EventProxy) error {
	return ep.tx.AddEdge(relSignal, ep.gen.id, to.gen.id)
}

// Forward stages a forward edge from this event to to.
func (ep *EventProxy) Forward(to *EventProxy) error {
	return ep.tx.AddEdge(relForward, ep.gen.id, to.gen.id)
}

// RemoveSignal stages the removal of a signal edge from this event to to.
func (ep *EventProxy) RemoveSignal(to *EventProxy) {
	ep.tx.RemoveEdge(relSignal, ep.gen.id, to.gen.id)
}

// RemoveForward stages the removal of a forward edge from this event to to.
func (ep *EventProxy) RemoveForward(to *EventProxy) {
	ep.tx.RemoveEdge(relForward, ep.gen.id, to.gen.id)
}
