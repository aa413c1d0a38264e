// Package plan implements the plan execution kernel: the task/event model
// and its state machines, the relation graphs between events and tasks, the
// transaction layer, the argument system, and the replacement operators.
package plan

import "sync"

const (
	relSignal       = "signal"
	relForward      = "forward"
	relPrecedence   = "precedence"
	relCausalLink   = "causal_link"
	relDependency   = "dependency"
	relErrorHandler = "error_handling"
)

// Plan owns the live sets of tasks and free events, the relation graphs
// between them, and the garbage buckets populated by GC (§3).
type Plan struct {
	mu sync.Mutex

	executable bool

	tasks       map[ID]*Task
	taskSeq     []ID
	freeEvents  map[ID]*EventGenerator
	taskEvents  map[ID]*EventGenerator // indexed copy of every task's generators, for relation-hook lookup

	eventGraphs map[string]*RelationGraph
	taskGraphs  map[string]*RelationGraph

	mission   map[ID]bool
	permanent map[ID]bool
	// permanentEvents holds free events that are GC roots on their own.
	permanentEvents map[ID]bool
	quarantined     map[ID]bool

	garbaged         []ID
	garbagedSet      map[ID]bool
	finalized        []ID
	failedToStart    []ID
	propagatedErrors []error

	queue          []propStep
	nextCycleQueue []propStep

	log func(entry LogEntry)
}

// LogEntry mirrors the persisted log entry quadruple of §6: a method name,
// a timestamp split into seconds/micros (for deterministic replay), and the
// method's arguments.
type LogEntry struct {
	Method  string
	Seconds int64
	Micros  int32
	Args    []any
}

// New constructs an empty, executable plan.
func New() *Plan {
	p := &Plan{
		executable:      true,
		tasks:           make(map[ID]*Task),
		freeEvents:      make(map[ID]*EventGenerator),
		taskEvents:      make(map[ID]*EventGenerator),
		mission:         make(map[ID]bool),
		permanent:       make(map[ID]bool),
		permanentEvents: make(map[ID]bool),
		quarantined:     make(map[ID]bool),
		garbagedSet:     make(map[ID]bool),
	}
	p.eventGraphs = map[string]*RelationGraph{
		relSignal:     newRelationGraph(p, relSignal, false, false, false),
		relForward:    newRelationGraph(p, relForward, false, false, false),
		relPrecedence: newRelationGraph(p, relPrecedence, true, false, true),
		relCausalLink: newRelationGraph(p, relCausalLink, false, false, false),
	}
	p.taskGraphs = map[string]*RelationGraph{
		relDependency:   newRelationGraph(p, relDependency, true, false, false),
		relErrorHandler: newRelationGraph(p, relErrorHandler, false, true, false),
	}
	return p
}

// SetLogSink installs a function invoked with every persisted log entry the
// plan produces (§6). Pass nil to disable.
func (p *Plan) SetLogSink(fn func(LogEntry)) { p.log = fn }

func (p *Plan) emitLog(method string, t int64, micros int32, args ...any) {
	if p.log == nil {
		return
	}
	p.log(LogEntry{Method: method, Seconds: t, Micros: micros, Args: args})
}

// Executable reports whether the plan's tasks' commands may be invoked by
// an engine. A plain (non-executable) plan is inert (§GLOSSARY).
func (p *Plan) Executable() bool { return p.executable }

// SetExecutable toggles whether the plan is executable.
func (p *Plan) SetExecutable(v bool) { p.executable = v }

// SignalGraph, ForwardGraph, PrecedenceGraph, and CausalLinkGraph return the
// corresponding event-level relation graphs (§4.4).
func (p *Plan) SignalGraph() *RelationGraph     { return p.eventGraphs[relSignal] }
func (p *Plan) ForwardGraph() *RelationGraph    { return p.eventGraphs[relForward] }
func (p *Plan) PrecedenceGraph() *RelationGraph { return p.eventGraphs[relPrecedence] }
func (p *Plan) CausalLinkGraph() *RelationGraph { return p.eventGraphs[relCausalLink] }

// DependencyGraph and ErrorHandlingGraph return the corresponding
// task-level relation graphs (§3/NEW).
func (p *Plan) DependencyGraph() *RelationGraph    { return p.taskGraphs[relDependency] }
func (p *Plan) ErrorHandlingGraph() *RelationGraph { return p.taskGraphs[relErrorHandler] }

// hooksFor resolves a plan object ID to its RelationHooks implementation,
// if any is registered under that ID (task or event generator).
func (p *Plan) hooksFor(id ID) (RelationHooks, bool) {
	if t, ok := p.tasks[id]; ok {
		return t, true
	}
	if g, ok := p.freeEvents[id]; ok {
		return g, true
	}
	if g, ok := p.taskEvents[id]; ok {
		return g, true
	}
	return nil, false
}

// GeneratorByID resolves any event generator (free or task-owned) by ID.
func (p *Plan) GeneratorByID(id ID) (*EventGenerator, bool) {
	if g, ok := p.freeEvents[id]; ok {
		return g, true
	}
	if g, ok := p.taskEvents[id]; ok {
		return g, true
	}
	return nil, false
}

// TaskByID resolves a task by ID.
func (p *Plan) TaskByID(id ID) (*Task, bool) {
	t, ok := p.tasks[id]
	return t, ok
}

// NewFreeEvent creates an event generator with no owning task (§3). A free
// event is controllable iff cmd is non-nil.
func (p *Plan) NewFreeEvent(cmd CommandFunc) *EventGenerator {
	g := newEventGenerator(p, "", cmd != nil, cmd, false, nil)
	p.freeEvents[g.id] = g
	return g
}

// Tasks returns every task currently in the plan, in insertion order.
func (p *Plan) Tasks() []*Task {
	out := make([]*Task, 0, len(p.tasks))
	for _, id := range p.taskSeq {
		if t, ok := p.tasks[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// taskOrder returns every live task ID in insertion order, used by the
// query engine's Each (§4.7/NEW).
func (p *Plan) taskOrder() []ID {
	out := make([]ID, 0, len(p.tasks))
	for _, id := range p.taskSeq {
		if _, ok := p.tasks[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// FreeEvents returns every free (non-task) event generator in the plan.
func (p *Plan) FreeEvents() []*EventGenerator {
	out := make([]*EventGenerator, 0, len(p.freeEvents))
	for _, g := range p.freeEvents {
		out = append(out, g)
	}
	return out
}

// IsMission, IsPermanent, IsPermanentEvent, IsQuarantined report plan-level
// marks used by garbage collection (§3, §4.7/NEW).
func (p *Plan) IsMission(id ID) bool          { return p.mission[id] }
func (p *Plan) IsPermanent(id ID) bool        { return p.permanent[id] }
func (p *Plan) IsPermanentEvent(id ID) bool   { return p.permanentEvents[id] }
func (p *Plan) IsQuarantined(id ID) bool      { return p.quarantined[id] }

// MissionIDs and PermanentIDs enumerate every task ID currently marked a GC
// root by SetMission/SetPermanent, for snapshotting a plan's roots across a
// distributed-marshalling boundary (kernel/distributed).
func (p *Plan) MissionIDs() []ID {
	out := make([]ID, 0, len(p.mission))
	for id := range p.mission {
		out = append(out, id)
	}
	return out
}

func (p *Plan) PermanentIDs() []ID {
	out := make([]ID, 0, len(p.permanent))
	for id := range p.permanent {
		out = append(out, id)
	}
	return out
}

// Garbaged, Finalized, FailedToStart return copies of the corresponding GC
// buckets (§3).
func (p *Plan) Garbaged() []ID      { return append([]ID(nil), p.garbaged...) }
func (p *Plan) Finalized() []ID     { return append([]ID(nil), p.finalized...) }
func (p *Plan) FailedToStart() []ID { return append([]ID(nil), p.failedToStart...) }

// IsGarbaged reports whether id has already been collected into the garbage
// bucket (§4.6 Open Question: replacing an already-garbage object is an
// error, not a silent no-op).
func (p *Plan) IsGarbaged(id ID) bool { return p.garbagedSet[id] }

func (p *Plan) markGarbaged(id ID) {
	if p.garbagedSet[id] {
		return
	}
	p.garbagedSet[id] = true
	p.garbaged = append(p.garbaged, id)
}
