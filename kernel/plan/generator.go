package plan

import (
	"time"

	"github.com/taskplan/kernel/errs"
)

type (
	ifUnreachableEntry struct {
		handler          HandlerFunc
		cancelAtEmission bool
		cancelled        bool
	}

	outEdge struct {
		kind string // "signal" or "forward"
		to   ID
	}

	// EventGenerator is a named point from which concrete Events may be
	// emitted (§3). A generator owned by a task (Task != nil) is what the
	// spec calls a task event generator; free events simply have Task ==
	// nil.
	EventGenerator struct {
		RelationHooksBase

		id   ID
		plan *Plan

		// Symbol is the event's name within its owning task's namespace,
		// or "" for an anonymous free event.
		Symbol string
		// Task is the owning task, or nil for a free event.
		Task *Task

		controllable bool
		command      CommandFunc

		history []*Event
		emitted bool

		unreachable      bool
		unreachableCause error

		terminal  bool
		isSuccess bool
		isFailure bool

		onEmit        []HandlerDecl
		ifUnreachable []*ifUnreachableEntry
		whenFinalized []HandlerDecl

		outEdges []outEdge

		finalizedDone bool
	}
)

func newEventGenerator(p *Plan, symbol string, controllable bool, cmd CommandFunc, terminal bool, owner *Task) *EventGenerator {
	return &EventGenerator{
		id:           newID(),
		plan:         p,
		Symbol:       symbol,
		Task:         owner,
		controllable: controllable,
		command:      cmd,
		terminal:     terminal,
	}
}

// ID returns the generator's stable identity.
func (g *EventGenerator) ID() ID { return g.id }

// Controllable reports whether this generator has a command.
func (g *EventGenerator) Controllable() bool { return g.controllable }

// Emitted reports whether the generator has ever emitted. Monotonic: once
// true, never false (§8 invariant 3).
func (g *EventGenerator) Emitted() bool { return g.emitted }

// Unreachable reports whether the generator is marked unreachable, and its
// cause if any.
func (g *EventGenerator) Unreachable() (bool, error) { return g.unreachable, g.unreachableCause }

// Terminal reports whether this generator is classified as a terminal event
// at the task-model level.
func (g *EventGenerator) Terminal() bool { return g.terminal }

// History returns every event this generator has emitted, oldest first.
func (g *EventGenerator) History() []*Event { return append([]*Event(nil), g.history...) }

// LastEvent returns the most recent emitted event, if any.
func (g *EventGenerator) LastEvent() (*Event, bool) {
	if len(g.history) == 0 {
		return nil, false
	}
	return g.history[len(g.history)-1], true
}

// OnEmit registers a handler invoked, in registration order, whenever the
// generator emits.
func (g *EventGenerator) OnEmit(h HandlerFunc, policy OnReplacePolicy) {
	g.onEmit = append(g.onEmit, HandlerDecl{Handler: h, OnReplace: policy})
}

// IfUnreachable registers a handler invoked when the generator becomes
// unreachable. If cancelAtEmission is true, the handler is cancelled if the
// generator emits before becoming unreachable (§4.2).
func (g *EventGenerator) IfUnreachable(cancelAtEmission bool, h HandlerFunc) {
	g.ifUnreachable = append(g.ifUnreachable, &ifUnreachableEntry{handler: h, cancelAtEmission: cancelAtEmission})
}

// WhenFinalized registers a handler invoked once when the generator is
// removed from its plan.
func (g *EventGenerator) WhenFinalized(h HandlerFunc, policy OnReplacePolicy) {
	g.whenFinalized = append(g.whenFinalized, HandlerDecl{Handler: h, OnReplace: policy})
}

// executable mirrors the task-level predicate for a generator: the owning
// plan must be executable, and if the generator belongs to a task, the
// task itself must be executable (§4.3).
func (g *EventGenerator) executableNow() (bool, string) {
	if !g.plan.Executable() {
		return false, "plan is not executable"
	}
	if g.Task != nil {
		if ok, why := g.Task.Executable(); !ok {
			return false, why
		}
	}
	return true, ""
}

// Call requires the generator to be controllable and executable; it
// invokes the command, which must either emit or fail (§4.2). A command
// error raised before this generator's first emission is reported as
// CommandFailed; if the generator is a task's start event, the task is
// additionally marked failed_to_start.
func (g *EventGenerator) Call(ctx any) error {
	if !g.controllable {
		return &errs.EmissionFailed{Localization: g.localization(), Reason: "generator is not controllable"}
	}
	if ok, why := g.executableNow(); !ok {
		return &errs.CommandFailed{Localization: g.localization(), Cause: &errs.TaskEventNotExecutable{
			Task: g.taskID(), Event: g.Symbol, Why: why,
		}}
	}
	emittedBefore := g.emitted
	err := g.command(g.Task, ctx)
	if err != nil {
		wrapped := &errs.CommandFailed{Localization: g.localization(), Cause: err}
		if !emittedBefore {
			if g.Task != nil && g.Symbol == "start" {
				g.Task.markFailedToStart(wrapped)
			} else if g.Task != nil {
				g.Task.enterInternalError(wrapped)
			}
		} else if g.Task != nil {
			g.Task.enterInternalError(wrapped)
		}
		return wrapped
	}
	return nil
}

// Emit requires the generator to be executable; it appends an event to
// history, sets Emitted, dispatches on-emit handlers in registration order,
// then enqueues signal/forward propagation (§4.2).
func (g *EventGenerator) Emit(ctx any, sources []ID, seconds int64, micros int32) (*Event, error) {
	if ok, why := g.executableNow(); !ok {
		return nil, &errs.EmissionFailed{Localization: g.localization(), Reason: why}
	}
	if g.unreachable {
		return nil, &errs.EmissionFailed{Localization: g.localization(), Reason: "generator is already unreachable"}
	}

	ev := &Event{
		ID:            newID(),
		Time:          time.Now(),
		Generator:     g,
		Context:       ctx,
		DirectSources: sources,
	}
	ev.AllSources, ev.TaskOnlySources = g.plan.resolveProvenance(sources)

	g.history = append(g.history, ev)
	g.emitted = true

	for _, uh := range g.ifUnreachable {
		if uh.cancelAtEmission {
			uh.cancelled = true
		}
	}

	g.plan.emitLog("generator_fired", seconds, micros, g.id, ev.ID)

	for _, h := range g.onEmit {
		if err := h.Handler(g.Task, ev); err != nil {
			if g.Task != nil {
				g.Task.enterInternalError(&errs.CommandFailed{Localization: g.localization(), Cause: err})
			}
		}
	}

	if g.Task != nil {
		g.Task.onGeneratorEmitted(g, ev)
	}

	g.plan.enqueuePropagation(g, ev)

	return ev, nil
}

// EmitFailed marks the generator unreachable with reason, running
// if-unreachable handlers not already cancelled (§4.2). On a task's start
// event this marks the task failed_to_start.
func (g *EventGenerator) EmitFailed(reason error) {
	if g.unreachable {
		return
	}
	g.unreachable = true
	g.unreachableCause = reason
	g.plan.emitLog("generator_unreachable", 0, 0, g.id, reason)

	for _, uh := range g.ifUnreachable {
		if uh.cancelled {
			continue
		}
		_ = uh.handler(g.Task, nil)
	}

	if g.Task != nil && g.Symbol == "start" {
		g.Task.markFailedToStart(reason)
	}
}

// AchieveWith causes g to emit when other emits success; if other's success
// event becomes unreachable, g's emission fails and g's owning task is
// marked failed (§4.2).
func (g *EventGenerator) AchieveWith(other *Task) error {
	successGen, ok := other.Events["success"]
	if !ok {
		return &errs.ModelViolation{Detail: "achieve_with: task has no success event"}
	}
	successGen.OnEmit(func(t *Task, ev *Event) error {
		_, err := g.Emit(ev.Context, []ID{successGen.id}, 0, 0)
		return err
	}, OnReplaceDrop)
	successGen.IfUnreachable(false, func(t *Task, ev *Event) error {
		g.EmitFailed(&errs.UnreachableEvent{Localization: successGen.localization()})
		if g.Task != nil {
			g.Task.forceFailed(&errs.ChildFailedError{Localization: g.localization(), Child: string(other.id)})
		}
		return nil
	})
	return nil
}

func (g *EventGenerator) finalize() {
	if g.finalizedDone {
		return
	}
	g.finalizedDone = true
	for _, h := range g.whenFinalized {
		_ = h.Handler(g.Task, nil)
	}
}

func (g *EventGenerator) localization() errs.Localization {
	loc := errs.Localization{GeneratorID: string(g.id)}
	if len(g.history) > 0 {
		loc.EventID = string(g.history[len(g.history)-1].ID)
	}
	if g.Task != nil {
		loc.TaskID = string(g.Task.id)
	}
	return loc
}

func (g *EventGenerator) taskID() string {
	if g.Task == nil {
		return ""
	}
	return string(g.Task.id)
}

// resolveProvenance expands a list of direct source generator IDs into the
// transitive closure (AllSources) and the task-only subset
// (TaskOnlySources), deduplicated.
func (p *Plan) resolveProvenance(direct []ID) (all []ID, taskOnly []ID) {
	seen := make(map[ID]bool)
	seenTask := make(map[ID]bool)
	var walk func(id ID)
	walk = func(id ID) {
		if seen[id] {
			return
		}
		seen[id] = true
		all = append(all, id)
		if g, ok := p.GeneratorByID(id); ok && g.Task != nil {
			if !seenTask[g.Task.id] {
				seenTask[g.Task.id] = true
				taskOnly = append(taskOnly, g.Task.id)
			}
			for _, src := range g.lastSources() {
				walk(src)
			}
		}
	}
	for _, d := range direct {
		walk(d)
	}
	return all, taskOnly
}

// lastSources returns the DirectSources of the generator's most recent
// event, used only to walk provenance one level further during
// resolveProvenance.
func (g *EventGenerator) lastSources() []ID {
	if len(g.history) == 0 {
		return nil
	}
	return g.history[len(g.history)-1].DirectSources
}
