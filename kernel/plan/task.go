package plan

import "github.com/taskplan/kernel/errs"

type (
	// TaskStatus is the set of status flags carried by a task (§3). Several
	// flags may be true simultaneously (e.g. finishing+failed+running while
	// a scripted stop command is still executing, §4.3 failure policy).
	TaskStatus struct {
		Pending       bool
		Starting      bool
		Started       bool
		Running       bool
		Finishing     bool
		Finished      bool
		Success       bool
		Failed        bool
		FailedToStart bool
		InternalError bool
	}

	// Task owns a map from symbol to task event generator, a
	// mutable-but-validated arguments map, status flags, handler lists, and
	// an optional failure reason (§3).
	Task struct {
		RelationHooksBase

		id   ID
		plan *Plan

		model *Model

		arguments *argumentsView

		// Events maps every declared event's symbol (standard and
		// model-declared) to its generator.
		Events map[string]*EventGenerator

		status TaskStatus

		abstract       bool
		reusable       bool
		forcedExecutable *bool

		pollHandlers []PollDecl

		failureReason error

		quarantined bool

		finalizationHandlers []HandlerDecl
		finalized             bool
	}
)

// NewTask materializes a task from a model and an initial arguments map,
// wiring the standard events, the precedence/forward skeleton, and every
// model-declared relation (§4.3). Construction invokes assign_arguments
// with the full map but does not run setters for keys whose initial value
// is a DelayedArgument (§4.1).
func (p *Plan) NewTask(m *Model, args map[string]any) (*Task, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}

	t := &Task{
		id:        newID(),
		plan:      p,
		model:     m,
		arguments: newArgumentsView(),
		Events:    make(map[string]*EventGenerator),
		abstract:  m.IsAbstract,
		reusable:  false,
	}
	t.status.Pending = true

	events := m.allEvents()
	for _, std := range standardEvents() {
		if _, declared := events[std.Name]; !declared {
			events[std.Name] = std
		}
	}

	for name, decl := range events {
		gen := newEventGenerator(p, name, decl.Controllable, decl.Command, decl.Terminal, t)
		if name == "success" {
			gen.isSuccess = true
		}
		if name == "failed" || name == "aborted" || name == "internal_error" {
			gen.isFailure = true
		}
		t.Events[name] = gen
		p.taskEvents[gen.id] = gen
	}

	t.wireSkeleton(events)
	for _, rel := range m.allRelations() {
		from, to := t.Events[rel.From], t.Events[rel.To]
		if from == nil || to == nil {
			return nil, &errs.ModelViolation{Detail: "model " + m.Name + ": relation references unknown event"}
		}
		switch rel.Kind {
		case RelationSignal:
			if err := p.AddSignal(from.id, to.id); err != nil {
				return nil, err
			}
		case RelationForward:
			if err := p.AddForward(from.id, to.id); err != nil {
				return nil, err
			}
		case RelationCausalLink:
			if err := p.AddCausalLink(from.id, to.id); err != nil {
				return nil, err
			}
		}
	}

	t.propagateTerminalThroughForwards()

	for sym, handlers := range m.allOnHandlers() {
		gen, ok := t.Events[sym]
		if !ok {
			continue
		}
		for _, h := range handlers {
			gen.OnEmit(h.Handler, h.OnReplace)
		}
	}
	t.pollHandlers = append(t.pollHandlers, m.allPolls()...)
	t.finalizationHandlers = append(t.finalizationHandlers, m.allFinalizationHandlers()...)

	p.tasks[t.id] = t
	p.taskSeq = append(p.taskSeq, t.id)

	if err := t.assignArgumentsMode(args, true); err != nil {
		delete(p.tasks, t.id)
		for _, g := range t.Events {
			delete(p.taskEvents, g.id)
		}
		return nil, err
	}

	return t, nil
}

// wireSkeleton materializes the precedence edges and built-in forwards
// described in §4.3: start precedes every root non-terminal intermediate
// event; every leaf intermediate event precedes every root terminal event;
// success and failed forward to stop, aborted forwards to failed, and
// internal_error forwards to stop when stop is controllable (otherwise
// internal_error is itself terminal).
func (t *Task) wireSkeleton(events map[string]EventDecl) {
	p := t.plan

	isTerminal := func(name string) bool { return events[name].Terminal }

	hasForwardParentInside := func(name string) bool {
		for _, rel := range t.model.allRelations() {
			if rel.Kind == RelationForward && rel.To == name {
				return true
			}
		}
		return false
	}
	hasForwardChildInside := func(name string) bool {
		for _, rel := range t.model.allRelations() {
			if rel.Kind == RelationForward && rel.From == name {
				return true
			}
		}
		return false
	}

	for name := range events {
		if name == "start" || name == "stop" || isTerminal(name) {
			continue
		}
		if !hasForwardParentInside(name) {
			_ = p.AddPrecedence(t.Events["start"].id, t.Events[name].id)
		}
	}

	for name := range events {
		if name == "start" || name == "stop" || isTerminal(name) {
			continue
		}
		if !hasForwardChildInside(name) {
			for terminalName := range events {
				if isTerminal(terminalName) {
					_ = p.AddPrecedence(t.Events[name].id, t.Events[terminalName].id)
				}
			}
		}
	}

	_ = p.AddForward(t.Events["success"].id, t.Events["stop"].id)
	_ = p.AddForward(t.Events["aborted"].id, t.Events["failed"].id)
	_ = p.AddForward(t.Events["failed"].id, t.Events["stop"].id)
	if t.Events["stop"].controllable {
		_ = p.AddForward(t.Events["internal_error"].id, t.Events["stop"].id)
	} else {
		t.Events["internal_error"].terminal = true
	}
}

// propagateTerminalThroughForwards extends the terminal? classification to
// any event that forwards (directly or transitively) into a generator
// already marked terminal: the forwarding event and its ultimate sink share
// the classification at the instance level (§4.3 scenario 2), even when
// only the sink was declared terminal in the model.
func (t *Task) propagateTerminalThroughForwards() {
	fg := t.plan.ForwardGraph()
	var reachesTerminal func(id ID, visited map[ID]bool) bool
	reachesTerminal = func(id ID, visited map[ID]bool) bool {
		if visited[id] {
			return false
		}
		visited[id] = true
		for _, c := range fg.OrderedChildren(id) {
			g, ok := t.plan.GeneratorByID(c)
			if !ok {
				continue
			}
			if g.terminal || reachesTerminal(c, visited) {
				return true
			}
		}
		return false
	}
	for _, g := range t.Events {
		if g.terminal {
			continue
		}
		if reachesTerminal(g.id, make(map[ID]bool)) {
			g.terminal = true
		}
	}
}

// ID returns the task's stable identity.
func (t *Task) ID() ID { return t.id }

// Model returns the task model this task was constructed from.
func (t *Task) Model() *Model { return t.model }

// Status returns a copy of the task's current status flags.
func (t *Task) Status() TaskStatus { return t.status }

// Abstract reports whether this task is abstract (cannot be executed
// directly; exists to be replaced by a concrete task).
func (t *Task) Abstract() bool { return t.abstract }

// FailureReason returns the localized error that caused the task's
// failure, if any.
func (t *Task) FailureReason() error { return t.failureReason }

// Quarantined reports whether the task is excluded from garbage collection
// without being a GC root (§3/NEW).
func (t *Task) Quarantined() bool { return t.quarantined }

// SetQuarantined toggles quarantine.
func (t *Task) SetQuarantined(v bool) {
	t.quarantined = v
	if v {
		t.plan.quarantined[t.id] = true
	} else {
		delete(t.plan.quarantined, t.id)
	}
}

// ForceExecutable overrides the executable flag explicitly; pass nil to
// remove the override.
func (t *Task) ForceExecutable(v *bool) { t.forcedExecutable = v }

// Executable implements §8 invariant 2: a task is executable iff its plan
// is executable, it is not abstract, its arguments are fully instanciated,
// and the executable flag has not been forced off.
func (t *Task) Executable() (bool, string) {
	if t.forcedExecutable != nil && !*t.forcedExecutable {
		return false, "executable flag forced off"
	}
	if !t.plan.Executable() {
		return false, "plan is not executable"
	}
	if t.abstract {
		return false, "task is abstract"
	}
	if !t.FullyInstanciated() {
		return false, "arguments are not fully instanciated"
	}
	return true, ""
}

// Start invokes start! (§4.3 transition table): moves pending -> starting
// and calls the start command.
func (t *Task) Start(ctx any) error {
	if !t.status.Pending {
		return &errs.TaskEventNotExecutable{Task: string(t.id), Event: "start", Why: "task is not pending"}
	}
	t.status.Pending = false
	t.status.Starting = true
	return t.Events["start"].Call(ctx)
}

// onGeneratorEmitted updates task status in response to one of the task's
// own generators emitting (§4.3 transition table).
func (t *Task) onGeneratorEmitted(g *EventGenerator, ev *Event) {
	switch {
	case g.Symbol == "start":
		t.status.Starting = false
		t.status.Started = true
		t.status.Running = true
	case g.Symbol == "stop":
		t.status.Finishing = false
		t.status.Running = false
		t.status.Finished = true
	case g.terminal:
		t.status.Finishing = true
		if g.isSuccess {
			t.status.Success = true
		}
		if g.isFailure {
			t.status.Failed = true
		}
		if !t.Events["stop"].controllable && g.Symbol == "internal_error" {
			t.status.Finishing = false
			t.status.Running = false
			t.status.Finished = true
		}
	}
}

// markFailedToStart implements the pending/starting -> failed-to-start
// transition (§4.3): emit_failed(start) or a pre-emit command exception.
func (t *Task) markFailedToStart(reason error) {
	t.status.Pending = false
	t.status.Starting = false
	t.status.FailedToStart = true
	t.status.Failed = true
	t.status.Finished = true
	t.failureReason = reason
	t.plan.failedToStart = append(t.plan.failedToStart, t.id)
}

// enterInternalError implements the handler/poll exception failure policy
// (§4.3): the internal_error event is emitted, which forwards to stop or
// forces failed.
func (t *Task) enterInternalError(err error) {
	t.status.InternalError = true
	t.failureReason = err
	if gen, ok := t.Events["internal_error"]; ok {
		_, _ = gen.Emit(err, nil, 0, 0)
	}
}

// forceFailed emits the task's failed event directly, used when a
// dependency's achieve_with source becomes unreachable (§4.2).
func (t *Task) forceFailed(err error) {
	t.failureReason = err
	if gen, ok := t.Events["failed"]; ok {
		_, _ = gen.Emit(err, nil, 0, 0)
	}
}

// Poll registers a poll block, run every cycle the task is running, after
// on-start handlers on the cycle it becomes running (§4.7). Polls run only
// while the task is running when RunPolls is called, so a task whose stop
// event is emitted after its start event within the same cycle's
// propagation is never polled.
func (t *Task) Poll(fn PollFunc, policy OnReplacePolicy) {
	t.pollHandlers = append(t.pollHandlers, PollDecl{Poll: fn, OnReplace: policy})
}

// RunPolls invokes every registered poll handler while the task is
// running. Errors are funneled into enterInternalError per §4.3's failure
// policy rather than returned, since a poll exception must not abort the
// engine's cycle.
func (t *Task) RunPolls() {
	if !t.status.Running {
		return
	}
	for _, p := range t.pollHandlers {
		if err := p.Poll(t); err != nil {
			t.enterInternalError(&errs.CommandFailed{Localization: errs.Localization{TaskID: string(t.id)}, Cause: err})
		}
	}
}

// WhenFinalized registers a task-level finalization handler, run once when
// the task is removed from its plan.
func (t *Task) WhenFinalized(h HandlerFunc, policy OnReplacePolicy) {
	t.finalizationHandlers = append(t.finalizationHandlers, HandlerDecl{Handler: h, OnReplace: policy})
}

// destroy runs finalization handlers on every generator and on the task
// itself (§3 lifecycle: "A plan object is destroyed when removed from its
// plan; finalization handlers run at that point").
func (t *Task) destroy() {
	if t.finalized {
		return
	}
	t.finalized = true
	for _, g := range t.Events {
		g.finalize()
	}
	for _, h := range t.finalizationHandlers {
		_ = h.Handler(t, nil)
	}
}
