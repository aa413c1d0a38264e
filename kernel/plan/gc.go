package plan

import "github.com/taskplan/kernel/errs"

// CollectGarbage runs one garbage-collection pass (§4.7/NEW): a reachability
// mark over the dependency and error-handling graphs starting from mission
// and permanent tasks, forced termination of any still-running candidate,
// synchronous removal (and finalization) of the rest, and a pass over free
// events with no remaining edges.
func (p *Plan) CollectGarbage() {
	reachable := p.markReachable()

	for id, t := range p.tasks {
		if reachable[id] || p.quarantined[id] {
			continue
		}
		p.gcCandidate(t)
	}

	p.collectFreeGarbage()
}

// markReachable walks the dependency and error-handling graphs from every
// mission and permanent task, returning the set of task IDs a GC pass must
// not touch.
func (p *Plan) markReachable() map[ID]bool {
	reachable := make(map[ID]bool)
	var stack []ID
	for id := range p.mission {
		stack = append(stack, id)
	}
	for id := range p.permanent {
		stack = append(stack, id)
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachable[n] {
			continue
		}
		reachable[n] = true
		stack = append(stack, p.DependencyGraph().Children(n)...)
		stack = append(stack, p.ErrorHandlingGraph().Children(n)...)
	}
	return reachable
}

// gcCandidate decides what to do with one unreachable, non-quarantined
// task: remove it immediately if it is already finished, or if it has no
// controllable stop and is not executable. Otherwise call its stop command
// (forcing failed if that call errors), or force failed directly when stop
// is not controllable, and leave removal to a later pass once the task
// reaches finished.
func (p *Plan) gcCandidate(t *Task) {
	if t.status.Finished {
		p.removeTask(t)
		return
	}

	stopGen, hasStop := t.Events["stop"]
	executable, _ := t.Executable()

	if (!hasStop || !stopGen.controllable) && !executable {
		p.removeTask(t)
		return
	}

	cause := &errs.TaskEmergencyTermination{Localization: errs.Localization{TaskID: string(t.id)}}
	if hasStop && stopGen.controllable {
		if err := stopGen.Call(nil); err != nil {
			t.forceFailed(cause)
		}
		return
	}
	t.forceFailed(cause)
}

// removeTask strips a task out of the plan: every edge incident to the task
// itself or any of its event generators is dropped from every relation
// graph, finalization handlers run, and the task moves into the garbaged
// (and, since finalization is synchronous here, immediately the finalized)
// bucket.
func (p *Plan) removeTask(t *Task) {
	delete(p.tasks, t.id)

	p.DependencyGraph().RemoveAllFor(t.id)
	p.ErrorHandlingGraph().RemoveAllFor(t.id)

	for _, g := range t.Events {
		for _, rg := range p.eventGraphs {
			rg.RemoveAllFor(g.id)
		}
		delete(p.taskEvents, g.id)
	}

	t.destroy()
	p.markGarbaged(t.id)
	p.finalized = append(p.finalized, t.id)
}

// hasAnyEventEdges reports whether id participates in any signal, forward,
// or causal_link edge, as either source or target.
func (p *Plan) hasAnyEventEdges(id ID) bool {
	for _, name := range []string{relSignal, relForward, relCausalLink} {
		g := p.eventGraphs[name]
		if len(g.Children(id)) > 0 || len(g.Parents(id)) > 0 {
			return true
		}
	}
	return false
}

// collectFreeGarbage removes every free event with no remaining edges to or
// from a live task or permanent event (§4.7/NEW). Free events have no
// running state to wait out, so removal and finalization happen in the
// same pass.
func (p *Plan) collectFreeGarbage() {
	for id, g := range p.freeEvents {
		if p.permanentEvents[id] || p.quarantined[id] {
			continue
		}
		if p.hasAnyEventEdges(id) {
			continue
		}
		delete(p.freeEvents, id)
		g.finalize()
		p.markGarbaged(id)
		p.finalized = append(p.finalized, id)
	}
}

// SetMission marks a task a GC root regardless of reachability, in addition
// to whatever reaches it via dependency/error-handling (§3).
func (p *Plan) SetMission(id ID, v bool) {
	if v {
		p.mission[id] = true
	} else {
		delete(p.mission, id)
	}
}

// SetPermanent marks a task a GC root (§3).
func (p *Plan) SetPermanent(id ID, v bool) {
	if v {
		p.permanent[id] = true
	} else {
		delete(p.permanent, id)
	}
}

// SetPermanentEvent marks a free event a GC root on its own (§3).
func (p *Plan) SetPermanentEvent(id ID, v bool) {
	if v {
		p.permanentEvents[id] = true
	} else {
		delete(p.permanentEvents, id)
	}
}
