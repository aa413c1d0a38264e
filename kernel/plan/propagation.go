package plan

import "github.com/taskplan/kernel/errs"

type propStep struct {
	kind   string // "signal" or "forward"
	source *Event
	target ID
}

// ExternalEvent describes one event to inject from outside the engine
// goroutine at the start of a cycle (§4.7, §5).
type ExternalEvent struct {
	GeneratorID ID
	Context     any
}

// AddSignal declares a signal edge from->to: on from's emission, to's
// command is invoked (§4.2, GLOSSARY). Edges are recorded in insertion
// order on the source generator so propagation dispatch order is
// deterministic (§5 ordering guarantee).
func (p *Plan) AddSignal(from, to ID) error {
	if err := p.eventGraphs[relSignal].AddEdge(from, to, nil); err != nil {
		return err
	}
	if g, ok := p.GeneratorByID(from); ok {
		g.outEdges = append(g.outEdges, outEdge{kind: "signal", to: to})
	}
	return nil
}

// AddForward declares a forward edge from->to: on from's emission, to is
// emitted directly (no command invocation).
func (p *Plan) AddForward(from, to ID) error {
	if err := p.eventGraphs[relForward].AddEdge(from, to, nil); err != nil {
		return err
	}
	if g, ok := p.GeneratorByID(from); ok {
		g.outEdges = append(g.outEdges, outEdge{kind: "forward", to: to})
	}
	return nil
}

// AddCausalLink declares an informational causal_link edge from->to,
// carried for classification but not dispatched by propagation.
func (p *Plan) AddCausalLink(from, to ID) error {
	return p.eventGraphs[relCausalLink].AddEdge(from, to, nil)
}

// AddPrecedence declares a precedence edge from->to: to may not emit in a
// cycle before from has emitted at least once (§4.3 materialization,
// §5 ordering guarantee).
func (p *Plan) AddPrecedence(from, to ID) error {
	return p.eventGraphs[relPrecedence].AddEdge(from, to, nil)
}

func (p *Plan) enqueuePropagation(source *EventGenerator, ev *Event) {
	for _, e := range source.outEdges {
		p.queue = append(p.queue, propStep{kind: e.kind, source: ev, target: e.to})
	}
}

// blockedByPrecedence reports whether target has a precedence parent that
// has not yet emitted (and is not unreachable, which would otherwise
// deadlock the wait forever).
func (p *Plan) blockedByPrecedence(target ID) bool {
	for _, parentID := range p.PrecedenceGraph().Parents(target) {
		g, ok := p.GeneratorByID(parentID)
		if !ok {
			continue
		}
		if !g.Emitted() && !g.unreachable {
			return true
		}
	}
	return false
}

// DrainPropagation processes the propagation queue until it is empty or no
// further progress can be made this cycle, delivering signal and forward
// steps in insertion order and tolerating self-enqueued emissions within
// the same pass (§4.2 propagation ordering, §5 ordering guarantees). Steps
// that remain blocked by the precedence graph are deferred to the next
// cycle. Errors raised by individual deliveries are collected into an
// aggregate rather than aborting the drain.
func (p *Plan) DrainPropagation(seconds int64, micros int32) errs.SynchronousEventProcessingMultipleErrors {
	var agg errs.SynchronousEventProcessingMultipleErrors
	for len(p.queue) > 0 {
		batch := p.queue
		p.queue = nil

		var deferred []propStep
		progressed := 0
		for _, step := range batch {
			if p.blockedByPrecedence(step.target) {
				deferred = append(deferred, step)
				continue
			}
			progressed++
			if err := p.deliver(step, seconds, micros); err != nil {
				if le, ok := err.(errs.LocalizedError); ok {
					agg = append(agg, le)
				}
			}
		}

		if progressed == 0 {
			p.nextCycleQueue = append(p.nextCycleQueue, deferred...)
			break
		}
		// Retry deferred steps alongside whatever new propagation the
		// delivered steps themselves enqueued (already appended to
		// p.queue by Emit -> enqueuePropagation).
		p.queue = append(deferred, p.queue...)
	}
	return agg
}

// deliver executes one propagation step: a forward step emits the target
// directly; a signal step invokes the target's command. Failures are
// wrapped into the appropriate localized error and returned for
// aggregation rather than raised synchronously, per §4.2/§7.
func (p *Plan) deliver(step propStep, seconds int64, micros int32) error {
	target, ok := p.GeneratorByID(step.target)
	if !ok {
		return nil
	}
	switch step.kind {
	case "forward":
		_, err := target.Emit(step.source.Context, []ID{step.source.Generator.id}, seconds, micros)
		return err
	case "signal":
		return target.Call(step.source.Context)
	default:
		return nil
	}
}

// InjectExternal delivers a batch of externally-sourced events at the
// start of a cycle (§4.7, §5): controllable generators are invoked via
// Call, non-controllable ones are emitted directly.
func (p *Plan) InjectExternal(events []ExternalEvent, seconds int64, micros int32) errs.SynchronousEventProcessingMultipleErrors {
	var agg errs.SynchronousEventProcessingMultipleErrors
	for _, ee := range events {
		g, ok := p.GeneratorByID(ee.GeneratorID)
		if !ok {
			continue
		}
		var err error
		if g.Controllable() {
			err = g.Call(ee.Context)
		} else {
			_, err = g.Emit(ee.Context, nil, seconds, micros)
		}
		if err != nil {
			if le, ok := err.(errs.LocalizedError); ok {
				agg = append(agg, le)
			}
		}
	}
	return agg
}

// BeginCycle promotes any propagation steps deferred from the previous
// cycle (precedence-blocked) to the front of the active queue.
func (p *Plan) BeginCycle() {
	if len(p.nextCycleQueue) == 0 {
		return
	}
	p.queue = append(p.nextCycleQueue, p.queue...)
	p.nextCycleQueue = nil
}
