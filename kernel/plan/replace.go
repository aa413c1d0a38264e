package plan

import "github.com/taskplan/kernel/errs"

// ReplaceTask implements replace_by (subplan=false) and replace_subplan_by
// (subplan=true) directly against the plan (§4.6).
//
// replace_by rewires every external relation incident to old: edges where
// old is the child (someone depends on old, signals into one of old's
// events, ...) are retargeted to new, and edges where old is the parent
// (old depends on something, one of old's events signals out to another
// task's event, ...) are also retargeted to new. replace_subplan_by only
// retargets the former: old keeps everything it points at, and only gains a
// replacement in the eyes of whoever was pointing at it.
//
// A relation flagged Strong never moves. A relation flagged CopyOnReplace is
// copied rather than moved: old keeps the edge and new gains it too.
func ReplaceTask(p *Plan, old, new *Task, subplan bool) error {
	return replaceTask(p, old, new, subplan)
}

func replaceTask(host graphAccessor, old, new *Task, subplan bool) error {
	if old.plan.IsGarbaged(old.id) {
		return &errs.ModelViolation{Detail: "replace: task " + string(old.id) + " is already garbage"}
	}

	for _, rel := range taskRelationNames() {
		_, copyOnReplace, strong, ok := host.RelationMeta(rel)
		if !ok {
			continue
		}
		for _, parent := range host.Parents(rel, old.id) {
			if parent == new.id {
				continue
			}
			rewireEdge(host, rel, parent, old.id, parent, new.id, copyOnReplace, strong)
		}
		if !subplan {
			for _, child := range host.Children(rel, old.id) {
				if child == new.id {
					continue
				}
				rewireEdge(host, rel, old.id, child, new.id, child, copyOnReplace, strong)
			}
		}
	}

	for symbol, oldGen := range old.Events {
		newGen, ok := new.Events[symbol]
		if !ok {
			continue
		}
		for _, rel := range eventRelationNames() {
			_, copyOnReplace, strong, ok := host.RelationMeta(rel)
			if !ok {
				continue
			}
			for _, parent := range host.Parents(rel, oldGen.id) {
				if isOwnEvent(old, parent) {
					continue
				}
				rewireEdge(host, rel, parent, oldGen.id, parent, newGen.id, copyOnReplace, strong)
			}
			if !subplan {
				for _, child := range host.Children(rel, oldGen.id) {
					if isOwnEvent(old, child) {
						continue
					}
					rewireEdge(host, rel, oldGen.id, child, newGen.id, child, copyOnReplace, strong)
				}
			}
		}
	}

	copyReplaceableHandlers(old, new)
	return nil
}

// rewireEdge moves (or, for a CopyOnReplace relation, duplicates) the edge
// oldFrom->oldTo onto newFrom->newTo. Strong relations are left untouched.
func rewireEdge(host graphAccessor, relation string, oldFrom, oldTo, newFrom, newTo ID, copyOnReplace, strong bool) {
	if strong {
		return
	}
	if !host.HasEdge(relation, oldFrom, oldTo) {
		return
	}
	_ = host.AddEdge(relation, newFrom, newTo)
	if !copyOnReplace {
		host.RemoveEdge(relation, oldFrom, oldTo)
	}
}

func isOwnEvent(t *Task, id ID) bool {
	for _, g := range t.Events {
		if g.id == id {
			return true
		}
	}
	return false
}

// copyReplaceableHandlers copies every handler registered with
// OnReplaceCopy from old onto new's corresponding event or task scope
// (§4.6). This runs regardless of replace variant: handler inheritance is
// not qualified by full vs. subplan replacement.
func copyReplaceableHandlers(old, new *Task) {
	for symbol, oldGen := range old.Events {
		newGen, ok := new.Events[symbol]
		if !ok {
			continue
		}
		for _, h := range oldGen.onEmit {
			if h.OnReplace == OnReplaceCopy {
				newGen.onEmit = append(newGen.onEmit, h)
			}
		}
		for _, h := range oldGen.whenFinalized {
			if h.OnReplace == OnReplaceCopy {
				newGen.whenFinalized = append(newGen.whenFinalized, h)
			}
		}
	}
	for _, h := range old.pollHandlers {
		if h.OnReplace == OnReplaceCopy {
			new.pollHandlers = append(new.pollHandlers, h)
		}
	}
	for _, h := range old.finalizationHandlers {
		if h.OnReplace == OnReplaceCopy {
			new.finalizationHandlers = append(new.finalizationHandlers, h)
		}
	}
}
