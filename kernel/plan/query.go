package plan

// Matcher is a composable task predicate (§4.7/NEW). Plan-level predicates
// (Mission, Running, ...) are themselves Matchers, so they combine with
// And/Or/Not like any other.
type Matcher func(t *Task) bool

// And reports whether every matcher accepts t.
func And(ms ...Matcher) Matcher {
	return func(t *Task) bool {
		for _, m := range ms {
			if !m(t) {
				return false
			}
		}
		return true
	}
}

// Or reports whether at least one matcher accepts t.
func Or(ms ...Matcher) Matcher {
	return func(t *Task) bool {
		for _, m := range ms {
			if m(t) {
				return true
			}
		}
		return false
	}
}

// Not negates a matcher.
func Not(m Matcher) Matcher {
	return func(t *Task) bool { return !m(t) }
}

// Mission, Permanent, Running, Pending, Failed, Success, Finished, Abstract,
// and Executable are the plan-level predicates named in §4.7/NEW.
func Mission(p *Plan) Matcher    { return func(t *Task) bool { return p.IsMission(t.id) } }
func Permanent(p *Plan) Matcher  { return func(t *Task) bool { return p.IsPermanent(t.id) } }
func Running() Matcher           { return func(t *Task) bool { return t.status.Running } }
func Pending() Matcher           { return func(t *Task) bool { return t.status.Pending } }
func Failed() Matcher            { return func(t *Task) bool { return t.status.Failed } }
func Success() Matcher           { return func(t *Task) bool { return t.status.Success } }
func Finished() Matcher          { return func(t *Task) bool { return t.status.Finished } }
func Abstract() Matcher          { return func(t *Task) bool { return t.abstract } }
func Executable() Matcher        { return func(t *Task) bool { ok, _ := t.Executable(); return ok } }

// HasArgument matches tasks with name set to a concrete, non-delayed value.
func HasArgument(name string) Matcher {
	return func(t *Task) bool { return t.HasArgument(name) }
}

// DependsOn matches tasks with a dependency edge to other.
func DependsOn(p *Plan, other ID) Matcher {
	return func(t *Task) bool { return p.DependencyGraph().HasEdge(t.id, other) }
}

// QueryScope labels a Query as Global or Local (§4.7/NEW). Each does not
// consult it: under either scope Each walks the task set of the plan passed
// to it, and no transaction stack or proxy overlay is applied.
type QueryScope int

const (
	ScopeGlobal QueryScope = iota
	ScopeLocal
)

// Query pairs a matcher with a scope.
type Query struct {
	Match Matcher
	Scope QueryScope
}

// NewQuery builds a global-scope query from a matcher.
func NewQuery(m Matcher) Query { return Query{Match: m, Scope: ScopeGlobal} }

// Each yields every task in p matching the query, in the plan's stable
// per-call insertion order (§4.7/NEW). Scope ScopeLocal still walks p's own
// task set here: a transaction-local view is obtained by calling Each
// against the transaction's own task snapshot instead (Transaction does not
// special-case Query; callers needing :local semantics build the candidate
// slice themselves and call query.Match directly).
func (q Query) Each(p *Plan) []*Task {
	var out []*Task
	for _, id := range p.taskOrder() {
		t, ok := p.tasks[id]
		if !ok {
			continue
		}
		if q.Match(t) {
			out = append(out, t)
		}
	}
	return out
}
