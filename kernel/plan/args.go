package plan

import (
	"fmt"

	"github.com/taskplan/kernel/errs"
)

type (
	// DelayedArgument exposes a value whose evaluation is deferred until
	// freeze_delayed_arguments is called. Evaluate returns ok=false when the
	// value is not yet available ("no value yet" is a distinguished outcome,
	// not an exception — §4.1).
	DelayedArgument interface {
		Evaluate(t *Task) (value any, ok bool)
	}

	// delayedArgFunc adapts a plain function to DelayedArgument.
	delayedArgFunc func(t *Task) (any, bool)

	// defaultSentinel marks an argument as unset-but-defaulted. The sentinel
	// stays stored in the arguments map; Task.Argument resolves it to the
	// model's declared default each time the argument is read.
	defaultSentinel struct{}

	// Setter computes one argument's value against the pre-call arguments
	// snapshot. Setters may themselves mutate the task's live arguments map
	// (to decompose a high-level argument into low-level ones); the two-
	// phase parallel-assignment algorithm in assignArguments accounts for
	// this re-entrancy (§9 Design notes).
	Setter func(t *Task, snapshot map[string]any) (any, bool)

	// argumentsView is the mutable-but-validated arguments map owned by a
	// Task.
	argumentsView struct {
		values map[string]any
	}
)

// Delayed wraps a plain function as a DelayedArgument.
func Delayed(fn func(t *Task) (any, bool)) DelayedArgument {
	return delayedArgFunc(fn)
}

func (f delayedArgFunc) Evaluate(t *Task) (any, bool) { return f(t) }

// DefaultValue is the sentinel stored for an argument that has not been
// explicitly set and should resolve to its model-declared default.
var DefaultValue = defaultSentinel{}

func isDelayed(v any) (DelayedArgument, bool) {
	d, ok := v.(DelayedArgument)
	return d, ok
}

func newArgumentsView() *argumentsView {
	return &argumentsView{values: make(map[string]any)}
}

func (a *argumentsView) snapshot() map[string]any {
	out := make(map[string]any, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}

// assignArguments performs the parallel-assignment protocol described in
// §4.1: every declared setter runs once against the pre-call snapshot, may
// itself write into t.arguments, and afterwards every requested (k,v) pair
// must either be stored exactly or be absent from the resulting map —
// otherwise the whole assignment rolls back and ArgumentConflict is
// returned.
func (t *Task) assignArguments(requested map[string]any) error {
	return t.assignArgumentsMode(requested, false)
}

// AssignArguments runs the parallel-assignment protocol of §4.1 against
// this task's current arguments: every key in requested is staged, every
// declared setter runs once against the pre-call snapshot, and the whole
// call rolls back atomically if any requested key conflicts with its
// already-stored value.
func (t *Task) AssignArguments(requested map[string]any) error {
	return t.assignArguments(requested)
}

// assignArgumentsMode implements assign_arguments. At construction time
// (skipDelayedSetters=true) the setter for a key is not invoked when the
// caller's initial value for that key is itself a DelayedArgument — such
// values are stored as-is rather than fed through a setter expecting a
// concrete value (§4.1).
func (t *Task) assignArgumentsMode(requested map[string]any, skipDelayedSetters bool) error {
	before := t.arguments.snapshot()

	rollback := func() {
		t.arguments.values = before
	}

	// Phase 1: stage the requested values directly; setters may overwrite
	// or extend them.
	for k, v := range requested {
		t.arguments.values[k] = v
	}

	// Phase 2: run every declared setter against the snapshot taken before
	// this call. Setters observe the *pre-call* state even though they may
	// write into the live map (parallel assignment, not sequential).
	for name, decl := range t.model.Arguments {
		if decl.Setter == nil {
			continue
		}
		if skipDelayedSetters {
			if v, ok := requested[name]; ok {
				if _, delayed := isDelayed(v); delayed {
					continue
				}
			}
		}
		v, ok := decl.Setter(t, before)
		if ok {
			t.arguments.values[name] = v
		}
	}

	// Phase 3: reconcile. Every requested key still present must now equal
	// the requested value, whether or not it was set before this call.
	for k, want := range requested {
		got, exists := t.arguments.values[k]
		if !exists {
			continue
		}
		if !argumentsEqual(got, want) {
			rollback()
			return &errs.ArgumentConflict{Task: string(t.id), Argument: k, Wanted: want, Got: got}
		}
	}

	if t.model.ArgumentSchema != nil {
		for k, v := range requested {
			if _, delayed := isDelayed(v); delayed {
				continue
			}
			if v == DefaultValue {
				continue
			}
			if err := t.model.ArgumentSchema.Validate(k, v); err != nil {
				rollback()
				return &errs.ArgumentConflict{Task: string(t.id), Argument: k, Got: v, SchemaCause: err}
			}
		}
	}

	return nil
}

func argumentsEqual(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b) && sameType(a, b)
}

func sameType(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	return fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b)
}

// FreezeDelayedArguments evaluates every delayed value still present in the
// task's arguments and forwards the successfully evaluated ones to
// assignArguments in a single call (§4.1).
func (t *Task) FreezeDelayedArguments() error {
	resolved := make(map[string]any)
	for k, v := range t.arguments.values {
		d, ok := isDelayed(v)
		if !ok {
			continue
		}
		if val, ok := d.Evaluate(t); ok {
			resolved[k] = val
		}
	}
	if len(resolved) == 0 {
		return nil
	}
	return t.assignArguments(resolved)
}

// HasArgument reports whether name is set to a concrete (non-delayed)
// value.
func (t *Task) HasArgument(name string) bool {
	v, ok := t.arguments.values[name]
	if !ok {
		return false
	}
	_, delayed := isDelayed(v)
	return !delayed
}

// Argument returns the current stored value for name, resolving
// DefaultValue against the model's declared default.
func (t *Task) Argument(name string) (any, bool) {
	v, ok := t.arguments.values[name]
	if !ok {
		return nil, false
	}
	if v == DefaultValue {
		decl, ok := t.model.Arguments[name]
		if !ok || !decl.HasDefault {
			return nil, false
		}
		return decl.Default, true
	}
	return v, true
}

// StaticArguments reports whether no stored value is a DelayedArgument.
func (t *Task) StaticArguments() bool {
	for _, v := range t.arguments.values {
		if _, delayed := isDelayed(v); delayed {
			return false
		}
	}
	return true
}

// FullyInstanciated reports whether every declared argument is set and not
// delayed.
func (t *Task) FullyInstanciated() bool {
	for name := range t.model.Arguments {
		v, ok := t.arguments.values[name]
		if !ok {
			return false
		}
		if _, delayed := isDelayed(v); delayed {
			return false
		}
	}
	return true
}

// MeaningfulArguments returns the stored arguments excluding any key whose
// value equals its declared default.
func (t *Task) MeaningfulArguments() map[string]any {
	out := make(map[string]any)
	for k, v := range t.arguments.values {
		if decl, ok := t.model.Arguments[k]; ok && decl.HasDefault && argumentsEqual(v, decl.Default) {
			continue
		}
		out[k] = v
	}
	return out
}
