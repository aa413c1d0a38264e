package plan

import "github.com/taskplan/kernel/errs"

type (
	// CommandFunc is the closure bound to a controllable event. It is
	// invoked by call(); it must either emit the event (directly or via a
	// scripted sequence) or return an error (§4.2, §9 design notes on
	// modeling commands as closures).
	CommandFunc func(t *Task, ctx any) error

	// HandlerFunc reacts to an event emission. Used for on-emit handlers,
	// model-level on(symbol) handlers, and if-unreachable handlers.
	HandlerFunc func(t *Task, ev *Event) error

	// PollFunc runs every cycle a task is running.
	PollFunc func(t *Task) error

	// OnReplacePolicy controls whether a handler survives a replace
	// operation (§4.6).
	OnReplacePolicy int

	// ArgumentDecl declares one task-model argument.
	ArgumentDecl struct {
		Name       string
		HasDefault bool
		Default    any
		// Setter, if set, is invoked during parallel assignment (§4.1) and
		// may itself mutate other arguments on the task (e.g. a high-level
		// argument decomposing into low-level ones).
		Setter Setter
	}

	// EventDecl declares one task-model event.
	EventDecl struct {
		Name         string
		Controllable bool
		Terminal     bool
		// Command is set iff Controllable.
		Command CommandFunc
	}

	// RelationKind names a model-level event relation.
	RelationKind int

	// RelationDecl declares a model-level edge between two named events
	// (signal, forward, or causal_link), inherited by submodels.
	RelationDecl struct {
		Kind RelationKind
		From string
		To   string
	}

	// HandlerDecl records a registered handler together with its
	// replacement policy (§4.6).
	HandlerDecl struct {
		Handler   HandlerFunc
		OnReplace OnReplacePolicy
	}

	// PollDecl records a registered poll block with its replacement policy.
	PollDecl struct {
		Poll      PollFunc
		OnReplace OnReplacePolicy
	}

	// ArgumentSchema validates a concrete argument value against the
	// model's declared JSON Schema (§4.1/NEW). Implemented by
	// kernel/model using santhosh-tekuri/jsonschema/v6; kept as an
	// interface here so plan does not import the schema library directly.
	ArgumentSchema interface {
		Validate(name string, value any) error
	}

	// Model is the schema shared by every task instance created from it:
	// argument declarations, declared events, and model-level relation
	// declarations. Submodels inherit via Parent.
	Model struct {
		Name       string
		Parent     *Model
		Arguments  map[string]ArgumentDecl
		Events     map[string]EventDecl
		Relations  []RelationDecl
		OnHandlers map[string][]HandlerDecl
		Polls      []PollDecl
		// FinalizationHandlers run once when a task is removed from its
		// plan.
		FinalizationHandlers []HandlerDecl

		IsAbstract   bool
		IsTerminates bool
		Provides     []string
		Fulfills     []*Model

		ArgumentSchema ArgumentSchema
	}
)

const (
	RelationSignal RelationKind = iota
	RelationForward
	RelationCausalLink
)

const (
	// OnReplaceDrop discards the handler when its task is replaced.
	OnReplaceDrop OnReplacePolicy = iota
	// OnReplaceCopy copies the handler onto the replacement's corresponding
	// event (§4.6).
	OnReplaceCopy
)

// defaultOnReplace returns the default handler-copy policy for a task:
// :copy for abstract models, :drop for concrete ones (§4.6).
func defaultOnReplace(m *Model) OnReplacePolicy {
	if m != nil && m.IsAbstract {
		return OnReplaceCopy
	}
	return OnReplaceDrop
}

// allArguments walks Parent chain and returns the merged (child-overrides-
// parent) argument declaration set.
func (m *Model) allArguments() map[string]ArgumentDecl {
	out := make(map[string]ArgumentDecl)
	var walk func(*Model)
	walk = func(mm *Model) {
		if mm == nil {
			return
		}
		walk(mm.Parent)
		for k, v := range mm.Arguments {
			out[k] = v
		}
	}
	walk(m)
	return out
}

func (m *Model) allEvents() map[string]EventDecl {
	out := make(map[string]EventDecl)
	var walk func(*Model)
	walk = func(mm *Model) {
		if mm == nil {
			return
		}
		walk(mm.Parent)
		for k, v := range mm.Events {
			out[k] = v
		}
	}
	walk(m)
	return out
}

func (m *Model) allRelations() []RelationDecl {
	var out []RelationDecl
	var walk func(*Model)
	walk = func(mm *Model) {
		if mm == nil {
			return
		}
		walk(mm.Parent)
		out = append(out, mm.Relations...)
	}
	walk(m)
	return out
}

func (m *Model) allOnHandlers() map[string][]HandlerDecl {
	out := make(map[string][]HandlerDecl)
	var walk func(*Model)
	walk = func(mm *Model) {
		if mm == nil {
			return
		}
		walk(mm.Parent)
		for k, v := range mm.OnHandlers {
			out[k] = append(out[k], v...)
		}
	}
	walk(m)
	return out
}

func (m *Model) allPolls() []PollDecl {
	var out []PollDecl
	var walk func(*Model)
	walk = func(mm *Model) {
		if mm == nil {
			return
		}
		walk(mm.Parent)
		out = append(out, mm.Polls...)
	}
	walk(m)
	return out
}

func (m *Model) allFinalizationHandlers() []HandlerDecl {
	var out []HandlerDecl
	var walk func(*Model)
	walk = func(mm *Model) {
		if mm == nil {
			return
		}
		walk(mm.Parent)
		out = append(out, mm.FinalizationHandlers...)
	}
	walk(m)
	return out
}

// standardEvents are declared on every task model regardless of what the
// model itself declares (§3).
func standardEvents() map[string]EventDecl {
	return map[string]EventDecl{
		"start":            {Name: "start", Controllable: true},
		"stop":             {Name: "stop"},
		"success":          {Name: "success", Terminal: true},
		"failed":           {Name: "failed", Terminal: true},
		"aborted":          {Name: "aborted", Terminal: true},
		"internal_error":   {Name: "internal_error", Terminal: true},
		"updated_data":     {Name: "updated_data"},
		"poll_transition":  {Name: "poll_transition"},
	}
}

// NewModel constructs an empty model with the given name.
func NewModel(name string) *Model {
	return &Model{
		Name:       name,
		Arguments:  make(map[string]ArgumentDecl),
		Events:     make(map[string]EventDecl),
		OnHandlers: make(map[string][]HandlerDecl),
	}
}

// validate checks the one structural invariant enforced before any task may
// be instantiated from a model: start is declared and controllable. No
// other property of the model's stop or terminal events is checked here.
func (m *Model) validate() error {
	events := m.allEvents()
	start, ok := events["start"]
	if !ok || !start.Controllable {
		return &errs.ModelViolation{Detail: "model " + m.Name + ": start event must be controllable"}
	}
	return nil
}
