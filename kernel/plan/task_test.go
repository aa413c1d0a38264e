package plan

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

type forcedState int

const (
	forcedNil forcedState = iota
	forcedOn
	forcedOff
)

func genForcedState() gopter.Gen {
	return gen.OneConstOf(forcedNil, forcedOn, forcedOff)
}

// TestExecutableInvariantProperty verifies universal invariant 2 (§8): a
// task is executable iff its plan is executable, it is not abstract, its
// arguments are fully instanciated, and the executable flag has not been
// forced off.
func TestExecutableInvariantProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("executable? matches the four-way conjunction", prop.ForAll(
		func(planExecutable, abstract, instantiated bool, forced forcedState) bool {
			noop := func(*Task, any) error { return nil }
			m := NewModel("exec")
			m.Events["start"] = EventDecl{Name: "start", Controllable: true, Command: noop}
			m.Arguments["x"] = ArgumentDecl{Name: "x"}
			m.IsAbstract = abstract

			p := New()
			p.SetExecutable(planExecutable)

			args := map[string]any{}
			if instantiated {
				args["x"] = 1
			}
			task, err := p.NewTask(m, args)
			if err != nil {
				return false
			}

			switch forced {
			case forcedOn:
				v := true
				task.ForceExecutable(&v)
			case forcedOff:
				v := false
				task.ForceExecutable(&v)
			}

			got, _ := task.Executable()
			want := forced != forcedOff && planExecutable && !abstract && instantiated
			return got == want
		},
		gen.Bool(), gen.Bool(), gen.Bool(), genForcedState(),
	))

	properties.TestingRun(t)
}

// TestEmittedMonotonicProperty verifies universal invariant 3 (§8):
// emitted? never reverts to false once true, across an arbitrary sequence
// of emit attempts.
func TestEmittedMonotonicProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("emitted? is monotonic", prop.ForAll(
		func(ops []bool) bool {
			p := New()
			g := p.NewFreeEvent(nil)

			wasEmitted := false
			for _, doEmit := range ops {
				if doEmit {
					_, _ = g.Emit(nil, nil, 0, 0)
				}
				if wasEmitted && !g.Emitted() {
					return false
				}
				wasEmitted = wasEmitted || g.Emitted()
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

// TestAtMostOneCanonicalTerminalEventOnNaturalPath is a direct instance of
// universal invariant 5 (§8) along a task's normal single-path completion:
// starting a task and letting it run to success never also emits failed,
// aborted, or internal_error.
func TestAtMostOneCanonicalTerminalEventOnNaturalPath(t *testing.T) {
	emit := func(sym string) CommandFunc {
		return func(t *Task, ctx any) error {
			_, err := t.Events[sym].Emit(ctx, nil, 0, 0)
			return err
		}
	}
	m := NewModel("natural-path")
	m.Events["start"] = EventDecl{Name: "start", Controllable: true, Command: emit("start")}
	m.Events["success"] = EventDecl{Name: "success", Terminal: true, Controllable: true, Command: emit("success")}

	p := New()
	task, err := p.NewTask(m, nil)
	require.NoError(t, err)

	require.NoError(t, task.Start(nil))
	require.NoError(t, task.Events["success"].Call(nil))

	terminalEmissions := 0
	for _, sym := range []string{"success", "failed", "aborted", "internal_error"} {
		if len(task.Events[sym].History()) > 0 {
			terminalEmissions++
		}
	}
	require.Equal(t, 1, terminalEmissions)
}

// TestTerminalForwardingScenario is end-to-end scenario 2 (§8): direct
// forwards to success, indirect forwards through intermediate to success;
// starting the task and emitting direct reaches success then stop, and
// both direct and indirect report terminal?=true at the instance level.
func TestTerminalForwardingScenario(t *testing.T) {
	emit := func(sym string) CommandFunc {
		return func(t *Task, ctx any) error {
			_, err := t.Events[sym].Emit(ctx, nil, 0, 0)
			return err
		}
	}
	m := NewModel("terminal-forward")
	m.Events["start"] = EventDecl{Name: "start", Controllable: true, Command: emit("start")}
	m.Events["direct"] = EventDecl{Name: "direct", Controllable: true, Command: emit("direct")}
	m.Events["indirect"] = EventDecl{Name: "indirect", Controllable: true, Command: emit("indirect")}
	m.Events["intermediate"] = EventDecl{Name: "intermediate"}
	m.Relations = []RelationDecl{
		{Kind: RelationForward, From: "direct", To: "success"},
		{Kind: RelationForward, From: "indirect", To: "intermediate"},
		{Kind: RelationForward, From: "intermediate", To: "success"},
	}

	p := New()
	task, err := p.NewTask(m, nil)
	require.NoError(t, err)

	require.NoError(t, task.Start(nil))
	require.NoError(t, task.Events["direct"].Call(nil))
	_ = p.DrainPropagation(0, 0)

	require.True(t, task.Events["success"].Emitted())
	require.True(t, task.Events["stop"].Emitted())
	require.True(t, task.Events["direct"].Terminal())
	require.True(t, task.Events["indirect"].Terminal())
}

// TestPollRunsAfterOnStartHandlerScenario is end-to-end scenario 4 (§8): on
// the cycle a task starts, the on(:start) handler runs before the poll
// block, and the poll block still runs at least once that same cycle even
// when the on(:start) handler emits stop.
func TestPollRunsAfterOnStartHandlerScenario(t *testing.T) {
	noop := func(*Task, any) error { return nil }
	emitStart := func(t *Task, ctx any) error {
		_, err := t.Events["start"].Emit(ctx, nil, 0, 0)
		return err
	}
	m := NewModel("poll-ordering")
	m.Events["start"] = EventDecl{Name: "start", Controllable: true, Command: emitStart}
	m.Events["stop"] = EventDecl{Name: "stop", Controllable: true, Command: noop}

	var order []string
	m.OnHandlers["start"] = []HandlerDecl{{
		Handler: func(t *Task, ev *Event) error {
			order = append(order, "on_start")
			_, err := t.Events["stop"].Emit(nil, nil, 0, 0)
			return err
		},
		OnReplace: OnReplaceDrop,
	}}
	m.Polls = []PollDecl{{
		Poll: func(t *Task) error {
			order = append(order, "poll")
			return nil
		},
		OnReplace: OnReplaceDrop,
	}}

	p := New()
	task, err := p.NewTask(m, nil)
	require.NoError(t, err)

	require.NoError(t, task.Start(nil))
	_ = p.DrainPropagation(0, 0)
	task.RunPolls()

	require.Contains(t, order, "on_start")
	require.Contains(t, order, "poll")
	require.Equal(t, "on_start", order[0])
}
