package plan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestModelInheritanceChildOverridesParent verifies allArguments/allEvents
// merge a Parent chain with child declarations overriding same-named parent
// declarations, and that unrelated parent declarations still surface (§3
// submodel inheritance).
func TestModelInheritanceChildOverridesParent(t *testing.T) {
	base := NewModel("base")
	base.Arguments["x"] = ArgumentDecl{Name: "x", HasDefault: true, Default: 1}
	base.Arguments["y"] = ArgumentDecl{Name: "y", HasDefault: true, Default: 2}
	base.Events["ready"] = EventDecl{Name: "ready"}

	child := NewModel("child")
	child.Parent = base
	child.Arguments["x"] = ArgumentDecl{Name: "x", HasDefault: true, Default: 99}

	args := child.allArguments()
	require.Equal(t, 99, args["x"].Default)
	require.Equal(t, 2, args["y"].Default)

	events := child.allEvents()
	_, ok := events["ready"]
	require.True(t, ok)
}

// TestModelRelationsAndHandlersAccumulateAcrossParentChain verifies
// allRelations/allOnHandlers/allPolls/allFinalizationHandlers append parent
// entries before child entries rather than overriding them (relations and
// handlers are additive, unlike arguments/events).
func TestModelRelationsAndHandlersAccumulateAcrossParentChain(t *testing.T) {
	base := NewModel("base")
	base.Relations = []RelationDecl{{Kind: RelationForward, From: "a", To: "b"}}
	base.OnHandlers["start"] = []HandlerDecl{{Handler: func(*Task, *Event) error { return nil }, OnReplace: OnReplaceDrop}}

	child := NewModel("child")
	child.Parent = base
	child.Relations = []RelationDecl{{Kind: RelationSignal, From: "c", To: "d"}}
	child.OnHandlers["start"] = []HandlerDecl{{Handler: func(*Task, *Event) error { return nil }, OnReplace: OnReplaceCopy}}

	rels := child.allRelations()
	require.Len(t, rels, 2)
	require.Equal(t, RelationForward, rels[0].Kind)
	require.Equal(t, RelationSignal, rels[1].Kind)

	handlers := child.allOnHandlers()["start"]
	require.Len(t, handlers, 2)
	require.Equal(t, OnReplaceDrop, handlers[0].OnReplace)
	require.Equal(t, OnReplaceCopy, handlers[1].OnReplace)
}

// TestDefaultOnReplacePolicyByAbstractness verifies abstract models default
// to :copy and concrete models default to :drop (§4.6).
func TestDefaultOnReplacePolicyByAbstractness(t *testing.T) {
	abstract := NewModel("abstract")
	abstract.IsAbstract = true
	require.Equal(t, OnReplaceCopy, defaultOnReplace(abstract))

	concrete := NewModel("concrete")
	require.Equal(t, OnReplaceDrop, defaultOnReplace(concrete))

	require.Equal(t, OnReplaceDrop, defaultOnReplace(nil))
}

// TestModelValidateRejectsUncontrollableStart verifies validate() raises
// ModelViolation when start is undeclared or not controllable, and accepts
// a model that declares it correctly.
func TestModelValidateRejectsUncontrollableStart(t *testing.T) {
	noStart := NewModel("no-start")
	require.Error(t, noStart.validate())

	uncontrollable := NewModel("uncontrollable-start")
	uncontrollable.Events["start"] = EventDecl{Name: "start", Controllable: false}
	require.Error(t, uncontrollable.validate())

	ok := NewModel("ok")
	ok.Events["start"] = EventDecl{Name: "start", Controllable: true}
	require.NoError(t, ok.validate())
}
