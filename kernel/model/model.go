// Package model is the plain Go builder surface for declaring task models
// (§6/NEW): a thin, chainable wrapper around plan.Model, in the teacher's
// "mutate a struct, return the receiver" idiom rather than a DSL-compiler
// pass.
package model

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/taskplan/kernel/plan"
)

// Builder accumulates a task model declaration.
type Builder struct {
	m *plan.Model
}

// New starts a model declaration named name, optionally inheriting from
// parent.
func New(name string, parent *Builder) *Builder {
	m := plan.NewModel(name)
	if parent != nil {
		m.Parent = parent.m
	}
	return &Builder{m: m}
}

// Model returns the declared model. Call once building is complete.
func (b *Builder) Model() *plan.Model { return b.m }

// Argument declares an argument, optionally with a default value and a
// setter invoked during parallel assignment (§4.1).
func (b *Builder) Argument(name string, hasDefault bool, def any, setter plan.Setter) *Builder {
	b.m.Arguments[name] = plan.ArgumentDecl{Name: name, HasDefault: hasDefault, Default: def, Setter: setter}
	return b
}

// Event declares a controllable or forwarded-only event.
func (b *Builder) Event(name string, controllable, terminal bool, cmd plan.CommandFunc) *Builder {
	b.m.Events[name] = plan.EventDecl{Name: name, Controllable: controllable, Terminal: terminal, Command: cmd}
	return b
}

// Signal declares a model-level signal edge from->to.
func (b *Builder) Signal(from, to string) *Builder {
	b.m.Relations = append(b.m.Relations, plan.RelationDecl{Kind: plan.RelationSignal, From: from, To: to})
	return b
}

// Forward declares a model-level forward edge from->to.
func (b *Builder) Forward(from, to string) *Builder {
	b.m.Relations = append(b.m.Relations, plan.RelationDecl{Kind: plan.RelationForward, From: from, To: to})
	return b
}

// CausalLink declares a model-level informational causal_link edge from->to.
func (b *Builder) CausalLink(from, to string) *Builder {
	b.m.Relations = append(b.m.Relations, plan.RelationDecl{Kind: plan.RelationCausalLink, From: from, To: to})
	return b
}

// On registers a handler invoked whenever the named event emits.
func (b *Builder) On(event string, h plan.HandlerFunc, policy plan.OnReplacePolicy) *Builder {
	b.m.OnHandlers[event] = append(b.m.OnHandlers[event], plan.HandlerDecl{Handler: h, OnReplace: policy})
	return b
}

// Poll registers a poll block run every cycle a task is running.
func (b *Builder) Poll(fn plan.PollFunc, policy plan.OnReplacePolicy) *Builder {
	b.m.Polls = append(b.m.Polls, plan.PollDecl{Poll: fn, OnReplace: policy})
	return b
}

// WhenFinalized registers a model-level finalization handler.
func (b *Builder) WhenFinalized(h plan.HandlerFunc, policy plan.OnReplacePolicy) *Builder {
	b.m.FinalizationHandlers = append(b.m.FinalizationHandlers, plan.HandlerDecl{Handler: h, OnReplace: policy})
	return b
}

// Abstract marks the model abstract: no task built from it is ever
// executable directly (§3).
func (b *Builder) Abstract() *Builder {
	b.m.IsAbstract = true
	return b
}

// Terminates sets the model's IsTerminates flag. No code in kernel/plan
// reads the flag, so it changes no task or plan behavior.
func (b *Builder) Terminates() *Builder {
	b.m.IsTerminates = true
	return b
}

// Provides records a capability tag this model fulfills, for abstract-task
// matching against FulfilledModel.
func (b *Builder) Provides(tag string) *Builder {
	b.m.Provides = append(b.m.Provides, tag)
	return b
}

// FulfilledModel records that this (typically abstract) model is fulfilled
// by concrete model fulfilled — a concrete task built from fulfilled may
// replace an abstract task built from this model.
func (b *Builder) FulfilledModel(fulfilled *Builder) *Builder {
	b.m.Fulfills = append(b.m.Fulfills, fulfilled.m)
	return b
}

// ArgumentSchema attaches a JSON Schema document validating the model's
// arguments (§4.1/NEW). schemaJSON must be a valid JSON Schema document;
// compilation happens immediately so a malformed schema fails at
// declaration time rather than at the first task construction.
func (b *Builder) ArgumentSchema(schemaJSON []byte) (*Builder, error) {
	s, err := compileSchema(schemaJSON)
	if err != nil {
		return b, err
	}
	b.m.ArgumentSchema = s
	return b, nil
}

// jsonSchemaArgs validates each argument as a standalone JSON value against
// the property sub-schema named after it, rather than validating the whole
// arguments map at once — arguments are assigned and validated one at a
// time during parallel assignment (§4.1).
type jsonSchemaArgs struct {
	schema *jsonschema.Schema
}

func compileSchema(schemaJSON []byte) (*jsonSchemaArgs, error) {
	var doc any
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("argument-schema.json", doc); err != nil {
		return nil, err
	}
	sch, err := c.Compile("argument-schema.json")
	if err != nil {
		return nil, err
	}
	return &jsonSchemaArgs{schema: sch}, nil
}

// Validate checks one argument value against the property named name in
// the compiled schema, if the schema declares one; arguments the schema is
// silent on are accepted.
func (a *jsonSchemaArgs) Validate(name string, value any) error {
	props, ok := a.schema.Properties[name]
	if !ok {
		return nil
	}
	return props.Validate(value)
}
