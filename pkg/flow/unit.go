package flow

import (
	"github.com/goccy/go-yaml"
)

// Unit is a local unit definition (action.yml).
type Unit struct {
	name        string
	description string
	author      string
	inputs      M
	outputs     M
	using       string
	runs        M
	steps       []*Step
	extra       M
}

// NewUnit starts a unit definition.
func NewUnit(name string) *Unit {
	return &Unit{name: name}
}

// Description sets the description.
func (u *Unit) Description(d string) *Unit {
	u.description = d
	return u
}

// Author sets the author.
func (u *Unit) Author(a string) *Unit {
	u.author = a
	return u
}

// Input declares an input.
func (u *Unit) Input(name string, in Input) *Unit {
	u.inputs.set(name, in)
	return u
}

// Output declares an output.
func (u *Unit) Output(name string, o Output) *Unit {
	u.outputs.set(name, o)
	return u
}

// Runs sets runs.using and any further runs keys (main, image, ...).
func (u *Unit) Runs(using string, extra M) *Unit {
	u.using = using
	u.runs = extra
	return u
}

// Step appends composite steps.
func (u *Unit) Step(steps ...*Step) *Unit {
	u.steps = append(u.steps, steps...)
	return u
}

// Set adds a top-level key the builder has no method for.
func (u *Unit) Set(key string, value any) *Unit {
	u.extra.set(key, value)
	return u
}

// Tree renders the definition.
func (u *Unit) Tree() yaml.MapSlice {
	var out M
	out.setString("name", u.name)
	out.setString("description", u.description)
	out.setString("author", u.author)
	if u.inputs != nil {
		out.set("inputs", u.inputs)
	}
	if u.outputs != nil {
		out.set("outputs", u.outputs)
	}
	if u.using != "" || u.runs != nil || len(u.steps) > 0 {
		var runs M
		runs.setString("using", u.using)
		runs = append(runs, u.runs...)
		if len(u.steps) > 0 {
			steps := make(L, len(u.steps))
			for i, s := range u.steps {
				steps[i] = s
			}
			runs.set("steps", steps)
		}
		out.set("runs", runs)
	}
	for _, kv := range u.extra {
		out.set(kv.Key, kv.Value)
	}
	return toTree(out).(yaml.MapSlice)
}

// YAML renders the definition.
func (u *Unit) YAML() ([]byte, error) {
	return Marshal(u.Tree())
}
