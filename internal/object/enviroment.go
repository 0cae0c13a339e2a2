package object

import (
	"github.com/pkg/errors"
)

// Binding is one named value in a scope.
type Binding struct {
	Name     string
	Value    Value
	Mutable  bool
	TypeName string
}

// Environment stores variable bindings
// It's a map with a link to an outer scope (for nested blocks)
type Environment struct {
	store map[string]*Binding
	order []string
	outer *Environment // Parent scope, nil at a callable's top level
}

// NewEnvironment creates the top-level scope of one inlined call
func NewEnvironment() *Environment {
	return &Environment{store: make(map[string]*Binding)}
}

// NewEnclosedEnvironment creates a new scope enclosed by outer
func NewEnclosedEnvironment(outer *Environment) *Environment {
	env := NewEnvironment()
	env.outer = outer
	return env
}

func (e *Environment) Outer() *Environment { return e.outer }

// Lookup finds the binding for name, checking enclosing scopes
func (e *Environment) Lookup(name string) (*Binding, bool) {
	for env := e; env != nil; env = env.outer {
		if b, ok := env.store[name]; ok {
			return b, true
		}
	}
	return nil, false
}

// Get looks up a variable's value by name
func (e *Environment) Get(name string) (Value, bool) {
	b, ok := e.Lookup(name)
	if !ok {
		return nil, false
	}
	return b.Value, true
}

func (e *Environment) Has(name string) bool {
	_, ok := e.Lookup(name)
	return ok
}

func (e *Environment) HasInCurrentScope(name string) bool {
	_, ok := e.store[name]
	return ok
}

// Define creates a binding in the current scope, shadowing outer ones.
func (e *Environment) Define(name string, val Value, mutable bool) *Binding {
	if name == "_" {
		return nil
	}
	b := &Binding{Name: name, Value: val, Mutable: mutable, TypeName: val.TypeName()}
	if _, exists := e.store[name]; !exists {
		e.order = append(e.order, name)
	}
	e.store[name] = b
	return b
}

// Assign updates an existing mutable binding wherever it lives.
func (e *Environment) Assign(name string, val Value) error {
	b, ok := e.Lookup(name)
	if !ok {
		return errors.Errorf("assignment to undeclared variable %s", name)
	}
	if !b.Mutable {
		return errors.Errorf("cannot update immutable variable %s", name)
	}
	b.Value = val
	return nil
}

// Mutables lists every visible mutable binding, outermost scope first and in
// declaration order within a scope. Shadowed bindings are omitted.
func (e *Environment) Mutables() []*Binding {
	var chain []*Environment
	for env := e; env != nil; env = env.outer {
		chain = append(chain, env)
	}
	// Innermost wins, so resolve names from the inside out before ordering.
	visible := map[string]*Binding{}
	for _, env := range chain {
		for _, name := range env.order {
			if _, ok := visible[name]; !ok {
				visible[name] = env.store[name]
			}
		}
	}
	var out []*Binding
	for i := len(chain) - 1; i >= 0; i-- {
		for _, name := range chain[i].order {
			b := visible[name]
			if b != chain[i].store[name] || !b.Mutable {
				continue
			}
			out = append(out, b)
		}
	}
	return out
}
