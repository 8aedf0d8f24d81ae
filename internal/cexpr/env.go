package cexpr

import (
	"fmt"
	"sort"
	"strings"
)

// StateKind says what is known about a macro.
type StateKind int

const (
	// StateQuantum is deliberately unknown: neither defined nor undefined is
	// assumed.
	StateQuantum StateKind = iota
	StateDefined
	StateNotDefined
)

func (k StateKind) String() string {
	switch k {
	case StateQuantum:
		return "quantum"
	case StateDefined:
		return "defined"
	case StateNotDefined:
		return "not-defined"
	}
	return fmt.Sprintf("StateKind(%d)", int(k))
}

// DefineState is the knowledge about one macro. Value is the replacement text
// of a Defined macro.
type DefineState struct {
	Kind  StateKind
	Value string
}

func QuantumState() DefineState          { return DefineState{Kind: StateQuantum} }
func DefinedAs(value string) DefineState { return DefineState{Kind: StateDefined, Value: value} }
func Undefined() DefineState             { return DefineState{Kind: StateNotDefined} }

func (s DefineState) String() string {
	if s.Kind == StateDefined {
		return fmt.Sprintf("defined(%q)", s.Value)
	}
	return s.Kind.String()
}

// Macros is the read-only view of macro knowledge the evaluator needs.
type Macros interface {
	Lookup(name string) DefineState
}

// Env maps macro names to what is known about them. Names never seen are
// Quantum.
type Env map[string]DefineState

func (e Env) Lookup(name string) DefineState {
	if s, ok := e[name]; ok {
		return s
	}
	return QuantumState()
}

func (e Env) Define(name, value string) { e[name] = DefinedAs(value) }
func (e Env) Undef(name string)         { e[name] = Undefined() }
func (e Env) Forget(name string)        { e[name] = QuantumState() }

// Clone returns an independent copy of e.
func (e Env) Clone() Env {
	c := make(Env, len(e))
	for k, v := range e {
		c[k] = v
	}
	return c
}

func (e Env) String() string {
	names := make([]string, 0, len(e))
	for k := range e {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + "=" + e[n].String()
	}
	return "{" + strings.Join(parts, " ") + "}"
}
