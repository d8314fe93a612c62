package hsm

import (
	"fmt"
	"slices"
)

// Endpoint is either side of a transition: a *State or a *Pseudostate.
type Endpoint[T any] interface {
	Kind() uint64
	Name() string
	endpoint() (*State[T], *Pseudostate[T])
}

// Transition is one row of a composite's table. The composite holding the row
// is its declared parent.
type Transition[T any] struct {
	Source Endpoint[T]
	Event  string
	Guard  Guard[T]
	Action Action[T]
	Target Endpoint[T]
	// GuardName and ActionName label the callables in tables and diagrams.
	// When empty the function names are used.
	GuardName  string
	ActionName string
}

func (t Transition[T]) guardName() string {
	if t.GuardName != "" {
		return t.GuardName
	}
	return getFunctionName(t.Guard)
}

func (t Transition[T]) actionName() string {
	if t.ActionName != "" {
		return t.ActionName
	}
	return getFunctionName(t.Action)
}

// State is a node of the machine tree. Identity is the pointer; names must be
// unique within one machine.
type State[T any] struct {
	name      string
	entry     Action[T]
	exit      Action[T]
	initial   []*State[T]
	table     []Transition[T]
	internal  []Transition[T]
	deferred  []string
	entryName string
	exitName  string
}

// NewState returns a state named name. It is a leaf until it is given an
// initial state or a transition table.
func NewState[T any](name string) *State[T] {
	return &State[T]{name: name}
}

// Name returns the state name, unique within a machine.
func (s *State[T]) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// Kind is CompositeKind when the state owns initial states or a table,
// StateKind otherwise.
func (s *State[T]) Kind() uint64 {
	if s.IsComposite() {
		return CompositeKind
	}
	return StateKind
}

func (s *State[T]) endpoint() (*State[T], *Pseudostate[T]) {
	return s, nil
}

// IsComposite reports whether the state owns initial states or a table.
func (s *State[T]) IsComposite() bool {
	return s != nil && (len(s.initial) > 0 || len(s.table) > 0)
}

// Initial appends one initial state per orthogonal region.
func (s *State[T]) Initial(states ...*State[T]) *State[T] {
	s.initial = append(s.initial, states...)
	return s
}

// OnEntry sets the entry action.
func (s *State[T]) OnEntry(action Action[T], maybeName ...string) *State[T] {
	s.entry = action
	s.entryName = nameOr(maybeName, action)
	return s
}

// OnExit sets the exit action.
func (s *State[T]) OnExit(action Action[T], maybeName ...string) *State[T] {
	s.exit = action
	s.exitName = nameOr(maybeName, action)
	return s
}

// Defer declares events the state holds on to instead of dropping them.
func (s *State[T]) Defer(events ...string) *State[T] {
	for _, event := range events {
		if !slices.Contains(s.deferred, event) {
			s.deferred = append(s.deferred, event)
		}
	}
	return s
}

// Add appends a transition to the state's table.
func (s *State[T]) Add(source Endpoint[T], event string, guard Guard[T], action Action[T], target Endpoint[T]) *State[T] {
	return s.AddTransition(Transition[T]{
		Source: source,
		Event:  event,
		Guard:  guard,
		Action: action,
		Target: target,
	})
}

// AddTransition appends fully described transitions to the state's table.
func (s *State[T]) AddTransition(transitions ...Transition[T]) *State[T] {
	s.table = append(s.table, transitions...)
	return s
}

// Internal declares a transition that runs action without leaving the state.
// On a composite it applies to every leaf below it that has no other
// transition for the event.
func (s *State[T]) Internal(event string, guard Guard[T], action Action[T]) *State[T] {
	s.internal = append(s.internal, Transition[T]{Source: s, Event: event, Guard: guard, Action: action, Target: s})
	return s
}

// AddInternal is Internal with explicit labels.
func (s *State[T]) AddInternal(transition Transition[T]) *State[T] {
	transition.Source, transition.Target = s, s
	s.internal = append(s.internal, transition)
	return s
}

// Transitions returns the state's own table in declaration order.
func (s *State[T]) Transitions() []Transition[T] {
	return slices.Clone(s.table)
}

// InitialStates returns the per region initial states.
func (s *State[T]) InitialStates() []*State[T] {
	return slices.Clone(s.initial)
}

// Deferred returns the events the state defers.
func (s *State[T]) Deferred() []string {
	return slices.Clone(s.deferred)
}

func nameOr[T any](maybeName []string, action Action[T]) string {
	if len(maybeName) > 0 && maybeName[0] != "" {
		return maybeName[0]
	}
	return getFunctionName(action)
}

// Pseudostate is a transition endpoint that is resolved to a concrete
// (parent, state) pair at compile time.
type Pseudostate[T any] struct {
	kind   uint64
	parent *State[T]
	state  *State[T]
}

// EntryPoint enters parent at state. Target side only.
func EntryPoint[T any](parent, state *State[T]) *Pseudostate[T] {
	return &Pseudostate[T]{kind: EntryKind, parent: parent, state: state}
}

// Direct names state inside parent on either side of a transition.
func Direct[T any](parent, state *State[T]) *Pseudostate[T] {
	return &Pseudostate[T]{kind: DirectKind, parent: parent, state: state}
}

// ExitPoint leaves parent while state is active. Source side only.
func ExitPoint[T any](parent, state *State[T]) *Pseudostate[T] {
	return &Pseudostate[T]{kind: ExitKind, parent: parent, state: state}
}

// History re-enters parent at its last active child, or at its first initial
// state when it was never active. Target side only.
func History[T any](parent *State[T]) *Pseudostate[T] {
	return &Pseudostate[T]{kind: HistoryKind, parent: parent}
}

// Kind reports which pseudostate p is.
func (p *Pseudostate[T]) Kind() uint64 {
	return p.kind
}

// Name returns a label such as "entry(parent/state)" or "history(parent)".
func (p *Pseudostate[T]) Name() string {
	var label string
	switch p.kind {
	case EntryKind:
		label = "entry"
	case DirectKind:
		label = "direct"
	case ExitKind:
		label = "exit"
	case HistoryKind:
		return fmt.Sprintf("history(%s)", p.parent.Name())
	}
	return fmt.Sprintf("%s(%s/%s)", label, p.parent.Name(), p.state.Name())
}

func (p *Pseudostate[T]) endpoint() (*State[T], *Pseudostate[T]) {
	return nil, p
}

// Parent returns the composite the pseudostate belongs to.
func (p *Pseudostate[T]) Parent() *State[T] {
	return p.parent
}

// State returns the state the pseudostate names, nil for history.
func (p *Pseudostate[T]) State() *State[T] {
	return p.state
}
