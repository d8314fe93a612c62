// Package hsm compiles hierarchical state machine descriptions into flat,
// index addressed dispatch tables.
//
// # Overview
//
// A machine is declared as a tree of states. Composite states own a nested
// transition table and one initial state per orthogonal region. Transitions
// may name pseudostate endpoints (entry, direct, exit, history) and states may
// defer events until their next state change.
//
// Compile walks the description once and produces a Machine: dense indices
// for every state, parent and event, one dispatch table per event addressed
// by [parent][state], and the initial state map used when entering a
// composite. The compiled machine is immutable and can back any number of
// concurrently running instances.
//
// # Usage
//
//	type Player struct{ tracks int }
//
//	stopped := hsm.NewState[*Player]("stopped")
//	playing := hsm.NewState[*Player]("playing")
//	root := hsm.NewState[*Player]("player").
//	    Initial(stopped).
//	    Add(stopped, "play", nil, nil, playing).
//	    Add(playing, "stop", nil, nil, stopped)
//
//	machine := hsm.MustCompile(root)
//	sm := hsm.New(machine, &Player{})
//	_ = sm.Start(ctx)
//	sm.Dispatch(ctx, hsm.Event{Name: "play"})
package hsm

import (
	"context"
	"errors"
	"path"
	"reflect"
	"runtime"

	"github.com/stateforward/hsm-dispatch/kind"
)

// Kind constants identify endpoint variants. They are bit packed so that
// kind.Is(k, StateKind) holds for composites too.
var (
	// VertexKind is the base of everything a transition can point at.
	VertexKind = kind.Make()
	// StateKind is a plain (leaf) state.
	StateKind = kind.Make(VertexKind)
	// CompositeKind is a state with a nested table or initial states. Used as
	// a transition endpoint it acts as a submachine.
	CompositeKind = kind.Make(StateKind)
	// PseudostateKind is the base of entry, direct, exit and history.
	PseudostateKind = kind.Make(VertexKind)
	// EntryKind targets a specific child of a composite.
	EntryKind = kind.Make(PseudostateKind)
	// DirectKind names a specific child of a composite and may be used on
	// either side of a transition.
	DirectKind = kind.Make(PseudostateKind)
	// ExitKind leaves a composite from a specific child. Source side only.
	ExitKind = kind.Make(PseudostateKind)
	// HistoryKind re-enters a composite at its last active child. Target
	// side only.
	HistoryKind = kind.Make(PseudostateKind)

	// MachineKind identifies a compiled machine.
	MachineKind = kind.Make()

	// EventKind is the kind of ordinary events. Dispatch fills it in when an
	// event arrives without a kind.
	EventKind = kind.Make()
)

// Sentinel errors. Shape errors found while compiling are reported as a
// *ValidationError instead.
var (
	// ErrUnknownEvent is returned when looking up an event the machine never declared.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrUnknownState is returned when a name or index does not denote a state of the machine.
	ErrUnknownState = errors.New("unknown state")
	// ErrNotStarted is returned when dispatching to an instance before Start.
	ErrNotStarted = errors.New("hsm not started")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("hsm already started")
)

// Event is an occurrence delivered to an instance. Tables are keyed by Name
// only; Data is handed to guards and actions untouched.
type Event struct {
	Kind uint64 `json:"kind" yaml:"kind"`
	Name string `json:"name" yaml:"name"`
	ID   string `json:"id" yaml:"id"`
	Data any    `json:"data" yaml:"data"`
}

// WithData returns a copy of the event carrying data.
func (e Event) WithData(data any) Event {
	return Event{
		Kind: e.Kind,
		Name: e.Name,
		ID:   e.ID,
		Data: data,
	}
}

// Guard decides whether a transition may fire. deps is the dependency value
// the instance was created with.
type Guard[T any] func(ctx context.Context, deps T, event Event) bool

// Action is a side effect run by a transition, or on entry or exit.
type Action[T any] func(ctx context.Context, deps T, event Event)

func getFunctionName(fn any) string {
	if fn == nil {
		return ""
	}
	value := reflect.ValueOf(fn)
	if value.Kind() != reflect.Func || value.IsNil() {
		return ""
	}
	return path.Base(runtime.FuncForPC(value.Pointer()).Name())
}
