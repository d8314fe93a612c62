package hsm

import (
	"slices"

	"github.com/rs/zerolog"
)

// Origin tells how a dispatch entry came to be.
type Origin uint8

const (
	// OriginNone marks a cell no transition wrote.
	OriginNone Origin = iota
	// OriginTransition is a transition declared for the cell's state.
	OriginTransition
	// OriginBroadcast is a transition declared on an enclosing submachine.
	OriginBroadcast
	// OriginInternal is an internal transition; it runs its action and leaves
	// the active state alone.
	OriginInternal
)

func (o Origin) String() string {
	switch o {
	case OriginTransition:
		return "transition"
	case OriginBroadcast:
		return "broadcast"
	case OriginInternal:
		return "internal"
	}
	return "none"
}

// Entry is one cell of a dispatch table. The zero Entry is the empty entry:
// the event is dropped and nothing runs.
type Entry[T any] struct {
	TargetParent int
	TargetState  int
	Guard        Guard[T]
	// Action is the composed action: exit of the source, the transition's own
	// action, entry of the target. Broadcast and internal entries carry the
	// bare transition action.
	Action Action[T]
	// History asks the consumer to re-enter TargetParent at its recorded
	// child, falling back to TargetState.
	History bool
	// Deferred asks the consumer to keep the event when no transition fires.
	Deferred bool
	Origin   Origin

	GuardName string
	Effects   []string
}

// Empty reports whether the entry neither transitions nor defers.
func (e Entry[T]) Empty() bool {
	return e.Origin == OriginNone && !e.Deferred
}

// Transitions reports whether the entry carries a transition.
func (e Entry[T]) Transitions() bool {
	return e.Origin != OriginNone
}

// Table is the dispatch table of one event, addressed by [parent][state].
type Table[T any] struct {
	event   string
	states  int
	entries []Entry[T]
}

// Event returns the event the table belongs to.
func (t *Table[T]) Event() string {
	return t.event
}

// At returns the entry for the given cell, or the empty entry when the cell
// is out of range.
func (t *Table[T]) At(parent, state int) Entry[T] {
	if t == nil || parent < 0 || state < 0 || state >= t.states {
		return Entry[T]{}
	}
	index := parent*t.states + state
	if index >= len(t.entries) {
		return Entry[T]{}
	}
	return t.entries[index]
}

func (t *Table[T]) cell(s slot) *Entry[T] {
	return &t.entries[s.parent*t.states+s.state]
}

// buildTables fills one table per catalog event. Rows are written in
// flattening order, so the last transition declared for a cell wins.
// Submachine broadcasts then fill the leaf cells no transition claimed,
// internal transitions fill what is still empty, and deferral is marked last
// without touching what is already there.
func buildTables[T any](c *catalog[T], flat flattened[T], logger zerolog.Logger) []*Table[T] {
	rows := make(map[string][]resolved[T], len(c.events))
	for _, transition := range flat.transitions {
		rows[transition.Event] = append(rows[transition.Event], resolve(c, transition))
	}
	tables := make([]*Table[T], len(c.events))
	for index, event := range c.events {
		table := &Table[T]{
			event:   event,
			states:  len(c.states),
			entries: make([]Entry[T], len(c.parents)*len(c.states)),
		}
		claimed := make([]bool, len(table.entries))
		for _, row := range rows[event] {
			cell := table.cell(row.from)
			if claimed[row.from.parent*table.states+row.from.state] {
				logger.Debug().
					Str("event", event).
					Str("parent", c.parents[row.from.parent].name).
					Str("state", c.states[row.from.state].name).
					Msg("dispatch entry overwritten by later transition")
			}
			*cell = Entry[T]{
				TargetParent: row.to.parent,
				TargetState:  row.to.state,
				Guard:        row.guard,
				Action:       row.action,
				History:      row.history,
				Origin:       OriginTransition,
				GuardName:    row.guardName,
				Effects:      row.effects,
			}
			claimed[row.from.parent*table.states+row.from.state] = true
		}
		for _, row := range rows[event] {
			if row.submachine < 0 {
				continue
			}
			var bare []string
			if row.actionName != "" {
				bare = []string{row.actionName}
			}
			for _, leaf := range c.leaves(row.submachine) {
				if claimed[leaf.parent*table.states+leaf.state] {
					continue
				}
				*table.cell(leaf) = Entry[T]{
					TargetParent: row.to.parent,
					TargetState:  row.to.state,
					Guard:        row.guard,
					Action:       row.bare,
					History:      row.history,
					Origin:       OriginBroadcast,
					GuardName:    row.guardName,
					Effects:      bare,
				}
			}
		}
		for state, s := range c.states {
			for _, internal := range s.internal {
				if internal.Event != event {
					continue
				}
				var labels []string
				if name := internal.actionName(); name != "" {
					labels = []string{name}
				}
				for _, at := range c.cellsOf(state) {
					cell := table.cell(at)
					if cell.Origin != OriginNone {
						continue
					}
					*cell = Entry[T]{
						TargetParent: at.parent,
						TargetState:  at.state,
						Guard:        internal.Guard,
						Action:       internal.Action,
						Origin:       OriginInternal,
						GuardName:    internal.guardName(),
						Effects:      labels,
						Deferred:     cell.Deferred,
					}
				}
			}
		}
		for state, s := range c.states {
			if !slices.Contains(s.deferred, event) {
				continue
			}
			for _, at := range c.cellsOf(state) {
				table.cell(at).Deferred = true
			}
		}
		tables[index] = table
	}
	return tables
}

// cellsOf returns the cells a state answers for: its own memberships and,
// for a composite, the cells of every leaf below it.
func (c *catalog[T]) cellsOf(state int) []slot {
	cells := c.slotsOf(state)
	if parent, ok := c.parentIndex[c.states[state]]; ok {
		cells = append(cells, c.leaves(parent)...)
	}
	return cells
}
