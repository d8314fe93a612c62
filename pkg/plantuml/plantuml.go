// Package plantuml renders a compiled machine as a PlantUML state diagram.
// Composites become nested state blocks, transitions are drawn from the
// dispatch rows declared for each state, and broadcast rows are folded back
// into the single arrow leaving their submachine.
package plantuml

import (
	"fmt"
	"io"
	"strings"

	"github.com/stateforward/hsm-dispatch/elements"
)

func id(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
}

type diagram struct {
	table   elements.Table
	members map[string][]string
	initial map[string][]string
	owner   map[string]string
	notes   map[string][]string
	visited map[string]bool
}

func (d *diagram) generateState(builder *strings.Builder, depth int, name string) {
	if d.visited[name] {
		return
	}
	d.visited[name] = true
	indent := strings.Repeat(" ", depth*2)
	if elements.Composite(d.table, name) {
		fmt.Fprintf(builder, "%sstate %s {\n", indent, id(name))
		d.generateRegion(builder, depth+1, name)
		fmt.Fprintf(builder, "%s}\n", indent)
	} else {
		fmt.Fprintf(builder, "%sstate %s\n", indent, id(name))
	}
	for _, note := range d.notes[name] {
		fmt.Fprintf(builder, "%sstate %s : %s\n", indent, id(name), note)
	}
}

func (d *diagram) generateRegion(builder *strings.Builder, depth int, parent string) {
	indent := strings.Repeat(" ", depth*2)
	for _, initial := range d.initial[parent] {
		fmt.Fprintf(builder, "%s[*] --> %s\n", indent, id(initial))
	}
	for _, member := range d.members[parent] {
		d.generateState(builder, depth, member)
	}
}

func label(row elements.Row) string {
	label := row.Event
	if row.Guard != "" {
		label = fmt.Sprintf("%s [%s]", label, row.Guard)
	}
	if len(row.Effects) > 0 {
		label = fmt.Sprintf("%s / %s", label, strings.Join(row.Effects, ", "))
	}
	return label
}

// inherited reports whether an enclosing composite of state carries the same
// note, in which case the leaf copy is left out.
func (d *diagram) inherited(state, note string) bool {
	for parent, ok := d.owner[state]; ok; parent, ok = d.owner[parent] {
		for _, existing := range d.notes[parent] {
			if existing == note {
				return true
			}
		}
	}
	return false
}

func (d *diagram) generateTransition(builder *strings.Builder, row elements.Row) {
	target := id(row.TargetState)
	if row.History {
		target = id(row.TargetParent) + "[H]"
	}
	fmt.Fprintf(builder, "%s --> %s : %s\n", id(row.State), target, label(row))
}

// Generate writes the diagram of t to writer.
func Generate(writer io.Writer, t elements.Table) error {
	d := &diagram{
		table:   t,
		members: map[string][]string{},
		initial: map[string][]string{},
		owner:   map[string]string{},
		notes:   map[string][]string{},
		visited: map[string]bool{},
	}
	var root string
	for index, region := range t.Members() {
		if index == 0 {
			root = region.Parent
		}
		d.members[region.Parent] = region.States
		for _, state := range region.States {
			if _, ok := d.owner[state]; !ok {
				d.owner[state] = region.Parent
			}
		}
	}
	for _, region := range t.Regions() {
		d.initial[region.Parent] = region.States
	}

	var transitions []elements.Row
	for _, row := range t.Rows() {
		switch row.Origin {
		case "transition":
			transitions = append(transitions, row)
		case "internal":
			d.notes[row.State] = appendNote(d.notes[row.State], label(row))
		}
		if row.Deferred {
			d.notes[row.State] = appendNote(d.notes[row.State], row.Event+" / defer")
		}
	}
	for state, notes := range d.notes {
		kept := notes[:0:0]
		for _, note := range notes {
			if !d.inherited(state, note) {
				kept = append(kept, note)
			}
		}
		d.notes[state] = kept
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "@startuml %s\n", id(t.Name()))
	d.generateRegion(&builder, 0, root)
	for _, row := range transitions {
		d.generateTransition(&builder, row)
	}
	fmt.Fprintln(&builder, "@enduml")
	_, err := io.WriteString(writer, builder.String())
	return err
}

func appendNote(notes []string, note string) []string {
	for _, existing := range notes {
		if existing == note {
			return notes
		}
	}
	return append(notes, note)
}
