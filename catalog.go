package hsm

import "fmt"

// slot addresses one cell of a dispatch table, and one active state of an
// instance.
type slot struct {
	parent int
	state  int
}

// catalog assigns dense indices to states, composites and events. Indices are
// handed out in walk order and never change once the catalog is built.
type catalog[T any] struct {
	states      []*State[T]
	stateIndex  map[*State[T]]int
	byName      map[string]int
	parents     []*State[T]
	parentIndex map[*State[T]]int
	// owner maps a parent index to the parent index of the composite that
	// contains it, -1 for the root.
	owner []int
	// members maps a parent index to its child state indices.
	members     [][]int
	memberships []slot
	events      []string
	eventIndex  map[string]int
}

func newCatalog[T any](root *State[T], flat flattened[T], verr *ValidationError) *catalog[T] {
	c := &catalog[T]{
		stateIndex:  map[*State[T]]int{},
		byName:      map[string]int{},
		parentIndex: map[*State[T]]int{},
		eventIndex:  map[string]int{},
	}
	c.addState(root, verr)
	for _, composite := range flat.composites {
		c.parentIndex[composite] = len(c.parents)
		c.parents = append(c.parents, composite)
		c.members = append(c.members, nil)
		c.owner = append(c.owner, -1)
	}
	for parent, composite := range c.parents {
		for _, child := range composite.initial {
			c.addMember(parent, child, verr)
		}
		for _, transition := range composite.table {
			if state, _ := split(transition.Source); state != nil {
				c.addMember(parent, state, verr)
			}
			if state, _ := split(transition.Target); state != nil {
				c.addMember(parent, state, verr)
			}
		}
	}
	// A composite only ever named through a pseudostate belongs to the table
	// that names it.
	for parent, composite := range c.parents {
		for _, transition := range composite.table {
			for _, endpoint := range []Endpoint[T]{transition.Source, transition.Target} {
				_, pseudo := split(endpoint)
				if pseudo == nil || pseudo.parent == nil || pseudo.parent == composite {
					continue
				}
				if index, ok := c.stateIndex[pseudo.parent]; ok && len(c.slotsOf(index)) > 0 {
					continue
				}
				if _, ok := c.parentIndex[pseudo.parent]; ok {
					c.addMember(parent, pseudo.parent, verr)
				}
			}
		}
	}
	for _, member := range c.memberships {
		if child, ok := c.parentIndex[c.states[member.state]]; ok && child != 0 && c.owner[child] == -1 {
			c.owner[child] = member.parent
		}
	}
	for _, transition := range flat.transitions {
		c.addEvent(transition.Event)
	}
	for _, state := range c.states {
		for _, internal := range state.internal {
			c.addEvent(internal.Event)
		}
	}
	for _, state := range c.states {
		for _, event := range state.deferred {
			c.addEvent(event)
		}
	}
	return c
}

func (c *catalog[T]) addState(state *State[T], verr *ValidationError) int {
	if index, ok := c.stateIndex[state]; ok {
		return index
	}
	if other, ok := c.byName[state.name]; ok {
		verr.AddIssue(ErrCodeDuplicateStateName,
			fmt.Sprintf("state name %q is used by two different states", state.name),
			c.states[other].name)
	}
	index := len(c.states)
	c.stateIndex[state] = index
	if _, ok := c.byName[state.name]; !ok {
		c.byName[state.name] = index
	}
	c.states = append(c.states, state)
	return index
}

func (c *catalog[T]) addMember(parent int, state *State[T], verr *ValidationError) {
	if state == nil {
		return
	}
	index := c.addState(state, verr)
	for _, existing := range c.members[parent] {
		if existing == index {
			return
		}
	}
	c.members[parent] = append(c.members[parent], index)
	c.memberships = append(c.memberships, slot{parent: parent, state: index})
}

func (c *catalog[T]) addEvent(name string) {
	if name == "" {
		return
	}
	if _, ok := c.eventIndex[name]; ok {
		return
	}
	c.eventIndex[name] = len(c.events)
	c.events = append(c.events, name)
}

func (c *catalog[T]) isMember(parent *State[T], state *State[T]) bool {
	p, ok := c.parentIndex[parent]
	if !ok {
		return false
	}
	s, ok := c.stateIndex[state]
	if !ok {
		return false
	}
	for _, member := range c.members[p] {
		if member == s {
			return true
		}
	}
	return false
}

// slotsOf returns every (parent, state) cell the state occupies.
func (c *catalog[T]) slotsOf(state int) []slot {
	var slots []slot
	for _, member := range c.memberships {
		if member.state == state {
			slots = append(slots, member)
		}
	}
	return slots
}

// leaves returns the (owning parent, leaf) cells of every leaf below parent.
func (c *catalog[T]) leaves(parent int) []slot {
	var result []slot
	seen := map[int]struct{}{}
	var collect func(parent int)
	collect = func(parent int) {
		if _, ok := seen[parent]; ok {
			return
		}
		seen[parent] = struct{}{}
		for _, member := range c.members[parent] {
			if child, ok := c.parentIndex[c.states[member]]; ok {
				collect(child)
				continue
			}
			result = append(result, slot{parent: parent, state: member})
		}
	}
	collect(parent)
	return result
}

// chain returns parent followed by its owners up to the root.
func (c *catalog[T]) chain(parent int) []int {
	var result []int
	for p := parent; p >= 0 && len(result) <= len(c.parents); p = c.owner[p] {
		result = append(result, p)
	}
	return result
}
