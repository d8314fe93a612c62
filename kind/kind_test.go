package kind

import (
	"slices"
	"testing"
)

func TestIs(t *testing.T) {
	vertex := Make()
	state := Make(vertex)
	composite := Make(state)
	pseudostate := Make(vertex)
	history := Make(pseudostate)

	if !Is(composite, state) {
		t.Errorf("composite should be a state")
	}
	if !Is(composite, vertex) {
		t.Errorf("composite should be a vertex through state")
	}
	if Is(state, composite) {
		t.Errorf("state should not be a composite")
	}
	if !Is(history, pseudostate, state) {
		t.Errorf("history should match when any candidate matches")
	}
	if Is(history, state) {
		t.Errorf("history should not be a state")
	}
	if Is(history) {
		t.Errorf("no candidates should never match")
	}
	if Is(history, 0) {
		t.Errorf("the zero kind should never match")
	}
}

func TestBases(t *testing.T) {
	a := Make()
	b := Make()
	c := Make(a, b, a)

	bases := Bases(c)
	if !slices.Equal(bases, []Kind{ID(a), ID(b)}) {
		t.Fatalf("unexpected bases %v", bases)
	}
	if len(Bases(a)) != 0 {
		t.Fatalf("a root kind has no bases")
	}
}

func TestUniqueIDs(t *testing.T) {
	seen := map[Kind]bool{}
	for range 16 {
		id := ID(Make())
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
}
