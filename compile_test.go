package hsm_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stateforward/hsm-dispatch"
	"github.com/stateforward/hsm-dispatch/elements"
)

func index(t *testing.T, machine *hsm.Machine[*recorder], name string) int {
	t.Helper()
	i, ok := machine.StateIndex(name)
	require.True(t, ok, "state %q", name)
	return i
}

func parent(t *testing.T, machine *hsm.Machine[*recorder], name string) int {
	t.Helper()
	i, ok := machine.ParentIndex(name)
	require.True(t, ok, "parent %q", name)
	return i
}

func lookup(t *testing.T, machine *hsm.Machine[*recorder], event, parentName, stateName string) hsm.Entry[*recorder] {
	t.Helper()
	entry, err := machine.Lookup(event, parent(t, machine, parentName), index(t, machine, stateName))
	require.NoError(t, err)
	return entry
}

func TestCompileIndices(t *testing.T) {
	machine, err := hsm.Compile(guardsAndActions())
	require.NoError(t, err)

	assert.Equal(t, []string{"root", "s1", "sub", "s2", "inner"}, machine.States())
	assert.Equal(t, []string{"root", "sub"}, machine.Parents())
	assert.Equal(t, []string{"e1", "e2", "e3", "e4"}, machine.Events())
	assert.Equal(t, "root", machine.Name())
	assert.NotEmpty(t, machine.Id())
	assert.Equal(t, 1, machine.MaxRegions())

	_, ok := machine.ParentIndex("s1")
	assert.False(t, ok, "leaves have no parent index")
	_, ok = machine.Table("missing")
	assert.False(t, ok)
	_, err = machine.Lookup("missing", 0, 0)
	assert.ErrorIs(t, err, hsm.ErrUnknownEvent)
	_, err = machine.Lookup("e1", 0, 99)
	assert.ErrorIs(t, err, hsm.ErrUnknownState)
}

func TestCompileResolvesSubmachineTarget(t *testing.T) {
	machine := hsm.MustCompile(guardsAndActions())

	entry := lookup(t, machine, "e2", "root", "s1")
	assert.Equal(t, parent(t, machine, "sub"), entry.TargetParent)
	assert.Equal(t, index(t, machine, "inner"), entry.TargetState, "a submachine resolves to its first initial state")
	assert.False(t, entry.History)
	assert.Equal(t, hsm.OriginTransition, entry.Origin)

	inner := lookup(t, machine, "e1", "sub", "inner")
	assert.Equal(t, parent(t, machine, "sub"), inner.TargetParent)
	assert.Equal(t, index(t, machine, "inner"), inner.TargetState)

	assert.Equal(t, [][]int{{index(t, machine, "s1")}, {index(t, machine, "inner")}},
		[][]int{machine.InitialStates(0), machine.InitialStates(1)})
	assert.Nil(t, machine.InitialStates(7))
}

func TestUndeclaredCellsAreEmpty(t *testing.T) {
	machine := hsm.MustCompile(guardsAndActions())
	declared := map[[3]string]bool{
		{"e1", "root", "s1"}:   true,
		{"e2", "root", "s1"}:   true,
		{"e3", "root", "s1"}:   true,
		{"e4", "root", "s1"}:   true,
		{"e1", "sub", "inner"}: true,
	}
	for _, event := range machine.Events() {
		table, ok := machine.Table(event)
		require.True(t, ok)
		assert.Equal(t, event, table.Event())
		for p := range machine.NumParents() {
			for s := range machine.NumStates() {
				entry := table.At(p, s)
				key := [3]string{event, machine.ParentName(p), machine.StateName(s)}
				assert.Equal(t, !declared[key], entry.Empty(), "%v", key)
			}
		}
	}
	assert.True(t, (*hsm.Table[*recorder])(nil).At(0, 0).Empty())
}

func TestLastWriteWins(t *testing.T) {
	a, b, c := leaf("a"), leaf("b"), leaf("c")
	root := leaf("root").Initial(a).
		Add(a, "go", nil, nil, b).
		Add(a, "go", nil, nil, c)
	machine := hsm.MustCompile(root)

	entry := lookup(t, machine, "go", "root", "a")
	assert.Equal(t, index(t, machine, "c"), entry.TargetState)
}

func TestSubmachineBroadcast(t *testing.T) {
	x, y, z, out := leaf("x"), leaf("y"), leaf("z"), leaf("out")
	sub := leaf("sub").Initial(x).
		Add(x, "go", nil, nil, y).
		Add(y, "next", nil, nil, z)
	root := leaf("root").Initial(sub).
		AddTransition(hsm.Transition[*recorder]{Source: sub, Event: "go", Guard: always(true), Action: record("leave"), Target: out, GuardName: "always", ActionName: "leave"})
	machine := hsm.MustCompile(root)

	specific := lookup(t, machine, "go", "sub", "x")
	assert.Equal(t, hsm.OriginTransition, specific.Origin, "a leaf specific transition is not clobbered")
	assert.Equal(t, index(t, machine, "y"), specific.TargetState)

	for _, name := range []string{"y", "z"} {
		entry := lookup(t, machine, "go", "sub", name)
		assert.Equal(t, hsm.OriginBroadcast, entry.Origin, name)
		assert.Equal(t, parent(t, machine, "root"), entry.TargetParent, name)
		assert.Equal(t, index(t, machine, "out"), entry.TargetState, name)
		assert.Equal(t, "always", entry.GuardName, name)
		assert.Equal(t, []string{"leave"}, entry.Effects, name)
		require.NotNil(t, entry.Guard)
		require.NotNil(t, entry.Action)
	}
}

func TestBroadcastInstallsBareAction(t *testing.T) {
	x, out := leaf("x").OnExit(record("x.exit")), leaf("out").OnEntry(record("out.entry"))
	sub := leaf("sub").Initial(x).Add(x, "noop", nil, nil, x)
	root := leaf("root").Initial(sub).Add(sub, "go", nil, record("leave"), out)
	machine := hsm.MustCompile(root)

	entry := lookup(t, machine, "go", "sub", "x")
	require.Equal(t, hsm.OriginBroadcast, entry.Origin)
	deps := &recorder{}
	entry.Action(t.Context(), deps, hsm.Event{Name: "go"})
	assert.Equal(t, []string{"leave"}, deps.calls)

	composed := lookup(t, machine, "go", "root", "sub")
	deps.calls = nil
	composed.Action(t.Context(), deps, hsm.Event{Name: "go"})
	assert.Equal(t, []string{"leave", "out.entry"}, deps.calls)
}

func TestComposedActionOrder(t *testing.T) {
	a := leaf("a").OnEntry(record("a.entry")).OnExit(record("a.exit"))
	b := leaf("b").OnEntry(record("b.entry")).OnExit(record("b.exit"))
	root := leaf("root").Initial(a).
		AddTransition(hsm.Transition[*recorder]{Source: a, Event: "go", Action: record("go"), Target: b, ActionName: "go"})
	machine := hsm.MustCompile(root)

	entry := lookup(t, machine, "go", "root", "a")
	assert.Equal(t, []string{"a.exit", "go", "b.entry"}, entry.Effects)
	for range 3 {
		deps := &recorder{}
		entry.Action(t.Context(), deps, hsm.Event{Name: "go"})
		assert.Equal(t, []string{"a.exit", "go", "b.entry"}, deps.calls)
	}
}

func TestPseudostateResolution(t *testing.T) {
	idle := leaf("idle")
	a, b := leaf("a"), leaf("b")
	sub := leaf("sub").Initial(a).Add(a, "step", nil, nil, b)
	root := leaf("root").Initial(idle).
		Add(idle, "enter", nil, nil, hsm.EntryPoint(sub, b)).
		Add(idle, "jump", nil, nil, hsm.Direct(sub, b)).
		Add(idle, "resume", nil, nil, hsm.History(sub)).
		Add(hsm.ExitPoint(sub, b), "leave", nil, nil, idle).
		Add(hsm.Direct(sub, a), "bail", nil, nil, idle)
	machine := hsm.MustCompile(root)
	subIndex := parent(t, machine, "sub")

	for _, event := range []string{"enter", "jump"} {
		entry := lookup(t, machine, event, "root", "idle")
		assert.Equal(t, subIndex, entry.TargetParent, event)
		assert.Equal(t, index(t, machine, "b"), entry.TargetState, event)
		assert.False(t, entry.History, event)
	}

	resume := lookup(t, machine, "resume", "root", "idle")
	assert.Equal(t, subIndex, resume.TargetParent)
	assert.Equal(t, index(t, machine, "a"), resume.TargetState, "history resolves to the initial state at compile time")
	assert.True(t, resume.History)

	leave := lookup(t, machine, "leave", "sub", "b")
	assert.Equal(t, 0, leave.TargetParent)
	assert.Equal(t, index(t, machine, "idle"), leave.TargetState)

	bail := lookup(t, machine, "bail", "sub", "a")
	assert.Equal(t, index(t, machine, "idle"), bail.TargetState)
}

func TestDeferredMarking(t *testing.T) {
	busy := leaf("busy").Defer("job", "ping")
	done := leaf("done")
	root := leaf("root").Initial(busy).
		AddTransition(hsm.Transition[*recorder]{Source: busy, Event: "ping", Guard: always(true), Target: done, GuardName: "always"})
	machine := hsm.MustCompile(root)

	job := lookup(t, machine, "job", "root", "busy")
	assert.True(t, job.Deferred)
	assert.False(t, job.Transitions())
	assert.False(t, job.Empty(), "a deferred cell is not empty")

	ping := lookup(t, machine, "ping", "root", "busy")
	assert.True(t, ping.Deferred)
	assert.Equal(t, hsm.OriginTransition, ping.Origin, "deferral keeps the transition")
	assert.Equal(t, index(t, machine, "done"), ping.TargetState)
	assert.Equal(t, "always", ping.GuardName)
	assert.NotNil(t, ping.Guard)
}

func TestDeferredOnCompositeCoversLeaves(t *testing.T) {
	x, y := leaf("x"), leaf("y")
	sub := leaf("sub").Initial(x).Add(x, "step", nil, nil, y).Defer("later")
	root := leaf("root").Initial(sub)
	machine := hsm.MustCompile(root)

	for _, name := range []string{"x", "y"} {
		assert.True(t, lookup(t, machine, "later", "sub", name).Deferred, name)
	}
	assert.True(t, lookup(t, machine, "later", "root", "sub").Deferred)
}

func TestInternalTransitions(t *testing.T) {
	x, y := leaf("x"), leaf("y")
	sub := leaf("sub").Initial(x).
		Add(x, "step", nil, nil, y).
		Add(y, "tick", nil, nil, x).
		Internal("tick", nil, record("tick"))
	root := leaf("root").Initial(sub)
	machine := hsm.MustCompile(root)

	internal := lookup(t, machine, "tick", "sub", "x")
	assert.Equal(t, hsm.OriginInternal, internal.Origin)
	assert.Equal(t, index(t, machine, "x"), internal.TargetState)

	declared := lookup(t, machine, "tick", "sub", "y")
	assert.Equal(t, hsm.OriginTransition, declared.Origin, "internal transitions only fill empty cells")
}

func TestRegions(t *testing.T) {
	left, right := leaf("left"), leaf("right")
	par := leaf("par").Initial(left, right).
		Add(left, "l", nil, nil, left).
		Add(right, "r", nil, nil, right)
	root := leaf("root").Initial(par)
	machine := hsm.MustCompile(root)

	assert.Equal(t, 2, machine.MaxRegions())
	assert.Equal(t, []int{index(t, machine, "left"), index(t, machine, "right")}, machine.InitialStates(parent(t, machine, "par")))
	assert.Equal(t, []elements.Region{
		{Parent: "root", States: []string{"par"}},
		{Parent: "par", States: []string{"left", "right"}},
	}, machine.Regions())
}

func TestCompileIsDeterministic(t *testing.T) {
	first := hsm.MustCompile(guardsAndActions())
	second := hsm.MustCompile(guardsAndActions())
	if diff := cmp.Diff(first.Rows(), second.Rows()); diff != "" {
		t.Fatalf("rows differ between compilations (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Regions(), second.Regions()); diff != "" {
		t.Fatalf("regions differ between compilations (-first +second):\n%s", diff)
	}

	root := guardsAndActions()
	again := hsm.MustCompile(root)
	if diff := cmp.Diff(again.Rows(), hsm.MustCompile(root).Rows()); diff != "" {
		t.Fatalf("recompiling the same root changed the rows:\n%s", diff)
	}
}

func TestRows(t *testing.T) {
	machine := hsm.MustCompile(guardsAndActions())
	rows := machine.Rows()
	require.Len(t, rows, 5)
	assert.Equal(t, elements.Row{
		Event:        "e1",
		Parent:       "root",
		State:        "s1",
		TargetParent: "root",
		TargetState:  "s1",
		Guard:        "yes",
		Effects:      []string{"a2"},
		Origin:       "transition",
	}, rows[0])
	assert.Equal(t, "inner", rows[1].State)
	assert.Equal(t, "sub", rows[1].Parent)
}

func TestMustCompilePanics(t *testing.T) {
	assert.Panics(t, func() {
		hsm.MustCompile(leaf("root"))
	})
}
