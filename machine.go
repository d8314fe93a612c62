package hsm

import (
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/stateforward/hsm-dispatch/elements"
	"github.com/stateforward/hsm-dispatch/muid"
)

// Config configures Compile and New. Zero fields take defaults.
type Config struct {
	// ID identifies the compiled machine or the instance. Defaults to a MUID.
	ID string
	// Name is the machine name used in logs, metrics and spans. Defaults to
	// the root state's name.
	Name string
	// Logger receives debug output. The zero logger discards everything.
	Logger zerolog.Logger
	// Metrics records compile and dispatch statistics when set.
	Metrics *Metrics
	// Tracer starts one span per dispatched event. Defaults to the global
	// tracer provider.
	Tracer trace.Tracer
}

func configOf(maybeConfig []Config) Config {
	if len(maybeConfig) > 0 {
		return maybeConfig[0]
	}
	return Config{}
}

// Machine is the compiled, immutable form of a state tree. It is safe for
// concurrent use and can be shared by any number of instances.
type Machine[T any] struct {
	id        string
	name      string
	root      *State[T]
	catalog   *catalog[T]
	tables    []*Table[T]
	initial   [][]int
	regions   int
	// region maps a (parent, child) pair to the child's region.
	region    map[slot]int
	// composite maps a state index to its parent index, -1 for leaves.
	composite []int
	// stateOf maps a parent index to the composite's state index.
	stateOf   []int
	logger    zerolog.Logger
	metrics   *Metrics
}

// Compile validates root and builds its dispatch tables. Shape errors are
// returned as a *ValidationError listing every issue found.
func Compile[T any](root *State[T], maybeConfig ...Config) (*Machine[T], error) {
	config := configOf(maybeConfig)
	started := time.Now()
	verr := &ValidationError{}
	if root == nil {
		verr.AddIssue(ErrCodeNilRoot, "machine has no root state")
		return nil, fmt.Errorf("hsm: compile: %w", verr)
	}
	name := config.Name
	if name == "" {
		name = root.name
	}
	logger := config.Logger.With().Str("machine", name).Logger()

	flat := flatten(root)
	c := newCatalog(root, flat, verr)
	validate(c, verr)
	if verr.HasIssues() {
		logger.Debug().Int("issues", len(verr.Issues)).Msg("machine rejected")
		return nil, fmt.Errorf("hsm: compile %q: %w", name, verr)
	}

	machine := &Machine[T]{
		id:        config.ID,
		name:      name,
		root:      root,
		catalog:   c,
		tables:    buildTables(c, flat, logger),
		composite: make([]int, len(c.states)),
		stateOf:   make([]int, len(c.parents)),
		logger:    logger,
		metrics:   config.Metrics,
	}
	machine.initial, machine.regions = buildInitial(c)
	machine.region = buildRegionIndex(c, machine.initial)
	if machine.id == "" {
		machine.id = muid.MakeString()
	}
	for index, state := range c.states {
		machine.composite[index] = -1
		if parent, ok := c.parentIndex[state]; ok {
			machine.composite[index] = parent
			machine.stateOf[parent] = index
		}
	}
	if machine.metrics != nil {
		machine.metrics.CompileDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
	}
	logger.Debug().
		Int("states", len(c.states)).
		Int("parents", len(c.parents)).
		Int("events", len(c.events)).
		Int("transitions", len(flat.transitions)).
		Int("regions", machine.regions).
		Msg("machine compiled")
	return machine, nil
}

// MustCompile is Compile that panics on shape errors. Intended for machines
// declared at package level.
func MustCompile[T any](root *State[T], maybeConfig ...Config) *Machine[T] {
	machine, err := Compile(root, maybeConfig...)
	if err != nil {
		panic(err)
	}
	return machine
}

// Kind is MachineKind.
func (m *Machine[T]) Kind() uint64 {
	return MachineKind
}

// Id returns Config.ID, or a generated id when none was set.
func (m *Machine[T]) Id() string {
	return m.id
}

// Name returns Config.Name, or the root state name.
func (m *Machine[T]) Name() string {
	return m.name
}

// Root returns the root state the machine was compiled from.
func (m *Machine[T]) Root() *State[T] {
	return m.root
}

// RegionOf returns the region of parent that state belongs to.
func (m *Machine[T]) RegionOf(parent, state int) int {
	return m.region[slot{parent: parent, state: state}]
}

// NumStates returns the number of state indices, the root included.
func (m *Machine[T]) NumStates() int {
	return len(m.catalog.states)
}

// NumParents returns the number of parent indices. The root is parent 0.
func (m *Machine[T]) NumParents() int {
	return len(m.catalog.parents)
}

// MaxRegions is the largest region count of any composite.
func (m *Machine[T]) MaxRegions() int {
	return m.regions
}

// StateIndex returns the index of the named state.
func (m *Machine[T]) StateIndex(name string) (int, bool) {
	index, ok := m.catalog.byName[name]
	return index, ok
}

// ParentIndex returns the parent index of the named composite.
func (m *Machine[T]) ParentIndex(name string) (int, bool) {
	index, ok := m.catalog.byName[name]
	if !ok || m.composite[index] < 0 {
		return 0, false
	}
	return m.composite[index], true
}

// EventIndex returns the index of the event's table.
func (m *Machine[T]) EventIndex(event string) (int, bool) {
	index, ok := m.catalog.eventIndex[event]
	return index, ok
}

// StateName returns the name of the state at index, "" when out of range.
func (m *Machine[T]) StateName(index int) string {
	if index < 0 || index >= len(m.catalog.states) {
		return ""
	}
	return m.catalog.states[index].name
}

// ParentName returns the name of the composite at parent index.
func (m *Machine[T]) ParentName(index int) string {
	if index < 0 || index >= len(m.catalog.parents) {
		return ""
	}
	return m.catalog.parents[index].name
}

// States returns every state name in index order.
func (m *Machine[T]) States() []string {
	names := make([]string, len(m.catalog.states))
	for index, state := range m.catalog.states {
		names[index] = state.name
	}
	return names
}

// Parents returns every composite name in parent index order.
func (m *Machine[T]) Parents() []string {
	names := make([]string, len(m.catalog.parents))
	for index, parent := range m.catalog.parents {
		names[index] = parent.name
	}
	return names
}

// Events returns every event name in table order.
func (m *Machine[T]) Events() []string {
	return slices.Clone(m.catalog.events)
}

// Table returns the dispatch table of event.
func (m *Machine[T]) Table(event string) (*Table[T], bool) {
	index, ok := m.catalog.eventIndex[event]
	if !ok {
		return nil, false
	}
	return m.tables[index], true
}

// Lookup returns the entry for event at the given cell.
func (m *Machine[T]) Lookup(event string, parent, state int) (Entry[T], error) {
	table, ok := m.Table(event)
	if !ok {
		return Entry[T]{}, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	if parent < 0 || parent >= m.NumParents() || state < 0 || state >= m.NumStates() {
		return Entry[T]{}, fmt.Errorf("%w: cell [%d][%d]", ErrUnknownState, parent, state)
	}
	return table.At(parent, state), nil
}

// InitialStates returns the initial state indices of the composite at parent
// index, one per region.
func (m *Machine[T]) InitialStates(parent int) []int {
	if parent < 0 || parent >= len(m.initial) {
		return nil
	}
	return slices.Clone(m.initial[parent])
}

// Rows lists every non-empty cell of every table, by event, parent and state
// index.
func (m *Machine[T]) Rows() []elements.Row {
	var rows []elements.Row
	for _, table := range m.tables {
		for parent := range m.catalog.parents {
			for state := range m.catalog.states {
				entry := table.At(parent, state)
				if entry.Empty() {
					continue
				}
				row := elements.Row{
					Event:    table.event,
					Parent:   m.ParentName(parent),
					State:    m.StateName(state),
					Guard:    entry.GuardName,
					Effects:  slices.Clone(entry.Effects),
					History:  entry.History,
					Deferred: entry.Deferred,
					Origin:   entry.Origin.String(),
				}
				if entry.Transitions() {
					row.TargetParent = m.ParentName(entry.TargetParent)
					row.TargetState = m.StateName(entry.TargetState)
				}
				rows = append(rows, row)
			}
		}
	}
	return rows
}

// Regions returns the initial state map by name.
func (m *Machine[T]) Regions() []elements.Region {
	regions := make([]elements.Region, len(m.initial))
	for parent, children := range m.initial {
		names := make([]string, len(children))
		for i, child := range children {
			names[i] = m.StateName(child)
		}
		regions[parent] = elements.Region{Parent: m.ParentName(parent), States: names}
	}
	return regions
}

// Members returns the child states of every composite by name, in parent
// index order.
func (m *Machine[T]) Members() []elements.Region {
	members := make([]elements.Region, len(m.catalog.members))
	for parent, children := range m.catalog.members {
		names := make([]string, len(children))
		for i, child := range children {
			names[i] = m.StateName(child)
		}
		members[parent] = elements.Region{Parent: m.ParentName(parent), States: names}
	}
	return members
}

var _ elements.Table = (*Machine[struct{}])(nil)
