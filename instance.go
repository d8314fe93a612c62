package hsm

import (
	"context"
	"path"
	"slices"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stateforward/hsm-dispatch/muid"
)

const tracerName = "github.com/stateforward/hsm-dispatch"

// Result is the outcome of dispatching one event.
type Result uint8

const (
	// Dropped means no active state had a usable entry for the event.
	Dropped Result = iota
	// Transitioned means at least one entry fired.
	Transitioned
	// Deferred means the event is held until the next transition.
	Deferred
	// Queued means the event arrived while another was being processed and
	// will run once that one finishes.
	Queued
)

func (r Result) String() string {
	switch r {
	case Transitioned:
		return "transitioned"
	case Deferred:
		return "deferred"
	case Queued:
		return "queued"
	}
	return "dropped"
}

// Instance runs a compiled machine. It holds the active (parent, state) pair
// of every region, the recorded history and the deferred events; the tables
// themselves stay in the shared Machine.
//
// An Instance is not safe for concurrent use. Dispatch called from inside a
// guard or action is queued and processed after the current event.
type Instance[T any] struct {
	id         string
	machine    *Machine[T]
	deps       T
	active     []slot
	history    map[regionKey]int
	deferred   []delivery
	ready      []delivery
	queue      queue
	processing bool
	started    bool
	logger     zerolog.Logger
	tracer     trace.Tracer
	metrics    *Metrics
}

// regionKey addresses one region of a composite.
type regionKey struct {
	parent int
	region int
}

// New creates a stopped instance of machine. deps is passed to every guard
// and action.
func New[T any](machine *Machine[T], deps T, maybeConfig ...Config) *Instance[T] {
	instance := &Instance[T]{
		machine: machine,
		deps:    deps,
		history: map[regionKey]int{},
		logger:  machine.logger,
		metrics: machine.metrics,
	}
	if len(maybeConfig) > 0 {
		config := maybeConfig[0]
		instance.id = config.ID
		instance.logger = config.Logger.With().Str("machine", machine.name).Logger()
		instance.tracer = config.Tracer
		if config.Metrics != nil {
			instance.metrics = config.Metrics
		}
	}
	if instance.id == "" {
		instance.id = muid.Prefixed(machine.name)
	}
	if instance.tracer == nil {
		instance.tracer = otel.Tracer(tracerName)
	}
	instance.logger = instance.logger.With().Str("instance", instance.id).Logger()
	return instance
}

// ID returns the instance id.
func (i *Instance[T]) ID() string {
	return i.id
}

// Machine returns the compiled machine the instance runs.
func (i *Instance[T]) Machine() *Machine[T] {
	return i.machine
}

// Start activates the initial states of the root, descending into composite
// initial states region by region. No entry actions run.
func (i *Instance[T]) Start(ctx context.Context) error {
	if i.started {
		return ErrAlreadyStarted
	}
	i.active = i.expand(0, 0)
	i.started = true
	i.logger.Debug().Strs("active", i.Active()).Msg("started")
	return nil
}

// Dispatch delivers event to every active region.
func (i *Instance[T]) Dispatch(ctx context.Context, event Event) (Result, error) {
	if !i.started {
		return Dropped, ErrNotStarted
	}
	if event.Kind == 0 {
		event.Kind = EventKind
	}
	if event.ID == "" {
		event.ID = muid.MakeString()
	}
	if i.processing {
		i.queue.push(event)
		i.logger.Trace().Int("depth", i.queue.len()).Str("event", event.Name).Msg("queued behind current event")
		i.observe(event, Queued)
		return Queued, nil
	}
	i.processing = true
	defer func() {
		i.processing = false
	}()
	result := i.process(ctx, delivery{event: event})
	for next, ok := i.queue.pop(); ok; next, ok = i.queue.pop() {
		i.process(ctx, next)
	}
	return result, nil
}

func (i *Instance[T]) process(ctx context.Context, d delivery) (result Result) {
	event := d.event
	ctx, span := i.tracer.Start(ctx, "hsm.dispatch", trace.WithAttributes(
		attribute.String("hsm.machine", i.machine.name),
		attribute.String("hsm.instance", i.id),
		attribute.String("hsm.event", event.Name),
	))
	defer func() {
		span.SetAttributes(attribute.String("hsm.result", result.String()))
		span.End()
	}()
	fired, held := i.processEvent(ctx, d)
	if len(i.ready) > 0 {
		i.queue.requeue(i.ready...)
		i.gauge(-len(i.ready))
		i.ready = nil
	}
	if len(held) > 0 {
		i.deferred = append(i.deferred, delivery{event: event, holders: held})
		i.gauge(1)
	}
	switch {
	case fired:
		result = Transitioned
	case len(held) > 0:
		result = Deferred
	default:
		result = Dropped
	}
	i.observe(event, result)
	return result
}

// processEvent looks the event up for every addressed region active when it
// arrived. Regions left by an earlier transition of the same event are
// skipped. It returns the active states that defer the event without firing.
func (i *Instance[T]) processEvent(ctx context.Context, d delivery) (fired bool, held []slot) {
	table, ok := i.machine.Table(d.event.Name)
	if !ok {
		return false, nil
	}
	for _, current := range slices.Clone(i.active) {
		if !slices.Contains(i.active, current) {
			continue
		}
		if d.holders != nil && !slices.Contains(d.holders, current) {
			continue
		}
		entry := table.At(current.parent, current.state)
		if !entry.Transitions() || (entry.Guard != nil && !entry.Guard(ctx, i.deps, d.event)) {
			if entry.Deferred {
				held = append(held, current)
			}
			continue
		}
		if entry.Action != nil {
			entry.Action(ctx, i.deps, d.event)
		}
		fired = true
		if i.metrics != nil {
			i.metrics.TransitionsTotal.WithLabelValues(i.machine.name, entry.Origin.String()).Inc()
		}
		if entry.Origin == OriginInternal {
			continue
		}
		i.transition(current, entry)
	}
	held = slices.DeleteFunc(held, func(s slot) bool {
		return !slices.Contains(i.active, s)
	})
	return fired, held
}

// transition replaces every active region that shares from's branch below
// the nearest composite enclosing both ends, recording history on the way
// out. Deferred events held by a replaced region become ready for replay.
func (i *Instance[T]) transition(from slot, entry Entry[T]) {
	scope := i.scope(from.parent, entry.TargetParent)
	branch := i.branch(from, scope)
	kept := make([]slot, 0, len(i.active))
	var removed []slot
	at := -1
	for _, current := range i.active {
		if i.branch(current, scope) != branch {
			kept = append(kept, current)
			continue
		}
		if at < 0 {
			at = len(kept)
		}
		removed = append(removed, current)
	}
	if at < 0 {
		at = len(kept)
	}
	added := i.enter(scope, from, entry)
	for _, current := range removed {
		i.record(current, scope)
	}
	i.active = slices.Insert(kept, at, added...)

	waiting := i.deferred[:0]
	for _, held := range i.deferred {
		if held.handOff(removed, added) {
			i.ready = append(i.ready, held)
			continue
		}
		waiting = append(waiting, held)
	}
	i.deferred = waiting

	i.logger.Debug().
		Str("from", i.machine.StateName(from.state)).
		Str("to", i.machine.StateName(entry.TargetState)).
		Bool("history", entry.History).
		Msg("transition")
}

// enter activates the target of entry below scope. A composite entered from
// outside starts every region: the target takes its own region, the others
// take their initial state, or their recorded child when entry is history.
func (i *Instance[T]) enter(scope int, from slot, entry Entry[T]) []slot {
	parent, target := entry.TargetParent, entry.TargetState
	if parent == scope {
		if entry.History {
			key := regionKey{parent: parent, region: i.machine.RegionOf(parent, i.branch(from, scope))}
			if recorded, ok := i.history[key]; ok {
				target = recorded
			}
		}
		return i.activate(parent, target, 0)
	}
	var path []int
	for _, p := range i.machine.catalog.chain(parent) {
		if p == scope {
			break
		}
		path = append(path, p)
	}
	slices.Reverse(path)
	return i.descend(path, target, entry.History)
}

// descend enters path[0] and each composite below it on path, ending at the
// composite that owns target.
func (i *Instance[T]) descend(path []int, target int, history bool) []slot {
	parent, last := path[0], len(path) == 1
	through := target
	if !last {
		through = i.machine.stateOf[path[1]]
	}
	region := i.machine.RegionOf(parent, through)
	var slots []slot
	for index, child := range i.machine.initial[parent] {
		if index == region && !last {
			slots = append(slots, i.descend(path[1:], target, history)...)
			continue
		}
		if last && history {
			if recorded, ok := i.history[regionKey{parent: parent, region: index}]; ok {
				child = recorded
			}
		} else if last && index == region {
			child = target
		}
		slots = append(slots, i.activate(parent, child, 0)...)
	}
	return slots
}

// scope is the nearest parent on the source's chain that also encloses the
// target.
func (i *Instance[T]) scope(source, target int) int {
	enclosing := i.machine.catalog.chain(target)
	for _, parent := range i.machine.catalog.chain(source) {
		if slices.Contains(enclosing, parent) {
			return parent
		}
	}
	return 0
}

// branch returns the state index of the child of scope that contains s, or
// -1 when s is not below scope.
func (i *Instance[T]) branch(s slot, scope int) int {
	owner := i.machine.catalog.owner
	child, parent := s.state, s.parent
	for depth := 0; parent != scope; depth++ {
		if parent < 0 || depth > len(owner) {
			return -1
		}
		child, parent = i.machine.stateOf[parent], owner[parent]
	}
	return child
}

// record remembers s as the last active child of its region, and each
// enclosing composite as the last active child of its own region, up to
// scope.
func (i *Instance[T]) record(s slot, scope int) {
	owner := i.machine.catalog.owner
	i.history[regionKey{parent: s.parent, region: i.machine.RegionOf(s.parent, s.state)}] = s.state
	for child, depth := s.parent, 0; child != scope && owner[child] >= 0 && depth < len(owner); depth++ {
		state := i.machine.stateOf[child]
		i.history[regionKey{parent: owner[child], region: i.machine.RegionOf(owner[child], state)}] = state
		child = owner[child]
	}
}

func (i *Instance[T]) activate(parent, state, depth int) []slot {
	if composite := i.machine.composite[state]; composite >= 0 && depth <= len(i.machine.initial) {
		return i.expand(composite, depth+1)
	}
	return []slot{{parent: parent, state: state}}
}

func (i *Instance[T]) expand(parent, depth int) []slot {
	var slots []slot
	for _, child := range i.machine.initial[parent] {
		slots = append(slots, i.activate(parent, child, depth)...)
	}
	return slots
}

func (i *Instance[T]) observe(event Event, result Result) {
	i.logger.Debug().Str("event", event.Name).Stringer("result", result).Msg("dispatch")
	if i.metrics != nil {
		i.metrics.DispatchTotal.WithLabelValues(i.machine.name, result.String()).Inc()
	}
}

func (i *Instance[T]) gauge(delta int) {
	if i.metrics != nil {
		i.metrics.DeferredEvents.WithLabelValues(i.machine.name).Add(float64(delta))
	}
}

// Is reports whether the named state is active, either as an active leaf or
// as a composite enclosing one.
func (i *Instance[T]) Is(name string) bool {
	index, ok := i.machine.StateIndex(name)
	if !ok {
		return false
	}
	owner := i.machine.catalog.owner
	for _, current := range i.active {
		if current.state == index {
			return true
		}
		for parent, depth := current.parent, 0; parent >= 0 && depth <= len(owner); parent, depth = owner[parent], depth+1 {
			if i.machine.stateOf[parent] == index {
				return true
			}
		}
	}
	return false
}

// Active returns the names of the active leaf states, one per region.
func (i *Instance[T]) Active() []string {
	names := make([]string, len(i.active))
	for index, current := range i.active {
		names[index] = i.machine.StateName(current.state)
	}
	return names
}

// State returns the qualified name of the first active region's leaf, e.g.
// "/player/playing/track".
func (i *Instance[T]) State() string {
	if len(i.active) == 0 {
		return ""
	}
	current := i.active[0]
	segments := []string{i.machine.StateName(current.state)}
	for _, parent := range i.machine.catalog.chain(current.parent) {
		segments = append(segments, i.machine.ParentName(parent))
	}
	slices.Reverse(segments)
	return path.Join(append([]string{"/"}, segments...)...)
}

// History returns the recorded last active child of the named composite's
// first region. Pass a region index to read another one.
func (i *Instance[T]) History(parent string, region ...int) (string, bool) {
	index, ok := i.machine.ParentIndex(parent)
	if !ok {
		return "", false
	}
	key := regionKey{parent: index}
	if len(region) > 0 {
		key.region = region[0]
	}
	state, ok := i.history[key]
	if !ok {
		return "", false
	}
	return i.machine.StateName(state), true
}

// Pending returns the number of deferred events awaiting replay.
func (i *Instance[T]) Pending() int {
	return len(i.deferred)
}
