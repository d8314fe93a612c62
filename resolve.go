package hsm

import "context"

// The resolvers below reduce an endpoint to the concrete state and parent it
// denotes. Submachines and history resolve against region 0 only; an
// instance entering a multi-region composite starts the other regions itself.

func resolveTargetState[T any](endpoint Endpoint[T]) *State[T] {
	state, pseudo := split(endpoint)
	if pseudo == nil {
		if state.IsComposite() {
			return state.initial[0]
		}
		return state
	}
	switch pseudo.kind {
	case EntryKind, DirectKind:
		return pseudo.state
	case HistoryKind:
		return pseudo.parent.initial[0]
	}
	return nil
}

func resolveTargetParent[T any](endpoint Endpoint[T], declared *State[T]) *State[T] {
	state, pseudo := split(endpoint)
	if pseudo != nil {
		return pseudo.parent
	}
	if state.IsComposite() {
		return state
	}
	return declared
}

func resolveSourceState[T any](endpoint Endpoint[T]) *State[T] {
	state, pseudo := split(endpoint)
	if pseudo != nil {
		return pseudo.state
	}
	return state
}

func resolveSourceParent[T any](endpoint Endpoint[T], declared *State[T]) *State[T] {
	if _, pseudo := split(endpoint); pseudo != nil {
		return pseudo.parent
	}
	return declared
}

func isHistory[T any](endpoint Endpoint[T]) bool {
	_, pseudo := split(endpoint)
	return pseudo != nil && pseudo.kind == HistoryKind
}

// composeAction runs the exit action of from, then action, then the entry
// action of to. Missing pieces are skipped; the order never changes.
func composeAction[T any](from *State[T], action Action[T], to *State[T]) Action[T] {
	exit, entry := from.exit, to.entry
	if exit == nil && entry == nil {
		return action
	}
	return func(ctx context.Context, deps T, event Event) {
		if exit != nil {
			exit(ctx, deps, event)
		}
		if action != nil {
			action(ctx, deps, event)
		}
		if entry != nil {
			entry(ctx, deps, event)
		}
	}
}

func effects[T any](from *State[T], actionName string, to *State[T]) []string {
	var names []string
	if from.exit != nil {
		names = append(names, from.name+".exit")
	}
	if actionName != "" {
		names = append(names, actionName)
	}
	if to.entry != nil {
		names = append(names, to.name+".entry")
	}
	return names
}

// resolved is a flattened transition reduced to table coordinates.
type resolved[T any] struct {
	event      string
	from       slot
	to         slot
	history    bool
	guard      Guard[T]
	action     Action[T]
	bare       Action[T]
	// guardName and actionName label the guard and the bare action; effects
	// labels the composed action in run order.
	guardName  string
	actionName string
	effects    []string
	// submachine is the parent index of a composite source, -1 otherwise.
	submachine int
}

func resolve[T any](c *catalog[T], transition flatTransition[T]) resolved[T] {
	sourceState := resolveSourceState(transition.Source)
	sourceParent := resolveSourceParent(transition.Source, transition.parent)
	targetState := resolveTargetState(transition.Target)
	targetParent := resolveTargetParent(transition.Target, transition.parent)
	actionName := transition.actionName()
	r := resolved[T]{
		event:      transition.Event,
		from:       slot{parent: c.parentIndex[sourceParent], state: c.stateIndex[sourceState]},
		to:         slot{parent: c.parentIndex[targetParent], state: c.stateIndex[targetState]},
		history:    isHistory(transition.Target),
		guard:      transition.Guard,
		action:     composeAction(sourceState, transition.Action, targetState),
		bare:       transition.Action,
		guardName:  transition.guardName(),
		actionName: actionName,
		effects:    effects(sourceState, actionName, targetState),
		submachine: -1,
	}
	if state, pseudo := split(transition.Source); pseudo == nil && state.IsComposite() {
		r.submachine = c.parentIndex[state]
	}
	return r
}
