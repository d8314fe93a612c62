package hsm

// flatTransition is a transition together with the composite whose table
// declared it.
type flatTransition[T any] struct {
	Transition[T]
	parent *State[T]
}

type flattened[T any] struct {
	transitions []flatTransition[T]
	// composites in the order their tables were walked, root first.
	composites []*State[T]
}

func split[T any](endpoint Endpoint[T]) (*State[T], *Pseudostate[T]) {
	if endpoint == nil {
		return nil, nil
	}
	return endpoint.endpoint()
}

// nested returns the composite whose table an endpoint leads into: the state
// itself when it is composite, or the pseudostate's parent.
func nested[T any](endpoint Endpoint[T]) *State[T] {
	state, pseudo := split(endpoint)
	if pseudo != nil {
		state = pseudo.parent
	}
	if state.IsComposite() {
		return state
	}
	return nil
}

// flatten walks root's table depth first in declaration order. Each
// transition is appended before the table of the composite it leads into, so
// outer rows always precede the rows of the submachines they enter. Every
// composite is walked once, which keeps the order stable and terminates on
// cyclic references.
func flatten[T any](root *State[T]) flattened[T] {
	var result flattened[T]
	visited := map[*State[T]]struct{}{}
	var walk func(parent *State[T])
	walk = func(parent *State[T]) {
		if parent == nil {
			return
		}
		if _, ok := visited[parent]; ok {
			return
		}
		visited[parent] = struct{}{}
		result.composites = append(result.composites, parent)
		for _, transition := range parent.table {
			result.transitions = append(result.transitions, flatTransition[T]{Transition: transition, parent: parent})
			walk(nested(transition.Target))
			walk(nested(transition.Source))
		}
		for _, child := range parent.initial {
			if child.IsComposite() {
				walk(child)
			}
		}
	}
	walk(root)
	return result
}
