package hsm

// buildInitial maps every parent index to the state indices of its initial
// states, one per region, and reports the largest region count.
func buildInitial[T any](c *catalog[T]) ([][]int, int) {
	initial := make([][]int, len(c.parents))
	regions := 0
	for parent, composite := range c.parents {
		children := make([]int, 0, len(composite.initial))
		for _, child := range composite.initial {
			children = append(children, c.stateIndex[child])
		}
		initial[parent] = children
		regions = max(regions, len(children))
	}
	return initial, regions
}

// buildRegionIndex assigns every child of a multi-region composite to the
// region whose initial state reaches it through the composite's own table.
// Children no initial state reaches, and children of single-region
// composites, are region 0 and have no entry.
func buildRegionIndex[T any](c *catalog[T], initial [][]int) map[slot]int {
	region := map[slot]int{}
	for parent, composite := range c.parents {
		if len(initial[parent]) < 2 {
			continue
		}
		next := map[int][]int{}
		for _, transition := range composite.table {
			source, _ := split(transition.Source)
			target, _ := split(transition.Target)
			if source == nil || target == nil {
				continue
			}
			from, to := c.stateIndex[source], c.stateIndex[target]
			next[from] = append(next[from], to)
		}
		for index, child := range initial[parent] {
			pending := []int{child}
			for len(pending) > 0 {
				state := pending[0]
				pending = pending[1:]
				key := slot{parent: parent, state: state}
				if _, seen := region[key]; seen {
					continue
				}
				region[key] = index
				pending = append(pending, next[state]...)
			}
		}
	}
	return region
}
