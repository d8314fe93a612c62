// Package elements is the read-only, non-generic view of a compiled machine
// used by exporters and tooling.
package elements

// Row is one non-empty dispatch table cell.
type Row struct {
	Event        string   `json:"event" yaml:"event"`
	Parent       string   `json:"parent" yaml:"parent"`
	State        string   `json:"state" yaml:"state"`
	TargetParent string   `json:"target_parent,omitempty" yaml:"target_parent,omitempty"`
	TargetState  string   `json:"target_state,omitempty" yaml:"target_state,omitempty"`
	Guard        string   `json:"guard,omitempty" yaml:"guard,omitempty"`
	Effects      []string `json:"effects,omitempty" yaml:"effects,omitempty"`
	History      bool     `json:"history,omitempty" yaml:"history,omitempty"`
	Deferred     bool     `json:"deferred,omitempty" yaml:"deferred,omitempty"`
	Origin       string   `json:"origin" yaml:"origin"`
}

// Region names a composite and a list of its child states.
type Region struct {
	Parent string   `json:"parent" yaml:"parent"`
	States []string `json:"states" yaml:"states"`
}

type Element interface {
	Kind() uint64
	Id() string
	Name() string
}

// Table is a compiled machine seen through names instead of indices. Slices
// are ordered by index.
type Table interface {
	Element
	States() []string
	Parents() []string
	Events() []string
	Rows() []Row
	// Regions lists the initial states of each composite.
	Regions() []Region
	// Members lists every child state of each composite.
	Members() []Region
}

// Composite reports whether name is a parent of t.
func Composite(t Table, name string) bool {
	for _, parent := range t.Parents() {
		if parent == name {
			return true
		}
	}
	return false
}
