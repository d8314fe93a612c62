package hsm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stateforward/hsm-dispatch/kind"
)

// Shape error codes reported in ValidationIssue.Code.
const (
	ErrCodeNilRoot                       = "NIL_ROOT"
	ErrCodeNilState                      = "NIL_STATE"
	ErrCodeDuplicateStateName            = "DUPLICATE_STATE_NAME"
	ErrCodeMissingInitial                = "MISSING_INITIAL"
	ErrCodeDuplicateRegion               = "DUPLICATE_REGION"
	ErrCodeHistoryOnLeaf                 = "HISTORY_ON_LEAF"
	ErrCodePseudostateParentNotComposite = "PSEUDOSTATE_PARENT_NOT_COMPOSITE"
	ErrCodeSelfReference                 = "SELF_REFERENCE"
	ErrCodeDanglingState                 = "DANGLING_STATE"
	ErrCodeExitAsTarget                  = "EXIT_AS_TARGET"
	ErrCodeInvalidSource                 = "INVALID_SOURCE"
	ErrCodeEmptyEvent                    = "EMPTY_EVENT"
)

// ValidationIssue is a single shape problem found while compiling.
type ValidationIssue struct {
	Code    string
	Message string
	Path    []string
}

func (v ValidationIssue) String() string {
	if len(v.Path) > 0 {
		return fmt.Sprintf("[%s] %s (at %s)", v.Code, v.Message, strings.Join(v.Path, "."))
	}
	return fmt.Sprintf("[%s] %s", v.Code, v.Message)
}

// ValidationError collects every shape problem of a machine description.
// Compile refuses to build tables while any issue is present.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	switch len(e.Issues) {
	case 0:
		return "validation failed"
	case 1:
		return e.Issues[0].String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "validation failed with %d issues:\n", len(e.Issues))
	for i, issue := range e.Issues {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, issue.String())
	}
	return b.String()
}

// AddIssue records an issue.
func (e *ValidationError) AddIssue(code, message string, path ...string) {
	e.Issues = append(e.Issues, ValidationIssue{
		Code:    code,
		Message: message,
		Path:    path,
	})
}

// HasIssues reports whether any issue was recorded.
func (e *ValidationError) HasIssues() bool {
	return len(e.Issues) > 0
}

// HasCode reports whether an issue with the given code was recorded.
func (e *ValidationError) HasCode(code string) bool {
	for _, issue := range e.Issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}

func validate[T any](c *catalog[T], verr *ValidationError) {
	for _, composite := range c.parents {
		validateComposite(c, composite, verr)
	}
	for _, state := range c.states {
		for _, internal := range state.internal {
			if internal.Event == "" {
				verr.AddIssue(ErrCodeEmptyEvent, "internal transition without an event", state.name, "internal")
			}
		}
		for _, event := range state.deferred {
			if event == "" {
				verr.AddIssue(ErrCodeEmptyEvent, "empty deferred event", state.name, "defer")
			}
		}
	}
}

func validateComposite[T any](c *catalog[T], composite *State[T], verr *ValidationError) {
	if len(composite.initial) == 0 {
		verr.AddIssue(ErrCodeMissingInitial,
			fmt.Sprintf("composite state %q declares no initial state", composite.name), composite.name)
	}
	regions := map[*State[T]]int{}
	for region, child := range composite.initial {
		at := []string{composite.name, "initial", strconv.Itoa(region)}
		if child == nil {
			verr.AddIssue(ErrCodeNilState, "nil initial state", at...)
			continue
		}
		if first, ok := regions[child]; ok {
			verr.AddIssue(ErrCodeDuplicateRegion,
				fmt.Sprintf("state %q is the initial state of regions %d and %d", child.name, first, region), at...)
			continue
		}
		regions[child] = region
	}
	if index := c.parentIndex[composite]; index != 0 && c.owner[index] == -1 {
		verr.AddIssue(ErrCodeDanglingState,
			fmt.Sprintf("composite state %q is not part of any table", composite.name), composite.name)
	}
	for i, transition := range composite.table {
		at := []string{composite.name, "transitions", strconv.Itoa(i)}
		if transition.Event == "" {
			verr.AddIssue(ErrCodeEmptyEvent, "transition without an event", at...)
		}
		validateEndpoint(c, transition.Source, true, verr, at...)
		validateEndpoint(c, transition.Target, false, verr, at...)
	}
}

func validateEndpoint[T any](c *catalog[T], endpoint Endpoint[T], source bool, verr *ValidationError, at ...string) {
	side := "target"
	if source {
		side = "source"
	}
	state, pseudo := split(endpoint)
	if state == nil && pseudo == nil {
		verr.AddIssue(ErrCodeNilState, "nil "+side, at...)
		return
	}
	if pseudo == nil {
		return
	}
	switch {
	case source && kind.Is(pseudo.kind, EntryKind, HistoryKind):
		verr.AddIssue(ErrCodeInvalidSource,
			fmt.Sprintf("%s cannot be a transition source", pseudo.Name()), at...)
	case !source && pseudo.kind == ExitKind:
		verr.AddIssue(ErrCodeExitAsTarget,
			fmt.Sprintf("%s cannot be a transition target", pseudo.Name()), at...)
	}
	if pseudo.parent == nil {
		verr.AddIssue(ErrCodeNilState, "pseudostate without a parent", at...)
		return
	}
	if !pseudo.parent.IsComposite() {
		code := ErrCodePseudostateParentNotComposite
		if pseudo.kind == HistoryKind {
			code = ErrCodeHistoryOnLeaf
		}
		verr.AddIssue(code, fmt.Sprintf("%s: %q is not a composite state", pseudo.Name(), pseudo.parent.name), at...)
		return
	}
	if pseudo.kind == HistoryKind {
		return
	}
	switch {
	case pseudo.state == nil:
		verr.AddIssue(ErrCodeNilState, fmt.Sprintf("%s names no state", pseudo.Name()), at...)
	case pseudo.state == pseudo.parent:
		verr.AddIssue(ErrCodeSelfReference, fmt.Sprintf("%s refers to its own parent", pseudo.Name()), at...)
	case !c.isMember(pseudo.parent, pseudo.state):
		verr.AddIssue(ErrCodeDanglingState,
			fmt.Sprintf("%s: %q is not a state of %q", pseudo.Name(), pseudo.state.name, pseudo.parent.name), at...)
	}
}
