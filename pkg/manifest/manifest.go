// Package manifest declares machines in YAML. A manifest lists states by
// name; guards and actions are referred to by name and bound to Go functions
// when the manifest is built.
//
//	name: player
//	states:
//	  - name: player
//	    initial: [stopped]
//	    transitions:
//	      - {source: stopped, event: play, action: start, target: playing}
//	      - {source: playing, event: stop, guard: idle, target: stopped}
//
// Endpoints are a state name or one of entry(parent/state),
// direct(parent/state), exit(parent/state) and history(parent).
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stateforward/hsm-dispatch"
)

var (
	ErrUnknownBinding    = errors.New("manifest: unknown binding")
	ErrUnknownRoot       = errors.New("manifest: unknown root state")
	ErrDuplicateState    = errors.New("manifest: duplicate state")
	ErrInvalidEndpoint   = errors.New("manifest: invalid endpoint")
	ErrMultipleDocuments = errors.New("manifest: multiple documents")
)

// Document is the decoded form of a manifest.
type Document struct {
	Name   string  `yaml:"name,omitempty"`
	Root   string  `yaml:"root,omitempty"`
	States []State `yaml:"states"`
}

// State declares one state. States named only inside endpoints or initial
// lists are created as plain leaves.
type State struct {
	Name        string       `yaml:"name"`
	Initial     []string     `yaml:"initial,omitempty"`
	Entry       string       `yaml:"entry,omitempty"`
	Exit        string       `yaml:"exit,omitempty"`
	Defer       []string     `yaml:"defer,omitempty"`
	Transitions []Transition `yaml:"transitions,omitempty"`
	Internal    []Transition `yaml:"internal,omitempty"`
}

// Transition declares one row of a table. Source and Target are ignored for
// internal transitions.
type Transition struct {
	Source string `yaml:"source,omitempty"`
	Event  string `yaml:"event"`
	Guard  string `yaml:"guard,omitempty"`
	Action string `yaml:"action,omitempty"`
	Target string `yaml:"target,omitempty"`
}

// Bindings maps the guard and action names used by a manifest to functions.
type Bindings[T any] struct {
	Guards  map[string]hsm.Guard[T]
	Actions map[string]hsm.Action[T]
}

type options struct {
	lenient bool
	config  hsm.Config
}

type Option func(*options)

// Lenient binds names missing from the bindings to a guard that always holds
// and an action that does nothing. Labels still carry the names.
func Lenient() Option {
	return func(o *options) {
		o.lenient = true
	}
}

// WithConfig sets the config Compile passes on. An empty Name is filled from
// the document.
func WithConfig(config hsm.Config) Option {
	return func(o *options) {
		o.config = config
	}
}

// Parse decodes a single YAML document. Unknown fields are rejected.
func Parse(data []byte) (*Document, error) {
	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &Document{}, nil
		}
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, ErrMultipleDocuments
	}
	return &doc, nil
}

// Load reads and parses a .yaml or .yml file.
func Load(path string) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("manifest: unsupported format %q", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read file: %w", err)
	}
	return Parse(data)
}

// Marshal encodes doc back to YAML.
func Marshal(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type builder[T any] struct {
	bindings Bindings[T]
	options  options
	states   map[string]*hsm.State[T]
}

// Build turns doc into a state tree ready for hsm.Compile. The root is
// doc.Root, or the first listed state when Root is empty.
func Build[T any](doc *Document, bindings Bindings[T], opts ...Option) (*hsm.State[T], error) {
	b := &builder[T]{bindings: bindings, states: map[string]*hsm.State[T]{}}
	for _, opt := range opts {
		opt(&b.options)
	}
	for _, declared := range doc.States {
		if _, ok := b.states[declared.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateState, declared.Name)
		}
		b.states[declared.Name] = hsm.NewState[T](declared.Name)
	}
	for _, declared := range doc.States {
		if err := b.declare(declared); err != nil {
			return nil, fmt.Errorf("state %q: %w", declared.Name, err)
		}
	}
	root := doc.Root
	if root == "" && len(doc.States) > 0 {
		root = doc.States[0].Name
	}
	state, ok := b.states[root]
	if !ok || root == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoot, root)
	}
	return state, nil
}

// Compile builds doc and compiles it under doc.Name.
func Compile[T any](doc *Document, bindings Bindings[T], opts ...Option) (*hsm.Machine[T], error) {
	root, err := Build(doc, bindings, opts...)
	if err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	config := o.config
	if config.Name == "" {
		config.Name = doc.Name
	}
	return hsm.Compile(root, config)
}

func (b *builder[T]) declare(declared State) error {
	state := b.states[declared.Name]
	for _, name := range declared.Initial {
		state.Initial(b.state(name))
	}
	if declared.Entry != "" {
		action, err := b.action(declared.Entry)
		if err != nil {
			return err
		}
		state.OnEntry(action, declared.Entry)
	}
	if declared.Exit != "" {
		action, err := b.action(declared.Exit)
		if err != nil {
			return err
		}
		state.OnExit(action, declared.Exit)
	}
	state.Defer(declared.Defer...)
	for _, row := range declared.Transitions {
		transition, err := b.transition(row)
		if err != nil {
			return err
		}
		if transition.Source, err = b.endpoint(row.Source); err != nil {
			return err
		}
		if transition.Target, err = b.endpoint(row.Target); err != nil {
			return err
		}
		state.AddTransition(transition)
	}
	for _, row := range declared.Internal {
		transition, err := b.transition(row)
		if err != nil {
			return err
		}
		state.AddInternal(transition)
	}
	return nil
}

func (b *builder[T]) transition(row Transition) (hsm.Transition[T], error) {
	transition := hsm.Transition[T]{
		Event:      row.Event,
		GuardName:  row.Guard,
		ActionName: row.Action,
	}
	var err error
	if row.Guard != "" {
		if transition.Guard, err = b.guard(row.Guard); err != nil {
			return transition, err
		}
	}
	if row.Action != "" {
		if transition.Action, err = b.action(row.Action); err != nil {
			return transition, err
		}
	}
	return transition, nil
}

func (b *builder[T]) state(name string) *hsm.State[T] {
	state, ok := b.states[name]
	if !ok {
		state = hsm.NewState[T](name)
		b.states[name] = state
	}
	return state
}

func (b *builder[T]) guard(name string) (hsm.Guard[T], error) {
	if guard, ok := b.bindings.Guards[name]; ok {
		return guard, nil
	}
	if b.options.lenient {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: guard %q", ErrUnknownBinding, name)
}

func (b *builder[T]) action(name string) (hsm.Action[T], error) {
	if action, ok := b.bindings.Actions[name]; ok {
		return action, nil
	}
	if b.options.lenient {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: action %q", ErrUnknownBinding, name)
}

// endpoint parses a state name or a pseudostate call. An empty endpoint is
// left nil for Compile to report.
func (b *builder[T]) endpoint(text string) (hsm.Endpoint[T], error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	call, args, ok := strings.Cut(text, "(")
	if !ok {
		if strings.ContainsAny(text, ")/") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, text)
		}
		return b.state(text), nil
	}
	args, ok = strings.CutSuffix(args, ")")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, text)
	}
	if call == "history" {
		if args == "" || strings.Contains(args, "/") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, text)
		}
		return hsm.History(b.state(args)), nil
	}
	parent, state, ok := strings.Cut(args, "/")
	if !ok || parent == "" || state == "" || strings.Contains(state, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, text)
	}
	switch call {
	case "entry":
		return hsm.EntryPoint(b.state(parent), b.state(state)), nil
	case "direct":
		return hsm.Direct(b.state(parent), b.state(state)), nil
	case "exit":
		return hsm.ExitPoint(b.state(parent), b.state(state)), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, text)
}
