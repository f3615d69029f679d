package bvar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/ygrebnov/bvar/internal/jsonx"
)

// Variable is a value that can be described and exposed under a name.
type Variable interface {
	// Describe writes the current value to w. Strings are quoted when
	// quoteString is true. It reports whether anything was written.
	Describe(w io.Writer, quoteString bool) bool
	// Name returns the exposed name, or "" when hidden.
	Name() string
}

// VarRegistry is a table of exposed variables keyed by name.
//
// A name is owned by at most one variable. Ownership is by identity (the
// same pointer of the same type), so exposing the owner again under its own
// name is not a conflict.
type VarRegistry struct {
	mu   sync.RWMutex
	vars map[string]Variable
}

// NewVarRegistry constructs an empty VarRegistry.
func NewVarRegistry() *VarRegistry {
	return &VarRegistry{vars: make(map[string]Variable)}
}

var defaultVars = sync.OnceValue(NewVarRegistry)

// DefaultVars returns the process-wide name table.
func DefaultVars() *VarRegistry {
	return defaultVars()
}

type varsKey struct{}

// ContextWithVars returns a copy of ctx carrying v.
func ContextWithVars(ctx context.Context, v *VarRegistry) context.Context {
	return context.WithValue(ctx, varsKey{}, v)
}

// VarsFromContext returns the name table carried by ctx,
// or the process-wide one when there is none.
func VarsFromContext(ctx context.Context) *VarRegistry {
	if ctx != nil {
		if v, ok := ctx.Value(varsKey{}).(*VarRegistry); ok && v != nil {
			return v
		}
	}
	return DefaultVars()
}

func (r *VarRegistry) add(name string, v Variable) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.vars[name]; ok {
		if cur == v {
			return nil
		}
		return fmt.Errorf("expose %q: %w", name, ErrNameConflict)
	}
	r.vars[name] = v
	return nil
}

// remove deletes name only if it is owned by v.
func (r *VarRegistry) remove(name string, v Variable) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.vars[name]; ok && cur == v {
		delete(r.vars, name)
		return true
	}
	return false
}

// Find returns the variable exposed under name.
func (r *VarRegistry) Find(name string) (Variable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vars[name]
	return v, ok
}

// Names returns every exposed name in sorted order.
func (r *VarRegistry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.vars))
	for n := range r.vars {
		names = append(names, n)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Count returns the number of exposed variables.
func (r *VarRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.vars)
}

// DescribeVar writes the description of the variable exposed under name.
// It reports false when no such variable exists.
func (r *VarRegistry) DescribeVar(w io.Writer, name string, quoteString bool) bool {
	v, ok := r.Find(name)
	if !ok {
		return false
	}
	return v.Describe(w, quoteString)
}

// DumpJSON writes every variable as one JSON object with sorted keys.
// A description that is not valid JSON is embedded as a string.
func (r *VarRegistry) DumpJSON(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, name := range r.Names() {
		var desc bytes.Buffer
		if !r.DescribeVar(&desc, name, true) {
			continue
		}
		key, err := jsonx.Marshal(name)
		if err != nil {
			return fmt.Errorf("dump %q: %w", name, err)
		}
		val := desc.Bytes()
		if !jsonx.Valid(val) {
			if val, err = jsonx.Marshal(desc.String()); err != nil {
				return fmt.Errorf("dump %q: %w", name, err)
			}
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	_, err := w.Write(buf.Bytes())
	return err
}

// exposer implements the expose/hide family for the type embedding it.
// The embedding type calls bind with itself before the first Expose.
type exposer struct {
	self     Variable
	vars     *VarRegistry
	onExpose func(name string)

	mu   sync.Mutex
	name string
}

func (e *exposer) bind(self Variable, vars *VarRegistry) {
	e.self = self
	e.vars = vars
}

// Expose publishes the variable under name in its name table.
func (e *exposer) Expose(name string) error {
	return e.ExposeIn(e.vars, "", name)
}

// ExposeAs publishes the variable under prefix_name.
func (e *exposer) ExposeAs(prefix, name string) error {
	return e.ExposeIn(e.vars, prefix, name)
}

// ExposeIn publishes the variable under prefix_name in vars.
// An already exposed variable is hidden from its old name first.
// It returns ErrNameConflict when another variable owns the name.
func (e *exposer) ExposeIn(vars *VarRegistry, prefix, name string) error {
	full := name
	if prefix != "" {
		full = prefix + "_" + name
	}
	if name == "" {
		return ErrEmptyName
	}
	if vars == nil {
		vars = DefaultVars()
	}

	e.mu.Lock()
	if e.name == full && e.vars == vars {
		e.mu.Unlock()
		return nil
	}
	if e.name != "" {
		e.vars.remove(e.name, e.self)
		e.name = ""
	}
	if err := vars.add(full, e.self); err != nil {
		e.mu.Unlock()
		return err
	}
	e.vars = vars
	e.name = full
	hook := e.onExpose
	e.mu.Unlock()

	if hook != nil {
		hook(full)
	}
	return nil
}

// Hide removes the variable from its name table.
// It reports false when the variable was not exposed.
func (e *exposer) Hide() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.name == "" {
		return false
	}
	if !e.vars.remove(e.name, e.self) {
		return false
	}
	e.name = ""
	return true
}

// IsHidden reports whether the variable is not exposed.
func (e *exposer) IsHidden() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.name == ""
}

// Name returns the exposed name, or "" when hidden.
func (e *exposer) Name() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.name
}
