package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry enumerates runtimes and resolves aliases to canonical names
// (spec §4.2). It is the single owner of every RuntimeDescriptor.
type Registry struct {
	mu      sync.RWMutex
	runtime map[string]Runtime
	alias   map[string]string // alias (lowercase) -> canonical name
}

// NewRegistry returns an empty registry. Callers populate it with
// RegisterBuiltins and RegisterStarlark.
func NewRegistry() *Registry {
	return &Registry{
		runtime: make(map[string]Runtime),
		alias:   make(map[string]string),
	}
}

// Register adds a Runtime under its descriptor's canonical name and wires
// up its declared aliases. Returns an error if the canonical name or any
// alias collides with an existing entry.
func (r *Registry) Register(rt Runtime) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := strings.ToLower(rt.Descriptor().Name)
	if name == "" {
		return fmt.Errorf("runtime descriptor has empty name")
	}
	if _, exists := r.runtime[name]; exists {
		return fmt.Errorf("runtime %q already registered", name)
	}
	r.runtime[name] = rt

	for _, a := range rt.Descriptor().Aliases {
		la := strings.ToLower(a)
		if existing, ok := r.alias[la]; ok && existing != name {
			return fmt.Errorf("alias %q for %q collides with existing alias to %q", a, name, existing)
		}
		r.alias[la] = name
	}
	return nil
}

// Resolve returns the canonical name for a name-or-alias lookup.
func (r *Registry) Resolve(nameOrAlias string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := strings.ToLower(nameOrAlias)
	if _, ok := r.runtime[n]; ok {
		return n, true
	}
	if canonical, ok := r.alias[n]; ok {
		return canonical, true
	}
	return "", false
}

// Get returns the Runtime for a canonical name or alias.
func (r *Registry) Get(nameOrAlias string) (Runtime, bool) {
	canonical, ok := r.Resolve(nameOrAlias)
	if !ok {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.runtime[canonical]
	return rt, ok
}

// Names returns every canonical runtime name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.runtime))
	for n := range r.runtime {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// EcosystemPrimary maps an ecosystem to the runtime name the version
// selector falls back to when a project config has no direct entry for
// the requested tool (spec §4.3). Table entries come from the teacher's
// ecosystem-aware lookups across internal/version.
var EcosystemPrimary = map[Ecosystem]string{
	EcosystemRust:   "rustup",
	EcosystemNode:   "node",
	EcosystemPython: "python",
	EcosystemGo:     "go",
}
