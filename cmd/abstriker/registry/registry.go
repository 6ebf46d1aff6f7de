// Package registry records which types act as components and which member
// names each component declares abstract.
package registry

import (
	"sync"

	"abstriker/cmd/abstriker/object"
)

// Registry holds abstract member declarations keyed by component.
// Declarations accumulate; nothing is ever removed except by Reset.
// A Registry is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	enabled    map[*object.Type]bool
	components []*object.Type
	members    map[*object.Type][]string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		enabled: make(map[*object.Type]bool),
		members: make(map[*object.Type][]string),
	}
}

// Enable marks t as a component. Enabling twice is a no-op.
func (r *Registry) Enable(t *object.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enableLocked(t)
}

func (r *Registry) enableLocked(t *object.Type) {
	if r.enabled[t] {
		return
	}
	r.enabled[t] = true
	r.components = append(r.components, t)
}

// Enabled reports whether t has been marked as a component.
func (r *Registry) Enabled(t *object.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled[t]
}

// DeclareAbstract records name as an abstract member of component and
// enables it. Declaring the same name twice keeps the first position.
func (r *Registry) DeclareAbstract(component *object.Type, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enableLocked(component)
	for _, n := range r.members[component] {
		if n == name {
			return
		}
	}
	r.members[component] = append(r.members[component], name)
}

// MembersOf returns the abstract members of component in declaration order.
func (r *Registry) MembersOf(component *object.Type) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.members[component]
	if len(src) == 0 {
		return nil
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// Components returns every enabled type in the order it was enabled.
func (r *Registry) Components() []*object.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*object.Type, len(r.components))
	copy(out, r.components)
	return out
}

// Reset drops every declaration.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = make(map[*object.Type]bool)
	r.components = nil
	r.members = make(map[*object.Type][]string)
}
