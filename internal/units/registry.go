// Package units implements the capability-unit registry and the built-in
// units. A unit performs one workflow stage; dispatch is by registry lookup
// keyed on stage ID, and registration order is preserved for deterministic
// handoff-alternative ranking.
package units

import (
	"fmt"
	"sync"

	"stagehand/internal/logging"
	"stagehand/internal/types"
)

// Registry maps stage IDs to capability units.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	units    map[string]types.CapabilityUnit
	disabled map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		units:    make(map[string]types.CapabilityUnit),
		disabled: make(map[string]bool),
	}
}

// Register adds a unit. Duplicate IDs are an error.
func (r *Registry) Register(unit types.CapabilityUnit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := unit.ID()
	if _, exists := r.units[id]; exists {
		return fmt.Errorf("unit %q already registered", id)
	}
	r.units[id] = unit
	r.order = append(r.order, id)
	logging.UnitsDebug("Registered capability unit %s (capabilities=%v)", id, unit.DeclaredCapabilities())
	return nil
}

// Get returns the unit for a stage ID.
func (r *Registry) Get(id string) (types.CapabilityUnit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	unit, ok := r.units[id]
	return unit, ok
}

// Units returns all units in declaration order.
func (r *Registry) Units() []types.CapabilityUnit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.CapabilityUnit, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.units[id])
	}
	return out
}

// IDs returns all stage IDs in declaration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Enabled reports whether a unit exists and is enabled.
func (r *Registry) Enabled(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.units[id]
	return ok && !r.disabled[id]
}

// SetEnabled toggles a unit without removing its registration.
func (r *Registry) SetEnabled(id string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled[id] = !enabled
}
