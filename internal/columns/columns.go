// Package columns tracks which table columns an operator has chosen to see.
package columns

import (
	"fmt"
	"sync"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// Visibility maps a fixed set of column keys to a visible flag. The key set
// is decided at construction and never changes.
type Visibility struct {
	mu      sync.RWMutex
	keys    []string
	visible map[string]bool
}

// New returns a Visibility with every key visible. Duplicate keys are
// collapsed, keeping the first position.
func New(keys ...string) *Visibility {
	v := &Visibility{visible: make(map[string]bool, len(keys))}
	for _, k := range keys {
		if _, dup := v.visible[k]; dup {
			continue
		}
		v.keys = append(v.keys, k)
		v.visible[k] = true
	}
	return v
}

// Toggle flips the visibility of key and returns the new value.
func (v *Visibility) Toggle(key string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	cur, ok := v.visible[key]
	if !ok {
		return false, fmt.Errorf("columns: toggle %q: %w", key, domain.ErrUnknownColumn)
	}
	v.visible[key] = !cur
	return !cur, nil
}

// Set assigns the visibility of a single key.
func (v *Visibility) Set(key string, value bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.visible[key]; !ok {
		return fmt.Errorf("columns: set %q: %w", key, domain.ErrUnknownColumn)
	}
	v.visible[key] = value
	return nil
}

// SetAll sets every key to value under one lock.
func (v *Visibility) SetAll(value bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for k := range v.visible {
		v.visible[k] = value
	}
}

// IsVisible reports whether key is visible. Unknown keys are not.
func (v *Visibility) IsVisible(key string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.visible[key]
}

// Keys returns the fixed key set in schema order.
func (v *Visibility) Keys() []string {
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

// Visible returns the visible keys in schema order.
func (v *Visibility) Visible() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.keys))
	for _, k := range v.keys {
		if v.visible[k] {
			out = append(out, k)
		}
	}
	return out
}

// Snapshot returns a consistent copy of the whole mapping.
func (v *Visibility) Snapshot() map[string]bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]bool, len(v.visible))
	for k, b := range v.visible {
		out[k] = b
	}
	return out
}
