package permission

import (
	"errors"
	"sync"
)

var (
	// ErrRegistryFrozen is returned when registering after Freeze.
	ErrRegistryFrozen = errors.New("registry frozen")
	// ErrPermissionExists is returned for duplicate names.
	ErrPermissionExists = errors.New("permission already registered")
	// ErrPermissionLimit is returned once all 64 bits are taken.
	ErrPermissionLimit = errors.New("permission limit exceeded")
	// ErrEmptyName is returned for an empty permission or role name.
	ErrEmptyName = errors.New("name cannot be empty")
)

// Registry maps permission names to bit positions within a [Mask64].
type Registry struct {
	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	frozen    bool
}

// NewRegistry returns an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{
		nameToBit: make(map[string]int),
		bitToName: make(map[int]string),
	}
}

// Register assigns the next free bit to name and returns it.
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, ErrRegistryFrozen
	}
	if name == "" {
		return -1, ErrEmptyName
	}
	if _, exists := r.nameToBit[name]; exists {
		return -1, ErrPermissionExists
	}

	next := len(r.nameToBit)
	if next >= MaxBits {
		return -1, ErrPermissionLimit
	}

	r.nameToBit[name] = next
	r.bitToName[next] = name
	return next, nil
}

// Bit returns the bit for name.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

// Name returns the permission name for bit.
func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// Names lists the permissions set in mask, in bit order.
func (r *Registry) Names(mask Mask64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.bitToName))
	for bit := 0; bit < len(r.bitToName); bit++ {
		if mask.Has(bit) {
			out = append(out, r.bitToName[bit])
		}
	}
	return out
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered permissions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}
