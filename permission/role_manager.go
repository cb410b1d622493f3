package permission

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrRoleFrozen is returned when registering a role after Freeze.
	ErrRoleFrozen = errors.New("role manager frozen")
	// ErrRoleExists is returned for duplicate role names.
	ErrRoleExists = errors.New("role already registered")
	// ErrUnknownPermission is returned when a role references an unregistered permission.
	ErrUnknownPermission = errors.New("permission not registered")
)

// RoleManager composes a [Mask64] per role from registry permissions.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[string]Mask64
	frozen bool
}

// NewRoleManager creates a role manager resolving names against registry.
func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[string]Mask64),
	}
}

// RegisterRole builds the mask for roleName from permissionNames.
func (rm *RoleManager) RegisterRole(roleName string, permissionNames []string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return ErrRoleFrozen
	}
	if roleName == "" {
		return ErrEmptyName
	}
	if _, exists := rm.roles[roleName]; exists {
		return ErrRoleExists
	}

	var mask Mask64
	for _, perm := range permissionNames {
		bit, ok := rm.registry.Bit(perm)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPermission, perm)
		}
		mask.Set(bit)
	}

	rm.roles[roleName] = mask
	return nil
}

// GetMask returns the mask registered for roleName.
func (rm *RoleManager) GetMask(roleName string) (Mask64, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	mask, ok := rm.roles[roleName]
	return mask, ok
}

// Allows reports whether roleName holds the named permission. Unknown roles and
// permissions are denied.
func (rm *RoleManager) Allows(roleName, perm string) bool {
	mask, ok := rm.GetMask(roleName)
	if !ok {
		return false
	}
	bit, ok := rm.registry.Bit(perm)
	if !ok {
		return false
	}
	return mask.Has(bit)
}

// Registry returns the registry the masks were built from.
func (rm *RoleManager) Registry() *Registry {
	return rm.registry
}

// Freeze prevents further role registrations.
func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

// Count returns the number of registered roles.
func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}
