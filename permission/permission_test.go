package permission

import (
	"errors"
	"testing"
)

func TestRegistryAssignsSequentialBits(t *testing.T) {
	r := NewRegistry()
	for i, name := range []string{"menu.view", "bucks.award", "menu.manage"} {
		bit, err := r.Register(name)
		if err != nil {
			t.Fatalf("Register(%q) failed: %v", name, err)
		}
		if bit != i {
			t.Fatalf("expected bit %d for %q, got %d", i, name, bit)
		}
	}

	if _, err := r.Register("menu.view"); !errors.Is(err, ErrPermissionExists) {
		t.Fatalf("expected ErrPermissionExists, got %v", err)
	}
	if _, err := r.Register(""); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}

	r.Freeze()
	if _, err := r.Register("late"); !errors.Is(err, ErrRegistryFrozen) {
		t.Fatalf("expected ErrRegistryFrozen, got %v", err)
	}
	if name, ok := r.Name(1); !ok || name != "bucks.award" {
		t.Fatalf("expected bit 1 to be bucks.award, got %q %v", name, ok)
	}
}

func TestRegistryLimit(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < MaxBits; i++ {
		if _, err := r.Register(string(rune('A'+i%26)) + string(rune('a'+i/26))); err != nil {
			t.Fatalf("Register #%d failed: %v", i, err)
		}
	}
	if _, err := r.Register("overflow"); !errors.Is(err, ErrPermissionLimit) {
		t.Fatalf("expected ErrPermissionLimit, got %v", err)
	}
}

func TestRoleManagerMasks(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Register("menu.view")
	_, _ = r.Register("bucks.award")
	r.Freeze()

	rm := NewRoleManager(r)
	if err := rm.RegisterRole("customer", []string{"menu.view"}); err != nil {
		t.Fatalf("RegisterRole customer: %v", err)
	}
	if err := rm.RegisterRole("manager", []string{"menu.view", "bucks.award"}); err != nil {
		t.Fatalf("RegisterRole manager: %v", err)
	}
	if err := rm.RegisterRole("ghost", []string{"nope"}); !errors.Is(err, ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission, got %v", err)
	}
	rm.Freeze()

	if rm.Allows("customer", "bucks.award") {
		t.Fatal("customer must not award bucks")
	}
	if !rm.Allows("manager", "bucks.award") {
		t.Fatal("manager must award bucks")
	}
	if rm.Allows("unknown", "menu.view") {
		t.Fatal("unknown role must be denied")
	}

	mask, _ := rm.GetMask("manager")
	names := r.Names(mask)
	if len(names) != 2 || names[0] != "menu.view" || names[1] != "bucks.award" {
		t.Fatalf("unexpected names %v", names)
	}

	if err := rm.RegisterRole("late", nil); !errors.Is(err, ErrRoleFrozen) {
		t.Fatalf("expected ErrRoleFrozen, got %v", err)
	}
}

func TestMask64Bounds(t *testing.T) {
	var m Mask64
	m.Set(-1)
	m.Set(64)
	if m.Raw() != 0 {
		t.Fatalf("out-of-range bits must be ignored, got %d", m.Raw())
	}
	m.Set(63)
	if !m.Has(63) || m.Has(62) {
		t.Fatal("bit 63 handling broken")
	}
	m.Clear(63)
	if m.Has(63) {
		t.Fatal("Clear did not clear bit 63")
	}
}
