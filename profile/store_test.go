package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mcloones/mcloones"
)

func newRedisStore(t *testing.T) Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisStore(rdb, "mc")
}

func newBunStore(t *testing.T) Store {
	t.Helper()
	ctx := context.Background()
	db, err := OpenSQLite(ctx, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s := NewBunStore(db)
	if err := s.CreateSchema(ctx); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	if _, err := db.NewDelete().Model((*profileRow)(nil)).Where("1 = 1").Exec(ctx); err != nil {
		t.Fatalf("reset profiles: %v", err)
	}
	return s
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	stores := []struct {
		name string
		open func(*testing.T) Store
	}{
		{"redis", newRedisStore},
		{"bun", newBunStore},
	}
	for _, st := range stores {
		t.Run(st.name, func(t *testing.T) {
			fn(t, st.open(t))
		})
	}
}

func TestCreateAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		want := mcloones.Profile{ID: "u-1", Role: mcloones.RoleEmployee, FullName: "Ann Byrne", Email: "ann@mcloones.com"}

		if err := s.CreateProfile(ctx, want); err != nil {
			t.Fatalf("CreateProfile: %v", err)
		}
		got, err := s.GetProfileByID(ctx, "u-1")
		if err != nil || got != want {
			t.Fatalf("GetProfileByID = %+v, %v", got, err)
		}

		dup := want
		dup.Role = mcloones.RoleManager
		if err := s.CreateProfile(ctx, dup); !errors.Is(err, ErrProfileExists) {
			t.Fatalf("expected ErrProfileExists, got %v", err)
		}
		if got, _ := s.GetProfileByID(ctx, "u-1"); got.Role != mcloones.RoleEmployee {
			t.Fatal("duplicate create must not change the role")
		}

		if _, err := s.GetProfileByID(ctx, "missing"); !errors.Is(err, mcloones.ErrProfileNotFound) {
			t.Fatalf("expected ErrProfileNotFound, got %v", err)
		}
		if err := s.CreateProfile(ctx, mcloones.Profile{ID: "u-2"}); err == nil {
			t.Fatal("expected profile without role to be rejected")
		}
	})
}

func TestUpdateKeepsRole(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.CreateProfile(ctx, mcloones.Profile{ID: "u-1", Role: mcloones.RoleCustomer, FullName: "Old"}); err != nil {
			t.Fatalf("CreateProfile: %v", err)
		}

		name, email := " New Name ", "New@McLoones.com"
		got, err := s.UpdateProfile(ctx, "u-1", Update{FullName: &name, Email: &email})
		if err != nil {
			t.Fatalf("UpdateProfile: %v", err)
		}
		want := mcloones.Profile{ID: "u-1", Role: mcloones.RoleCustomer, FullName: "New Name", Email: "new@mcloones.com"}
		if got != want {
			t.Fatalf("UpdateProfile = %+v, want %+v", got, want)
		}

		if _, err := s.UpdateProfile(ctx, "missing", Update{FullName: &name}); !errors.Is(err, mcloones.ErrProfileNotFound) {
			t.Fatalf("expected ErrProfileNotFound, got %v", err)
		}
	})
}

func TestListByRole(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		rows := []mcloones.Profile{
			{ID: "e-2", Role: mcloones.RoleEmployee, FullName: "zoe"},
			{ID: "e-1", Role: mcloones.RoleEmployee, FullName: "Aidan"},
			{ID: "c-1", Role: mcloones.RoleCustomer, FullName: "Brid"},
			{ID: "m-1", Role: mcloones.RoleManager, FullName: "Mary"},
		}
		for _, p := range rows {
			if err := s.CreateProfile(ctx, p); err != nil {
				t.Fatalf("CreateProfile(%s): %v", p.ID, err)
			}
		}

		got, err := s.ListByRole(ctx, mcloones.RoleEmployee)
		if err != nil {
			t.Fatalf("ListByRole: %v", err)
		}
		if len(got) != 2 || got[0].ID != "e-1" || got[1].ID != "e-2" {
			t.Fatalf("unexpected employees %+v", got)
		}

		none, err := s.ListByRole(ctx, mcloones.RoleNone)
		if err != nil || len(none) != 0 {
			t.Fatalf("expected no profiles, got %+v (%v)", none, err)
		}
	})
}

func TestDeleteProfile(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		p := mcloones.Profile{ID: "e-9", Role: mcloones.RoleEmployee, FullName: "Niamh"}
		if err := s.CreateProfile(ctx, p); err != nil {
			t.Fatalf("CreateProfile: %v", err)
		}

		if err := s.DeleteProfile(ctx, "e-9"); err != nil {
			t.Fatalf("DeleteProfile: %v", err)
		}
		if _, err := s.GetProfileByID(ctx, "e-9"); !errors.Is(err, mcloones.ErrProfileNotFound) {
			t.Fatalf("expected ErrProfileNotFound, got %v", err)
		}
		if got, _ := s.ListByRole(ctx, mcloones.RoleEmployee); len(got) != 0 {
			t.Fatalf("deleted profile still listed: %+v", got)
		}
		if err := s.DeleteProfile(ctx, "e-9"); err != nil {
			t.Fatalf("deleting a missing profile: %v", err)
		}
		if err := s.CreateProfile(ctx, p); err != nil {
			t.Fatalf("re-create after delete: %v", err)
		}
	})
}
