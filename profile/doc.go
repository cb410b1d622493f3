// Package profile stores the role and display record of each account.
//
// Two implementations of [mcloones.ProfileStore] are provided: RedisStore for
// deployments that keep everything in Redis, and BunStore for a SQL table
// (SQLite through modernc.org/sqlite by default). Both also satisfy the
// identity provider's Provisioner.
//
// A profile's role is written once at creation. UpdateProfile changes display
// attributes only.
package profile

import (
	"context"
	"errors"

	"github.com/mcloones/mcloones"
)

// ErrProfileExists is returned by CreateProfile when the id is taken.
var ErrProfileExists = errors.New("profile already exists")

// Update lists the display attributes to change. Nil fields are left alone.
type Update struct {
	FullName *string
	Email    *string
}

// Store is the full profile store contract.
type Store interface {
	mcloones.ProfileStore
	CreateProfile(ctx context.Context, p mcloones.Profile) error
	DeleteProfile(ctx context.Context, id string) error
	UpdateProfile(ctx context.Context, id string, u Update) (mcloones.Profile, error)
	ListByRole(ctx context.Context, role mcloones.Role) ([]mcloones.Profile, error)
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*BunStore)(nil)
)
