package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcloones/mcloones"
)

var errUserNotFound = errors.New("user not found")

type userRecord struct {
	ID        string
	Email     string
	Hash      string
	Role      mcloones.Role
	FullName  string
	Confirmed bool
	CreatedAt int64
}

func (p *RedisProvider) userKey(id string) string {
	return p.cfg.KeyPrefix + ":user:" + id
}

func (p *RedisProvider) emailKey(email string) string {
	return p.cfg.KeyPrefix + ":email:" + email
}

// createUser claims the email index first so two concurrent sign-ups for one
// address cannot both succeed.
func (p *RedisProvider) createUser(ctx context.Context, u userRecord) error {
	ok, err := p.redis.SetNX(ctx, p.emailKey(u.Email), u.ID, 0).Result()
	if err != nil {
		return unavailable(err)
	}
	if !ok {
		return mcloones.ErrAccountExists
	}

	err = p.redis.HSet(ctx, p.userKey(u.ID), map[string]interface{}{
		"email":      u.Email,
		"hash":       u.Hash,
		"role":       u.Role.String(),
		"full_name":  u.FullName,
		"confirmed":  boolField(u.Confirmed),
		"created_at": u.CreatedAt,
	}).Err()
	if err != nil {
		_ = p.redis.Del(ctx, p.emailKey(u.Email)).Err()
		return unavailable(err)
	}
	return nil
}

func (p *RedisProvider) deleteUser(ctx context.Context, u userRecord) {
	if err := p.redis.Del(ctx, p.userKey(u.ID), p.emailKey(u.Email)).Err(); err != nil {
		p.logger.Error("user rollback failed", "user_id", u.ID, "error", err)
	}
}

func (p *RedisProvider) userByEmail(ctx context.Context, email string) (userRecord, error) {
	id, err := p.redis.Get(ctx, p.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return userRecord{}, errUserNotFound
		}
		return userRecord{}, unavailable(err)
	}
	return p.userByID(ctx, id)
}

func (p *RedisProvider) userByID(ctx context.Context, id string) (userRecord, error) {
	fields, err := p.redis.HGetAll(ctx, p.userKey(id)).Result()
	if err != nil {
		return userRecord{}, unavailable(err)
	}
	if len(fields) == 0 {
		return userRecord{}, errUserNotFound
	}

	role, err := mcloones.ParseRole(fields["role"])
	if err != nil {
		return userRecord{}, fmt.Errorf("%w: user %s has role %q", mcloones.ErrProviderContract, id, fields["role"])
	}
	created, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	return userRecord{
		ID:        id,
		Email:     fields["email"],
		Hash:      fields["hash"],
		Role:      role,
		FullName:  fields["full_name"],
		Confirmed: fields["confirmed"] == "1",
		CreatedAt: created,
	}, nil
}

func (p *RedisProvider) markConfirmed(ctx context.Context, id string) error {
	if err := p.redis.HSet(ctx, p.userKey(id), "confirmed", "1").Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// claimUnconfirmed confirms an account through a verified external login and
// drops its password hash.
func (p *RedisProvider) claimUnconfirmed(ctx context.Context, id string) error {
	err := p.redis.HSet(ctx, p.userKey(id), "confirmed", "1", "hash", "").Err()
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (p *RedisProvider) updateHash(ctx context.Context, id, hash string) error {
	if err := p.redis.HSet(ctx, p.userKey(id), "hash", hash).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", mcloones.ErrProviderUnavailable, err)
}

func nowUnix() int64 {
	return time.Now().Unix()
}
