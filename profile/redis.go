package profile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/mcloones/mcloones"
)

// RedisStore keeps profiles as hashes with a per-role index set.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a RedisStore. prefix namespaces every key.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "mc"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":profile:" + id
}

func (s *RedisStore) roleKey(role mcloones.Role) string {
	return s.prefix + ":profiles:role:" + role.String()
}

// GetProfileByID returns an error wrapping [mcloones.ErrProfileNotFound] when
// no row exists.
func (s *RedisStore) GetProfileByID(ctx context.Context, id string) (mcloones.Profile, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return mcloones.Profile{}, fmt.Errorf("get profile %s: %w", id, err)
	}
	if len(fields) == 0 {
		return mcloones.Profile{}, fmt.Errorf("%w: %s", mcloones.ErrProfileNotFound, id)
	}
	return decodeFields(id, fields)
}

func decodeFields(id string, fields map[string]string) (mcloones.Profile, error) {
	role, err := mcloones.ParseRole(fields["role"])
	if err != nil {
		return mcloones.Profile{}, fmt.Errorf("profile %s: stored role %q: %w", id, fields["role"], err)
	}
	return mcloones.Profile{
		ID:       id,
		Role:     role,
		FullName: fields["full_name"],
		Email:    fields["email"],
	}, nil
}

// CreateProfile inserts p. The role field is claimed first so a second create
// for the same id fails without touching the existing row.
func (s *RedisStore) CreateProfile(ctx context.Context, p mcloones.Profile) error {
	if p.ID == "" || !p.Role.Valid() {
		return errors.New("profile id and role are required")
	}

	ok, err := s.redis.HSetNX(ctx, s.key(p.ID), "role", p.Role.String()).Result()
	if err != nil {
		return fmt.Errorf("create profile %s: %w", p.ID, err)
	}
	if !ok {
		return ErrProfileExists
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(p.ID), "full_name", p.FullName, "email", p.Email)
		pipe.SAdd(ctx, s.roleKey(p.Role), p.ID)
		return nil
	})
	if err != nil {
		_ = s.redis.Del(ctx, s.key(p.ID)).Err()
		return fmt.Errorf("create profile %s: %w", p.ID, err)
	}
	return nil
}

// DeleteProfile removes the row and its role index entry. A missing row is
// not an error.
func (s *RedisStore) DeleteProfile(ctx context.Context, id string) error {
	role, err := s.redis.HGet(ctx, s.key(id), "role").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("delete profile %s: %w", id, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(id))
		pipe.SRem(ctx, s.prefix+":profiles:role:"+role, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete profile %s: %w", id, err)
	}
	return nil
}

// UpdateProfile changes display attributes and returns the updated row.
func (s *RedisStore) UpdateProfile(ctx context.Context, id string, u Update) (mcloones.Profile, error) {
	values := make([]interface{}, 0, 4)
	if u.FullName != nil {
		values = append(values, "full_name", strings.TrimSpace(*u.FullName))
	}
	if u.Email != nil {
		values = append(values, "email", strings.ToLower(strings.TrimSpace(*u.Email)))
	}

	exists, err := s.redis.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return mcloones.Profile{}, fmt.Errorf("update profile %s: %w", id, err)
	}
	if exists == 0 {
		return mcloones.Profile{}, fmt.Errorf("%w: %s", mcloones.ErrProfileNotFound, id)
	}
	if len(values) > 0 {
		if err := s.redis.HSet(ctx, s.key(id), values...).Err(); err != nil {
			return mcloones.Profile{}, fmt.Errorf("update profile %s: %w", id, err)
		}
	}
	return s.GetProfileByID(ctx, id)
}

// ListByRole returns every profile with role, sorted by display name.
func (s *RedisStore) ListByRole(ctx context.Context, role mcloones.Role) ([]mcloones.Profile, error) {
	ids, err := s.redis.SMembers(ctx, s.roleKey(role)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s profiles: %w", role, err)
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.key(id))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("list %s profiles: %w", role, err)
		}
	}

	out := make([]mcloones.Profile, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		p, err := decodeFields(ids[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sortProfiles(out)
	return out, nil
}

func sortProfiles(ps []mcloones.Profile) {
	sort.Slice(ps, func(i, j int) bool {
		a, b := strings.ToLower(ps[i].FullName), strings.ToLower(ps[j].FullName)
		if a != b {
			return a < b
		}
		return ps[i].ID < ps[j].ID
	})
}
