package identity

import (
	"context"

	"github.com/mcloones/mcloones"
)

// RevokeUser deletes every server session of userID and tells all watching
// instances to drop it. It returns the number of sessions deleted.
func (p *RedisProvider) RevokeUser(ctx context.Context, userID string) (int, error) {
	n, err := p.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, unavailable(err)
	}
	if err := p.redis.Publish(ctx, p.cfg.RevocationChannel, userID).Err(); err != nil {
		return n, unavailable(err)
	}
	p.logger.Info("user sessions revoked", "user_id", userID, "sessions", n)
	return n, nil
}

// WatchRevocations listens on the revocation channel until ctx is done and
// emits SIGNED_OUT whenever the locally held user is revoked. It returns nil
// after ctx is cancelled.
func (p *RedisProvider) WatchRevocations(ctx context.Context) error {
	ps := p.redis.Subscribe(ctx, p.cfg.RevocationChannel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return unavailable(err)
	}

	stop := context.AfterFunc(ctx, func() { _ = ps.Close() })
	defer stop()

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return unavailable(err)
		}
		p.handleRevocation(ctx, msg.Payload)
	}
}

func (p *RedisProvider) handleRevocation(ctx context.Context, userID string) {
	tok, _ := p.loadCurrent(ctx)
	if tok == nil || tok.UserID != userID {
		return
	}
	if !p.clearCurrent(ctx, tok.SessionID) {
		return
	}
	p.logger.Info("session revoked remotely", "user_id", userID)
	p.emit(mcloones.AuthEvent{Type: mcloones.AuthSignedOut})
}
