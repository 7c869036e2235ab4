package session

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revoker keeps a per-student "sessions invalid at or before" timestamp in
// redis. With no redis client configured every session stays valid until it
// ages out, which matches the platform's original client-side-only logout.
type Revoker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRevoker(client *redis.Client, sessionTTL time.Duration) *Revoker {
	return &Revoker{client: client, ttl: sessionTTL}
}

func (r *Revoker) Enabled() bool {
	return r.client != nil
}

func (r *Revoker) RevokeAll(ctx context.Context, studentID string, at time.Time) error {
	if r.client == nil {
		return errors.New("redis_not_configured")
	}
	// The key only has to outlive the tokens it invalidates.
	return r.client.Set(ctx, revocationKey(studentID), strconv.FormatInt(at.UnixMilli(), 10), r.ttl+time.Hour).Err()
}

func (r *Revoker) Revoked(ctx context.Context, studentID string, issuedAt time.Time) (bool, error) {
	if r.client == nil {
		return false, nil
	}
	value, err := r.client.Get(ctx, revocationKey(studentID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	cutoff, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return false, nil
	}
	return !issuedAt.After(time.UnixMilli(cutoff)), nil
}

func revocationKey(studentID string) string {
	return "student-auth:invalid-after:" + studentID
}
