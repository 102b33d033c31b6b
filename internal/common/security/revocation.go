package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "taskweb:revoked:"

// RevocationList is a Redis-backed denylist of token ids. Entries expire
// together with the token they revoke.
type RevocationList struct {
	rdb redis.Cmdable
}

func NewRevocationList(rdb redis.Cmdable) *RevocationList {
	return &RevocationList{rdb: rdb}
}

func (l *RevocationList) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return errors.New("token id is required")
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := l.rdb.Set(ctx, revokedKeyPrefix+tokenID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("RevocationList.Revoke: %w", err)
	}
	return nil
}

func (l *RevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := l.rdb.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("RevocationList.IsRevoked: %w", err)
	}
	return n > 0, nil
}
