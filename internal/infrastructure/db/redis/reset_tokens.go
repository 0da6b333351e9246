package redis

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResetTokenStore keeps pending password-reset tokens in Redis.
// Key format: pwreset:<user_id>. Only a SHA-256 digest of the token is stored.
type ResetTokenStore struct {
	client *redis.Client
}

// NewResetTokenStore creates a ResetTokenStore wrapping the given Redis client.
func NewResetTokenStore(client *redis.Client) *ResetTokenStore {
	return &ResetTokenStore{client: client}
}

// Save replaces any pending token for the user; it expires after ttl.
func (s *ResetTokenStore) Save(ctx context.Context, userID, token string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(userID), digest(token), ttl).Err(); err != nil {
		return fmt.Errorf("save reset token: %w", err)
	}
	return nil
}

// Consume removes the pending token and reports whether it matched. A wrong
// guess also burns the pending token.
func (s *ResetTokenStore) Consume(ctx context.Context, userID, token string) (bool, error) {
	stored, err := s.client.GetDel(ctx, s.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume reset token: %w", err)
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(digest(token))) == 1, nil
}

// Ping reports whether Redis is reachable.
func (s *ResetTokenStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *ResetTokenStore) key(userID string) string {
	return "pwreset:" + userID
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
