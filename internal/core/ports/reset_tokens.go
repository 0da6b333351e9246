package ports

import (
	"context"
	"time"
)

// ResetTokenStore keeps one pending password-reset token per user.
type ResetTokenStore interface {
	// Save replaces any pending token for userID.
	Save(ctx context.Context, userID, token string, ttl time.Duration) error
	// Consume atomically removes the pending token and reports whether it
	// matched.
	Consume(ctx context.Context, userID, token string) (bool, error)
}
