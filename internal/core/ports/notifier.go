package ports

import "context"

// EmailSender delivers one plain-text email synchronously.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}
