package domain

import (
	"fmt"
	"net/mail"
	"strings"
)

// EmailMessage is a single plain-text email. It only lives for the duration
// of one send.
type EmailMessage struct {
	FromName    string
	FromAddress string
	To          string
	Subject     string
	Body        string
}

// Validate checks that every required field is present and that both
// addresses parse. Nothing is defaulted here.
func (m EmailMessage) Validate() error {
	switch {
	case strings.TrimSpace(m.To) == "":
		return fmt.Errorf("%w: recipient is required", ErrInvalidEmail)
	case strings.TrimSpace(m.Subject) == "":
		return fmt.Errorf("%w: subject is required", ErrInvalidEmail)
	case strings.TrimSpace(m.Body) == "":
		return fmt.Errorf("%w: body is required", ErrInvalidEmail)
	case strings.TrimSpace(m.FromAddress) == "":
		return fmt.Errorf("%w: sender address is required", ErrInvalidEmail)
	}
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("%w: recipient: %v", ErrInvalidEmail, err)
	}
	if _, err := mail.ParseAddress(m.FromAddress); err != nil {
		return fmt.Errorf("%w: sender: %v", ErrInvalidEmail, err)
	}
	return nil
}
