package domain

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrRoleNotFound       = errors.New("role not found")
	ErrRoleExists         = errors.New("role already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrForbidden          = errors.New("access forbidden")
	ErrInvalidEmail       = errors.New("invalid email message")
	ErrWeakPassword       = errors.New("password does not meet requirements")
)

// Delivery failures reported by an EmailSender. Each one ends the send
// attempt; nothing is retried.
var (
	ErrMailConnect = errors.New("smtp connect failed")
	ErrMailAuth    = errors.New("smtp authentication failed")
	ErrMailSend    = errors.New("smtp transmission failed")
)
