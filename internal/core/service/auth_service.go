package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/realfinance/estate-api/internal/core/domain"
	"github.com/realfinance/estate-api/internal/core/ports"
)

const defaultResetTTL = time.Hour

// TokenIssuer signs bearer tokens for authenticated users.
type TokenIssuer interface {
	Issue(user *domain.User) (ports.IssuedToken, error)
}

// AuthService implements registration, login and password reset.
type AuthService struct {
	store    ports.CredentialStore
	tokens   TokenIssuer
	resets   ports.ResetTokenStore
	mailer   ports.EmailSender
	resetTTL time.Duration
	log      zerolog.Logger
}

func NewAuthService(
	store ports.CredentialStore,
	tokens TokenIssuer,
	resets ports.ResetTokenStore,
	mailer ports.EmailSender,
	resetTTL time.Duration,
	log zerolog.Logger,
) *AuthService {
	if resetTTL <= 0 {
		resetTTL = defaultResetTTL
	}
	return &AuthService{
		store:    store,
		tokens:   tokens,
		resets:   resets,
		mailer:   mailer,
		resetTTL: resetTTL,
		log:      log,
	}
}

// Register creates a user with the User role.
func (s *AuthService) Register(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if err := domain.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	created, err := s.store.CreateUser(ctx, &domain.User{
		UserName:        email,
		Email:           email,
		NormalizedEmail: domain.NormalizeEmail(email),
		PasswordHash:    hash,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.AssignRole(ctx, created.ID, domain.RoleUser); err != nil {
		return nil, fmt.Errorf("assign default role: %w", err)
	}
	created.Roles = append(created.Roles, domain.RoleUser)

	s.log.Info().Str("user_id", created.ID).Msg("user registered")
	return created, nil
}

// Login checks the password and returns a signed token. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (ports.IssuedToken, *domain.User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return ports.IssuedToken{}, nil, domain.ErrInvalidCredentials
	}

	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return ports.IssuedToken{}, nil, domain.ErrInvalidCredentials
		}
		return ports.IssuedToken{}, nil, err
	}

	if !passwordMatches(user.PasswordHash, password) {
		return ports.IssuedToken{}, nil, domain.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return ports.IssuedToken{}, nil, err
	}
	return token, user, nil
}

// RequestPasswordReset stores a one-time reset token and emails it. Unknown
// addresses succeed silently so callers cannot probe for accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.log.Debug().Msg("password reset requested for unknown email")
			return nil
		}
		return err
	}

	token, err := generateResetToken()
	if err != nil {
		return err
	}
	if err := s.resets.Save(ctx, user.ID, token, s.resetTTL); err != nil {
		return fmt.Errorf("save reset token: %w", err)
	}

	body := fmt.Sprintf(
		"A password reset was requested for %s.\n\nReset token: %s\n\nThe token expires in %s. If you did not ask for this, ignore this email.",
		user.Email, token, s.resetTTL,
	)
	if err := s.mailer.Send(ctx, user.Email, "Password reset", body); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("password reset email sent")
	return nil
}

// ResetPassword replaces the password when token matches the pending reset
// token. The token is consumed even if the store update fails afterwards.
func (s *AuthService) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	if strings.TrimSpace(token) == "" {
		return domain.ErrInvalidResetToken
	}

	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrInvalidResetToken
		}
		return err
	}

	if err := domain.ValidatePassword(newPassword); err != nil {
		return err
	}

	ok, err := s.resets.Consume(ctx, user.ID, token)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if !ok {
		return domain.ErrInvalidResetToken
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("password reset")
	return nil
}
