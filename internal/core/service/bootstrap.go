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

// ErrBootstrap wraps every seeding failure. Callers must not start serving
// when Bootstrap returns it.
var ErrBootstrap = errors.New("bootstrap failed")

// SeedPlan describes the administrative account and any roles beyond
// domain.DefaultRoles that must exist after startup. The default roles are
// always seeded and the admin always receives domain.RoleAdmin.
type SeedPlan struct {
	// Roles lists extra roles seeded after domain.DefaultRoles.
	Roles      []string
	AdminEmail string
	// AdminPassword is the initial password of a newly created admin account.
	// When empty a random one-time password is generated and reported.
	AdminPassword string
}

// BootstrapReport lists what a Bootstrap run changed.
type BootstrapReport struct {
	RolesCreated []string
	AdminCreated bool
	// GeneratedPassword is set only when the admin account was created with a
	// generated password. It must be rotated after first login.
	GeneratedPassword string
	// AdminMissingRole is set when the admin account already existed without
	// the Admin role. Bootstrap never repairs memberships of existing users.
	AdminMissingRole bool
}

// Bootstrap makes sure every role in plan exists and that the admin account
// exists. An existing admin account is left untouched: its password and roles
// are never reconciled. Running Bootstrap any number of times leaves the same
// state as running it once.
//
// Bootstrap assumes it is the only writer while it runs.
func Bootstrap(ctx context.Context, store ports.CredentialStore, plan SeedPlan, log zerolog.Logger) (BootstrapReport, error) {
	var report BootstrapReport

	if err := plan.validate(); err != nil {
		return report, fmt.Errorf("%w: %w", ErrBootstrap, err)
	}

	roles := append(append([]string(nil), domain.DefaultRoles...), plan.Roles...)
	created, err := seedRoles(ctx, store, roles, log)
	report.RolesCreated = created
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrBootstrap, err)
	}

	if err := seedAdmin(ctx, store, plan, &report, log); err != nil {
		return report, fmt.Errorf("%w: %w", ErrBootstrap, err)
	}

	log.Info().
		Strs("roles_created", report.RolesCreated).
		Bool("admin_created", report.AdminCreated).
		Msg("bootstrap complete")

	return report, nil
}

func (p SeedPlan) validate() error {
	for _, r := range p.Roles {
		if strings.TrimSpace(r) == "" {
			return errors.New("seed plan contains an empty role name")
		}
	}
	if _, err := mail.ParseAddress(p.AdminEmail); err != nil {
		return fmt.Errorf("admin email %q: %w", p.AdminEmail, err)
	}
	if p.AdminPassword != "" {
		if err := domain.ValidatePassword(p.AdminPassword); err != nil {
			return fmt.Errorf("admin password: %w", err)
		}
	}
	return nil
}

func seedRoles(ctx context.Context, store ports.CredentialStore, roles []string, log zerolog.Logger) ([]string, error) {
	created := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))

	for _, name := range roles {
		name = strings.TrimSpace(name)
		key := domain.NormalizeRoleName(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		exists, err := store.RoleExists(ctx, name)
		if err != nil {
			return created, fmt.Errorf("check role %s: %w", name, err)
		}
		if exists {
			continue
		}

		if err := store.CreateRole(ctx, name); err != nil {
			if errors.Is(err, domain.ErrRoleExists) {
				continue
			}
			return created, fmt.Errorf("create role %s: %w", name, err)
		}
		log.Info().Str("role", name).Msg("role created")
		created = append(created, name)
	}
	return created, nil
}

func seedAdmin(ctx context.Context, store ports.CredentialStore, plan SeedPlan, report *BootstrapReport, log zerolog.Logger) error {
	existing, err := store.FindUserByEmail(ctx, plan.AdminEmail)
	if err == nil {
		if !existing.HasRole(domain.RoleAdmin) {
			report.AdminMissingRole = true
			log.Warn().
				Str("email", plan.AdminEmail).
				Strs("roles", existing.Roles).
				Msg("admin account exists without the Admin role, assign it manually")
			return nil
		}
		log.Debug().Str("email", plan.AdminEmail).Msg("admin account already provisioned")
		return nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return fmt.Errorf("find admin %s: %w", plan.AdminEmail, err)
	}

	password := plan.AdminPassword
	generated := ""
	if password == "" {
		if password, err = generatePassword(); err != nil {
			return err
		}
		generated = password
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	user, err := store.CreateUser(ctx, &domain.User{
		UserName:        plan.AdminEmail,
		Email:           plan.AdminEmail,
		NormalizedEmail: domain.NormalizeEmail(plan.AdminEmail),
		PasswordHash:    hash,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			log.Warn().Str("email", plan.AdminEmail).Msg("admin account created concurrently, leaving it as is")
			return nil
		}
		return fmt.Errorf("create admin %s: %w", plan.AdminEmail, err)
	}

	if err := store.AssignRole(ctx, user.ID, domain.RoleAdmin); err != nil {
		return fmt.Errorf("assign %s role to %s: %w", domain.RoleAdmin, plan.AdminEmail, err)
	}

	report.AdminCreated = true
	report.GeneratedPassword = generated
	log.Info().Str("email", plan.AdminEmail).Msg("admin account created")
	return nil
}
