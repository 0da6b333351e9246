package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/realfinance/estate-api/internal/core/domain"
)

// CredentialStore implements ports.CredentialStore on SQLite.
type CredentialStore struct {
	db *sql.DB
}

func NewCredentialStore(db *DB) *CredentialStore {
	return &CredentialStore{db: db.SqlDB}
}

func (s *CredentialStore) RoleExists(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM roles WHERE normalized_name = ?`, domain.NormalizeRoleName(name),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query role: %w", err)
	}
	return true, nil
}

func (s *CredentialStore) CreateRole(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO roles (id, name, normalized_name, created_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), strings.TrimSpace(name), domain.NormalizeRoleName(name), time.Now().UTC(),
	)
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE) {
			return domain.ErrRoleExists
		}
		return fmt.Errorf("insert role: %w", err)
	}
	return nil
}

func (s *CredentialStore) ListRoles(ctx context.Context) ([]domain.Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, normalized_name, created_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		var r domain.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.NormalizedName, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

func (s *CredentialStore) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	user := &domain.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_name, email, normalized_email, password_hash, created_at, updated_at
		 FROM users WHERE normalized_email = ?`, domain.NormalizeEmail(email),
	).Scan(&user.ID, &user.UserName, &user.Email, &user.NormalizedEmail, &user.PasswordHash,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("query user by email: %w", err)
	}

	roles, err := s.userRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles
	return user, nil
}

func (s *CredentialStore) userRoles(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.name FROM user_roles ur
		 JOIN roles r ON r.id = ur.role_id
		 WHERE ur.user_id = ?
		 ORDER BY r.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user roles: %w", err)
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan user role: %w", err)
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

func (s *CredentialStore) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	now := time.Now().UTC()
	created := *user
	created.ID = uuid.NewString()
	created.Email = strings.TrimSpace(user.Email)
	created.NormalizedEmail = domain.NormalizeEmail(user.Email)
	if created.UserName == "" {
		created.UserName = created.Email
	}
	created.Roles = []string{}
	created.CreatedAt = now
	created.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, user_name, email, normalized_email, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		created.ID, created.UserName, created.Email, created.NormalizedEmail, created.PasswordHash, now, now,
	)
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &created, nil
}

func (s *CredentialStore) AssignRole(ctx context.Context, userID, roleName string) error {
	var roleID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM roles WHERE normalized_name = ?`, domain.NormalizeRoleName(roleName),
	).Scan(&roleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrRoleNotFound
		}
		return fmt.Errorf("query role: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_roles (user_id, role_id) VALUES (?, ?)`, userID, roleID)
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("insert user role: %w", err)
	}
	return nil
}

func (s *CredentialStore) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *CredentialStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CredentialStore) Close(_ context.Context) error {
	return s.db.Close()
}

// isConstraint reports whether err is the given extended constraint code.
func isConstraint(err error, code int) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == code
}
