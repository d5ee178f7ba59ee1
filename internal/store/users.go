package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avellano/avellano-bot/internal/models"
)

const userColumns = `id, email, password_hash, name, role, operator_type, active, refresh_token, last_access, created_at`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var lastAccess sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.OperatorType, &u.Active,
		&u.RefreshToken, &lastAccess, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastAccess.Valid {
		u.LastAccess = &lastAccess.Time
	}
	return &u, nil
}

func (s *sqlStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// CreateUser fails with models.ErrConflict when the email is taken.
func (s *sqlStore) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = models.NormalizeEmail(u.Email)
	if _, err := s.GetUserByEmail(ctx, u.Email); err == nil {
		return models.ErrConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		return err
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.Email, u.PasswordHash, u.Name, string(u.Role), string(u.OperatorType), u.Active, u.RefreshToken,
		u.LastAccess, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user %s: %w", u.Email, err)
	}
	slog.Info(s.name+".CreateUser succeeded", "email", u.Email, "role", u.Role)
	return nil
}

func (s *sqlStore) getUser(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE `+where), arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (s *sqlStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

func (s *sqlStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email = ?", models.NormalizeEmail(email))
}

func (s *sqlStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()
	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// UpdateUser saves the mutable profile fields: name, role, operator type and active flag.
func (s *sqlStore) UpdateUser(ctx context.Context, u *models.User) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET name = ?, role = ?, operator_type = ?, active = ? WHERE id = ?`),
		u.Name, string(u.Role), string(u.OperatorType), u.Active, u.ID)
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", u.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetRefreshToken stores the current refresh token; empty clears it.
func (s *sqlStore) SetRefreshToken(ctx context.Context, id, token string) error {
	if _, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET refresh_token = ? WHERE id = ?`), token, id); err != nil {
		return fmt.Errorf("failed to set refresh token: %w", err)
	}
	return nil
}

func (s *sqlStore) TouchLastAccess(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET last_access = ? WHERE id = ?`), at, id); err != nil {
		return fmt.Errorf("failed to update last access: %w", err)
	}
	return nil
}

func (s *sqlStore) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete user %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}
