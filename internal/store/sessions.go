package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GetSession returns an empty map for unknown phones.
func (s *sqlStore) GetSession(ctx context.Context, phone string) (map[string]string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT values_json FROM sessions WHERE phone = ?`), phone).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", phone, err)
	}
	values := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", phone, err)
	}
	return values, nil
}

// SaveSession replaces the stored map.
func (s *sqlStore) SaveSession(ctx context.Context, phone string, values map[string]string) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO sessions (phone, values_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (phone) DO UPDATE SET values_json = excluded.values_json, updated_at = excluded.updated_at`),
		phone, string(raw), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", phone, err)
	}
	return nil
}

func (s *sqlStore) DeleteSession(ctx context.Context, phone string) error {
	if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM sessions WHERE phone = ?`), phone); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", phone, err)
	}
	return nil
}
