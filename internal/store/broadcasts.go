package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avellano/avellano-bot/internal/models"
)

const broadcastColumns = `id, name, message, audience_json, scheduled_for, cron, status, sent_count, failed_count,
	created_by, created_at, sent_at`

func scanBroadcast(row rowScanner) (*models.Broadcast, error) {
	var b models.Broadcast
	var audience string
	var scheduledFor, sentAt sql.NullTime
	err := row.Scan(&b.ID, &b.Name, &b.Message, &audience, &scheduledFor, &b.Cron, &b.Status,
		&b.Counts.Sent, &b.Counts.Failed, &b.CreatedBy, &b.CreatedAt, &sentAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(audience), &b.Audience); err != nil {
		return nil, fmt.Errorf("failed to decode broadcast audience: %w", err)
	}
	if scheduledFor.Valid {
		b.ScheduledFor = &scheduledFor.Time
	}
	if sentAt.Valid {
		b.SentAt = &sentAt.Time
	}
	return &b, nil
}

func (s *sqlStore) CreateBroadcast(ctx context.Context, b *models.Broadcast) error {
	audience, err := json.Marshal(b.Audience)
	if err != nil {
		return fmt.Errorf("failed to encode broadcast audience: %w", err)
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO broadcasts (`+broadcastColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		b.ID, b.Name, b.Message, string(audience), b.ScheduledFor, b.Cron, string(b.Status), b.Counts.Sent,
		b.Counts.Failed, b.CreatedBy, b.CreatedAt, b.SentAt)
	if err != nil {
		return fmt.Errorf("failed to create broadcast: %w", err)
	}
	return nil
}

// UpdateBroadcast saves delivery progress: status, counts and send time.
func (s *sqlStore) UpdateBroadcast(ctx context.Context, b *models.Broadcast) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE broadcasts SET status = ?, sent_count = ?, failed_count = ?, sent_at = ? WHERE id = ?`),
		string(b.Status), b.Counts.Sent, b.Counts.Failed, b.SentAt, b.ID)
	if err != nil {
		return fmt.Errorf("failed to update broadcast %s: %w", b.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *sqlStore) GetBroadcast(ctx context.Context, id string) (*models.Broadcast, error) {
	b, err := scanBroadcast(s.db.QueryRowContext(ctx, s.q(`SELECT `+broadcastColumns+` FROM broadcasts WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get broadcast %s: %w", id, err)
	}
	return b, nil
}

func (s *sqlStore) ListBroadcasts(ctx context.Context) ([]models.Broadcast, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+broadcastColumns+` FROM broadcasts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list broadcasts: %w", err)
	}
	defer rows.Close()
	var out []models.Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}
