package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avellano/avellano-bot/internal/util"
)

const outboxColumns = `id, recipient, kind, payload_json, status, attempts, next_attempt_at, dedupe_key, locked_at, last_error, created_at, updated_at`

func (s *sqlStore) EnqueueOutboxMessage(recipient, kind, payloadJSON, dedupeKey string) (string, error) {
	if dedupeKey != "" {
		var existingID string
		err := s.db.QueryRow(
			s.q(`SELECT id FROM outbox_messages WHERE dedupe_key = ? AND status IN ('queued', 'sending')`),
			dedupeKey,
		).Scan(&existingID)
		if err == nil {
			slog.Debug(s.name+".EnqueueOutboxMessage: dedupe hit", "dedupeKey", dedupeKey, "existingID", existingID)
			return existingID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("outbox dedupe check failed: %w", err)
		}
	}

	id := util.GenerateRandomID("outbox_", 32)
	now := time.Now()
	_, err := s.db.Exec(
		s.q(`INSERT INTO outbox_messages (id, recipient, kind, payload_json, status, attempts, dedupe_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'queued', 0, ?, ?, ?)`),
		id, recipient, kind, payloadJSON, nilIfEmpty(dedupeKey), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue outbox message failed: %w", err)
	}
	slog.Debug(s.name+".EnqueueOutboxMessage", "id", id, "recipient", recipient, "kind", kind)
	return id, nil
}

// ClaimDueOutboxMessages on SQLite selects then marks; the single-writer
// database serializes concurrent claimers.
func (s *SQLiteStore) ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error) {
	rows, err := s.db.Query(
		`SELECT `+outboxColumns+` FROM outbox_messages
		 WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		 ORDER BY created_at ASC LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due outbox messages failed: %w", err)
	}
	msgs, err := collectOutbox(rows)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		if _, err := s.db.Exec(
			`UPDATE outbox_messages SET status = 'sending', locked_at = ?, updated_at = ? WHERE id = ?`,
			now, now, msgs[i].ID,
		); err != nil {
			return nil, fmt.Errorf("mark outbox sending failed: %w", err)
		}
		msgs[i].Status = OutboxStatusSending
		msgs[i].LockedAt = &now
	}
	return msgs, nil
}

// ClaimDueOutboxMessages on Postgres claims atomically with SKIP LOCKED.
func (s *PostgresStore) ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error) {
	rows, err := s.db.Query(
		`UPDATE outbox_messages SET status = 'sending', locked_at = $1, updated_at = $1
		 WHERE id IN (
		   SELECT id FROM outbox_messages WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
		   ORDER BY created_at ASC LIMIT $2
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+outboxColumns,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due outbox messages failed: %w", err)
	}
	return collectOutbox(rows)
}

func collectOutbox(rows *sql.Rows) ([]OutboxMessage, error) {
	defer rows.Close()
	var msgs []OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		var payloadJSON, dedupeKey, lastError sql.NullString
		var nextAttemptAt, lockedAt sql.NullTime
		if err := rows.Scan(
			&m.ID, &m.Recipient, &m.Kind, &payloadJSON, &m.Status, &m.Attempts,
			&nextAttemptAt, &dedupeKey, &lockedAt, &lastError, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outbox message failed: %w", err)
		}
		m.PayloadJSON = payloadJSON.String
		m.DedupeKey = dedupeKey.String
		m.LastError = lastError.String
		if nextAttemptAt.Valid {
			m.NextAttemptAt = &nextAttemptAt.Time
		}
		if lockedAt.Valid {
			m.LockedAt = &lockedAt.Time
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim outbox iteration failed: %w", err)
	}
	return msgs, nil
}

func (s *sqlStore) MarkOutboxMessageSent(id string) error {
	_, err := s.db.Exec(s.q(`UPDATE outbox_messages SET status = 'sent', locked_at = NULL, updated_at = ? WHERE id = ?`), time.Now(), id)
	if err != nil {
		return fmt.Errorf("mark outbox sent failed: %w", err)
	}
	return nil
}

func (s *sqlStore) FailOutboxMessage(id string, errMsg string, nextAttemptAt time.Time, maxAttempts int) error {
	_, err := s.db.Exec(
		s.q(`UPDATE outbox_messages SET
			status = CASE WHEN attempts + 1 >= ? THEN 'failed' ELSE 'queued' END,
			attempts = attempts + 1, last_error = ?, next_attempt_at = ?, locked_at = NULL, updated_at = ?
		 WHERE id = ?`),
		maxAttempts, errMsg, nextAttemptAt, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("fail outbox message failed: %w", err)
	}
	return nil
}

func (s *sqlStore) RequeueStaleSendingMessages(staleBefore time.Time) (int, error) {
	result, err := s.db.Exec(
		s.q(`UPDATE outbox_messages SET status = 'queued', locked_at = NULL, updated_at = ? WHERE status = 'sending' AND locked_at < ?`),
		time.Now(), staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale outbox messages failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info(s.name+".RequeueStaleSendingMessages", "requeued", n)
	}
	return int(n), nil
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
