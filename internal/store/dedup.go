package store

import (
	"fmt"
	"log/slog"
	"time"
)

func (s *sqlStore) RecordInbound(messageID, from string) (bool, error) {
	result, err := s.db.Exec(
		s.q(`INSERT INTO inbound_dedup (message_id, recipient, received_at) VALUES (?, ?, ?) ON CONFLICT (message_id) DO NOTHING`),
		messageID, from, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record inbound rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *sqlStore) MarkProcessed(messageID string) error {
	_, err := s.db.Exec(s.q(`UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`), time.Now(), messageID)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *sqlStore) PruneInbound(before time.Time) (int, error) {
	result, err := s.db.Exec(s.q(`DELETE FROM inbound_dedup WHERE received_at < ?`), before)
	if err != nil {
		return 0, fmt.Errorf("prune inbound dedup failed: %w", err)
	}
	n, _ := result.RowsAffected()
	slog.Debug(s.name+".PruneInbound", "deleted", n)
	return int(n), nil
}
