package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avellano/avellano-bot/internal/models"
)

// ensureConversation creates the conversation row on first contact.
func (s *sqlStore) ensureConversation(ctx context.Context, q querier, phone string, at time.Time) error {
	_, err := q.ExecContext(ctx, s.q(`INSERT INTO conversations (phone, started_at, last_message_at, message_count)
		VALUES (?, ?, ?, 0) ON CONFLICT (phone) DO NOTHING`), phone, at, at)
	if err != nil {
		return fmt.Errorf("failed to create conversation %s: %w", phone, err)
	}
	return nil
}

// AppendMessage appends one message to the conversation, creating it if needed.
func (s *sqlStore) AppendMessage(ctx context.Context, phone string, msg models.LoggedMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.ensureConversation(ctx, tx, phone, msg.Timestamp); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO conversation_messages (phone, role, text, at) VALUES (?, ?, ?, ?)`),
			phone, string(msg.Role), msg.Text, msg.Timestamp); err != nil {
			return fmt.Errorf("failed to append message: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.q(`UPDATE conversations SET last_message_at = ?, message_count = message_count + 1 WHERE phone = ?`),
			msg.Timestamp, phone); err != nil {
			return fmt.Errorf("failed to update conversation: %w", err)
		}
		return nil
	})
}

// AddInteraction records an important-interaction marker.
func (s *sqlStore) AddInteraction(ctx context.Context, phone string, in models.Interaction) error {
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.ensureConversation(ctx, tx, phone, in.Timestamp); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO conversation_interactions (phone, kind, content, at) VALUES (?, ?, ?, ?)`),
			phone, string(in.Type), in.Content, in.Timestamp); err != nil {
			return fmt.Errorf("failed to add interaction: %w", err)
		}
		return nil
	})
}

// SetCurrentFlow moves the conversation's flow pointer.
func (s *sqlStore) SetCurrentFlow(ctx context.Context, phone, flow string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.ensureConversation(ctx, tx, phone, time.Now()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q(`UPDATE conversations SET current_flow = ? WHERE phone = ?`), flow, phone); err != nil {
			return fmt.Errorf("failed to set current flow: %w", err)
		}
		return nil
	})
}

const conversationSummaryQuery = `SELECT c.phone, c.current_flow, c.started_at, c.last_message_at, c.message_count,
	COALESCE(cu.name, ''), COALESCE(cu.business_name, ''), COALESCE(cu.customer_type, '')
	FROM conversations c LEFT JOIN customers cu ON cu.phone = c.phone`

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var c models.Conversation
	err := row.Scan(&c.Phone, &c.CurrentFlow, &c.StartedAt, &c.LastMessageAt, &c.MessageCount,
		&c.CustomerName, &c.BusinessName, &c.CustomerType)
	if err != nil {
		return nil, err
	}
	if c.CustomerName == "" {
		c.CustomerName = c.BusinessName
	}
	return &c, nil
}

// GetConversation returns the full log with messages and interactions.
func (s *sqlStore) GetConversation(ctx context.Context, phone string) (*models.Conversation, error) {
	c, err := scanConversation(s.db.QueryRowContext(ctx, s.q(conversationSummaryQuery+` WHERE c.phone = ?`), phone))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation %s: %w", phone, err)
	}

	rows, err := s.db.QueryContext(ctx, s.q(`SELECT role, text, at FROM conversation_messages WHERE phone = ? ORDER BY id`), phone)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation messages: %w", err)
	}
	for rows.Next() {
		var m models.LoggedMessage
		if err := rows.Scan(&m.Role, &m.Text, &m.Timestamp); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan conversation message: %w", err)
		}
		c.Messages = append(c.Messages, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, s.q(`SELECT kind, content, at FROM conversation_interactions WHERE phone = ? ORDER BY id`), phone)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation interactions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var in models.Interaction
		if err := rows.Scan(&in.Type, &in.Content, &in.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		c.Interactions = append(c.Interactions, in)
	}
	return c, rows.Err()
}

// ListConversations returns enriched summaries, most recent activity first.
func (s *sqlStore) ListConversations(ctx context.Context, f models.ConversationFilter) ([]models.Conversation, error) {
	query := conversationSummaryQuery
	var args []interface{}
	if f.Phones != nil {
		if len(f.Phones) == 0 {
			return nil, nil
		}
		var clause string
		clause, args = inClause("c.phone", f.Phones, args)
		query += " WHERE " + clause
	}
	query += " ORDER BY c.last_message_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()
	var out []models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *sqlStore) HasConversation(ctx context.Context, phone string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM conversations WHERE phone = ?`), phone).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check conversation %s: %w", phone, err)
	}
	return n > 0, nil
}
