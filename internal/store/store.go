// Package store provides the persistence layer for the Avellano bot.
//
// Customers, orders, conversation logs, dashboard users, broadcasts, sessions
// and the outbox/job/dedup machinery live in a relational database reached
// through database/sql. SQLite (github.com/mattn/go-sqlite3) is the default
// backend; a postgres:// DSN selects PostgreSQL (github.com/lib/pq). Both share
// one implementation and differ only in placeholder syntax and row claiming.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/avellano/avellano-bot/internal/models"
)

// Opts holds configuration for a store backend.
type Opts struct {
	DSN string
}

// Option configures a store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path (or go-sqlite3 DSN).
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL URLs or keyword DSNs and
// "sqlite3" for everything else.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(d, "host=") || strings.Contains(d, "dbname=") || strings.Contains(d, "user=") {
		return "postgres"
	}
	return "sqlite3"
}

// CustomerRepo persists customers.
type CustomerRepo interface {
	GetCustomer(ctx context.Context, phone string) (*models.Customer, error)
	UpsertCustomer(ctx context.Context, c *models.Customer) error
	// TouchCustomer bumps the interaction counter and last-interaction time of an existing customer.
	TouchCustomer(ctx context.Context, phone string, at time.Time) error
	ListCustomers(ctx context.Context, f models.CustomerFilter) ([]models.Customer, error)
	DeleteCustomer(ctx context.Context, phone string) error
}

// OrderRepo persists orders and their append-only history.
type OrderRepo interface {
	// NextOrderSequence returns the next per-day counter, starting at 1.
	NextOrderSequence(ctx context.Context, day time.Time) (int, error)
	CreateOrder(ctx context.Context, o *models.Order) error
	// GetOrder looks an order up by internal id or by its AV- code.
	GetOrder(ctx context.Context, idOrCode string) (*models.Order, error)
	GetOrderByCode(ctx context.Context, code string) (*models.Order, error)
	// ListOrdersByPhone returns a customer's most recent orders first.
	ListOrdersByPhone(ctx context.Context, phone string, limit int) ([]models.Order, error)
	ListOrders(ctx context.Context, f models.OrderFilter) ([]models.Order, error)
	CountOrdersByState(ctx context.Context, f models.OrderFilter) (map[models.OrderState]int, error)
	// TransitionOrder applies a state change atomically. It fails with
	// models.ErrInvalidTransition if the order changed state concurrently.
	TransitionOrder(ctx context.Context, idOrCode string, to models.OrderState, change models.StateChange) (*models.Order, error)
}

// ConversationRepo persists conversation logs.
type ConversationRepo interface {
	AppendMessage(ctx context.Context, phone string, msg models.LoggedMessage) error
	AddInteraction(ctx context.Context, phone string, in models.Interaction) error
	SetCurrentFlow(ctx context.Context, phone, flow string) error
	// HasConversation reports whether any message was ever logged for phone.
	HasConversation(ctx context.Context, phone string) (bool, error)
	GetConversation(ctx context.Context, phone string) (*models.Conversation, error)
	ListConversations(ctx context.Context, f models.ConversationFilter) ([]models.Conversation, error)
}

// UserRepo persists dashboard accounts.
type UserRepo interface {
	CountUsers(ctx context.Context) (int, error)
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	SetRefreshToken(ctx context.Context, id, token string) error
	TouchLastAccess(ctx context.Context, id string, at time.Time) error
	DeleteUser(ctx context.Context, id string) error
}

// BroadcastRepo persists bulk message campaigns.
type BroadcastRepo interface {
	CreateBroadcast(ctx context.Context, b *models.Broadcast) error
	UpdateBroadcast(ctx context.Context, b *models.Broadcast) error
	GetBroadcast(ctx context.Context, id string) (*models.Broadcast, error)
	ListBroadcasts(ctx context.Context) ([]models.Broadcast, error)
}

// SessionRepo persists conversational session maps.
type SessionRepo interface {
	GetSession(ctx context.Context, phone string) (map[string]string, error)
	SaveSession(ctx context.Context, phone string, values map[string]string) error
	DeleteSession(ctx context.Context, phone string) error
}

// Store is the full persistence surface used by the bot and the dashboard.
type Store interface {
	CustomerRepo
	OrderRepo
	ConversationRepo
	UserRepo
	BroadcastRepo
	SessionRepo
	OutboxRepo
	JobRepo
	DedupRepo
	Close() error
}

// Open creates the backend matching the DSN.
func Open(dsn string) (Store, error) {
	if DetectDSNType(dsn) == "postgres" {
		return NewPostgresStore(WithPostgresDSN(dsn))
	}
	return NewSQLiteStore(WithSQLiteDSN(dsn))
}

// sqlStore holds the dialect-neutral implementation. Queries are written with
// '?' placeholders and rebound for PostgreSQL.
type sqlStore struct {
	db       *sql.DB
	name     string
	postgres bool
}

// Close closes the underlying database.
func (s *sqlStore) Close() error {
	return s.db.Close()
}

// q rebinds a query to the backend's placeholder syntax.
func (s *sqlStore) q(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// inClause renders "col IN (?, ?, ...)" and appends the values to args.
func inClause[T ~string](col string, values []T, args []interface{}) (string, []interface{}) {
	ph := make([]string, len(values))
	for i, v := range values {
		ph[i] = "?"
		args = append(args, string(v))
	}
	return fmt.Sprintf("%s IN (%s)", col, strings.Join(ph, ", ")), args
}

// withTx runs fn inside a transaction, committing on success.
func (s *sqlStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
