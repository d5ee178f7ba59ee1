package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avellano/avellano-bot/internal/models"
)

const customerColumns = `phone, name, customer_type, business_name, city, address, contact_person, responsable,
	products_of_interest, policy_accepted, policy_accepted_at, policy_revoked, revoked_at, status,
	registered_at, last_interaction, interaction_count`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCustomer(row rowScanner) (*models.Customer, error) {
	var c models.Customer
	var acceptedAt, revokedAt sql.NullTime
	err := row.Scan(&c.Phone, &c.Name, &c.Type, &c.BusinessName, &c.City, &c.Address, &c.ContactPerson,
		&c.Responsable, &c.ProductsOfInterest, &c.PolicyAccepted, &acceptedAt, &c.PolicyRevoked, &revokedAt,
		&c.Status, &c.RegisteredAt, &c.LastInteraction, &c.InteractionCount)
	if err != nil {
		return nil, err
	}
	if acceptedAt.Valid {
		c.PolicyAcceptedAt = &acceptedAt.Time
	}
	if revokedAt.Valid {
		c.RevokedAt = &revokedAt.Time
	}
	return &c, nil
}

// GetCustomer returns models.ErrNotFound when the phone is unknown.
func (s *sqlStore) GetCustomer(ctx context.Context, phone string) (*models.Customer, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+customerColumns+` FROM customers WHERE phone = ?`), phone)
	c, err := scanCustomer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer %s: %w", phone, err)
	}
	return c, nil
}

// UpsertCustomer inserts or fully replaces a customer. Zero registration and
// interaction times are filled with the current time.
func (s *sqlStore) UpsertCustomer(ctx context.Context, c *models.Customer) error {
	if c.Phone == "" {
		return models.ErrEmptyRecipient
	}
	now := time.Now()
	if c.RegisteredAt.IsZero() {
		c.RegisteredAt = now
	}
	if c.LastInteraction.IsZero() {
		c.LastInteraction = now
	}
	if c.Status == "" {
		c.Status = models.CustomerActive
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO customers (`+customerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (phone) DO UPDATE SET
			name = excluded.name, customer_type = excluded.customer_type, business_name = excluded.business_name,
			city = excluded.city, address = excluded.address, contact_person = excluded.contact_person,
			responsable = excluded.responsable, products_of_interest = excluded.products_of_interest,
			policy_accepted = excluded.policy_accepted, policy_accepted_at = excluded.policy_accepted_at,
			policy_revoked = excluded.policy_revoked, revoked_at = excluded.revoked_at, status = excluded.status,
			last_interaction = excluded.last_interaction, interaction_count = excluded.interaction_count`),
		c.Phone, c.Name, string(c.Type), c.BusinessName, c.City, c.Address, c.ContactPerson, string(c.Responsable),
		c.ProductsOfInterest, c.PolicyAccepted, c.PolicyAcceptedAt, c.PolicyRevoked, c.RevokedAt, string(c.Status),
		c.RegisteredAt, c.LastInteraction, c.InteractionCount)
	if err != nil {
		slog.Error(s.name+".UpsertCustomer failed", "phone", c.Phone, "error", err)
		return fmt.Errorf("failed to upsert customer %s: %w", c.Phone, err)
	}
	slog.Debug(s.name+".UpsertCustomer succeeded", "phone", c.Phone, "type", c.Type)
	return nil
}

// TouchCustomer is a no-op for unknown phones.
func (s *sqlStore) TouchCustomer(ctx context.Context, phone string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE customers SET last_interaction = ?, interaction_count = interaction_count + 1 WHERE phone = ?`), at, phone)
	if err != nil {
		return fmt.Errorf("failed to touch customer %s: %w", phone, err)
	}
	return nil
}

// ListCustomers returns customers newest first.
func (s *sqlStore) ListCustomers(ctx context.Context, f models.CustomerFilter) ([]models.Customer, error) {
	var where []string
	var args []interface{}
	if f.Responsable != "" {
		where = append(where, "responsable = ?")
		args = append(args, string(f.Responsable))
	}
	if f.Type != "" {
		where = append(where, "customer_type = ?")
		args = append(args, string(f.Type))
	}
	if f.BusinessOnly {
		where = append(where, "customer_type <> ?")
		args = append(args, string(models.CustomerHome))
	}
	if f.ConsentingOnly {
		where = append(where, "policy_accepted = ? AND policy_revoked = ? AND status = ?")
		args = append(args, true, false, string(models.CustomerActive))
	}
	if f.Cities != nil {
		if len(f.Cities) == 0 {
			return nil, nil
		}
		lowered := make([]string, len(f.Cities))
		for i, c := range f.Cities {
			lowered[i] = strings.ToLower(strings.TrimSpace(c))
		}
		var clause string
		clause, args = inClause("LOWER(city)", lowered, args)
		where = append(where, clause)
	}
	if f.Types != nil {
		if len(f.Types) == 0 {
			return nil, nil
		}
		var clause string
		clause, args = inClause("customer_type", f.Types, args)
		where = append(where, clause)
	}
	if f.Phones != nil {
		if len(f.Phones) == 0 {
			return nil, nil
		}
		var clause string
		clause, args = inClause("phone", f.Phones, args)
		where = append(where, clause)
	}

	query := `SELECT ` + customerColumns + ` FROM customers`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY registered_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var out []models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate customer rows: %w", err)
	}
	slog.Debug(s.name+".ListCustomers succeeded", "count", len(out))
	return out, nil
}

// DeleteCustomer is the administrative hard delete. Orders and the conversation
// log are kept for audit.
func (s *sqlStore) DeleteCustomer(ctx context.Context, phone string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM customers WHERE phone = ?`), phone)
	if err != nil {
		return fmt.Errorf("failed to delete customer %s: %w", phone, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	slog.Info(s.name+".DeleteCustomer succeeded", "phone", phone)
	return nil
}
