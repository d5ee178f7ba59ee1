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

const orderColumns = `id, code, phone, customer_type, business_name, city, address, contact_person, total,
	coordinator_name, coordinator_phone, state, created_at, notes, cancel_notes`

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.Code, &o.Phone, &o.CustomerType, &o.BusinessName, &o.City, &o.Address,
		&o.ContactPerson, &o.Total, &o.CoordinatorName, &o.CoordinatorPhone, &o.State, &o.CreatedAt,
		&o.Notes, &o.CancelNotes)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// NextOrderSequence increments the counter for the calendar day of day.
func (s *sqlStore) NextOrderSequence(ctx context.Context, day time.Time) (int, error) {
	key := day.Format("2006-01-02")
	var seq int
	err := s.db.QueryRowContext(ctx, s.q(`INSERT INTO order_sequences (day, last) VALUES (?, 1)
		ON CONFLICT (day) DO UPDATE SET last = order_sequences.last + 1
		RETURNING last`), key).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate order sequence for %s: %w", key, err)
	}
	return seq, nil
}

// CreateOrder stores the order with its lines and history in one transaction.
func (s *sqlStore) CreateOrder(ctx context.Context, o *models.Order) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.q(`INSERT INTO orders (`+orderColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			o.ID, o.Code, o.Phone, string(o.CustomerType), o.BusinessName, o.City, o.Address, o.ContactPerson,
			o.Total, o.CoordinatorName, o.CoordinatorPhone, string(o.State), o.CreatedAt, o.Notes, o.CancelNotes)
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}
		for i, it := range o.Items {
			_, err := tx.ExecContext(ctx, s.q(`INSERT INTO order_items (order_id, position, product, quantity, unit_price, subtotal)
				VALUES (?, ?, ?, ?, ?, ?)`), o.ID, i, it.Product, it.Quantity, it.UnitPrice, it.Subtotal)
			if err != nil {
				return fmt.Errorf("failed to insert order item: %w", err)
			}
		}
		for i, h := range o.History {
			if err := s.insertHistory(ctx, tx, o.ID, i, h); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		slog.Error(s.name+".CreateOrder failed", "code", o.Code, "error", err)
		return err
	}
	slog.Debug(s.name+".CreateOrder succeeded", "code", o.Code, "phone", o.Phone, "total", o.Total)
	return nil
}

func (s *sqlStore) insertHistory(ctx context.Context, q querier, orderID string, seq int, h models.StateChange) error {
	_, err := q.ExecContext(ctx, s.q(`INSERT INTO order_history (order_id, seq, state, at, operator_id, operator_email, note)
		VALUES (?, ?, ?, ?, ?, ?, ?)`), orderID, seq, string(h.State), h.At, h.OperatorID, h.OperatorEmail, h.Note)
	if err != nil {
		return fmt.Errorf("failed to insert order history: %w", err)
	}
	return nil
}

// loadOrder reads the order row and its children through q.
func (s *sqlStore) loadOrder(ctx context.Context, q querier, idOrCode string) (*models.Order, error) {
	row := q.QueryRowContext(ctx, s.q(`SELECT `+orderColumns+` FROM orders WHERE id = ? OR code = ?`), idOrCode, idOrCode)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", idOrCode, err)
	}
	if err := s.loadOrderChildren(ctx, q, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *sqlStore) loadOrderChildren(ctx context.Context, q querier, o *models.Order) error {
	rows, err := q.QueryContext(ctx, s.q(`SELECT product, quantity, unit_price, subtotal FROM order_items WHERE order_id = ? ORDER BY position`), o.ID)
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	for rows.Next() {
		var it models.LineItem
		if err := rows.Scan(&it.Product, &it.Quantity, &it.UnitPrice, &it.Subtotal); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate order items: %w", err)
	}

	rows, err = q.QueryContext(ctx, s.q(`SELECT state, at, operator_id, operator_email, note FROM order_history WHERE order_id = ? ORDER BY seq`), o.ID)
	if err != nil {
		return fmt.Errorf("failed to query order history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h models.StateChange
		if err := rows.Scan(&h.State, &h.At, &h.OperatorID, &h.OperatorEmail, &h.Note); err != nil {
			return fmt.Errorf("failed to scan order history: %w", err)
		}
		o.History = append(o.History, h)
	}
	return rows.Err()
}

// GetOrder returns models.ErrNotFound for unknown ids and codes.
func (s *sqlStore) GetOrder(ctx context.Context, idOrCode string) (*models.Order, error) {
	return s.loadOrder(ctx, s.db, idOrCode)
}

// GetOrderByCode looks an order up by its human AV- code only.
func (s *sqlStore) GetOrderByCode(ctx context.Context, code string) (*models.Order, error) {
	o, err := s.GetOrder(ctx, code)
	if err != nil {
		return nil, err
	}
	if o.Code != code {
		return nil, models.ErrNotFound
	}
	return o, nil
}

func (s *sqlStore) ListOrdersByPhone(ctx context.Context, phone string, limit int) ([]models.Order, error) {
	return s.ListOrders(ctx, models.OrderFilter{Phone: phone, Limit: limit})
}

func orderWhere(f models.OrderFilter) (string, []interface{}, bool) {
	var where []string
	var args []interface{}
	if f.State != "" {
		where = append(where, "state = ?")
		args = append(args, string(f.State))
	}
	if f.Phone != "" {
		where = append(where, "phone = ?")
		args = append(args, f.Phone)
	}
	if f.Phones != nil {
		if len(f.Phones) == 0 {
			return "", nil, false
		}
		var clause string
		clause, args = inClause("phone", f.Phones, args)
		where = append(where, clause)
	}
	if len(where) == 0 {
		return "", args, true
	}
	return " WHERE " + strings.Join(where, " AND "), args, true
}

// ListOrders returns orders newest first, with lines and history.
func (s *sqlStore) ListOrders(ctx context.Context, f models.OrderFilter) ([]models.Order, error) {
	where, args, ok := orderWhere(f)
	if !ok {
		return nil, nil
	}
	query := `SELECT ` + orderColumns + ` FROM orders` + where + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	var out []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		out = append(out, *o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order rows: %w", err)
	}
	for i := range out {
		if err := s.loadOrderChildren(ctx, s.db, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CountOrdersByState groups the filtered orders by state.
func (s *sqlStore) CountOrdersByState(ctx context.Context, f models.OrderFilter) (map[models.OrderState]int, error) {
	counts := make(map[models.OrderState]int)
	where, args, ok := orderWhere(f)
	if !ok {
		return counts, nil
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT state, COUNT(*) FROM orders`+where+` GROUP BY state`), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st models.OrderState
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("failed to scan order count: %w", err)
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

// TransitionOrder validates the change against the stored state and persists it
// with a compare-and-set on the previous state.
func (s *sqlStore) TransitionOrder(ctx context.Context, idOrCode string, to models.OrderState, change models.StateChange) (*models.Order, error) {
	var result *models.Order
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		o, err := s.loadOrder(ctx, tx, idOrCode)
		if err != nil {
			return err
		}
		from := o.State
		if change.At.IsZero() {
			change.At = time.Now()
		}
		if err := o.Transition(to, change); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.q(`UPDATE orders SET state = ?, cancel_notes = ? WHERE id = ? AND state = ?`),
			string(o.State), o.CancelNotes, o.ID, string(from))
		if err != nil {
			return fmt.Errorf("failed to update order state: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("%w: order %s changed concurrently", models.ErrInvalidTransition, o.Code)
		}
		if err := s.insertHistory(ctx, tx, o.ID, len(o.History)-1, o.History[len(o.History)-1]); err != nil {
			return err
		}
		result = o
		return nil
	})
	if err != nil {
		slog.Warn(s.name+".TransitionOrder rejected", "order", idOrCode, "to", to, "error", err)
		return nil, err
	}
	slog.Info(s.name+".TransitionOrder succeeded", "code", result.Code, "state", result.State, "operator", change.OperatorEmail)
	return result, nil
}
