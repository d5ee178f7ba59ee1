// Package orders applies the order lifecycle: placing new orders from the bot
// and moving them through pendiente, en_proceso, atendido and cancelado on
// behalf of dashboard operators.
package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/store"
)

// Outbox kinds enqueued by this package.
const (
	OutboxKindOrderTaken  = "order_taken"
	OutboxKindNewOrder    = "order_new_coordinator"
	customerOrderLookback = 5
)

// Notifier delivers WhatsApp messages.
type Notifier interface {
	SendMessage(ctx context.Context, to string, msg models.OutboundMessage) error
}

// Operator identifies the dashboard user performing a transition.
type Operator struct {
	ID    string
	Email string
}

// Result reports a transition and the outcome of the customer notification.
// A failed notification never undoes the transition.
type Result struct {
	Order       *models.Order `json:"pedido"`
	Notified    bool          `json:"notified"`
	NotifyError string        `json:"notifyError,omitempty"`
}

// Service places and transitions orders.
type Service struct {
	orders   store.OrderRepo
	outbox   store.OutboxRepo
	notifier Notifier
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithOutbox enables durable retries for notifications that fail inline.
func WithOutbox(outbox store.OutboxRepo) Option {
	return func(s *Service) { s.outbox = outbox }
}

// NewService creates an order service. notifier may be nil, in which case
// no WhatsApp notifications are attempted.
func NewService(orders store.OrderRepo, notifier Notifier, opts ...Option) *Service {
	s := &Service{orders: orders, notifier: notifier, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Place creates a pending order for c with a fresh AV- code and alerts the
// assigned coordinator.
func (s *Service) Place(ctx context.Context, c *models.Customer, lines []models.OrderLine) (*models.Order, error) {
	now := s.now()
	seq, err := s.orders.NextOrderSequence(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate order code: %w", err)
	}
	o, err := models.NewOrder(uuid.NewString(), models.FormatOrderCode(now, seq), models.SnapshotOf(c), lines,
		CoordinatorForCustomer(c), now)
	if err != nil {
		return nil, err
	}
	if err := s.orders.CreateOrder(ctx, o); err != nil {
		return nil, err
	}
	slog.Info("OrderService.Place: order created", "code", o.Code, "phone", o.Phone, "total", o.Total,
		"coordinator", o.CoordinatorName)

	if o.CoordinatorPhone != "" {
		msg := models.Text(coordinatorMessage(o))
		if err := s.notify(ctx, o.CoordinatorPhone, msg, OutboxKindNewOrder, "new:"+o.ID); err != nil {
			slog.Warn("OrderService.Place: coordinator not notified", "code", o.Code, "error", err)
		}
	}
	return o, nil
}

// Transition moves an order to state to on behalf of op.
func (s *Service) Transition(ctx context.Context, idOrCode string, to models.OrderState, op Operator, note string) (*Result, error) {
	if !to.IsValid() {
		return nil, fmt.Errorf("%w: unknown state %q", models.ErrInvalidTransition, to)
	}
	change := models.StateChange{
		State:         to,
		At:            s.now(),
		OperatorID:    op.ID,
		OperatorEmail: op.Email,
		Note:          strings.TrimSpace(note),
	}
	o, err := s.orders.TransitionOrder(ctx, idOrCode, to, change)
	if err != nil {
		return nil, err
	}
	slog.Info("OrderService.Transition succeeded", "code", o.Code, "state", to, "operator", op.Email)

	res := &Result{Order: o}
	if to == models.OrderInProgress {
		err := s.notify(ctx, o.Phone, models.Text(takenMessage(o)), OutboxKindOrderTaken, "taken:"+o.ID)
		if err != nil {
			res.NotifyError = err.Error()
		} else {
			res.Notified = true
		}
	}
	return res, nil
}

// Take moves a pending order to en_proceso and tells the customer.
func (s *Service) Take(ctx context.Context, idOrCode string, op Operator) (*Result, error) {
	return s.Transition(ctx, idOrCode, models.OrderInProgress, op, "")
}

// Fulfill marks an in-progress order as atendido.
func (s *Service) Fulfill(ctx context.Context, idOrCode string, op Operator) (*Result, error) {
	return s.Transition(ctx, idOrCode, models.OrderFulfilled, op, "")
}

// Cancel cancels a non-terminal order. A note is mandatory.
func (s *Service) Cancel(ctx context.Context, idOrCode string, op Operator, note string) (*Result, error) {
	return s.Transition(ctx, idOrCode, models.OrderCanceled, op, note)
}

// Recent returns the customer's latest orders.
func (s *Service) Recent(ctx context.Context, phone string) ([]models.Order, error) {
	return s.orders.ListOrdersByPhone(ctx, phone, customerOrderLookback)
}

// notify sends msg inline and falls back to the outbox on failure. The
// returned error is the inline send error, even when the retry was queued.
func (s *Service) notify(ctx context.Context, to string, msg models.OutboundMessage, kind, dedupeKey string) error {
	if s.notifier == nil {
		return fmt.Errorf("no messaging service configured")
	}
	sendErr := s.notifier.SendMessage(ctx, to, msg)
	if sendErr == nil {
		return nil
	}
	slog.Warn("OrderService notify failed", "to", to, "kind", kind, "error", sendErr)
	if s.outbox == nil {
		return sendErr
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return sendErr
	}
	if id, err := s.outbox.EnqueueOutboxMessage(to, kind, string(payload), dedupeKey); err != nil {
		slog.Error("OrderService notify: outbox enqueue failed", "to", to, "kind", kind, "error", err)
	} else {
		slog.Info("OrderService notify: queued retry", "to", to, "kind", kind, "outboxID", id)
	}
	return sendErr
}

// DeliverOutbox returns an outbox send function that decodes queued
// notifications and sends them through n.
func DeliverOutbox(n Notifier) store.OutboxSendFunc {
	return func(ctx context.Context, m store.OutboxMessage) error {
		var msg models.OutboundMessage
		if err := json.Unmarshal([]byte(m.PayloadJSON), &msg); err != nil {
			return fmt.Errorf("failed to decode outbox payload %s: %w", m.ID, err)
		}
		return n.SendMessage(ctx, m.Recipient, msg)
	}
}
