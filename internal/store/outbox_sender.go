package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// OutboxSendFunc delivers one queued notification.
type OutboxSendFunc func(ctx context.Context, msg OutboxMessage) error

// maxNotificationAttempts is how often an order notification is retried
// before it is left failed for an operator to see.
const maxNotificationAttempts = 6

// OutboxSender retries order notifications that could not be delivered
// inline: the "pedido tomado" message to the customer and the new-order alert
// to the coordinator. Each claimed message is handed to the send func; on
// failure it is parked with a doubling delay until maxNotificationAttempts.
type OutboxSender struct {
	repo           OutboxRepo
	send           OutboxSendFunc
	pollInterval   time.Duration
	staleThreshold time.Duration
	claimLimit     int
	retry          retryPolicy
	now            func() time.Time
}

// NewOutboxSender creates a sender polling every pollInterval (5s when zero).
func NewOutboxSender(repo OutboxRepo, send OutboxSendFunc, pollInterval time.Duration) *OutboxSender {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &OutboxSender{
		repo:           repo,
		send:           send,
		pollInterval:   pollInterval,
		staleThreshold: 5 * time.Minute,
		claimLimit:     10,
		retry:          notificationRetry,
		now:            time.Now,
	}
}

// RecoverStaleMessages requeues notifications a crashed process left in the
// sending state. Call it once before Run.
func (s *OutboxSender) RecoverStaleMessages() error {
	n, err := s.repo.RequeueStaleSendingMessages(s.now().Add(-s.staleThreshold))
	if err != nil {
		return fmt.Errorf("failed to requeue stale notifications: %w", err)
	}
	if n > 0 {
		slog.Info("OutboxSender.RecoverStaleMessages: requeued", "count", n)
	}
	return nil
}

// Run polls for due notifications until ctx is canceled.
func (s *OutboxSender) Run(ctx context.Context) {
	slog.Info("OutboxSender.Run: started", "pollInterval", s.pollInterval)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("OutboxSender.Run: stopped")
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *OutboxSender) poll(ctx context.Context) {
	now := s.now()
	msgs, err := s.repo.ClaimDueOutboxMessages(now, s.claimLimit)
	if err != nil {
		slog.Error("OutboxSender.poll: claim failed", "error", err)
		return
	}
	for _, msg := range msgs {
		s.deliver(ctx, msg, now)
	}
}

func (s *OutboxSender) deliver(ctx context.Context, msg OutboxMessage, now time.Time) {
	if err := s.send(ctx, msg); err != nil {
		attempt := msg.Attempts + 1
		slog.Warn("OutboxSender: notification failed", "id", msg.ID, "kind", msg.Kind, "to", msg.Recipient,
			"attempt", attempt, "maxAttempts", maxNotificationAttempts, "error", err)
		next := now.Add(s.retry.delay(msg.Attempts))
		if err := s.repo.FailOutboxMessage(msg.ID, err.Error(), next, maxNotificationAttempts); err != nil {
			slog.Error("OutboxSender: fail failed", "id", msg.ID, "error", err)
		}
		return
	}
	if err := s.repo.MarkOutboxMessageSent(msg.ID); err != nil {
		slog.Error("OutboxSender: mark sent failed", "id", msg.ID, "error", err)
		return
	}
	slog.Info("OutboxSender: notification delivered", "id", msg.ID, "kind", msg.Kind, "to", msg.Recipient)
}
