package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/store"
)

// Dispatcher runs the conversation for one inbound message.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg models.InboundMessage) error
}

// InboxOption configures an Inbox.
type InboxOption func(*Inbox)

// WithDedup drops messages whose provider id was already recorded.
func WithDedup(repo store.DedupRepo) InboxOption {
	return func(in *Inbox) { in.dedup = repo }
}

// Inbox consumes a Service's Responses. Messages from different users are
// handled concurrently; messages from the same user are handled one at a
// time, in arrival order.
type Inbox struct {
	svc        Service
	dispatcher Dispatcher
	dedup      store.DedupRepo

	mu     sync.Mutex
	queues map[string][]models.InboundMessage // present while a worker drains the phone
	wg     sync.WaitGroup
}

// NewInbox creates an Inbox reading from svc and dispatching to d.
func NewInbox(svc Service, d Dispatcher, opts ...InboxOption) *Inbox {
	in := &Inbox{svc: svc, dispatcher: d, queues: make(map[string][]models.InboundMessage)}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Start begins processing responses until the channel closes or ctx is done.
func (in *Inbox) Start(ctx context.Context) {
	slog.Info("Inbox starting response processing")
	go func() {
		defer slog.Info("Inbox stopped response processing")
		for {
			select {
			case msg, ok := <-in.svc.Responses():
				if !ok {
					slog.Debug("Inbox responses channel closed")
					return
				}
				in.Enqueue(ctx, msg)
			case <-ctx.Done():
				slog.Debug("Inbox stopping due to context cancellation")
				return
			}
		}
	}()
}

// Enqueue queues msg behind earlier messages from the same sender and starts
// a worker for the sender if none is running.
func (in *Inbox) Enqueue(ctx context.Context, msg models.InboundMessage) {
	from, err := in.svc.ValidateAndCanonicalizeRecipient(msg.From)
	if err != nil {
		slog.Warn("Inbox dropping message with invalid sender", "error", err, "from", msg.From)
		return
	}
	msg.From = from

	in.mu.Lock()
	q, busy := in.queues[from]
	in.queues[from] = append(q, msg)
	if !busy {
		in.wg.Add(1)
	}
	in.mu.Unlock()
	if !busy {
		go in.drain(ctx, from)
	}
}

func (in *Inbox) drain(ctx context.Context, phone string) {
	defer in.wg.Done()
	for {
		in.mu.Lock()
		q := in.queues[phone]
		if len(q) == 0 {
			delete(in.queues, phone)
			in.mu.Unlock()
			return
		}
		msg := q[0]
		in.queues[phone] = q[1:]
		in.mu.Unlock()

		if err := in.Process(ctx, msg); err != nil {
			slog.Error("Inbox failed to process message", "error", err, "from", phone)
		}
	}
}

// Wait blocks until every queued message has been handled.
func (in *Inbox) Wait() {
	in.wg.Wait()
}

// Process handles one message: canonicalizes the sender, drops duplicates
// and dispatches. Panics in the dispatcher are returned as errors.
func (in *Inbox) Process(ctx context.Context, msg models.InboundMessage) (err error) {
	from, err := in.svc.ValidateAndCanonicalizeRecipient(msg.From)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	msg.From = from

	if in.dedup != nil && msg.ID != "" {
		fresh, err := in.dedup.RecordInbound(msg.ID, from)
		if err != nil {
			slog.Error("Inbox dedup check failed, processing anyway", "error", err, "id", msg.ID)
		} else if !fresh {
			slog.Info("Inbox dropping duplicate message", "id", msg.ID, "from", from)
			return nil
		}
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Inbox recovered from panic", "from", from, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic handling message from %s: %v", from, r)
		}
	}()

	if err := in.dispatcher.Dispatch(ctx, msg); err != nil {
		return fmt.Errorf("dispatch failed: %w", err)
	}
	if in.dedup != nil && msg.ID != "" {
		if err := in.dedup.MarkProcessed(msg.ID); err != nil {
			slog.Warn("Inbox failed to mark message processed", "error", err, "id", msg.ID)
		}
	}
	return nil
}
