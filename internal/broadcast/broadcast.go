// Package broadcast sends bulk messages ("eventos") to consenting customers,
// immediately, at a programmed time through the durable job queue, or on a
// recurring cron schedule.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/scheduler"
	"github.com/avellano/avellano-bot/internal/store"
)

// JobKind is the durable job kind for programmed broadcasts.
const JobKind = "broadcast"

var (
	// ErrInvalidBroadcast is returned when a broadcast request is incomplete.
	ErrInvalidBroadcast = errors.New("invalid broadcast")
	// ErrSchedulingUnavailable is returned when a programmed or recurring
	// broadcast is requested but no job queue or scheduler is configured.
	ErrSchedulingUnavailable = errors.New("broadcast scheduling is not configured")
)

// Sender delivers one message.
type Sender interface {
	SendMessage(ctx context.Context, to string, msg models.OutboundMessage) error
}

// Request describes a new broadcast.
type Request struct {
	Name         string          `json:"nombre" validate:"required"`
	Message      string          `json:"mensaje" validate:"required"`
	Audience     models.Audience `json:"filtros" validate:"required"`
	ScheduledFor *time.Time      `json:"programadoPara,omitempty"`
	Cron         string          `json:"cron,omitempty"`
}

type jobPayload struct {
	BroadcastID string `json:"broadcastId"`
}

// Opts holds optional collaborators of the Service.
type Opts struct {
	Jobs      store.JobRepo
	Scheduler *scheduler.Scheduler
	Now       func() time.Time
}

// Option configures a Service.
type Option func(*Opts)

// WithJobs enables programmed broadcasts through the durable job queue.
func WithJobs(jobs store.JobRepo) Option {
	return func(o *Opts) { o.Jobs = jobs }
}

// WithScheduler enables recurring broadcasts.
func WithScheduler(s *scheduler.Scheduler) Option {
	return func(o *Opts) { o.Scheduler = s }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Service creates and delivers broadcasts.
type Service struct {
	repo      store.BroadcastRepo
	customers store.CustomerRepo
	sender    Sender
	jobs      store.JobRepo
	sched     *scheduler.Scheduler
	now       func() time.Time

	mu        sync.Mutex
	recurring map[string]scheduler.EntryID
}

// NewService creates a broadcast service.
func NewService(repo store.BroadcastRepo, customers store.CustomerRepo, sender Sender, opts ...Option) *Service {
	cfg := Opts{Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Service{
		repo:      repo,
		customers: customers,
		sender:    sender,
		jobs:      cfg.Jobs,
		sched:     cfg.Scheduler,
		now:       cfg.Now,
		recurring: make(map[string]scheduler.EntryID),
	}
}

func validate(req Request) error {
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Message) == "" {
		return fmt.Errorf("%w: name and message are required", ErrInvalidBroadcast)
	}
	a := req.Audience
	switch a.Kind {
	case models.AudienceAll, models.AudienceHome, models.AudienceBusiness:
	case models.AudienceCity:
		if len(a.Cities) == 0 {
			return fmt.Errorf("%w: ciudades is required for tipo ciudad", ErrInvalidBroadcast)
		}
	case models.AudienceType:
		if len(a.Types) == 0 {
			return fmt.Errorf("%w: tiposCliente is required for tipo tipo", ErrInvalidBroadcast)
		}
		for _, t := range a.Types {
			if !t.IsValid() {
				return fmt.Errorf("%w: unknown customer type %q", ErrInvalidBroadcast, t)
			}
		}
	case models.AudienceCustom:
		if len(a.Phones) == 0 {
			return fmt.Errorf("%w: telefonos is required for tipo personalizado", ErrInvalidBroadcast)
		}
	default:
		return fmt.Errorf("%w: unknown audience %q", ErrInvalidBroadcast, a.Kind)
	}
	if req.Cron != "" && req.ScheduledFor != nil {
		return fmt.Errorf("%w: programadoPara and cron are exclusive", ErrInvalidBroadcast)
	}
	if req.Cron != "" {
		if err := scheduler.Validate(req.Cron); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidBroadcast, err)
		}
	}
	return nil
}

// Create stores a broadcast and sends, programs or schedules it.
func (s *Service) Create(ctx context.Context, req Request, createdBy string) (*models.Broadcast, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	b := &models.Broadcast{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Message:   req.Message,
		Audience:  req.Audience,
		Cron:      req.Cron,
		Status:    models.BroadcastDraft,
		CreatedBy: createdBy,
		CreatedAt: s.now(),
	}
	programmed := req.ScheduledFor != nil && req.ScheduledFor.After(s.now())
	switch {
	case b.Cron != "":
		if s.sched == nil {
			return nil, ErrSchedulingUnavailable
		}
		b.Status = models.BroadcastRecurring
	case programmed:
		if s.jobs == nil {
			return nil, ErrSchedulingUnavailable
		}
		at := *req.ScheduledFor
		b.ScheduledFor = &at
		b.Status = models.BroadcastScheduled
	}
	if err := s.repo.CreateBroadcast(ctx, b); err != nil {
		return nil, err
	}

	switch b.Status {
	case models.BroadcastRecurring:
		if err := s.register(b); err != nil {
			return nil, err
		}
	case models.BroadcastScheduled:
		payload, _ := json.Marshal(jobPayload{BroadcastID: b.ID})
		jobID, err := s.jobs.EnqueueJob(JobKind, *b.ScheduledFor, string(payload), "broadcast:"+b.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to program broadcast: %w", err)
		}
		slog.Info("Broadcast.Create: programmed", "id", b.ID, "runAt", b.ScheduledFor, "job", jobID)
	default:
		if err := s.Deliver(ctx, b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Recipients resolves the audience to active customers with accepted consent.
func (s *Service) Recipients(ctx context.Context, a models.Audience) ([]models.Customer, error) {
	f := models.CustomerFilter{ConsentingOnly: true}
	switch a.Kind {
	case models.AudienceHome:
		f.Type = models.CustomerHome
	case models.AudienceBusiness:
		f.BusinessOnly = true
	case models.AudienceCity:
		f.Cities = a.Cities
	case models.AudienceType:
		f.Types = a.Types
	case models.AudienceCustom:
		f.Phones = a.Phones
	}
	return s.customers.ListCustomers(ctx, f)
}

// Deliver sends b to its current recipients and records the counts. For
// recurring broadcasts the counts accumulate across runs.
func (s *Service) Deliver(ctx context.Context, b *models.Broadcast) error {
	recipients, err := s.Recipients(ctx, b.Audience)
	if err != nil {
		return fmt.Errorf("failed to resolve broadcast recipients: %w", err)
	}
	var counts models.DeliveryCounts
	msg := models.Text(b.Message)
	for _, c := range recipients {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.sender.SendMessage(ctx, c.Phone, msg); err != nil {
			slog.Warn("Broadcast.Deliver: send failed", "id", b.ID, "phone", c.Phone, "error", err)
			counts.Failed++
			continue
		}
		counts.Sent++
	}
	now := s.now()
	b.SentAt = &now
	if b.Status == models.BroadcastRecurring {
		b.Counts.Sent += counts.Sent
		b.Counts.Failed += counts.Failed
	} else {
		b.Counts = counts
		b.Status = models.BroadcastSent
		if counts.Sent == 0 && counts.Failed > 0 {
			b.Status = models.BroadcastFailed
		}
	}
	slog.Info("Broadcast.Deliver", "id", b.ID, "recipients", len(recipients), "sent", counts.Sent, "failed", counts.Failed)
	return s.repo.UpdateBroadcast(ctx, b)
}

// HandleJob delivers a programmed broadcast. It is registered with the
// store.JobRunner under JobKind.
func (s *Service) HandleJob(ctx context.Context, payload string) error {
	var p jobPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return fmt.Errorf("invalid broadcast job payload: %w", err)
	}
	b, err := s.repo.GetBroadcast(ctx, p.BroadcastID)
	if err != nil {
		return err
	}
	if b.Status != models.BroadcastScheduled {
		slog.Info("Broadcast.HandleJob: already delivered, skipping", "id", b.ID, "status", b.Status)
		return nil
	}
	return s.Deliver(ctx, b)
}

func (s *Service) register(b *models.Broadcast) error {
	id := b.ID
	entry, err := s.sched.AddJob("broadcast:"+id, b.Cron, func() {
		ctx := context.Background()
		cur, err := s.repo.GetBroadcast(ctx, id)
		if err != nil {
			slog.Error("Broadcast: recurring run failed to load broadcast", "id", id, "error", err)
			return
		}
		if err := s.Deliver(ctx, cur); err != nil {
			slog.Error("Broadcast: recurring run failed", "id", id, "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.recurring[id] = entry
	s.mu.Unlock()
	return nil
}

// RestoreRecurring re-registers recurring broadcasts after a restart.
func (s *Service) RestoreRecurring(ctx context.Context) error {
	if s.sched == nil {
		return nil
	}
	all, err := s.repo.ListBroadcasts(ctx)
	if err != nil {
		return err
	}
	for i := range all {
		b := &all[i]
		if b.Status != models.BroadcastRecurring || b.Cron == "" {
			continue
		}
		s.mu.Lock()
		_, done := s.recurring[b.ID]
		s.mu.Unlock()
		if done {
			continue
		}
		if err := s.register(b); err != nil {
			slog.Error("Broadcast.RestoreRecurring: failed to schedule", "id", b.ID, "error", err)
		}
	}
	return nil
}

// List returns every broadcast, newest first.
func (s *Service) List(ctx context.Context) ([]models.Broadcast, error) {
	return s.repo.ListBroadcasts(ctx)
}

// Get returns one broadcast.
func (s *Service) Get(ctx context.Context, id string) (*models.Broadcast, error) {
	return s.repo.GetBroadcast(ctx, id)
}
