package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// JobHandler executes one job kind. It receives the job's payload JSON.
type JobHandler func(ctx context.Context, payload string) error

// unhandledJobDelay parks a job whose kind has no handler in this process,
// e.g. a broadcast enqueued by a newer deployment.
const unhandledJobDelay = time.Hour

// JobRunner executes durable jobs. Programmed broadcasts (programadoPara) are
// the main kind: the broadcast service enqueues one job per broadcast and
// handles it when due. A job left running by a crashed process is requeued at
// startup, so handlers must tolerate redelivery.
type JobRunner struct {
	repo           JobRepo
	mu             sync.RWMutex
	handlers       map[string]JobHandler
	pollInterval   time.Duration
	staleThreshold time.Duration
	claimLimit     int
	retry          retryPolicy
	now            func() time.Time
}

// NewJobRunner creates a runner polling every pollInterval (10s when zero).
func NewJobRunner(repo JobRepo, pollInterval time.Duration) *JobRunner {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &JobRunner{
		repo:           repo,
		handlers:       make(map[string]JobHandler),
		pollInterval:   pollInterval,
		staleThreshold: 5 * time.Minute,
		claimLimit:     10,
		retry:          broadcastRetry,
		now:            time.Now,
	}
}

// RegisterHandler binds kind to handler, replacing any previous one.
func (r *JobRunner) RegisterHandler(kind string, handler JobHandler) {
	r.mu.Lock()
	r.handlers[kind] = handler
	r.mu.Unlock()
	slog.Debug("JobRunner.RegisterHandler", "kind", kind)
}

func (r *JobRunner) handler(kind string) (JobHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// RecoverStaleJobs requeues jobs that were still running when the previous
// process died. Call it once before Run.
func (r *JobRunner) RecoverStaleJobs() error {
	n, err := r.repo.RequeueStaleRunningJobs(r.now().Add(-r.staleThreshold))
	if err != nil {
		return fmt.Errorf("failed to requeue stale jobs: %w", err)
	}
	if n > 0 {
		slog.Info("JobRunner.RecoverStaleJobs: requeued", "count", n)
	}
	return nil
}

// Run polls for due jobs until ctx is canceled.
func (r *JobRunner) Run(ctx context.Context) {
	slog.Info("JobRunner.Run: started", "pollInterval", r.pollInterval)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("JobRunner.Run: stopped")
			return
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

func (r *JobRunner) poll(ctx context.Context) {
	now := r.now()
	jobs, err := r.repo.ClaimDueJobs(now, r.claimLimit)
	if err != nil {
		slog.Error("JobRunner.poll: claim failed", "error", err)
		return
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			// Claimed but unstarted jobs go back through RecoverStaleJobs.
			return
		}
		r.runOne(ctx, job, now)
	}
}

func (r *JobRunner) runOne(ctx context.Context, job Job, now time.Time) {
	handler, ok := r.handler(job.Kind)
	if !ok {
		slog.Warn("JobRunner: no handler for kind", "id", job.ID, "kind", job.Kind)
		r.fail(job, "no handler registered for kind: "+job.Kind, now.Add(unhandledJobDelay))
		return
	}

	slog.Debug("JobRunner: executing", "id", job.ID, "kind", job.Kind, "attempt", job.Attempt)
	if err := r.execute(ctx, handler, job); err != nil {
		next := now.Add(r.retry.delay(job.Attempt))
		slog.Error("JobRunner: job failed", "id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "nextRun", next, "error", err)
		r.fail(job, err.Error(), next)
		return
	}
	if err := r.repo.CompleteJob(job.ID); err != nil {
		slog.Error("JobRunner: complete failed", "id", job.ID, "error", err)
		return
	}
	slog.Debug("JobRunner: job done", "id", job.ID, "kind", job.Kind)
}

func (r *JobRunner) fail(job Job, reason string, next time.Time) {
	if err := r.repo.FailJob(job.ID, reason, next); err != nil {
		slog.Error("JobRunner: fail failed", "id", job.ID, "error", err)
	}
}

// execute runs a handler, turning a panic into a job failure.
func (r *JobRunner) execute(ctx context.Context, handler JobHandler, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, rec)
		}
	}()
	return handler(ctx, job.PayloadJSON)
}
