// Package scheduler runs recurring tasks for the Avellano bot.
//
// Recurring broadcasts and the nightly dedup prune are registered here using
// standard 5-field cron expressions.
package scheduler

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// EntryID identifies a scheduled task.
type EntryID = cron.EntryID

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate reports whether expr is a valid 5-field cron expression.
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Scheduler provides cron-based task scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler. Panicking tasks are recovered.
func NewScheduler() *Scheduler {
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules task under expr and returns its entry id.
func (s *Scheduler) AddJob(name, expr string, task func()) (EntryID, error) {
	id, err := s.cron.AddFunc(expr, func() {
		slog.Debug("Scheduler: running task", "name", name)
		task()
	})
	if err != nil {
		return 0, fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	slog.Info("Scheduler.AddJob", "name", name, "expr", expr, "id", id)
	return id, nil
}

// Remove unschedules an entry.
func (s *Scheduler) Remove(id EntryID) {
	s.cron.Remove(id)
}

// Len returns the number of scheduled tasks.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Stop stops the cron scheduler and waits for running tasks to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
