// Package inactivity closes idle conversations. Every inbound message resets
// a per-user timer; when it fires the user's entry is removed and the expiry
// callback runs once (typically sending the closing message).
package inactivity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultTimeout is the idle window before a conversation is closed.
const DefaultTimeout = time.Minute

// ExpireFunc runs when a user's timer fires. Errors are logged and dropped.
type ExpireFunc func(ctx context.Context, phone string) error

type entry struct {
	stop       Stopper
	generation uint64
	expiresAt  time.Time
}

// Manager keeps at most one live timer per user.
type Manager struct {
	mu         sync.Mutex
	clock      Clock
	timeout    time.Duration
	entries    map[string]*entry
	generation uint64
	stopped    bool
	// ctx is handed to expiry callbacks; it is canceled by Stop.
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithTimeout sets the idle window.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// NewManager creates a Manager using the wall clock and DefaultTimeout unless overridden.
func NewManager(opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		clock:   RealClock(),
		timeout: DefaultTimeout,
		entries: make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Timeout returns the configured idle window.
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

// Reset cancels any pending timer for phone and schedules onExpire after the
// idle window. Cancel and schedule happen under one lock so concurrent resets
// for the same user leave exactly one live timer.
func (m *Manager) Reset(phone string, onExpire ExpireFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if old, ok := m.entries[phone]; ok {
		old.stop.Stop()
	}
	m.generation++
	gen := m.generation
	e := &entry{generation: gen, expiresAt: m.clock.Now().Add(m.timeout)}
	e.stop = m.clock.AfterFunc(m.timeout, func() { m.fire(phone, gen, onExpire) })
	m.entries[phone] = e
	slog.Debug("InactivityManager Reset", "phone", phone, "expiresAt", e.expiresAt)
}

func (m *Manager) fire(phone string, gen uint64, onExpire ExpireFunc) {
	m.mu.Lock()
	e, ok := m.entries[phone]
	if !ok || e.generation != gen || m.stopped {
		// Superseded by a later Reset or canceled after the timer started.
		m.mu.Unlock()
		return
	}
	delete(m.entries, phone)
	ctx := m.ctx
	m.mu.Unlock()

	slog.Info("InactivityManager closing idle conversation", "phone", phone)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("InactivityManager expiry callback panicked", "phone", phone, "panic", r)
		}
	}()
	if err := onExpire(ctx, phone); err != nil {
		slog.Error("InactivityManager expiry callback failed", "phone", phone, "error", err)
	}
}

// Cancel drops the pending timer for phone, if any.
func (m *Manager) Cancel(phone string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[phone]; ok {
		e.stop.Stop()
		delete(m.entries, phone)
		slog.Debug("InactivityManager Cancel", "phone", phone)
	}
}

// Active returns the number of users with a live timer.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// ExpiresAt returns when phone's timer fires.
func (m *Manager) ExpiresAt(phone string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[phone]
	if !ok {
		return time.Time{}, false
	}
	return e.expiresAt, true
}

// Stop cancels all timers. Later calls to Reset are ignored.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for phone, e := range m.entries {
		e.stop.Stop()
		delete(m.entries, phone)
	}
	m.stopped = true
	m.cancel()
	slog.Debug("InactivityManager stopped")
}
