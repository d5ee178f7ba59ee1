package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/avellano/avellano-bot/internal/store"
)

// Persisted keeps sessions in the database so a restart does not drop a
// pending capture or a session-only consent.
type Persisted struct {
	repo store.SessionRepo
	// mu serializes read-modify-write merges within this process.
	mu sync.Mutex
}

// NewPersisted creates a session store backed by repo.
func NewPersisted(repo store.SessionRepo) *Persisted {
	return &Persisted{repo: repo}
}

func (p *Persisted) Get(ctx context.Context, phone string) Values {
	vals, err := p.repo.GetSession(ctx, phone)
	if err != nil {
		slog.Error("session.Persisted.Get: read failed, using empty session", "phone", phone, "error", err)
		return Values{}
	}
	return Values(vals)
}

func (p *Persisted) Merge(ctx context.Context, phone string, partial Values) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur := p.Get(ctx, phone)
	apply(cur, partial)
	if len(cur) == 0 {
		return p.repo.DeleteSession(ctx, phone)
	}
	if err := p.repo.SaveSession(ctx, phone, cur); err != nil {
		slog.Error("session.Persisted.Merge failed", "phone", phone, "error", err)
		return err
	}
	return nil
}

func (p *Persisted) Clear(ctx context.Context, phone string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.repo.DeleteSession(ctx, phone)
}
