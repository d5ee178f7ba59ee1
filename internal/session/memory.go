package session

import (
	"context"
	"sync"
)

// Memory is an in-process session store. Sessions are lost on restart.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]Values
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]Values)}
}

func (m *Memory) Get(_ context.Context, phone string) Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.sessions[phone])
}

func (m *Memory) Merge(_ context.Context, phone string, partial Values) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[phone]
	if !ok {
		cur = Values{}
		m.sessions[phone] = cur
	}
	apply(cur, partial)
	if len(cur) == 0 {
		delete(m.sessions, phone)
	}
	return nil
}

func (m *Memory) Clear(_ context.Context, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, phone)
	return nil
}

// Len returns the number of non-empty sessions.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
