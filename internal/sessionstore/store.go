// Package sessionstore persists the signed-in session between runs so the
// client can restore it on startup.
package sessionstore

import (
	"context"
	"sync"

	"github.com/geocoder89/surveyhub/internal/remote"
)

// DefaultKey matches the storage key the hosted service's browser client
// uses for a project.
const DefaultKey = "sb-survey-auth-token"

type Store interface {
	// Load returns (nil, nil) when nothing is stored.
	Load(ctx context.Context) (*remote.Session, error)
	Save(ctx context.Context, s *remote.Session) error
	Clear(ctx context.Context) error
}

type Memory struct {
	mu sync.Mutex
	s  *remote.Session
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(ctx context.Context) (*remote.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.s == nil {
		return nil, nil
	}
	c := *m.s
	return &c, nil
}

func (m *Memory) Save(ctx context.Context, s *remote.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s == nil {
		m.s = nil
		return nil
	}
	c := *s
	m.s = &c
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.s = nil
	return nil
}
