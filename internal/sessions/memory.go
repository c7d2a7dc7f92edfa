package sessions

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository for tests and single-node
// development. A single mutex gives it the same conditional-update semantics
// the Mongo implementation gets from single-document atomicity.
type MemoryRepository struct {
	mu   sync.Mutex
	byID map[string]*Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: map[string]*Session{}}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) GetByRefreshSecret(ctx context.Context, secret string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byID {
		if s.RefreshSecret == secret {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Create(ctx context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	cp := *s
	r.byID[s.ID] = &cp
	return nil
}

func (r *MemoryRepository) RotateSecret(ctx context.Context, id, prevSecret string, rot Rotation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok || s.RefreshSecret != prevSecret {
		return ErrRefreshConflict
	}
	s.RefreshSecret = rot.NewSecret
	s.RefreshExpiresAt = rot.NewExpiresAt
	s.TokenVersion = rot.NewVersion
	return nil
}
