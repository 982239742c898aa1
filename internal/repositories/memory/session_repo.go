// Package memory holds in-process repositories used when no database is
// configured and in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yoockh/veriview/internal/models"
	"github.com/yoockh/veriview/internal/repositories"
	"github.com/yoockh/veriview/internal/utils"
)

type sessionRepo struct {
	mu   sync.RWMutex
	rows map[string]*models.Session
}

func NewSessionRepo() repositories.SessionRepository {
	return &sessionRepo{rows: make(map[string]*models.Session)}
}

func (r *sessionRepo) Create(ctx context.Context, s *models.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[s.SessionID]; ok {
		return utils.E(utils.CodeConflict, "MemorySessionRepo.Create", "session already exists", nil)
	}
	r.rows[s.SessionID] = s.Clone()
	return nil
}

func (r *sessionRepo) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.rows[sessionID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return s.Clone(), nil
}

func (r *sessionRepo) Save(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[s.SessionID] = s.Clone()
	return nil
}

func (r *sessionRepo) ListIdle(ctx context.Context, before time.Time) ([]*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Session
	for _, s := range r.rows {
		if s.Status == models.StatusActive && s.UpdatedAt.Before(before) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (r *sessionRepo) Delete(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, sessionID)
	return nil
}
