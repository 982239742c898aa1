// Package repositories declares the persistence contracts the services use.
// Implementations live in the mongo, postgres and memory subpackages.
package repositories

import (
	"context"
	"time"

	"github.com/yoockh/veriview/internal/models"
)

// SessionRepository stores whole sessions. Get returns utils.ErrNotFound for
// unknown ids.
type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	Save(ctx context.Context, s *models.Session) error
	// ListIdle returns active sessions last updated before the cutoff.
	ListIdle(ctx context.Context, before time.Time) ([]*models.Session, error)
	Delete(ctx context.Context, sessionID string) error
}

// ScoreRepository keeps the per-turn score history.
type ScoreRepository interface {
	Insert(ctx context.Context, row *models.TurnScoreLog) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]models.TurnScoreLog, error)
}
