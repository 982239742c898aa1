package memory

import (
	"context"
	"sync"

	"github.com/yoockh/veriview/internal/models"
	"github.com/yoockh/veriview/internal/repositories"
)

type scoreRepo struct {
	mu   sync.Mutex
	rows []models.TurnScoreLog
}

func NewScoreRepo() repositories.ScoreRepository {
	return &scoreRepo{}
}

func (r *scoreRepo) Insert(ctx context.Context, row *models.TurnScoreLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, *row)
	return nil
}

// ListBySession returns newest first.
func (r *scoreRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]models.TurnScoreLog, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TurnScoreLog
	for i := len(r.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if r.rows[i].SessionID == sessionID {
			out = append(out, r.rows[i])
		}
	}
	return out, nil
}
