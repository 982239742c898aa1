package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/yoockh/veriview/internal/models"
	"github.com/yoockh/veriview/internal/repositories"
)

type scoreRepo struct {
	db *gorm.DB
}

func NewScoreRepo(db *gorm.DB) repositories.ScoreRepository {
	return &scoreRepo{db: db}
}

func (r *scoreRepo) Insert(ctx context.Context, row *models.TurnScoreLog) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *scoreRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]models.TurnScoreLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.TurnScoreLog
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
