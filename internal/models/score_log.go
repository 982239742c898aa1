package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// TurnScoreLog is the analytics row written for every scored turn.
type TurnScoreLog struct {
	ID        string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionID string `gorm:"column:session_id;type:text;index" json:"session_id"`
	Kind      string `gorm:"column:kind;type:text;index" json:"kind"`
	Phase     string `gorm:"column:phase;type:text" json:"phase"`
	Topic     string `gorm:"column:topic;type:text" json:"topic"`

	Transcript string  `gorm:"column:transcript;type:text" json:"transcript"`
	Confidence float64 `gorm:"column:confidence" json:"confidence"`

	Initiative     float64 `gorm:"column:initiative" json:"initiative"`
	Collaborative  float64 `gorm:"column:collaborative" json:"collaborative"`
	Communication  float64 `gorm:"column:communication" json:"communication"`
	Logic          float64 `gorm:"column:logic" json:"logic"`
	ProblemSolving float64 `gorm:"column:problem_solving" json:"problem_solving"`
	Voice          float64 `gorm:"column:voice" json:"voice"`
	Action         float64 `gorm:"column:action" json:"action"`

	Emotions pq.StringArray `gorm:"column:emotions;type:text[]" json:"emotions"`
	Degraded bool           `gorm:"column:degraded" json:"degraded"`

	// JSONB: per-axis feedback and analyzer warnings
	Feedback datatypes.JSON `gorm:"column:feedback;type:jsonb" json:"feedback"`

	// pgvector: MFCC means, for voice similarity lookups
	MFCC pgvector.Vector `gorm:"column:mfcc;type:vector(13)" json:"mfcc"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;index" json:"created_at"`
}

func (TurnScoreLog) TableName() string { return "turn_scores" }
