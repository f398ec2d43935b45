package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RiskScoreSnapshot is one scoring pass's result for one user. Rows are
// append-only history: the scorer always inserts, never updates.
type RiskScoreSnapshot struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UUID      string    `json:"uuid" gorm:"uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`

	UserID            string     `json:"user_id" gorm:"index;not null"`
	Role              TargetRole `json:"role" gorm:"not null"`
	RiskScore         float64    `json:"risk_score"`
	AuthFailuresCount int        `json:"auth_failures_count"`
	AnomalyCount      int        `json:"anomaly_count"`
	LastViolationAt   *time.Time `json:"last_violation_at,omitempty"`
	CalculatedAt      time.Time  `json:"calculated_at" gorm:"index"`
}

// BeforeCreate generates the UUID for new snapshots.
func (s *RiskScoreSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == "" {
		s.UUID = uuid.New().String()
	}
	return nil
}
