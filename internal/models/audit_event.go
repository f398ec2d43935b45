package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DecisionImpact values that count as an authorization failure when scoring.
const (
	DecisionImpactUnauthorized = "unauthorized_access"
	DecisionImpactForbidden    = "forbidden"
)

// ImpactLevel grades how consequential an engine decision was.
type ImpactLevel string

const (
	ImpactHigh     ImpactLevel = "HIGH"
	ImpactModerate ImpactLevel = "MODERATE"
	ImpactLow      ImpactLevel = "LOW"
)

// AuditEvent is one row of the shared audit stream. Integration connectors
// and the auth layer append security-relevant events here; the policy engine
// reads them for scoring and appends its own decision entries for
// traceability. Rows are never updated or deleted.
type AuditEvent struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UUID      string    `json:"uuid" gorm:"uniqueIndex"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	UserID string     `json:"user_id" gorm:"index;not null"`
	Role   TargetRole `json:"role"`
	Action string     `json:"action"`

	// Signal fields consumed by the risk scorer.
	DecisionImpact  string `json:"decision_impact"`
	AnomalyDetected bool   `json:"anomaly_detected"`

	// Decision fields written by the engine.
	Summary    string      `json:"summary" gorm:"type:text"`
	Context    string      `json:"context" gorm:"type:text"`
	Confidence float64     `json:"confidence"`
	Impact     ImpactLevel `json:"impact"`
}

// BeforeCreate generates the UUID for new audit rows.
func (a *AuditEvent) BeforeCreate(tx *gorm.DB) error {
	if a.UUID == "" {
		a.UUID = uuid.New().String()
	}
	return nil
}

// IsAuthFailure reports whether the event signals an unauthorized or
// forbidden access attempt.
func (a *AuditEvent) IsAuthFailure() bool {
	return a.DecisionImpact == DecisionImpactUnauthorized || a.DecisionImpact == DecisionImpactForbidden
}
