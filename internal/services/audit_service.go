package services

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/veilgate/aegis/internal/models"
)

// AuditService reads the shared audit stream the connectors append to and
// writes the engine's own decision entries back into it.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService returns an AuditService using the provided DB.
func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// ReadEvents returns one user's events since the given timestamp, oldest first.
func (s *AuditService) ReadEvents(userID string, since time.Time) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := s.db.
		Where("user_id = ?", userID).
		Where("created_at >= ?", since).
		Order("created_at asc").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ReadWindow returns all events since the given timestamp across users,
// oldest first. The scorer uses this to discover active (user, role) pairs.
func (s *AuditService) ReadWindow(since time.Time) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := s.db.
		Where("created_at >= ?", since).
		Order("created_at asc").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// WriteAuditEntry appends an engine decision to the audit stream.
func (s *AuditService) WriteAuditEntry(userID string, role models.TargetRole, actionType models.ActionType, summary, context string, confidence float64, impact models.ImpactLevel) error {
	entry := models.AuditEvent{
		UUID:       uuid.NewString(),
		UserID:     userID,
		Role:       role,
		Action:     string(actionType),
		Summary:    summary,
		Context:    context,
		Confidence: confidence,
		Impact:     impact,
		CreatedAt:  time.Now(),
	}
	return s.db.Create(&entry).Error
}

// List returns recent audit entries, newest first.
func (s *AuditService) List(limit int) ([]models.AuditEvent, error) {
	var res []models.AuditEvent
	q := s.db.Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}
