package services

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/veilgate/aegis/internal/logger"
	"github.com/veilgate/aegis/internal/models"
)

const (
	authFailureWeight = 10
	anomalyWeight     = 15
	maxRiskScore      = 100
)

// RiskService computes bounded risk scores from recent audit activity and
// persists them as append-only snapshots.
type RiskService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewRiskService returns a RiskService using the provided DB.
func NewRiskService(db *gorm.DB, audit *AuditService) *RiskService {
	return &RiskService{db: db, audit: audit}
}

type userActivity struct {
	authFailures  int
	anomalies     int
	lastViolation *time.Time
}

// ScoreUsers scores every (user, role) pair with at least one audit event in
// the lookback window and inserts one snapshot per pair. One pair's failure
// is logged and skipped; it never aborts the pass for the others.
func (s *RiskService) ScoreUsers(window time.Duration) ([]models.RiskScoreSnapshot, error) {
	now := time.Now()
	events, err := s.audit.ReadWindow(now.Add(-window))
	if err != nil {
		return nil, fmt.Errorf("read audit window: %w", err)
	}

	type pairKey struct {
		userID string
		role   models.TargetRole
	}
	activity := make(map[pairKey]*userActivity)
	order := make([]pairKey, 0)

	for _, ev := range events {
		key := pairKey{userID: ev.UserID, role: ev.Role}
		act, ok := activity[key]
		if !ok {
			act = &userActivity{}
			activity[key] = act
			order = append(order, key)
		}

		violation := false
		if ev.IsAuthFailure() {
			act.authFailures++
			violation = true
		}
		if ev.AnomalyDetected {
			act.anomalies++
			violation = true
		}
		if violation {
			ts := ev.CreatedAt
			if act.lastViolation == nil || ts.After(*act.lastViolation) {
				act.lastViolation = &ts
			}
		}
	}

	snapshots := make([]models.RiskScoreSnapshot, 0, len(order))
	for _, key := range order {
		if !models.ValidRole(key.role) {
			// Invariant violation: malformed role is fatal for this record only.
			logger.WithComponent("scorer").WithFields(map[string]interface{}{
				"user_id": key.userID,
				"role":    string(key.role),
			}).Warn("skipping events with malformed role")
			continue
		}

		act := activity[key]
		snap := models.RiskScoreSnapshot{
			UserID:            key.userID,
			Role:              key.role,
			RiskScore:         computeRiskScore(act.authFailures, act.anomalies, act.lastViolation, now),
			AuthFailuresCount: act.authFailures,
			AnomalyCount:      act.anomalies,
			LastViolationAt:   act.lastViolation,
			CalculatedAt:      now,
		}

		// Always an insert, never an update: snapshots are history.
		if err := s.db.Create(&snap).Error; err != nil {
			logger.WithComponent("scorer").WithError(err).
				WithField("user_id", key.userID).Error("failed to persist risk snapshot")
			continue
		}
		snapshots = append(snapshots, snap)
	}

	return snapshots, nil
}

// computeRiskScore applies the weighted count model with a recency bonus,
// capped at 100. Violations within the last hour add 20, within six hours 10.
func computeRiskScore(authFailures, anomalies int, lastViolation *time.Time, now time.Time) float64 {
	score := float64(authFailures*authFailureWeight + anomalies*anomalyWeight)
	score += recencyBonus(lastViolation, now)
	if score > maxRiskScore {
		score = maxRiskScore
	}
	return score
}

func recencyBonus(lastViolation *time.Time, now time.Time) float64 {
	if lastViolation == nil {
		return 0
	}
	age := now.Sub(*lastViolation)
	switch {
	case age <= time.Hour:
		return 20
	case age <= 6*time.Hour:
		return 10
	default:
		return 0
	}
}

// AverageScore returns the mean risk score over snapshots taken since the
// given time, or zero when none exist.
func (s *RiskService) AverageScore(since time.Time) (float64, error) {
	var avg *float64
	err := s.db.Model(&models.RiskScoreSnapshot{}).
		Where("calculated_at >= ?", since).
		Select("AVG(risk_score)").
		Scan(&avg).Error
	if err != nil {
		return 0, err
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

// ListSnapshots returns snapshot history newest first, optionally scoped to
// one user. The handler layer enforces that non-admin callers only pass
// their own user id.
func (s *RiskService) ListSnapshots(userID string, limit int) ([]models.RiskScoreSnapshot, error) {
	var res []models.RiskScoreSnapshot
	q := s.db.Order("calculated_at desc")
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}
