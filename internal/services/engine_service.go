package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/veilgate/aegis/internal/logger"
	"github.com/veilgate/aegis/internal/metrics"
	"github.com/veilgate/aegis/internal/models"
)

// Threshold tiers for policy synthesis, checked highest first.
const (
	restrictThreshold = 70
	throttleThreshold = 40
	notifyThreshold   = 20

	restrictLifetime = 24 * time.Hour
	throttleLifetime = 12 * time.Hour

	// Window for the trailing average reported after each cycle.
	avgScoreWindow = 7 * 24 * time.Hour
)

// ErrCycleInFlight is returned when a batch cycle is requested while a
// previous one is still running. The caller should retry at the next tick.
var ErrCycleInFlight = errors.New("policy engine cycle already in flight")

const engineActor = "policy-engine"

// EngineReport summarizes one batch cycle for operators.
type EngineReport struct {
	AnalyzedUsers   int     `json:"analyzed_users"`
	PoliciesApplied int     `json:"policies_applied"`
	AvgRiskScore    float64 `json:"avg_risk_score"`
	SweptPolicies   int64   `json:"swept_policies"`
}

// EngineService drives the batch cycle: sweep expired policies, score active
// users, then synthesize restrictions from fresh snapshots. Cycles are
// serialized with a single-flight lock so an overlapping scheduler tick is a
// no-op rather than a dedup race.
type EngineService struct {
	audit    *AuditService
	risk     *RiskService
	policies *PolicyService
	notifier *NotificationService
	lookback time.Duration

	mu sync.Mutex
}

// NewEngineService wires the batch cycle over its collaborating services.
// notifier may be nil when alerting is disabled.
func NewEngineService(audit *AuditService, risk *RiskService, policies *PolicyService, notifier *NotificationService, lookback time.Duration) *EngineService {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &EngineService{
		audit:    audit,
		risk:     risk,
		policies: policies,
		notifier: notifier,
		lookback: lookback,
	}
}

// RunPolicyEngine executes one batch cycle and reports aggregate counts.
// Partial per-user failure is the expected common case: the report covers
// whatever succeeded. A cycle that cannot acquire the single-flight lock
// returns ErrCycleInFlight without touching any state.
func (e *EngineService) RunPolicyEngine() (EngineReport, error) {
	if !e.mu.TryLock() {
		return EngineReport{}, ErrCycleInFlight
	}
	defer e.mu.Unlock()

	log := logger.WithComponent("engine")
	start := time.Now()

	// The sweep must land before synthesis so dedup checks never see stale
	// Active rows. A failed sweep aborts the cycle as a no-op for this tick.
	swept, err := e.policies.SweepExpired()
	if err != nil {
		return EngineReport{}, fmt.Errorf("run policy engine: %w", err)
	}
	if swept > 0 {
		log.WithField("count", swept).Info("expired policies swept")
	}

	snapshots, err := e.risk.ScoreUsers(e.lookback)
	if err != nil {
		return EngineReport{SweptPolicies: swept}, fmt.Errorf("run policy engine: %w", err)
	}

	applied := e.SynthesizePolicies(snapshots)

	avg, err := e.risk.AverageScore(time.Now().Add(-avgScoreWindow))
	if err != nil {
		// The cycle's writes already landed; report them with a zero average.
		log.WithError(err).Error("failed to compute trailing average risk score")
	}

	metrics.IncEngineCycle()
	log.WithFields(map[string]interface{}{
		"analyzed_users":   len(snapshots),
		"policies_applied": applied,
		"swept":            swept,
		"elapsed":          time.Since(start).String(),
	}).Info("batch cycle complete")

	return EngineReport{
		AnalyzedUsers:   len(snapshots),
		PoliciesApplied: applied,
		AvgRiskScore:    avg,
		SweptPolicies:   swept,
	}, nil
}

// SynthesizePolicies applies the threshold tiers to fresh snapshots and
// returns the number of policies actually created. Dedup and audit emission
// happen per snapshot; one snapshot's failure never aborts the rest.
func (e *EngineService) SynthesizePolicies(snapshots []models.RiskScoreSnapshot) int {
	log := logger.WithComponent("synthesizer")
	applied := 0

	for i := range snapshots {
		snap := &snapshots[i]
		if snap.RiskScore < 0 || snap.RiskScore > 100 {
			// Invariant violation, fatal for this record only.
			log.WithFields(map[string]interface{}{
				"user_id": snap.UserID,
				"score":   snap.RiskScore,
			}).Warn("skipping snapshot with out-of-range risk score")
			continue
		}

		switch {
		case snap.RiskScore >= restrictThreshold:
			if e.applyTier(snap, models.ActionRestrict, restrictThreshold, restrictLifetime, models.ImpactHigh) {
				applied++
			}
		case snap.RiskScore >= throttleThreshold:
			if e.applyTier(snap, models.ActionThrottle, throttleThreshold, throttleLifetime, models.ImpactModerate) {
				applied++
			}
		case snap.RiskScore >= notifyThreshold:
			e.emitNotifyOnly(snap)
		}
	}

	metrics.AddPoliciesCreated(applied)
	return applied
}

// applyTier creates one restrict/throttle policy for the snapshot's subject
// unless dedup suppresses it, and emits the matching audit entry.
func (e *EngineService) applyTier(snap *models.RiskScoreSnapshot, action models.ActionType, threshold float64, lifetime time.Duration, impact models.ImpactLevel) bool {
	log := logger.WithComponent("synthesizer").WithFields(map[string]interface{}{
		"user_id": snap.UserID,
		"role":    string(snap.Role),
		"action":  string(action),
	})

	expires := time.Now().Add(lifetime)
	subject := snap.UserID
	actor := engineActor
	policy := &models.Policy{
		TargetRole:         snap.Role,
		TargetFunction:     models.FunctionWildcard,
		ConditionType:      models.ConditionBehaviorAnomaly,
		ConditionThreshold: threshold,
		ActionType:         action,
		ActionValue:        &subject,
		ExpiresAt:          &expires,
		CreatedBy:          &actor,
		Notes:              synthesisNotes(snap),
	}

	created, err := e.policies.CreateIfAbsent(policy)
	if err != nil {
		log.WithError(err).Error("failed to create policy")
		return false
	}
	if !created {
		log.Debug("policy suppressed by active dedup match")
		return false
	}

	summary := fmt.Sprintf("applied %s policy (risk score %.0f)", action, snap.RiskScore)
	if err := e.audit.WriteAuditEntry(snap.UserID, snap.Role, action, summary, policy.Notes, snap.RiskScore/100, impact); err != nil {
		log.WithError(err).Error("failed to write audit entry for created policy")
	}

	if action == models.ActionRestrict && e.notifier != nil {
		e.notifier.SendPolicyAlert(policy, snap.RiskScore)
	}

	log.WithField("policy_id", policy.ID).Info("policy created")
	return true
}

// emitNotifyOnly records an elevated-but-subthreshold score in the audit
// stream without creating a policy row.
func (e *EngineService) emitNotifyOnly(snap *models.RiskScoreSnapshot) {
	summary := fmt.Sprintf("elevated risk noted, no policy applied (risk score %.0f)", snap.RiskScore)
	err := e.audit.WriteAuditEntry(snap.UserID, snap.Role, models.ActionNotify, summary, synthesisNotes(snap), snap.RiskScore/100, models.ImpactLow)
	if err != nil {
		logger.WithComponent("synthesizer").WithError(err).
			WithField("user_id", snap.UserID).Error("failed to write notify audit entry")
	}
}

func synthesisNotes(snap *models.RiskScoreSnapshot) string {
	return fmt.Sprintf("risk score %.0f: %d auth failures, %d anomalies in window",
		snap.RiskScore, snap.AuthFailuresCount, snap.AnomalyCount)
}
