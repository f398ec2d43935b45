package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/veilgate/aegis/internal/models"
)

func newTestEngine(t *testing.T) (*EngineService, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	audit := NewAuditService(db)
	risk := NewRiskService(db, audit)
	policies := NewPolicyService(db)
	engine := NewEngineService(audit, risk, policies, nil, 24*time.Hour)
	return engine, db
}

func seedAuthFailures(t *testing.T, db *gorm.DB, userID string, role models.TargetRole, count int, age time.Duration) {
	t.Helper()
	for i := 0; i < count; i++ {
		require.NoError(t, db.Create(&models.AuditEvent{
			UserID:         userID,
			Role:           role,
			Action:         "login",
			DecisionImpact: models.DecisionImpactUnauthorized,
			CreatedAt:      time.Now().Add(-age - time.Duration(i)*time.Minute),
		}).Error)
	}
}

func seedAnomalies(t *testing.T, db *gorm.DB, userID string, role models.TargetRole, count int, age time.Duration) {
	t.Helper()
	for i := 0; i < count; i++ {
		require.NoError(t, db.Create(&models.AuditEvent{
			UserID:          userID,
			Role:            role,
			Action:          "bulk_download",
			AnomalyDetected: true,
			CreatedAt:       time.Now().Add(-age - time.Duration(i)*time.Minute),
		}).Error)
	}
}

func TestEngineService_RestrictTier(t *testing.T) {
	engine, db := newTestEngine(t)

	// 2 auth failures + 2 anomalies, 30 minutes old: 20+30+20 = 70.
	seedAuthFailures(t, db, "usr-1", models.RoleOperator, 2, 30*time.Minute)
	seedAnomalies(t, db, "usr-1", models.RoleOperator, 2, 30*time.Minute)

	report, err := engine.RunPolicyEngine()
	require.NoError(t, err)
	assert.Equal(t, 1, report.AnalyzedUsers)
	assert.Equal(t, 1, report.PoliciesApplied)
	assert.InDelta(t, 70.0, report.AvgRiskScore, 0.001)

	var p models.Policy
	require.NoError(t, db.First(&p).Error)
	assert.Equal(t, models.ActionRestrict, p.ActionType)
	assert.Equal(t, models.RoleOperator, p.TargetRole)
	assert.Equal(t, models.FunctionWildcard, p.TargetFunction)
	assert.Equal(t, models.ConditionBehaviorAnomaly, p.ConditionType)
	assert.Equal(t, models.PolicyStatusActive, p.Status)
	require.NotNil(t, p.ActionValue)
	assert.Equal(t, "usr-1", *p.ActionValue)
	require.NotNil(t, p.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *p.ExpiresAt, time.Minute)
	assert.Contains(t, p.Notes, "2 auth failures")
	assert.Contains(t, p.Notes, "2 anomalies")

	t.Run("audit entry emitted with high impact", func(t *testing.T) {
		var entry models.AuditEvent
		err := db.Where("impact = ?", models.ImpactHigh).First(&entry).Error
		require.NoError(t, err)
		assert.Equal(t, "usr-1", entry.UserID)
		assert.Equal(t, string(models.ActionRestrict), entry.Action)
		assert.InDelta(t, 0.7, entry.Confidence, 0.001)
	})

	t.Run("restricted user now fails resolver checks", func(t *testing.T) {
		policies := NewPolicyService(db)
		res, err := policies.CheckPolicy("usr-1", models.RoleOperator, "export")
		require.NoError(t, err)
		require.True(t, res.HasRestriction)
		assert.Equal(t, models.ActionRestrict, *res.Action)
	})
}

func TestEngineService_ThrottleTier(t *testing.T) {
	engine, db := newTestEngine(t)

	// 4 auth failures 2 hours old: 40+10 = 50.
	seedAuthFailures(t, db, "usr-1", models.RoleEndUser, 4, 2*time.Hour)

	report, err := engine.RunPolicyEngine()
	require.NoError(t, err)
	assert.Equal(t, 1, report.PoliciesApplied)

	var p models.Policy
	require.NoError(t, db.First(&p).Error)
	assert.Equal(t, models.ActionThrottle, p.ActionType)
	require.NotNil(t, p.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(12*time.Hour), *p.ExpiresAt, time.Minute)

	var entry models.AuditEvent
	require.NoError(t, db.Where("impact = ?", models.ImpactModerate).First(&entry).Error)
	assert.Equal(t, string(models.ActionThrottle), entry.Action)
}

func TestEngineService_NotifyTier(t *testing.T) {
	engine, db := newTestEngine(t)

	// 3 auth failures, 8 hours old: 30 with no recency bonus.
	seedAuthFailures(t, db, "usr-1", models.RoleEndUser, 3, 8*time.Hour)

	report, err := engine.RunPolicyEngine()
	require.NoError(t, err)
	assert.Equal(t, 1, report.AnalyzedUsers)
	assert.Zero(t, report.PoliciesApplied)

	t.Run("no policy row created", func(t *testing.T) {
		var count int64
		require.NoError(t, db.Model(&models.Policy{}).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("one low-impact audit entry", func(t *testing.T) {
		var entries []models.AuditEvent
		require.NoError(t, db.Where("impact = ?", models.ImpactLow).Find(&entries).Error)
		require.Len(t, entries, 1)
		assert.Equal(t, string(models.ActionNotify), entries[0].Action)
		assert.Equal(t, "usr-1", entries[0].UserID)
	})
}

func TestEngineService_QuietUserNoAction(t *testing.T) {
	engine, db := newTestEngine(t)

	require.NoError(t, db.Create(&models.AuditEvent{
		UserID:    "usr-1",
		Role:      models.RoleEndUser,
		Action:    "view_profile",
		CreatedAt: time.Now().Add(-time.Hour),
	}).Error)

	report, err := engine.RunPolicyEngine()
	require.NoError(t, err)
	assert.Equal(t, 1, report.AnalyzedUsers)
	assert.Zero(t, report.PoliciesApplied)

	var policyCount, decisionCount int64
	require.NoError(t, db.Model(&models.Policy{}).Count(&policyCount).Error)
	assert.Zero(t, policyCount)
	require.NoError(t, db.Model(&models.AuditEvent{}).Where("impact != ''").Count(&decisionCount).Error)
	assert.Zero(t, decisionCount)
}

func TestEngineService_DedupAcrossUsers(t *testing.T) {
	engine, db := newTestEngine(t)

	// Two high-risk operators in the same window. Dedup is keyed on
	// (role, condition, action) only, so the second user is suppressed.
	seedAuthFailures(t, db, "usr-1", models.RoleOperator, 5, 30*time.Minute)
	seedAnomalies(t, db, "usr-1", models.RoleOperator, 2, 30*time.Minute)
	seedAuthFailures(t, db, "usr-2", models.RoleOperator, 5, 30*time.Minute)
	seedAnomalies(t, db, "usr-2", models.RoleOperator, 2, 30*time.Minute)

	report, err := engine.RunPolicyEngine()
	require.NoError(t, err)
	assert.Equal(t, 2, report.AnalyzedUsers)
	assert.Equal(t, 1, report.PoliciesApplied)

	t.Run("second cycle applies nothing new", func(t *testing.T) {
		report, err := engine.RunPolicyEngine()
		require.NoError(t, err)
		assert.Zero(t, report.PoliciesApplied)
	})

	t.Run("different role is covered independently", func(t *testing.T) {
		seedAuthFailures(t, db, "usr-3", models.RoleEndUser, 5, 10*time.Minute)
		seedAnomalies(t, db, "usr-3", models.RoleEndUser, 2, 10*time.Minute)

		report, err := engine.RunPolicyEngine()
		require.NoError(t, err)
		assert.Equal(t, 1, report.PoliciesApplied)
	})
}

func TestEngineService_SingleFlight(t *testing.T) {
	engine, db := newTestEngine(t)

	seedAuthFailures(t, db, "usr-1", models.RoleOperator, 5, 30*time.Minute)
	seedAnomalies(t, db, "usr-1", models.RoleOperator, 2, 30*time.Minute)

	t.Run("overlapping cycle is a no-op", func(t *testing.T) {
		engine.mu.Lock()
		report, err := engine.RunPolicyEngine()
		engine.mu.Unlock()

		require.ErrorIs(t, err, ErrCycleInFlight)
		assert.Zero(t, report)

		var count int64
		require.NoError(t, db.Model(&models.Policy{}).Count(&count).Error)
		assert.Zero(t, count, "rejected cycle must not touch state")
	})

	t.Run("concurrent callers never double-apply", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make([]error, 8)
		for i := range errs {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = engine.RunPolicyEngine()
			}()
		}
		wg.Wait()

		completed := 0
		for _, err := range errs {
			if err == nil {
				completed++
				continue
			}
			require.ErrorIs(t, err, ErrCycleInFlight)
		}
		require.GreaterOrEqual(t, completed, 1)

		var count int64
		require.NoError(t, db.Model(&models.Policy{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})
}

func TestEngineService_SweepRunsBeforeSynthesis(t *testing.T) {
	engine, db := newTestEngine(t)
	policies := NewPolicyService(db)

	// A stale Active restrict policy for operators that already lapsed.
	expired := activePolicy(models.RoleOperator, models.FunctionWildcard, models.ActionRestrict, strPtr("usr-old"), -time.Minute)
	require.NoError(t, policies.Create(expired))

	seedAuthFailures(t, db, "usr-1", models.RoleOperator, 5, 30*time.Minute)
	seedAnomalies(t, db, "usr-1", models.RoleOperator, 2, 30*time.Minute)

	report, err := engine.RunPolicyEngine()
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.SweptPolicies)
	// The lapsed policy was swept first so it cannot block the new one.
	assert.Equal(t, 1, report.PoliciesApplied)

	swept, err := policies.Get(expired.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PolicyStatusExpired, swept.Status)
}

func TestEngineService_SkipsInvalidSnapshots(t *testing.T) {
	engine, _ := newTestEngine(t)

	applied := engine.SynthesizePolicies([]models.RiskScoreSnapshot{
		{UserID: "usr-1", Role: models.RoleOperator, RiskScore: 150},
		{UserID: "usr-2", Role: models.RoleOperator, RiskScore: -5},
	})
	assert.Zero(t, applied)
}

func TestEngineService_EmptyWindow(t *testing.T) {
	engine, _ := newTestEngine(t)

	report, err := engine.RunPolicyEngine()
	require.NoError(t, err)
	assert.Zero(t, report.AnalyzedUsers)
	assert.Zero(t, report.PoliciesApplied)
	assert.Zero(t, report.AvgRiskScore)
}
