package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestPolicy_Hooks(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Policy{}))

	p := Policy{
		TargetRole:     RoleOperator,
		TargetFunction: FunctionWildcard,
		ConditionType:  ConditionBehaviorAnomaly,
		ActionType:     ActionRestrict,
	}
	require.NoError(t, db.Create(&p).Error)

	assert.NotEmpty(t, p.UUID)
	assert.Equal(t, PolicyStatusActive, p.Status)
}

func TestPolicy_IsUserSpecific(t *testing.T) {
	subject := "usr-1"
	empty := ""

	assert.True(t, (&Policy{ActionValue: &subject}).IsUserSpecific())
	assert.False(t, (&Policy{ActionValue: nil}).IsUserSpecific())
	assert.False(t, (&Policy{ActionValue: &empty}).IsUserSpecific())
}

func TestPolicy_IsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	assert.True(t, (&Policy{ExpiresAt: &past}).IsExpired(now))
	assert.False(t, (&Policy{ExpiresAt: &future}).IsExpired(now))
	assert.False(t, (&Policy{ExpiresAt: nil}).IsExpired(now), "permanent policies never expire")
}

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole(RoleEndUser))
	assert.True(t, ValidRole(RoleOperator))
	assert.True(t, ValidRole(RolePlatformAdmin))
	assert.False(t, ValidRole("superuser"))
	assert.False(t, ValidRole(""))
}

func TestAuditEvent_IsAuthFailure(t *testing.T) {
	assert.True(t, (&AuditEvent{DecisionImpact: DecisionImpactUnauthorized}).IsAuthFailure())
	assert.True(t, (&AuditEvent{DecisionImpact: DecisionImpactForbidden}).IsAuthFailure())
	assert.False(t, (&AuditEvent{DecisionImpact: "allowed"}).IsAuthFailure())
	assert.False(t, (&AuditEvent{}).IsAuthFailure())
}
