package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TargetRole identifies which class of account a policy governs.
type TargetRole string

const (
	RoleEndUser       TargetRole = "end_user"
	RoleOperator      TargetRole = "operator"
	RolePlatformAdmin TargetRole = "platform_admin"
)

// ValidRole reports whether r is one of the known target roles.
func ValidRole(r TargetRole) bool {
	switch r {
	case RoleEndUser, RoleOperator, RolePlatformAdmin:
		return true
	}
	return false
}

// ConditionType records what class of signal triggered a policy.
type ConditionType string

const (
	ConditionBehaviorAnomaly ConditionType = "behavior_anomaly"
	ConditionLoadSpike       ConditionType = "load_spike"
	ConditionAuthFailure     ConditionType = "auth_failure"
	ConditionManualOverride  ConditionType = "manual_override"
)

// ActionType is what a matching policy does to the protected call.
type ActionType string

const (
	ActionRestrict ActionType = "restrict"
	ActionThrottle ActionType = "throttle"
	ActionElevate  ActionType = "elevate"
	ActionNotify   ActionType = "notify"
)

// PolicyStatus is the lifecycle state of a policy. Transitions are one-way:
// Active -> Suspended (manual) or Active -> Expired (sweeper). Suspended and
// Expired policies are never evaluated or auto-expired.
type PolicyStatus string

const (
	PolicyStatusActive    PolicyStatus = "Active"
	PolicyStatusSuspended PolicyStatus = "Suspended"
	PolicyStatusExpired   PolicyStatus = "Expired"
)

// FunctionWildcard in TargetFunction makes a policy apply to every
// protected function for its role.
const FunctionWildcard = "*"

// Policy is a time-bounded access rule. A nil ActionValue makes the policy
// role-wide; a set ActionValue pins it to a single user, which also gives it
// precedence over role-wide matches during resolution.
type Policy struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UUID      string    `json:"uuid" gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TargetRole     TargetRole `json:"target_role" gorm:"index:idx_policy_dedup;not null"`
	TargetFunction string     `json:"target_function" gorm:"not null"`

	ConditionType      ConditionType `json:"condition_type" gorm:"index:idx_policy_dedup;not null"`
	ConditionThreshold float64       `json:"condition_threshold"`

	ActionType  ActionType `json:"action_type" gorm:"index:idx_policy_dedup;not null"`
	ActionValue *string    `json:"action_value,omitempty"`

	Status    PolicyStatus `json:"status" gorm:"index;default:'Active'"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
	CreatedBy *string      `json:"created_by,omitempty"`
	Notes     string       `json:"notes" gorm:"type:text"`
}

// BeforeCreate generates the UUID and defaults the status for new policies.
func (p *Policy) BeforeCreate(tx *gorm.DB) error {
	if p.UUID == "" {
		p.UUID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = PolicyStatusActive
	}
	return nil
}

// IsUserSpecific returns true when the policy names a particular subject.
func (p *Policy) IsUserSpecific() bool {
	return p.ActionValue != nil && *p.ActionValue != ""
}

// IsExpired reports whether the policy's lifetime has elapsed at t.
// Permanent policies (nil ExpiresAt) never expire.
func (p *Policy) IsExpired(t time.Time) bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.After(t)
}
