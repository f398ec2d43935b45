package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/veilgate/aegis/internal/metrics"
	"github.com/veilgate/aegis/internal/models"
)

var (
	ErrPolicyNotFound = errors.New("policy not found")
	ErrInvalidPolicy  = errors.New("invalid policy")
	ErrNotSuspendable = errors.New("only active policies can be suspended")
)

// PolicyCheckResult is the resolver's answer for one protected call.
// A zero HasRestriction means no applicable policy matched; Action, PolicyID
// and Notes are only set when a restriction applies.
type PolicyCheckResult struct {
	HasRestriction bool               `json:"has_restriction"`
	Action         *models.ActionType `json:"action,omitempty"`
	PolicyID       *uint              `json:"policy_id,omitempty"`
	Notes          *string            `json:"notes,omitempty"`
}

// PolicyService owns the policy table: resolution on the hot path, the
// expiration sweep, and creation with dedup semantics.
type PolicyService struct {
	db *gorm.DB
}

// NewPolicyService returns a PolicyService using the provided DB.
func NewPolicyService(db *gorm.DB) *PolicyService {
	return &PolicyService{db: db}
}

// CheckPolicy resolves the single highest-precedence policy applying to
// (userID, role, functionName). User-specific policies beat role-wide ones;
// within equal specificity the most recently created policy wins. Read-only.
func (s *PolicyService) CheckPolicy(userID string, role models.TargetRole, functionName string) (PolicyCheckResult, error) {
	metrics.IncPolicyCheck()

	now := time.Now()
	var p models.Policy
	err := s.db.
		Where("status = ?", models.PolicyStatusActive).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Where("target_role = ?", role).
		Where("target_function = ? OR target_function = ?", functionName, models.FunctionWildcard).
		Where("action_value = ? OR action_value IS NULL", userID).
		Order("CASE WHEN action_value IS NULL THEN 1 ELSE 0 END, created_at DESC, id DESC").
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Normal negative result, not an error.
			return PolicyCheckResult{}, nil
		}
		return PolicyCheckResult{}, fmt.Errorf("check policy: %w", err)
	}

	metrics.IncPolicyRestriction()
	action := p.ActionType
	id := p.ID
	notes := p.Notes
	return PolicyCheckResult{
		HasRestriction: true,
		Action:         &action,
		PolicyID:       &id,
		Notes:          &notes,
	}, nil
}

// SweepExpired transitions every Active policy whose lifetime has elapsed to
// Expired in a single bulk update. Idempotent: a second call with no new
// expirations touches zero rows.
func (s *PolicyService) SweepExpired() (int64, error) {
	res := s.db.Model(&models.Policy{}).
		Where("status = ?", models.PolicyStatusActive).
		Where("expires_at IS NOT NULL AND expires_at <= ?", time.Now()).
		Update("status", models.PolicyStatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("sweep expired policies: %w", res.Error)
	}

	metrics.AddPoliciesExpired(int(res.RowsAffected))
	return res.RowsAffected, nil
}

// CreateIfAbsent inserts p unless an Active, non-expired policy already
// exists for the same (target_role, condition_type, action_type) tuple. The
// check and insert run in one transaction so overlapping batch cycles cannot
// both create a policy for the same dedup key. Note the tuple is scoped by
// role and action only, not by subject: a second high-risk user of the same
// role is suppressed while any policy for that role/action is live.
func (s *PolicyService) CreateIfAbsent(p *models.Policy) (bool, error) {
	if err := validatePolicy(p); err != nil {
		return false, err
	}

	created := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Policy
		err := tx.
			Where("status = ?", models.PolicyStatusActive).
			Where("expires_at IS NULL OR expires_at > ?", time.Now()).
			Where("target_role = ? AND condition_type = ? AND action_type = ?",
				p.TargetRole, p.ConditionType, p.ActionType).
			First(&existing).Error
		if err == nil {
			return nil // dedup hit, leave created false
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(p).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("create policy: %w", err)
	}

	return created, nil
}

// Create inserts a policy without dedup, for manual overrides from the API.
func (s *PolicyService) Create(p *models.Policy) error {
	if err := validatePolicy(p); err != nil {
		return err
	}
	if err := s.db.Create(p).Error; err != nil {
		return fmt.Errorf("create policy: %w", err)
	}
	return nil
}

// Get returns a single policy by id.
func (s *PolicyService) Get(id uint) (*models.Policy, error) {
	var p models.Policy
	if err := s.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	return &p, nil
}

// List returns policies ordered newest first, optionally filtered by status.
func (s *PolicyService) List(status models.PolicyStatus, limit int) ([]models.Policy, error) {
	var res []models.Policy
	q := s.db.Order("created_at desc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

// Suspend marks an Active policy as Suspended. Suspended is terminal for
// automatic processing: the sweeper and resolver both skip it.
func (s *PolicyService) Suspend(id uint) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	if p.Status != models.PolicyStatusActive {
		return ErrNotSuspendable
	}
	return s.db.Model(p).Update("status", models.PolicyStatusSuspended).Error
}

func validatePolicy(p *models.Policy) error {
	if p == nil {
		return ErrInvalidPolicy
	}
	if !models.ValidRole(p.TargetRole) {
		return fmt.Errorf("%w: unknown target role %q", ErrInvalidPolicy, p.TargetRole)
	}
	if p.TargetFunction == "" {
		return fmt.Errorf("%w: target function required", ErrInvalidPolicy)
	}
	switch p.ActionType {
	case models.ActionRestrict, models.ActionThrottle, models.ActionElevate, models.ActionNotify:
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidPolicy, p.ActionType)
	}
	switch p.ConditionType {
	case models.ConditionBehaviorAnomaly, models.ConditionLoadSpike, models.ConditionAuthFailure, models.ConditionManualOverride:
	default:
		return fmt.Errorf("%w: unknown condition type %q", ErrInvalidPolicy, p.ConditionType)
	}
	return nil
}
