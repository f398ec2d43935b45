package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/veilgate/aegis/internal/api/middleware"
	"github.com/veilgate/aegis/internal/models"
	"github.com/veilgate/aegis/internal/services"
)

// PolicyHandler exposes the resolver and policy management endpoints.
type PolicyHandler struct {
	policyService *services.PolicyService
}

func NewPolicyHandler(policyService *services.PolicyService) *PolicyHandler {
	return &PolicyHandler{policyService: policyService}
}

type CheckPolicyRequest struct {
	UserID       string `json:"user_id" binding:"required"`
	Role         string `json:"role" binding:"required"`
	FunctionName string `json:"function_name" binding:"required"`
}

// Check is the hot-path resolver endpoint. Service callers invoke it before
// executing any protected operation.
func (h *PolicyHandler) Check(c *gin.Context) {
	var req CheckPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role := models.TargetRole(req.Role)
	if !models.ValidRole(role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}

	result, err := h.policyService.CheckPolicy(req.UserID, role, req.FunctionName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "policy check failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// List returns policies for dashboards, optionally filtered by status.
func (h *PolicyHandler) List(c *gin.Context) {
	status := models.PolicyStatus(c.Query("status"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	policies, err := h.policyService.List(status, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list policies"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"policies": policies, "count": len(policies)})
}

type CreatePolicyRequest struct {
	TargetRole         string   `json:"target_role" binding:"required"`
	TargetFunction     string   `json:"target_function" binding:"required"`
	ActionType         string   `json:"action_type" binding:"required"`
	ActionValue        *string  `json:"action_value"`
	ConditionThreshold float64  `json:"condition_threshold"`
	ExpiresInHours     *float64 `json:"expires_in_hours"`
	Notes              string   `json:"notes"`
}

// Create inserts a manual-override policy. Admin only.
func (h *PolicyHandler) Create(c *gin.Context) {
	var req CreatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	policy := &models.Policy{
		TargetRole:         models.TargetRole(req.TargetRole),
		TargetFunction:     req.TargetFunction,
		ConditionType:      models.ConditionManualOverride,
		ConditionThreshold: req.ConditionThreshold,
		ActionType:         models.ActionType(req.ActionType),
		ActionValue:        req.ActionValue,
		Notes:              req.Notes,
	}
	if req.ExpiresInHours != nil {
		expires := time.Now().Add(time.Duration(*req.ExpiresInHours * float64(time.Hour)))
		policy.ExpiresAt = &expires
	}
	if v, ok := c.Get(middleware.UserKey); ok {
		if user, ok := v.(*models.User); ok {
			email := user.Email
			policy.CreatedBy = &email
		}
	}

	if err := h.policyService.Create(policy); err != nil {
		if errors.Is(err, services.ErrInvalidPolicy) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create policy"})
		return
	}

	c.JSON(http.StatusCreated, policy)
}

// Suspend manually transitions an Active policy to Suspended.
func (h *PolicyHandler) Suspend(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid policy id"})
		return
	}

	if err := h.policyService.Suspend(uint(id)); err != nil {
		switch {
		case errors.Is(err, services.ErrPolicyNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrNotSuspendable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to suspend policy"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "policy suspended"})
}
