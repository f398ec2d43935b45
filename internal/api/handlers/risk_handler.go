package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/veilgate/aegis/internal/api/middleware"
	"github.com/veilgate/aegis/internal/models"
	"github.com/veilgate/aegis/internal/services"
)

// RiskHandler exposes risk snapshot history for dashboards.
type RiskHandler struct {
	riskService *services.RiskService
}

func NewRiskHandler(riskService *services.RiskService) *RiskHandler {
	return &RiskHandler{riskService: riskService}
}

// List returns snapshot history. Admin and service callers may query any
// user; everyone else only sees the subject their account maps to.
func (h *RiskHandler) List(c *gin.Context) {
	userID := c.Query("user_id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	if v, ok := c.Get(middleware.UserKey); ok {
		if user, ok := v.(*models.User); ok && !user.IsServiceCaller() {
			if user.SubjectID == "" {
				c.JSON(http.StatusForbidden, gin.H{"error": "no audit subject mapped to this account"})
				return
			}
			userID = user.SubjectID
		}
	}

	snapshots, err := h.riskService.ListSnapshots(userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list risk scores"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"snapshots": snapshots, "count": len(snapshots)})
}
