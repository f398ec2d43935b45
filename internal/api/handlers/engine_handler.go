package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veilgate/aegis/internal/services"
)

// EngineHandler exposes the on-demand batch cycle entrypoint.
type EngineHandler struct {
	engine *services.EngineService
}

func NewEngineHandler(engine *services.EngineService) *EngineHandler {
	return &EngineHandler{engine: engine}
}

// Run executes one batch cycle and returns its report. Safe to call while a
// scheduled cycle is running: the overlapping request is rejected with 409.
func (h *EngineHandler) Run(c *gin.Context) {
	report, err := h.engine.RunPolicyEngine()
	if err != nil {
		if errors.Is(err, services.ErrCycleInFlight) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "engine cycle failed"})
		return
	}

	c.JSON(http.StatusOK, report)
}
