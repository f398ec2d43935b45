package routes

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/veilgate/aegis/internal/api/handlers"
	"github.com/veilgate/aegis/internal/api/middleware"
	"github.com/veilgate/aegis/internal/config"
	"github.com/veilgate/aegis/internal/database"
	"github.com/veilgate/aegis/internal/logger"
	"github.com/veilgate/aegis/internal/metrics"
	"github.com/veilgate/aegis/internal/services"
)

// Register wires up API routes, applies migrations and starts the scheduled
// batch cycle. The returned scheduler must be stopped on shutdown so an
// in-flight cycle can finish; it is nil when the schedule is invalid.
func Register(router *gin.Engine, db *gorm.DB, cfg config.Config) (*cron.Cron, error) {
	if err := database.Migrate(db); err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	router.GET("/api/v1/health", handlers.HealthHandler)

	api := router.Group("/api/v1")
	api.Use(middleware.RequestID(), middleware.RequestLogger(), middleware.Recovery(cfg.Environment == "development"))

	// Services
	auditService := services.NewAuditService(db)
	riskService := services.NewRiskService(db, auditService)
	policyService := services.NewPolicyService(db)
	notificationService := services.NewNotificationService(cfg.NotificationURL)
	engineService := services.NewEngineService(auditService, riskService, policyService, notificationService, cfg.LookbackWindow)
	authService := services.NewAuthService(db, cfg)

	// Auth routes
	authHandler := handlers.NewAuthHandler(authService)
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/register", authHandler.Register)

	authMiddleware := middleware.AuthMiddleware(authService)

	protected := api.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/auth/me", authHandler.Me)

		// Risk snapshots: any authenticated account, scoped inside the handler
		riskHandler := handlers.NewRiskHandler(riskService)
		protected.GET("/risk-scores", riskHandler.List)

		// Resolver and engine: service-level callers only
		policyHandler := handlers.NewPolicyHandler(policyService)
		engineHandler := handlers.NewEngineHandler(engineService)

		service := protected.Group("/")
		service.Use(middleware.RequireRole("admin", "service"))
		{
			service.POST("/policies/check", policyHandler.Check)
			service.GET("/policies", policyHandler.List)
			service.POST("/engine/run", engineHandler.Run)
		}

		// Policy writes and the audit trail: admins only
		admin := protected.Group("/")
		admin.Use(middleware.RequireRole("admin"))
		{
			admin.POST("/policies", policyHandler.Create)
			admin.POST("/policies/:id/suspend", policyHandler.Suspend)

			auditHandler := handlers.NewAuditHandler(auditService)
			admin.GET("/audit", auditHandler.List)
		}
	}

	return startScheduler(engineService, cfg), nil
}

// startScheduler runs the batch cycle on the configured cron schedule. An
// in-flight cycle makes the overlapping tick a no-op.
func startScheduler(engine *services.EngineService, cfg config.Config) *cron.Cron {
	run := func() {
		if _, err := engine.RunPolicyEngine(); err != nil {
			if errors.Is(err, services.ErrCycleInFlight) {
				logger.WithComponent("scheduler").Warn("skipping tick, previous cycle still running")
				return
			}
			logger.WithComponent("scheduler").WithError(err).Error("batch cycle failed")
		}
	}

	if cfg.RunOnBoot {
		go run()
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.EngineSchedule, run); err != nil {
		logger.WithComponent("scheduler").WithError(err).
			WithField("schedule", cfg.EngineSchedule).Error("invalid engine schedule, scheduler disabled")
		return nil
	}
	c.Start()
	return c
}
