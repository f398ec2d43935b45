package main

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/veilgate/aegis/internal/database"
	"github.com/veilgate/aegis/internal/models"
)

// Seeds a local database with audit activity at each risk tier so the engine
// has something to chew on during development.
func main() {
	db, err := gorm.Open(sqlite.Open("./data/aegis.db"), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	fmt.Println("✓ Database migrated successfully")

	now := time.Now()
	events := []models.AuditEvent{}

	// High-risk operator: repeated forbidden calls plus anomalies, recent.
	for i := 0; i < 4; i++ {
		events = append(events, models.AuditEvent{
			UserID:         "usr-1001",
			Role:           models.RoleOperator,
			Action:         "export_report",
			DecisionImpact: models.DecisionImpactForbidden,
			CreatedAt:      now.Add(-time.Duration(i*10) * time.Minute),
		})
	}
	for i := 0; i < 2; i++ {
		events = append(events, models.AuditEvent{
			UserID:          "usr-1001",
			Role:            models.RoleOperator,
			Action:          "bulk_download",
			AnomalyDetected: true,
			CreatedAt:       now.Add(-time.Duration(i*25) * time.Minute),
		})
	}

	// Mid-risk end user: a few auth failures a couple of hours back.
	for i := 0; i < 4; i++ {
		events = append(events, models.AuditEvent{
			UserID:         "usr-2002",
			Role:           models.RoleEndUser,
			Action:         "login",
			DecisionImpact: models.DecisionImpactUnauthorized,
			CreatedAt:      now.Add(-2*time.Hour - time.Duration(i*5)*time.Minute),
		})
	}

	// Low-risk admin: routine activity, one stale anomaly.
	events = append(events,
		models.AuditEvent{
			UserID:    "usr-3003",
			Role:      models.RolePlatformAdmin,
			Action:    "update_settings",
			CreatedAt: now.Add(-3 * time.Hour),
		},
		models.AuditEvent{
			UserID:          "usr-3003",
			Role:            models.RolePlatformAdmin,
			Action:          "config_change",
			AnomalyDetected: true,
			CreatedAt:       now.Add(-20 * time.Hour),
		},
	)

	for i := range events {
		if err := db.Create(&events[i]).Error; err != nil {
			log.Fatal("Failed to seed audit events:", err)
		}
	}

	fmt.Printf("✓ Seeded %d audit events across 3 users\n", len(events))
	fmt.Println("Run the engine (POST /api/v1/engine/run) to score them.")
}
