package services

import (
	"fmt"

	"github.com/containrrr/shoutrrr"

	"github.com/veilgate/aegis/internal/logger"
	"github.com/veilgate/aegis/internal/models"
)

// NotificationService pushes operator alerts through a shoutrrr URL
// (slack://, discord://, smtp://, ...). An empty URL disables delivery.
type NotificationService struct {
	url string
}

// NewNotificationService returns a NotificationService for the given
// shoutrrr destination URL.
func NewNotificationService(url string) *NotificationService {
	return &NotificationService{url: url}
}

// Enabled reports whether a destination is configured.
func (s *NotificationService) Enabled() bool {
	return s.url != ""
}

// SendPolicyAlert notifies operators that the engine restricted a subject.
// Delivery failures are logged, never propagated: alerting is best-effort
// and must not fail the batch cycle.
func (s *NotificationService) SendPolicyAlert(p *models.Policy, score float64) {
	if !s.Enabled() || p == nil {
		return
	}

	subject := "role-wide"
	if p.IsUserSpecific() {
		subject = *p.ActionValue
	}
	msg := fmt.Sprintf("Aegis applied %s policy for role %s (subject: %s, risk score %.0f, expires: %s)",
		p.ActionType, p.TargetRole, subject, score, expiryLabel(p))

	if err := shoutrrr.Send(s.url, msg); err != nil {
		logger.WithComponent("notifier").WithError(err).Error("failed to send policy alert")
	}
}

func expiryLabel(p *models.Policy) string {
	if p.ExpiresAt == nil {
		return "never"
	}
	return p.ExpiresAt.UTC().Format("2006-01-02 15:04:05 UTC")
}
