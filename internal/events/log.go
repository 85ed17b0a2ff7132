package events

import (
	"context"
	"log/slog"

	"github.com/tendant/simple-onboarding/pkg/domain"
)

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event domain.TenantProvisioned) error {
	p.logger.InfoContext(ctx, "tenant event",
		"event", domain.TenantProvisionedEventName,
		"tenant_id", event.TenantID,
		"organization_name", event.OrganizationName,
		"admin_email", event.AdminEmail,
		"occurred_at", event.OccurredAt)
	return nil
}
