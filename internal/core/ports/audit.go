package ports

import (
	"context"

	"github.com/avi-health/identity-service/internal/core/domain"
)

// AuditRepository persists auth events.
type AuditRepository interface {
	InsertEvent(ctx context.Context, event *domain.AuthEvent) error
}

// AuditSink accepts auth events from the services. Publish must not block
// the calling request.
type AuditSink interface {
	Publish(event domain.AuthEvent)
}
