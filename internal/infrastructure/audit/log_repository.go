// Package audit holds audit repositories that do not need a database.
package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/avi-health/identity-service/internal/core/domain"
)

// LogRepository writes auth events to a dedicated logger. It is used when
// the store backend has no audit collection of its own.
type LogRepository struct {
	log zerolog.Logger
}

func NewLogRepository(log zerolog.Logger) *LogRepository {
	return &LogRepository{log: log.With().Str("component", "audit").Logger()}
}

func (r *LogRepository) InsertEvent(_ context.Context, event *domain.AuthEvent) error {
	e := r.log.Info().
		Str("kind", string(event.Kind)).
		Str("subject", event.Subject).
		Time("at", event.At)
	if event.Actor != "" {
		e = e.Str("actor", event.Actor)
	}
	if event.Reason != "" {
		e = e.Str("reason", event.Reason)
	}
	e.Msg("auth event")
	return nil
}
