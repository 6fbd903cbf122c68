package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/avi-health/identity-service/internal/api/handler"
	"github.com/avi-health/identity-service/internal/api/metrics"
	"github.com/avi-health/identity-service/internal/core/domain"
	"github.com/avi-health/identity-service/internal/core/ports"
)

// RequireRole admits only identities holding exactly the given role.
// It must run after Auth.
func RequireRole(authorizer ports.Authorizer, role domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, err := handler.CurrentIdentity(c)
			if err != nil {
				return err
			}
			if err := authorizer.RequireRole(identity, role); err != nil {
				metrics.AuthorizationDenialsTotal.WithLabelValues(role.String()).Inc()
				return err
			}
			return next(c)
		}
	}
}
