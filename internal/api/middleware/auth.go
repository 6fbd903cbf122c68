package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avi-health/identity-service/internal/api/handler"
	"github.com/avi-health/identity-service/internal/api/metrics"
	"github.com/avi-health/identity-service/internal/core/domain"
	"github.com/avi-health/identity-service/internal/core/ports"
)

// Auth resolves the bearer token into a live identity and injects it into
// the echo context under handler.IdentityKey.
func Auth(authorizer ports.Authorizer) echo.MiddlewareFunc {
	return authWithClock(authorizer, time.Now)
}

func authWithClock(authorizer ports.Authorizer, now func() time.Time) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				metrics.TokenVerificationsTotal.WithLabelValues("missing").Inc()
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				metrics.TokenVerificationsTotal.WithLabelValues("invalid").Inc()
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			identity, err := authorizer.AuthenticateRequest(c.Request().Context(), strings.TrimSpace(parts[1]), now())
			if err != nil {
				metrics.TokenVerificationsTotal.WithLabelValues(verificationResult(err)).Inc()
				return err
			}

			metrics.TokenVerificationsTotal.WithLabelValues("ok").Inc()
			c.Set(handler.IdentityKey, identity)
			return next(c)
		}
	}
}

func verificationResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrTokenExpired):
		return "expired"
	case errors.Is(err, domain.ErrTokenInvalid):
		return "invalid"
	default:
		return "error"
	}
}
