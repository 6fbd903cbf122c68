package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/avi-health/identity-service/internal/core/domain"
)

// IdentityKey is the echo context key the Auth middleware stores the
// resolved identity under.
const IdentityKey = "identity"

// currentIdentity returns the identity injected by the Auth middleware.
// Its absence means the route was mounted without authentication.
func currentIdentity(c echo.Context) (*domain.Identity, error) {
	identity, ok := c.Get(IdentityKey).(*domain.Identity)
	if !ok || identity == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication")
	}
	return identity, nil
}

// CurrentIdentity is currentIdentity for callers outside the package.
func CurrentIdentity(c echo.Context) (*domain.Identity, error) {
	return currentIdentity(c)
}
