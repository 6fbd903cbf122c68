package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/avi-health/identity-service/internal/api/metrics"
	"github.com/avi-health/identity-service/internal/core/domain"
	"github.com/avi-health/identity-service/internal/core/ports"
)

// UserHandler serves the authenticated account endpoints.
type UserHandler struct {
	authService ports.AuthService
	authorizer  ports.Authorizer
}

func NewUserHandler(authService ports.AuthService, authorizer ports.Authorizer) *UserHandler {
	return &UserHandler{authService: authService, authorizer: authorizer}
}

// Me returns the caller's identity as currently stored.
//
// @Summary      Current user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.Identity
// @Failure      401  {object}  errorResponse
// @Router       /api/users/me [get]
func (h *UserHandler) Me(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, identity)
}

// UpdateMe changes the caller's username and email.
//
// @Summary      Update current user
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      updateProfileRequest  true  "New profile"
// @Success      200   {object}  domain.Identity
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /api/users/me [put]
func (h *UserHandler) UpdateMe(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var req updateProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	updated, err := h.authService.UpdateProfile(c.Request().Context(), identity.ID, req.Username, req.Email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// ChangePassword replaces the caller's password.
//
// @Summary      Change password
// @Tags         users
// @Accept       json
// @Security     BearerAuth
// @Param        body  body  changePasswordRequest  true  "Current and new password"
// @Success      204
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /api/users/me/password [put]
func (h *UserHandler) ChangePassword(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if _, err := h.authService.ChangePassword(c.Request().Context(), identity.ID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// GetByID returns an identity by id.
//
// @Summary      Get user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Identity ID"
// @Success      200  {object}  domain.Identity
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /api/users/{id} [get]
func (h *UserHandler) GetByID(c echo.Context) error {
	if _, err := currentIdentity(c); err != nil {
		return err
	}
	identity, err := h.authorizer.GetIdentity(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, identity)
}

// SetRole assigns a role to another identity. Admin only.
//
// @Summary      Set user role
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string          true  "Identity ID"
// @Param        body  body      setRoleRequest  true  "Role or is_admin flag"
// @Success      200   {object}  domain.Identity
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /api/users/{id}/role [put]
func (h *UserHandler) SetRole(c echo.Context) error {
	acting, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var req setRoleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	role, err := req.resolve()
	if err != nil {
		return err
	}

	updated, err := h.authorizer.SetRole(c.Request().Context(), acting, c.Param("id"), role)
	if err != nil {
		return err
	}

	metrics.RoleChangesTotal.WithLabelValues(role.String()).Inc()
	return c.JSON(http.StatusOK, updated)
}

func (r setRoleRequest) resolve() (domain.Role, error) {
	switch {
	case r.Role != nil:
		return domain.ParseRole(*r.Role)
	case r.IsAdmin != nil && *r.IsAdmin:
		return domain.RoleAdmin, nil
	case r.IsAdmin != nil:
		return domain.RoleUser, nil
	default:
		return "", echo.NewHTTPError(http.StatusBadRequest, "role or is_admin is required")
	}
}
