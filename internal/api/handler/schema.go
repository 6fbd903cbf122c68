package handler

import "github.com/avi-health/identity-service/internal/core/domain"

type registerRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

// loginRequest accepts either a username or an email as the login name.
type loginRequest struct {
	Username string `json:"username" validate:"required_without=Email"`
	Email    string `json:"email"`
	Password string `json:"password" validate:"required"`
}

func (r loginRequest) loginName() string {
	if r.Username != "" {
		return r.Username
	}
	return r.Email
}

type updateProfileRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Email    string `json:"email"    validate:"required,email"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password"     validate:"required,max=72"`
}

// setRoleRequest takes either an explicit role or the legacy is_admin flag.
type setRoleRequest struct {
	Role    *string `json:"role"`
	IsAdmin *bool   `json:"is_admin"`
}

type authResponse struct {
	Token string           `json:"token,omitempty"`
	User  *domain.Identity `json:"user,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
