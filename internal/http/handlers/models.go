package handlers

import (
	"github.com/pribylovaa/identity-service/internal/models"
	"github.com/pribylovaa/identity-service/internal/service"
)

// Входные/выходные модели REST.

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
	Name     string `json:"name" validate:"max=100"`
	Lastname string `json:"lastname" validate:"max=100"`
	Buyer    bool   `json:"buyer"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type ValidateRequest struct {
	AccessToken string `json:"access_token" validate:"required"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,max=72"`
}

type LoanStatusRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	UserName string `json:"user_name" validate:"max=100"`
	Status   string `json:"status" validate:"required"`
	Note     string `json:"note" validate:"max=2000"`
}

type UserResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Lastname string `json:"lastname"`
	Verified bool   `json:"verified"`
	Role     string `json:"role"`
}

type AuthResponse struct {
	User             UserResponse `json:"user"`
	AccessToken      string       `json:"access_token"`
	RefreshToken     string       `json:"refresh_token"`
	AccessExpiresAt  int64        `json:"access_expires_at"`  // Unix UTC
	RefreshExpiresAt int64        `json:"refresh_expires_at"` // Unix UTC
}

type ValidateResponse struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id,omitempty"`
}

type OKResponse struct {
	Ok bool `json:"ok"`
}

func userFromModel(u *models.User) UserResponse {
	return UserResponse{
		ID:       u.ID.String(),
		Email:    u.Email,
		Name:     u.Name,
		Lastname: u.Lastname,
		Verified: u.Active,
		Role:     u.Role.Name,
	}
}

func authFromResult(res *service.AuthResult) AuthResponse {
	return AuthResponse{
		User:             userFromModel(res.User),
		AccessToken:      res.Tokens.AccessToken,
		RefreshToken:     res.Tokens.RefreshToken,
		AccessExpiresAt:  res.Tokens.AccessExpiresAt.Unix(),
		RefreshExpiresAt: res.Tokens.RefreshExpiresAt.Unix(),
	}
}
