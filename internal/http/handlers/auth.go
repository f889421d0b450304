package handlers

import (
	"errors"
	"net/http"

	apierrors "github.com/pribylovaa/identity-service/internal/errors"
	"github.com/pribylovaa/identity-service/internal/http/middleware"
	"github.com/pribylovaa/identity-service/internal/service"
)

func (h *Handlers) LoginUser(w http.ResponseWriter, r *http.Request) {
	var in LoginRequest
	if err := h.decodeAndValidate(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	res, err := h.svc.LoginUser(r.Context(), in.Email, in.Password)
	if err != nil {
		// Исчезнувший между проверкой пароля и выборкой пользователь для клиента
		// неотличим от неверного пароля.
		if errors.Is(err, service.ErrUserNotFound) {
			err = service.ErrInvalidCredentials
		}
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authFromResult(res))
}

func (h *Handlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var in RegisterRequest
	if err := h.decodeAndValidate(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	res, err := h.svc.RegisterUser(r.Context(), service.RegisterInput{
		Email:    in.Email,
		Password: in.Password,
		Name:     in.Name,
		Lastname: in.Lastname,
		Buyer:    in.Buyer,
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, authFromResult(res))
}

// CheckSession — маршрут за RequireAccess.
func (h *Handlers) CheckSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.ErrMissingToken)
		return
	}

	res, err := h.svc.CheckSession(r.Context(), uid)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authFromResult(res))
}

func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var in RefreshRequest
	if err := h.decodeAndValidate(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	res, err := h.svc.RefreshToken(r.Context(), in.RefreshToken)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authFromResult(res))
}

// Logout — access-токен из Authorization, refresh-токен из тела.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	access, ok := middleware.BearerToken(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.ErrMissingToken)
		return
	}

	var in LogoutRequest
	if err := h.decodeAndValidate(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.svc.Logout(r.Context(), in.RefreshToken, access); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, OKResponse{Ok: true})
}

// ValidateToken отвечает 200 и valid=false для любого недействительного токена;
// ошибкой считается только сбой проверки.
func (h *Handlers) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var in ValidateRequest
	if err := h.decodeAndValidate(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	uid, err := h.svc.ValidateAccessToken(r.Context(), in.AccessToken)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ValidateResponse{Valid: true, UserID: uid.String()})
	case errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrTokenRevoked):
		writeJSON(w, http.StatusOK, ValidateResponse{Valid: false})
	default:
		apierrors.WriteError(w, r, err)
	}
}
