package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/pribylovaa/identity-service/internal/errors"
	"github.com/pribylovaa/identity-service/internal/pkg/log"
	"github.com/pribylovaa/identity-service/internal/service"
)

// Activate — переход по ссылке из письма. При успехе редиректит на фронт.
func (h *Handlers) Activate(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ActivateAccount(r.Context(), r.URL.Query().Get("token")); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if h.activatedURL == "" {
		writeJSON(w, http.StatusOK, OKResponse{Ok: true})
		return
	}

	http.Redirect(w, r, h.activatedURL, http.StatusFound)
}

// GenerateToken повторно отправляет письмо активации.
func (h *Handlers) GenerateToken(w http.ResponseWriter, r *http.Request) {
	var in EmailRequest
	if err := h.decodeAndValidate(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.svc.ResendActivation(r.Context(), in.Email); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, OKResponse{Ok: true})
}

// ForgotPassword всегда отвечает 202 для корректного e-mail,
// чтобы по ответу нельзя было перебирать зарегистрированные адреса.
func (h *Handlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in EmailRequest
	if err := h.decodeAndValidate(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if _, err := h.svc.RequestPasswordReset(r.Context(), in.Email); err != nil {
		if !errors.Is(err, service.ErrEmailUserNotFound) {
			apierrors.WriteError(w, r, err)
			return
		}
		log.From(r.Context()).Info("password_reset_unknown_email")
	}

	writeJSON(w, http.StatusAccepted, OKResponse{Ok: true})
}

func (h *Handlers) ValidateResetToken(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.ValidateResetToken(r.Context(), r.URL.Query().Get("token")); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ValidateResponse{Valid: true})
}

func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var in ResetPasswordRequest
	if err := h.decodeAndValidate(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.svc.ResetPassword(r.Context(), in.Token, in.Password); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, OKResponse{Ok: true})
}

// LoanStatus — уведомление о смене статуса заявки (маршрут за RequireAccess).
func (h *Handlers) LoanStatus(w http.ResponseWriter, r *http.Request) {
	var in LoanStatusRequest
	if err := h.decodeAndValidate(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.svc.NotifyLoanStatus(r.Context(), in.Email, in.UserName, in.Status, in.Note); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	log.From(r.Context()).Info("loan_status_queued", slog.String("status", in.Status))

	writeJSON(w, http.StatusAccepted, OKResponse{Ok: true})
}
