package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pribylovaa/identity-service/internal/models"
	"github.com/pribylovaa/identity-service/internal/pkg/log"
	"github.com/pribylovaa/identity-service/internal/pkg/redact"
	"github.com/pribylovaa/identity-service/internal/storage"
	"github.com/pribylovaa/identity-service/internal/token"
)

// resetTokenBytes — энтропия токена сброса пароля.
const resetTokenBytes = 32

// RequestPasswordReset выпускает одноразовый токен сброса пароля,
// сохраняет его хэш со сроком reset_token_ttl и ставит в очередь письмо.
// Новый запрос заменяет предыдущий токен.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (plain string, err error) {
	const op = "service.reset.RequestPasswordReset"
	defer func() { s.metrics.Operation("reset_request", outcome(err)) }()

	normEmail, err := validateEmail(email)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	user, found, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return "", fmt.Errorf("%s: %w", op, ErrEmailUserNotFound)
	}

	plain, err = newResetToken()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	expiresAt := s.now().Add(s.cfg.ResetTokenTTL)
	if err := s.storage.SetResetToken(ctx, user.ID, token.Fingerprint(plain), expiresAt); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("%s: %w", op, ErrEmailUserNotFound)
		}

		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("password_reset_requested",
		slog.String("user_id", user.ID.String()),
		slog.String("email", redact.Email(normEmail)),
	)

	s.notifier.NotifyPasswordRecovery(ctx, normEmail, user.Name, plain)

	return plain, nil
}

// ValidateResetToken проверяет токен сброса и возвращает его владельца.
// Токен просрочен, только когда now > expiry; в сам момент истечения он ещё действует.
func (s *Service) ValidateResetToken(ctx context.Context, resetToken string) (*models.User, error) {
	const op = "service.reset.ValidateResetToken"

	resetToken = strings.TrimSpace(resetToken)
	if resetToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrResetTokenNotProvided)
	}

	user, found, err := s.storage.UserByResetToken(ctx, token.Fingerprint(resetToken))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", op, ErrResetTokenInvalid)
	}

	if user.ResetTokenExpiry == nil || s.now().After(*user.ResetTokenExpiry) {
		return nil, fmt.Errorf("%s: %w", op, ErrResetTokenExpired)
	}

	return user, nil
}

// ResetPassword устанавливает новый пароль по токену сброса и гасит токен.
// Из двух конкурентных запросов с одним токеном успешен только один.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) (err error) {
	const op = "service.reset.ResetPassword"
	defer func() { s.metrics.Operation("reset_complete", outcome(err)) }()

	user, err := s.ValidateResetToken(ctx, resetToken)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := validatePassword(newPassword); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	hashedPassword, err := s.auth.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	done, err := s.storage.CompleteReset(ctx, user.ID, token.Fingerprint(strings.TrimSpace(resetToken)), hashedPassword)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrResetTokenInvalid)
		}

		return fmt.Errorf("%s: %w", op, err)
	}
	if !done {
		return fmt.Errorf("%s: %w", op, ErrResetTokenInvalid)
	}

	log.From(ctx).Info("password_reset_completed", slog.String("user_id", user.ID.String()))

	s.notifier.NotifyPasswordChanged(ctx, user.Email, user.Name)

	return nil
}

// newResetToken — 32 случайных байта в base64url.
func newResetToken() (string, error) {
	const op = "service.reset.newResetToken"

	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
