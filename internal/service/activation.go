package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pribylovaa/identity-service/internal/pkg/log"
	"github.com/pribylovaa/identity-service/internal/pkg/redact"
	"github.com/pribylovaa/identity-service/internal/storage"
	"github.com/pribylovaa/identity-service/internal/token"
)

// ActivateAccount активирует аккаунт по токену активации.
// Повторная активация уже активного аккаунта успешна.
func (s *Service) ActivateAccount(ctx context.Context, activationToken string) (err error) {
	const op = "service.activation.ActivateAccount"
	defer func() { s.metrics.Operation("activate", outcome(err)) }()

	t, err := s.codec.VerifyAsActivation(activationToken)
	if err != nil {
		return fmt.Errorf("%s: %w", op, ErrInvalidActivationToken)
	}

	userID, ok := parseSubject(t)
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrInvalidActivationToken)
	}

	activated, err := s.storage.ActivateUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrActivationUserNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if !activated {
		log.From(ctx).Info("account_already_active", slog.String("user_id", userID.String()))
		return nil
	}

	log.From(ctx).Info("account_activated", slog.String("user_id", userID.String()))

	return nil
}

// GenerateActivationToken выпускает токен активации для пользователя с данным e-mail.
func (s *Service) GenerateActivationToken(ctx context.Context, email string) (string, error) {
	const op = "service.activation.GenerateActivationToken"

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

	t, err := s.codec.Issue(user.ID.String(), token.KindActivation, s.cfg.ActivationTokenTTL)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.TokenIssued(string(token.KindActivation))

	return t.Raw, nil
}

// ResendActivation повторно ставит в очередь письмо активации.
// Для уже активного аккаунта письмо не отправляется.
func (s *Service) ResendActivation(ctx context.Context, email string) error {
	const op = "service.activation.ResendActivation"

	normEmail, err := validateEmail(email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	user, found, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return fmt.Errorf("%s: %w", op, ErrEmailUserNotFound)
	}

	if user.Active {
		log.From(ctx).Info("account_already_active",
			slog.String("op", op),
			slog.String("email", redact.Email(normEmail)),
		)
		return nil
	}

	s.notifier.NotifyActivation(ctx, normEmail, user.Name)

	return nil
}
