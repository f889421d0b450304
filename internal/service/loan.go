package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pribylovaa/identity-service/internal/notify"
)

// NotifyLoanStatus ставит в очередь письмо о смене статуса заявки.
// Если имя не передано, оно берётся из профиля пользователя (при наличии).
func (s *Service) NotifyLoanStatus(ctx context.Context, email, userName, status, note string) error {
	const op = "service.loan.NotifyLoanStatus"

	st, ok := notify.ParseLoanStatus(status)
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrInvalidLoanStatus)
	}

	normEmail, err := validateEmail(email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	userName = strings.TrimSpace(userName)
	if userName == "" {
		user, found, err := s.storage.UserByEmail(ctx, normEmail)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if found {
			userName = user.Name
		}
	}

	s.notifier.NotifyLoanStatus(ctx, normEmail, userName, st, strings.TrimSpace(note))

	return nil
}
