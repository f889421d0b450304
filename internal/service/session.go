package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/identity-service/internal/pkg/log"
	"github.com/pribylovaa/identity-service/internal/pkg/redact"
	"github.com/pribylovaa/identity-service/internal/storage"
	"github.com/pribylovaa/identity-service/internal/token"
)

// RefreshToken обменивает refresh-токен на новую пару.
//
// Ротация выполняется сравнением-с-заменой в хранилище: из нескольких
// конкурентных запросов с одним и тем же токеном успешен ровно один,
// остальные получают ErrTokenMismatch.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (res *AuthResult, err error) {
	const op = "service.session.RefreshToken"
	defer func() { s.metrics.Operation("refresh", outcome(err)) }()

	t, err := s.codec.VerifyAsRefresh(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, verifyErr(err))
	}

	userID, ok := parseSubject(t)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	user, found, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	oldHash := token.Fingerprint(refreshToken)
	if user.RefreshTokenHash != oldHash {
		log.From(ctx).Warn("refresh_token_mismatch",
			slog.String("op", op),
			slog.String("user_id", userID.String()),
			slog.String("token", redact.Token(refreshToken)),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenMismatch)
	}

	pair, err := s.issuePair(userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rotated, err := s.storage.RotateRefreshToken(ctx, userID, oldHash, token.Fingerprint(pair.RefreshToken))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !rotated {
		log.From(ctx).Warn("refresh_rotation_lost",
			slog.String("op", op),
			slog.String("user_id", userID.String()),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenMismatch)
	}

	user.RefreshTokenHash = token.Fingerprint(pair.RefreshToken)

	return &AuthResult{User: user, Tokens: pair}, nil
}

// Logout закрывает сессию: очищает refresh-токен пользователя и заносит
// access-токен в чёрный список до его собственного истечения.
//
// Истёкший refresh-токен допускается: выйти можно и из «протухшей» сессии.
// Истёкший access-токен в чёрный список не попадает, он и так недействителен.
func (s *Service) Logout(ctx context.Context, refreshToken, accessToken string) (err error) {
	const op = "service.session.Logout"
	defer func() { s.metrics.Operation("logout", outcome(err)) }()

	rt, err := s.codec.VerifyAsRefresh(refreshToken)
	if err != nil && !errors.Is(err, token.ErrExpired) {
		return fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	userID, ok := parseSubject(rt)
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	at, err := s.codec.VerifyAsAccess(accessToken)
	accessExpired := errors.Is(err, token.ErrExpired)
	if err != nil && !accessExpired {
		return fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if at.Subject != rt.Subject {
		return fmt.Errorf("%s: %w", op, ErrTokenMismatch)
	}

	var accessHash string
	if !accessExpired {
		accessHash = token.Fingerprint(accessToken)
	}

	if err := s.storage.EndSession(ctx, userID, accessHash, at.ExpiresAt); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if accessHash != "" {
		s.cacheRevoked(ctx, accessHash, at.ExpiresAt)
	}

	log.From(ctx).Info("session_ended",
		slog.String("user_id", userID.String()),
		slog.Bool("access_revoked", accessHash != ""),
	)

	return nil
}

// ValidateAccessToken проверяет access-токен: подпись, вид, срок и
// отсутствие в чёрном списке. Возвращает ID пользователя.
func (s *Service) ValidateAccessToken(ctx context.Context, accessToken string) (uid uuid.UUID, err error) {
	const op = "service.session.ValidateAccessToken"
	defer func() { s.metrics.Operation("validate", outcome(err)) }()

	t, err := s.codec.VerifyAsAccess(accessToken)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, verifyErr(err))
	}

	userID, ok := parseSubject(t)
	if !ok {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	revoked, err := s.isRevoked(ctx, token.Fingerprint(accessToken), t.ExpiresAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}
	if revoked {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	return userID, nil
}

// isRevoked сначала спрашивает кэш, затем хранилище.
// Сбой кэша не является ошибкой: источник истины — хранилище.
func (s *Service) isRevoked(ctx context.Context, hash string, expiresAt time.Time) (bool, error) {
	const op = "service.session.isRevoked"

	if s.bcache != nil {
		hit, err := s.bcache.IsRevoked(ctx, hash)
		if err != nil {
			log.From(ctx).Warn("blacklist_cache_get_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		} else if hit {
			s.metrics.BlacklistHit("cache")
			return true, nil
		}
	}

	revoked, err := s.storage.IsRevoked(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if revoked {
		s.metrics.BlacklistHit("db")
		s.cacheRevoked(ctx, hash, expiresAt)
	}

	return revoked, nil
}

// cacheRevoked кладёт отозванный токен в кэш до его истечения (best-effort).
func (s *Service) cacheRevoked(ctx context.Context, hash string, expiresAt time.Time) {
	const op = "service.session.cacheRevoked"

	if s.bcache == nil {
		return
	}

	if err := s.bcache.MarkRevoked(ctx, hash, expiresAt.Sub(s.now())); err != nil {
		log.From(ctx).Warn("blacklist_cache_set_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
	}
}

// verifyErr сводит ошибки кодека к ошибкам сервиса.
func verifyErr(err error) error {
	if errors.Is(err, token.ErrExpired) {
		return ErrTokenExpired
	}

	return ErrInvalidToken
}
