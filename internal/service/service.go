// service содержит движок жизненного цикла токенов: вход и регистрацию,
// ротацию refresh-токенов, выход с отзывом access-токена, активацию
// аккаунта и сброс пароля.
//
// Основные аспекты:
//   - Service не хранит состояние запроса; экземпляр безопасен для
//     конкурентного использования, если потокобезопасны зависимости.
//   - Все зависимости передаются в конструктор (или сеттеры для опциональных).
//   - Ошибки — сентинелы ниже; транспорт маппит их в HTTP-статусы
//     (см. internal/errors).
package service

import (
	"context"
	"errors"
	"time"

	"github.com/pribylovaa/identity-service/internal/cache"
	"github.com/pribylovaa/identity-service/internal/config"
	"github.com/pribylovaa/identity-service/internal/metrics"
	"github.com/pribylovaa/identity-service/internal/notify"
	"github.com/pribylovaa/identity-service/internal/storage"
	"github.com/pribylovaa/identity-service/internal/token"
)

var (
	// ErrInvalidCredentials — неверная пара e-mail/пароль. HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserNotFound — субъект токена или учётных данных не найден. HTTP 401 для
	// входа (неотличимо от ErrInvalidCredentials), 404 в остальных случаях.
	ErrUserNotFound = errors.New("user not found")

	// ErrAccountNotActive — вход до активации при включённом require_activation. HTTP 403.
	ErrAccountNotActive = errors.New("account is not active")

	// ErrEmailTaken — e-mail уже занят. HTTP 409.
	ErrEmailTaken = errors.New("email already taken")

	// ErrRoleNotFound — роль по умолчанию отсутствует в справочнике. HTTP 500.
	ErrRoleNotFound = errors.New("role not found")

	// ErrInvalidToken — токен не разбирается, подпись неверна или вид не тот. HTTP 401.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired — срок действия токена истёк. HTTP 401.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenMismatch — refresh-токен не совпадает с сохранённым
	// (уже ротирован, сессия закрыта или токены разных пользователей). HTTP 401.
	ErrTokenMismatch = errors.New("token mismatch")

	// ErrTokenRevoked — access-токен в чёрном списке. HTTP 401.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrInvalidActivationToken — токен активации неверен или истёк. HTTP 400.
	ErrInvalidActivationToken = errors.New("invalid or expired activation token")

	// ErrActivationUserNotFound — субъект токена активации не найден. HTTP 404.
	ErrActivationUserNotFound = errors.New("activation user not found")

	// ErrEmailUserNotFound — нет пользователя с таким e-mail (письма, сброс). HTTP 404.
	ErrEmailUserNotFound = errors.New("email user not found")

	// ErrResetTokenNotProvided — токен сброса не передан. HTTP 400.
	ErrResetTokenNotProvided = errors.New("reset token not provided")

	// ErrResetTokenInvalid — токен сброса неизвестен или уже использован. HTTP 400.
	ErrResetTokenInvalid = errors.New("reset token invalid")

	// ErrResetTokenExpired — токен сброса просрочен. HTTP 410.
	ErrResetTokenExpired = errors.New("reset token expired")

	// ErrInvalidEmail — e-mail имеет некорректный формат. HTTP 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword — пароль не удовлетворяет политике сложности. HTTP 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword — пароль пустой. HTTP 400.
	ErrEmptyPassword = errors.New("password is empty")

	// ErrInvalidLoanStatus — неизвестный статус заявки. HTTP 400.
	ErrInvalidLoanStatus = errors.New("invalid loan status")
)

// Authenticator проверяет учётные данные и хэширует секреты.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) error
	Hash(secret string) (string, error)
}

// Service описывает бизнес-логику жизненного цикла токенов.
type Service struct {
	storage  storage.Storage
	auth     Authenticator
	codec    *token.Codec
	notifier notify.Notifier
	cfg      config.AuthConfig
	bcache   cache.BlacklistCache // может быть nil, если кэш не сконфигурирован
	metrics  *metrics.Metrics     // может быть nil
	now      func() time.Time
}

// New создаёт новый экземпляр Service. Часы берутся у кодека,
// чтобы срок действия токенов и токенов сброса считался одинаково.
func New(st storage.Storage, auth Authenticator, codec *token.Codec, n notify.Notifier, cfg config.AuthConfig) *Service {
	return &Service{
		storage:  st,
		auth:     auth,
		codec:    codec,
		notifier: n,
		cfg:      cfg,
		now:      codec.Now,
	}
}

// SetBlacklistCache устанавливает кэш чёрного списка (опционально).
func (s *Service) SetBlacklistCache(c cache.BlacklistCache) {
	s.bcache = c
}

// SetMetrics включает метрики (опционально).
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// outcome — метка исхода операции для метрик.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}

	for _, e := range []struct {
		err   error
		label string
	}{
		{ErrInvalidCredentials, "invalid_credentials"},
		{ErrUserNotFound, "user_not_found"},
		{ErrAccountNotActive, "account_not_active"},
		{ErrEmailTaken, "email_taken"},
		{ErrInvalidToken, "invalid_token"},
		{ErrTokenExpired, "token_expired"},
		{ErrTokenMismatch, "token_mismatch"},
		{ErrTokenRevoked, "token_revoked"},
		{ErrInvalidActivationToken, "invalid_activation_token"},
		{ErrActivationUserNotFound, "activation_user_not_found"},
		{ErrEmailUserNotFound, "email_user_not_found"},
		{ErrResetTokenNotProvided, "reset_token_not_provided"},
		{ErrResetTokenInvalid, "reset_token_invalid"},
		{ErrResetTokenExpired, "reset_token_expired"},
		{ErrInvalidEmail, "invalid_email"},
		{ErrWeakPassword, "weak_password"},
		{ErrEmptyPassword, "empty_password"},
	} {
		if errors.Is(err, e.err) {
			return e.label
		}
	}

	return "error"
}
