// storage описывает контракты хранилища пользователей, ролей и чёрного списка.
//
// Поиск возвращает (значение, found, err): отсутствие записи — штатный
// результат (found=false), а err зарезервирован под сбои ввода-вывода.
// Все токены передаются сюда уже в виде хэшей (token.Fingerprint).
package storage

//go:generate mockgen -source=storage.go -destination=../../mocks/mock_storage.go -package=mocks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/identity-service/internal/models"
)

var (
	// ErrNotFound — запись не найдена там, где её отсутствие не является штатным исходом.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// CreateUser сохраняет нового пользователя вместе с хэшем первого refresh-токена.
	CreateUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email (без учёта регистра).
	UserByEmail(ctx context.Context, email string) (*models.User, bool, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, bool, error)
	// UserByResetToken находит пользователя по хэшу токена сброса пароля.
	UserByResetToken(ctx context.Context, tokenHash string) (*models.User, bool, error)
	// SetRefreshToken безусловно перезаписывает хэш текущего refresh-токена.
	SetRefreshToken(ctx context.Context, id uuid.UUID, tokenHash string) error
	// RotateRefreshToken атомарно заменяет oldHash на newHash.
	// false — сохранённый хэш уже не равен oldHash (токен ротирован или сессия закрыта).
	RotateRefreshToken(ctx context.Context, id uuid.UUID, oldHash, newHash string) (bool, error)
	// ActivateUser переводит аккаунт в active. false — аккаунт уже был активен.
	ActivateUser(ctx context.Context, id uuid.UUID) (bool, error)
	// SetResetToken сохраняет хэш токена сброса и его срок действия.
	SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error
	// CompleteReset меняет пароль и очищает токен сброса, если он всё ещё равен tokenHash.
	CompleteReset(ctx context.Context, id uuid.UUID, tokenHash, passwordHash string) (bool, error)
	// PurgeExpiredResetTokens очищает просроченные токены сброса.
	PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// RoleStorage — справочник ролей.
type RoleStorage interface {
	RoleByName(ctx context.Context, name string) (*models.Role, bool, error)
}

// BlacklistStorage хранит отозванные access-токены до их естественного истечения.
type BlacklistStorage interface {
	// RevokeToken идемпотентно добавляет токен в чёрный список.
	RevokeToken(ctx context.Context, tokenHash string, expiresAt time.Time) error
	// IsRevoked сообщает, находится ли токен в чёрном списке.
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
	// PurgeExpired удаляет записи с expires_at <= now.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionStorage — операции, затрагивающие пользователя и чёрный список сразу.
type SessionStorage interface {
	// EndSession очищает refresh-токен пользователя и, если accessHash не пуст,
	// заносит access-токен в чёрный список. Выполняется одной транзакцией.
	EndSession(ctx context.Context, userID uuid.UUID, accessHash string, accessExpiresAt time.Time) error
}

// Storage задает контракт работы с хранилищем.
type Storage interface {
	UserStorage
	RoleStorage
	BlacklistStorage
	SessionStorage
	Ping(ctx context.Context) error
	Close()
}
