// memory — потокобезопасная реализация storage.Storage в памяти процесса.
// Используется драйвером "memory" (локальный запуск) и в сценарных тестах.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/identity-service/internal/models"
	"github.com/pribylovaa/identity-service/internal/storage"
)

// DefaultRoles — роли, которые засеваются в новое хранилище.
var DefaultRoles = []string{"ROLE_BUYER", "ROLE_INVESTOR", "ROLE_ADMIN"}

type Storage struct {
	mu        sync.RWMutex
	users     map[uuid.UUID]*models.User
	byEmail   map[string]uuid.UUID
	roles     map[string]models.Role
	blacklist map[string]time.Time
	now       func() time.Time
}

// New создаёт хранилище с ролями DefaultRoles.
func New() *Storage {
	s := &Storage{
		users:     make(map[uuid.UUID]*models.User),
		byEmail:   make(map[string]uuid.UUID),
		roles:     make(map[string]models.Role),
		blacklist: make(map[string]time.Time),
		now:       time.Now,
	}

	for i, name := range DefaultRoles {
		s.roles[name] = models.Role{ID: int64(i + 1), Name: name}
	}

	return s
}

// CreateUser сохраняет нового пользователя.
func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	const op = "storage.memory.CreateUser"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, ok := s.byEmail[key]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	s.users[user.ID] = clone(user)
	s.byEmail[key] = user.ID

	return nil
}

// UserByEmail находит пользователя по email.
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, bool, error) {
	const op = "storage.memory.UserByEmail"

	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, false, nil
	}

	return clone(s.users[id]), true, nil
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, bool, error) {
	const op = "storage.memory.UserByID"

	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, false, nil
	}

	return clone(u), true, nil
}

// UserByResetToken находит пользователя по хэшу токена сброса.
func (s *Storage) UserByResetToken(ctx context.Context, tokenHash string) (*models.User, bool, error) {
	const op = "storage.memory.UserByResetToken"

	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if tokenHash == "" {
		return nil, false, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.ResetTokenHash == tokenHash {
			return clone(u), true, nil
		}
	}

	return nil, false, nil
}

// SetRefreshToken перезаписывает хэш refresh-токена.
func (s *Storage) SetRefreshToken(ctx context.Context, id uuid.UUID, tokenHash string) error {
	const op = "storage.memory.SetRefreshToken"

	return s.update(ctx, op, id, func(u *models.User) bool {
		u.RefreshTokenHash = tokenHash
		return true
	})
}

// RotateRefreshToken — compare-and-swap хэша refresh-токена под одной блокировкой.
func (s *Storage) RotateRefreshToken(ctx context.Context, id uuid.UUID, oldHash, newHash string) (bool, error) {
	const op = "storage.memory.RotateRefreshToken"

	swapped := false
	err := s.update(ctx, op, id, func(u *models.User) bool {
		if oldHash == "" || u.RefreshTokenHash != oldHash {
			return false
		}
		u.RefreshTokenHash = newHash
		swapped = true
		return true
	})
	if err != nil {
		return false, err
	}

	return swapped, nil
}

// ActivateUser переводит аккаунт в active.
func (s *Storage) ActivateUser(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "storage.memory.ActivateUser"

	activated := false
	err := s.update(ctx, op, id, func(u *models.User) bool {
		if u.Active {
			return false
		}
		u.Active = true
		activated = true
		return true
	})
	if err != nil {
		return false, err
	}

	return activated, nil
}

// SetResetToken сохраняет токен сброса и срок его действия.
func (s *Storage) SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	const op = "storage.memory.SetResetToken"

	return s.update(ctx, op, id, func(u *models.User) bool {
		exp := expiresAt.UTC()
		u.ResetTokenHash = tokenHash
		u.ResetTokenExpiry = &exp
		return true
	})
}

// CompleteReset меняет пароль и очищает токен сброса.
func (s *Storage) CompleteReset(ctx context.Context, id uuid.UUID, tokenHash, passwordHash string) (bool, error) {
	const op = "storage.memory.CompleteReset"

	done := false
	err := s.update(ctx, op, id, func(u *models.User) bool {
		if tokenHash == "" || u.ResetTokenHash != tokenHash {
			return false
		}
		u.PasswordHash = passwordHash
		u.ResetTokenHash = ""
		u.ResetTokenExpiry = nil
		done = true
		return true
	})
	if err != nil {
		return false, err
	}

	return done, nil
}

// PurgeExpiredResetTokens очищает просроченные токены сброса.
func (s *Storage) PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.memory.PurgeExpiredResetTokens"

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, u := range s.users {
		if u.ResetTokenExpiry != nil && u.ResetTokenExpiry.Before(now) {
			u.ResetTokenHash = ""
			u.ResetTokenExpiry = nil
			n++
		}
	}

	return n, nil
}

// RoleByName находит роль по имени.
func (s *Storage) RoleByName(ctx context.Context, name string) (*models.Role, bool, error) {
	const op = "storage.memory.RoleByName"

	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[name]
	if !ok {
		return nil, false, nil
	}

	return &r, true, nil
}

// RevokeToken добавляет токен в чёрный список; повторный вызов ничего не меняет.
func (s *Storage) RevokeToken(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	const op = "storage.memory.RevokeToken"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blacklist[tokenHash]; !ok {
		s.blacklist[tokenHash] = expiresAt.UTC()
	}

	return nil
}

// IsRevoked сообщает, находится ли токен в чёрном списке.
func (s *Storage) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	const op = "storage.memory.IsRevoked"

	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.blacklist[tokenHash]
	return ok, nil
}

// PurgeExpired удаляет записи чёрного списка с expires_at <= now.
func (s *Storage) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.memory.PurgeExpired"

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for h, exp := range s.blacklist {
		if !exp.After(now) {
			delete(s.blacklist, h)
			n++
		}
	}

	return n, nil
}

// EndSession очищает refresh-токен и отзывает access-токен под одной блокировкой.
func (s *Storage) EndSession(ctx context.Context, userID uuid.UUID, accessHash string, accessExpiresAt time.Time) error {
	const op = "storage.memory.EndSession"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	u.RefreshTokenHash = ""
	u.UpdatedAt = s.now().UTC()

	if accessHash != "" {
		if _, exists := s.blacklist[accessHash]; !exists {
			s.blacklist[accessHash] = accessExpiresAt.UTC()
		}
	}

	return nil
}

// Ping всегда успешен.
func (s *Storage) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close ничего не освобождает.
func (s *Storage) Close() {}

// update применяет fn к пользователю под эксклюзивной блокировкой.
// fn возвращает true, если запись изменена (тогда обновляется UpdatedAt).
func (s *Storage) update(ctx context.Context, op string, id uuid.UUID, fn func(u *models.User) bool) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	if fn(u) {
		u.UpdatedAt = s.now().UTC()
	}

	return nil
}

func clone(u *models.User) *models.User {
	if u == nil {
		return nil
	}

	c := *u
	if u.ResetTokenExpiry != nil {
		exp := *u.ResetTokenExpiry
		c.ResetTokenExpiry = &exp
	}

	return &c
}

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Storage)(nil)
