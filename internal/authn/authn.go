// authn — проверка учётных данных и хэширование паролей (bcrypt).
package authn

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/identity-service/internal/models"
)

// ErrBadCredentials — пароль не совпал или пользователя нет.
var ErrBadCredentials = errors.New("bad credentials")

// UserFinder — всё, что нужно аутентификатору от хранилища.
type UserFinder interface {
	UserByEmail(ctx context.Context, email string) (*models.User, bool, error)
}

// Authenticator сверяет пароль с хэшем из хранилища.
type Authenticator struct {
	users UserFinder
	cost  int
	dummy []byte
}

// New создаёт Authenticator. cost вне допустимого диапазона заменяется на bcrypt.DefaultCost.
func New(users UserFinder, cost int) *Authenticator {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	// Хэш-заглушка той же стоимости для ветки «пользователя нет».
	dummy, _ := bcrypt.GenerateFromPassword([]byte("dummy-password"), cost)

	return &Authenticator{users: users, cost: cost, dummy: dummy}
}

// Authenticate возвращает ErrBadCredentials, если пара email/пароль не подходит.
// Ошибки хранилища возвращаются как есть.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) error {
	const op = "authn.Authenticate"

	user, found, err := a.users.UserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !found {
		_ = bcrypt.CompareHashAndPassword(a.dummy, []byte(password))
		return fmt.Errorf("%s: %w", op, ErrBadCredentials)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return fmt.Errorf("%s: %w", op, ErrBadCredentials)
	}

	return nil
}

// Hash хэширует секрет с помощью bcrypt.
func (a *Authenticator) Hash(secret string) (string, error) {
	const op = "authn.Hash"

	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), a.cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}
