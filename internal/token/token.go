// token реализует кодек подписанных токенов с ограниченным сроком жизни.
//
// Каждый токен — JWT (HS256) с полями sub, kind, jti, iat, exp, iss, aud.
// Вид токена (kind) входит в подписанную часть, поэтому refresh-токен
// нельзя предъявить вместо access-токена и наоборот.
// Кодек не обращается к хранилищу: проверка отзыва и привязки к сессии
// выполняется уровнем выше.
package token

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"
)

// Kind — назначение токена.
type Kind string

const (
	KindAccess     Kind = "access"
	KindRefresh    Kind = "refresh"
	KindActivation Kind = "activation"
)

// Valid сообщает, известен ли вид токена.
func (k Kind) Valid() bool {
	switch k {
	case KindAccess, KindRefresh, KindActivation:
		return true
	default:
		return false
	}
}

var (
	// ErrMalformed — строка не является токеном или в нём нет обязательных полей.
	ErrMalformed = errors.New("token malformed")
	// ErrInvalidSignature — подпись не сходится или алгоритм не HS256.
	ErrInvalidSignature = errors.New("token signature invalid")
	// ErrWrongKind — токен другого назначения.
	ErrWrongKind = errors.New("token kind mismatch")
	// ErrUntrusted — чужой issuer или audience.
	ErrUntrusted = errors.New("token issuer or audience mismatch")
	// ErrExpired — срок действия истёк.
	ErrExpired = errors.New("token expired")
)

// Token — разобранный токен. Неизменяем после выпуска.
type Token struct {
	ID        string
	Subject   string
	Kind      Kind
	Issuer    string
	Audience  []string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Raw       string
}

// IsExpired возвращает true, если now >= ExpiresAt.
func IsExpired(t *Token, now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Fingerprint — sha256 от сырого токена в base64url.
// Под этим ключом токены хранятся в БД и кэше.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
