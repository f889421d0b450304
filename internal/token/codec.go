package token

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type claims struct {
	Kind Kind `json:"kind"`
	jwt.RegisteredClaims
}

// Codec выпускает и проверяет токены одним общим секретом.
// Безопасен для конкурентного использования.
type Codec struct {
	secret   []byte
	issuer   string
	audience []string
	now      func() time.Time
}

// Option настраивает Codec.
type Option func(*Codec)

// WithClock подменяет источник времени (тесты, симуляция истечения).
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec создаёт кодек. Пустой audience отключает проверку aud.
func NewCodec(secret, issuer string, audience []string, opts ...Option) *Codec {
	c := &Codec{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Issue выпускает токен вида kind для subject со сроком ttl.
func (c *Codec) Issue(subject string, kind Kind, ttl time.Duration) (*Token, error) {
	const op = "token.codec.Issue"

	if subject == "" || !kind.Valid() || ttl <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrMalformed)
	}

	// JWT хранит время с точностью до секунды.
	now := c.now().UTC().Truncate(time.Second)
	exp := now.Add(ttl)
	if !exp.After(now) {
		exp = now.Add(time.Second)
	}

	id := uuid.NewString()
	cl := claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   subject,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings(c.audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Token{
		ID:        id,
		Subject:   subject,
		Kind:      kind,
		Issuer:    c.issuer,
		Audience:  c.audience,
		IssuedAt:  now,
		ExpiresAt: exp,
		Raw:       signed,
	}, nil
}

// Decode проверяет подпись и структуру, но не срок действия.
func (c *Codec) Decode(raw string) (*Token, error) {
	const op = "token.codec.Decode"

	if raw == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMalformed)
	}

	var cl claims
	_, err := jwt.ParseWithClaims(raw, &cl,
		func(t *jwt.Token) (any, error) {
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("%s: %w", op, ErrMalformed)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidSignature)
	}

	if cl.Subject == "" || !cl.Kind.Valid() || cl.IssuedAt == nil || cl.ExpiresAt == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrMalformed)
	}

	iat, exp := cl.IssuedAt.UTC(), cl.ExpiresAt.UTC()
	if !exp.After(iat) {
		return nil, fmt.Errorf("%s: %w", op, ErrMalformed)
	}

	return &Token{
		ID:        cl.ID,
		Subject:   cl.Subject,
		Kind:      cl.Kind,
		Issuer:    cl.Issuer,
		Audience:  cl.Audience,
		IssuedAt:  iat,
		ExpiresAt: exp,
		Raw:       raw,
	}, nil
}

// VerifyAs — полная проверка: подпись, структура, issuer/audience, вид и срок.
func (c *Codec) VerifyAs(raw string, kind Kind) (*Token, error) {
	const op = "token.codec.VerifyAs"

	t, err := c.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if t.Issuer != c.issuer {
		return nil, fmt.Errorf("%s: %w", op, ErrUntrusted)
	}

	if len(c.audience) > 0 && !slices.ContainsFunc(t.Audience, func(a string) bool {
		return slices.Contains(c.audience, a)
	}) {
		return nil, fmt.Errorf("%s: %w", op, ErrUntrusted)
	}

	if t.Kind != kind {
		return nil, fmt.Errorf("%s: %w", op, ErrWrongKind)
	}

	if IsExpired(t, c.now().UTC()) {
		return t, fmt.Errorf("%s: %w", op, ErrExpired)
	}

	return t, nil
}

// VerifyAsAccess проверяет access-токен.
func (c *Codec) VerifyAsAccess(raw string) (*Token, error) {
	return c.VerifyAs(raw, KindAccess)
}

// VerifyAsRefresh проверяет refresh-токен.
func (c *Codec) VerifyAsRefresh(raw string) (*Token, error) {
	return c.VerifyAs(raw, KindRefresh)
}

// VerifyAsActivation проверяет токен активации аккаунта.
func (c *Codec) VerifyAsActivation(raw string) (*Token, error) {
	return c.VerifyAs(raw, KindActivation)
}

// Now — текущее время по часам кодека.
func (c *Codec) Now() time.Time {
	return c.now().UTC()
}
