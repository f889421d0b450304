package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	apierrors "github.com/pribylovaa/identity-service/internal/errors"
	logctx "github.com/pribylovaa/identity-service/internal/pkg/log"
)

type (
	bearerKey struct{}
	userIDKey struct{}
)

// AccessValidator проверяет access-токен и возвращает ID пользователя.
type AccessValidator interface {
	ValidateAccessToken(ctx context.Context, accessToken string) (uuid.UUID, error)
}

// AuthBearer извлекает Bearer-токен из Authorization и кладёт "сырой" токен в контекст.
// Отсутствие или кривой заголовок не является ошибкой: решают RequireAccess и хендлеры.
func AuthBearer() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")

			if auth != "" {
				const prefix = "Bearer "
				if strings.HasPrefix(auth, prefix) && len(auth) > len(prefix) {
					token := strings.TrimSpace(auth[len(prefix):])

					if token != "" {
						ctx := context.WithValue(r.Context(), bearerKey{}, token)
						r = r.WithContext(ctx)
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken возвращает токен, извлечённый AuthBearer.
func BearerToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(bearerKey{}).(string)
	return token, ok && token != ""
}

// RequireAccess пропускает запрос только с действующим access-токеном
// и кладёт ID пользователя в контекст. Ставится после AuthBearer.
func RequireAccess(v AccessValidator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r.Context())
			if !ok {
				apierrors.WriteError(w, r, apierrors.ErrMissingToken)
				return
			}

			uid, err := v.ValidateAccessToken(r.Context(), token)
			if err != nil {
				logctx.From(r.Context()).Warn("access_denied",
					slog.String("path", r.URL.Path),
					slog.String("err", err.Error()),
				)
				apierrors.WriteError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey{}, uid)
			ctx = logctx.With(ctx, slog.String("user_id", uid.String()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFrom возвращает ID пользователя, проверенного RequireAccess.
func UserIDFrom(ctx context.Context) (uuid.UUID, bool) {
	uid, ok := ctx.Value(userIDKey{}).(uuid.UUID)
	return uid, ok
}
