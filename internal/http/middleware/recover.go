package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	apierrors "github.com/pribylovaa/identity-service/internal/errors"
	logctx "github.com/pribylovaa/identity-service/internal/pkg/log"
)

// errPanic — то, что уходит в WriteError вместо значения паники (500/internal).
var errPanic = errors.New("handler panic")

// Recover перехватывает panic и отвечает 500/internal, если ответ ещё не начат.
// Значение паники и стек пишутся только в лог.
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := newStatusWriter(w)

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logctx.From(r.Context()).LogAttrs(r.Context(), slog.LevelError, "panic",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Any("reason", rec),
					slog.String("stack", string(debug.Stack())),
				)

				// Заголовки уже ушли: второй ответ только испортит тело.
				if sw.status != 0 {
					return
				}
				apierrors.WriteError(sw, r, errPanic)
			}()

			next.ServeHTTP(sw, r)
		})
	}
}
