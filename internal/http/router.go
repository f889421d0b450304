package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/pribylovaa/identity-service/internal/errors"
	"github.com/pribylovaa/identity-service/internal/http/handlers"
	"github.com/pribylovaa/identity-service/internal/http/middleware"
	"github.com/pribylovaa/identity-service/internal/metrics"
	"github.com/pribylovaa/identity-service/internal/service"
)

// DefaultBasePath — префикс маршрутов аутентификации.
const DefaultBasePath = "/api/auth"

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Timeout  time.Duration
	BasePath string // если пустой — DefaultBasePath.
	// ActivatedURL — куда редиректить после активации аккаунта.
	ActivatedURL string
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc *service.Service, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),             // безопасно ловим паники
		middleware.RequestID(),           // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger),  // кладём request-scoped логгер в контекст и логируем
		middleware.Metrics(opts.Metrics), // латентность по шаблону маршрута
		middleware.AuthBearer(),          // вынимаем Bearer токен в контекст
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	root.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apierrors.WriteError(w, r, apierrors.ErrNotFound)
	})
	root.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apierrors.WriteError(w, r, apierrors.ErrMethodNotAllowed)
	})

	h := handlers.New(svc, opts.ActivatedURL)

	basePath := opts.BasePath
	if basePath == "" {
		basePath = DefaultBasePath
	}

	root.Route(basePath, func(r chi.Router) {
		registerRoutes(r, h, middleware.RequireAccess(svc))
	})

	return root
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, requireAccess middleware.Middleware) {
	// сессия
	r.Post("/login", h.LoginUser)
	r.Post("/register", h.RegisterUser)
	r.Post("/refresh-token", h.RefreshToken)
	r.Post("/logout", h.Logout)
	r.Post("/validate", h.ValidateToken)

	// активация
	r.Get("/activate", h.Activate)
	r.Post("/generate-token", h.GenerateToken)

	// сброс пароля
	r.Post("/password/forgot", h.ForgotPassword)
	r.Get("/password/validate", h.ValidateResetToken)
	r.Post("/password/reset", h.ResetPassword)

	// только с действующим access-токеном
	r.Group(func(r chi.Router) {
		r.Use(requireAccess)
		r.Get("/check-login", h.CheckSession)
		r.Post("/notifications/loan-status", h.LoanStatus)
	})
}
