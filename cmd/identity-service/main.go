package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/identity-service/internal/authn"
	"github.com/pribylovaa/identity-service/internal/cache"
	"github.com/pribylovaa/identity-service/internal/config"
	httpapi "github.com/pribylovaa/identity-service/internal/http"
	"github.com/pribylovaa/identity-service/internal/janitor"
	"github.com/pribylovaa/identity-service/internal/metrics"
	"github.com/pribylovaa/identity-service/internal/notify"
	"github.com/pribylovaa/identity-service/internal/service"
	"github.com/pribylovaa/identity-service/internal/storage"
	"github.com/pribylovaa/identity-service/internal/storage/memory"
	"github.com/pribylovaa/identity-service/internal/storage/postgres"
	"github.com/pribylovaa/identity-service/internal/token"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	// Хранилище c таймаутом подключения.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	str, err := openStorage(dbCtx, cfg.DB, log)
	dbCancel()
	if err != nil {
		log.Error("storage_open_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}

	// Метрики в собственном реестре.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mtr := metrics.New(reg)

	// Почта.
	sender, err := newSender(cfg.Mail, log)
	if err != nil {
		log.Error("mail_sender_failed", slog.String("err", err.Error()))
		rootCancel()
		str.Close()
		os.Exit(1)
	}

	renderer, err := notify.NewRenderer(cfg.Mail.FromName, cfg.Mail.BackendURL, cfg.Mail.FrontendURL)
	if err != nil {
		log.Error("mail_templates_failed", slog.String("err", err.Error()))
		rootCancel()
		str.Close()
		os.Exit(1)
	}

	dispatcher := notify.NewDispatcher(sender, renderer, notify.Options{
		Workers:     cfg.Mail.Workers,
		QueueSize:   cfg.Mail.QueueSize,
		SendTimeout: cfg.Mail.SendTimeout,
		ResetTTL:    cfg.Auth.ResetTokenTTL,
	}, log, mtr)
	log.Info("mail_dispatcher_started",
		slog.String("provider", cfg.Mail.Provider),
		slog.Int("workers", cfg.Mail.Workers),
	)

	// Сервис.
	codec := token.NewCodec(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	srvc := service.New(str, authn.New(str, cfg.Auth.BcryptCost), codec, dispatcher, cfg.Auth)
	srvc.SetMetrics(mtr)
	dispatcher.SetTokenIssuer(srvc)

	// Кэш чёрного списка — опционален.
	var bcache cache.BlacklistCache
	if cfg.Redis.RedisURL != "" {
		redisCtx, redisCancel := context.WithTimeout(rootCtx, 5*time.Second)
		bcache, err = cache.NewRedisCache(redisCtx, cfg.Redis.RedisURL, cfg.Redis.Prefix)
		redisCancel()
		if err != nil {
			log.Error("redis_connect_failed", slog.String("err", err.Error()))
			rootCancel()
			str.Close()
			os.Exit(1)
		}
		srvc.SetBlacklistCache(bcache)
		log.Info("redis_connected")
	}
	log.Info("service_initialized")

	// Фоновая очистка просроченных записей.
	jn := janitor.New(str, log, mtr, janitor.WithTimeout(cfg.Janitor.Timeout))
	if err := jn.Start(cfg.Janitor.Schedule); err != nil {
		log.Error("janitor_start_failed", slog.String("err", err.Error()))
		rootCancel()
		str.Close()
		os.Exit(1)
	}

	var ready int32 // 0 — not ready; 1 — ready

	// Служебный listener: liveness/readiness/metrics.
	opsMux := http.NewServeMux()
	opsMux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	opsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&ready) != 1 {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := str.Ping(ctx); err != nil {
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}

		// Без кэша сервис работает через БД, поэтому readiness не снимаем.
		if bcache != nil {
			if err := bcache.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("degraded"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	opsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	opsSrv := &http.Server{
		Addr:              cfg.Ops.Addr(),
		Handler:           opsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("ops_listen_start", slog.String("addr", opsSrv.Addr))
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops_serve_failed", slog.String("err", err.Error()))
		}
	}()

	// Публичный HTTP API.
	apiSrv := &http.Server{
		Addr: cfg.HTTP.Addr(),
		Handler: httpapi.NewRouter(srvc, httpapi.Options{
			Logger:       log,
			Metrics:      mtr,
			Timeout:      cfg.Timeouts.Service,
			ActivatedURL: cfg.Mail.ActivatedURL,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info("http_listen_start", slog.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	// Сервис готов.
	atomic.StoreInt32(&ready, 1)

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	// Снимаем ready.
	atomic.StoreInt32(&ready, 0)

	// Graceful stop с таймаутом.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_force_stop", slog.String("err", err.Error()))
		_ = apiSrv.Close()
	} else {
		log.Info("http_stopped")
	}

	if err := jn.Stop(shutdownCtx); err != nil {
		log.Warn("janitor_stop_timeout", slog.String("err", err.Error()))
	}

	// Дожидаемся отправки писем из очереди.
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Warn("mail_queue_not_drained", slog.String("err", err.Error()))
	}

	_ = opsSrv.Shutdown(shutdownCtx)

	// Явная очистка перед выходом.
	shutdownCancel()
	rootCancel()
	if bcache != nil {
		_ = bcache.Close()
	}
	str.Close()

	log.Info("service_stopped")
	os.Exit(0)
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}

// openStorage открывает хранилище по драйверу и при необходимости накатывает миграции.
func openStorage(ctx context.Context, cfg config.DBConfig, log *slog.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		log.Warn("memory_storage_in_use")
		return memory.New(), nil
	case config.DriverPostgres:
		pg, err := postgres.New(ctx, cfg.DatabaseURL, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		log.Info("postgres_connected")

		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				pg.Close()
				return nil, err
			}
			log.Info("postgres_migrated")
		}

		return pg, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// newSender выбирает транспорт почты.
func newSender(cfg config.MailConfig, log *slog.Logger) (notify.Sender, error) {
	switch cfg.Provider {
	case config.MailProviderLog:
		return notify.NewLogSender(log), nil
	case config.MailProviderSendGrid:
		return notify.NewSendGridSender(cfg.SendGridAPIKey, cfg.FromEmail, cfg.FromName, cfg.Sandbox), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}
