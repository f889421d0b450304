// janitor — фоновая очистка просроченных записей по расписанию cron:
// чёрного списка access-токенов и токенов сброса пароля.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/robfig/cron/v3"

	"github.com/pribylovaa/identity-service/internal/metrics"
)

// Purger — то, что janitor вычищает.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
	PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// Janitor запускает очистку по расписанию.
type Janitor struct {
	st      Purger
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	timeout time.Duration
	cron    *cron.Cron
}

// Option настраивает Janitor.
type Option func(*Janitor)

// WithClock подменяет часы (для тестов).
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) { j.now = now }
}

// WithTimeout ограничивает длительность одного прогона.
func WithTimeout(d time.Duration) Option {
	return func(j *Janitor) { j.timeout = d }
}

// New создаёт Janitor. m может быть nil.
func New(st Purger, log *slog.Logger, m *metrics.Metrics, opts ...Option) *Janitor {
	if log == nil {
		log = slog.Default()
	}

	j := &Janitor{
		st:      st,
		log:     log,
		metrics: m,
		now:     time.Now,
		timeout: time.Minute,
		// Пропускаем тик, если предыдущий прогон ещё идёт.
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
	}

	for _, opt := range opts {
		opt(j)
	}

	return j
}

// Start регистрирует задачу по расписанию schedule ("@every 30m", "0 3 * * *") и запускает планировщик.
func (j *Janitor) Start(schedule string) error {
	const op = "janitor.Start"

	if _, err := j.cron.AddFunc(schedule, j.tick); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	j.cron.Start()
	j.log.Info("janitor_started", slog.String("schedule", schedule))

	return nil
}

// Stop останавливает планировщик и ждёт завершения текущего прогона (или ctx).
func (j *Janitor) Stop(ctx context.Context) error {
	const op = "janitor.Stop"

	select {
	case <-j.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

func (j *Janitor) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.RunOnce(ctx); err != nil {
		j.log.Error("janitor_failed", slog.String("err", err.Error()))
	}
}

// RunOnce выполняет один прогон очистки. Ошибка одной цели не мешает другой.
func (j *Janitor) RunOnce(ctx context.Context) error {
	now := j.now().UTC()

	errBlacklist := j.purge(ctx, "blacklist", func(ctx context.Context) (int64, error) {
		return j.st.PurgeExpired(ctx, now)
	})

	errReset := j.purge(ctx, "reset_tokens", func(ctx context.Context) (int64, error) {
		return j.st.PurgeExpiredResetTokens(ctx, now)
	})

	return errors.Join(errBlacklist, errReset)
}

// purge выполняет fn и один раз повторяет его на транзиентной ошибке PostgreSQL.
func (j *Janitor) purge(ctx context.Context, target string, fn func(context.Context) (int64, error)) error {
	const op = "janitor.purge"

	n, err := fn(ctx)
	if err != nil && pgconn.SafeToRetry(err) && ctx.Err() == nil {
		j.log.Warn("janitor_retry",
			slog.String("target", target),
			slog.String("err", err.Error()),
		)
		n, err = fn(ctx)
	}
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, target, err)
	}

	j.metrics.Purged(target, n)
	if n > 0 {
		j.log.Info("janitor_purged",
			slog.String("target", target),
			slog.Int64("rows", n),
		)
	}

	return nil
}
