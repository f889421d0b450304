package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pribylovaa/identity-service/internal/metrics"
	"github.com/pribylovaa/identity-service/internal/pkg/redact"
)

// ErrStopped — диспетчер уже остановлен.
var ErrStopped = errors.New("dispatcher stopped")

// Options — параметры пула отправки.
type Options struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
	// ResetTTL — срок жизни ссылки сброса пароля (для текста письма).
	ResetTTL time.Duration
}

type job struct {
	ctx      context.Context
	template string
	to       string
	build    func(ctx context.Context) (Message, error)
}

// Dispatcher — Notifier поверх ограниченной очереди и пула воркеров.
// Постановка в очередь никогда не блокирует: при переполнении письмо
// отбрасывается с предупреждением в логе и метрикой.
type Dispatcher struct {
	sender   Sender
	renderer *Renderer
	opts     Options
	log      *slog.Logger
	metrics  *metrics.Metrics

	issuerMu sync.RWMutex
	issuer   ActivationTokenIssuer

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
}

// NewDispatcher запускает opts.Workers воркеров.
func NewDispatcher(sender Sender, renderer *Renderer, opts Options, log *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	d := &Dispatcher{
		sender:   sender,
		renderer: renderer,
		opts:     opts,
		log:      log,
		metrics:  m,
		jobs:     make(chan job, opts.QueueSize),
	}

	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	return d
}

// SetTokenIssuer устанавливает источник токенов активации.
// Нужен, потому что сервис создаётся после диспетчера.
func (d *Dispatcher) SetTokenIssuer(issuer ActivationTokenIssuer) {
	d.issuerMu.Lock()
	d.issuer = issuer
	d.issuerMu.Unlock()
}

func (d *Dispatcher) NotifyActivation(ctx context.Context, email, userName string) {
	d.submit(ctx, TemplateActivation, email, func(ctx context.Context) (Message, error) {
		d.issuerMu.RLock()
		issuer := d.issuer
		d.issuerMu.RUnlock()

		if issuer == nil {
			return Message{}, errors.New("activation token issuer is not configured")
		}

		token, err := issuer.GenerateActivationToken(ctx, email)
		if err != nil {
			return Message{}, err
		}

		return d.renderer.Activation(email, userName, token)
	})
}

func (d *Dispatcher) NotifyPasswordChanged(ctx context.Context, email, userName string) {
	d.submit(ctx, TemplatePasswordChanged, email, func(context.Context) (Message, error) {
		return d.renderer.PasswordChanged(email, userName)
	})
}

func (d *Dispatcher) NotifyPasswordRecovery(ctx context.Context, email, userName, resetToken string) {
	d.submit(ctx, TemplateRecovery, email, func(context.Context) (Message, error) {
		return d.renderer.Recovery(email, userName, resetToken, d.opts.ResetTTL)
	})
}

func (d *Dispatcher) NotifyLoanStatus(ctx context.Context, email, userName string, status LoanStatus, note string) {
	d.submit(ctx, TemplateLoanStatus, email, func(context.Context) (Message, error) {
		return d.renderer.LoanStatus(email, userName, status, note)
	})
}

// submit ставит задачу в очередь без блокировки.
func (d *Dispatcher) submit(ctx context.Context, template, to string, build func(ctx context.Context) (Message, error)) {
	const op = "notify.dispatcher.submit"

	// Задача переживает запрос: отмена ctx не должна отменять отправку,
	// но логгер и значения контекста сохраняются.
	j := job{ctx: context.WithoutCancel(ctx), template: template, to: to, build: build}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(op, j, ErrStopped)
		return
	}

	select {
	case d.jobs <- j:
		d.metrics.MailQueueDepth(len(d.jobs))
	default:
		d.drop(op, j, errors.New("queue is full"))
	}
}

func (d *Dispatcher) drop(op string, j job, reason error) {
	d.metrics.MailDispatched(j.template, "dropped")
	d.log.Warn("mail_dropped",
		slog.String("op", op),
		slog.String("template", j.template),
		slog.String("to", redact.Email(j.to)),
		slog.String("err", reason.Error()),
	)
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for j := range d.jobs {
		d.metrics.MailQueueDepth(len(d.jobs))
		d.run(j)
	}
}

// run выполняет одну задачу; паника или ошибка не роняют воркер.
func (d *Dispatcher) run(j job) {
	const op = "notify.dispatcher.run"

	ctx, cancel := context.WithTimeout(j.ctx, d.opts.SendTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			d.metrics.MailDispatched(j.template, "failed")
			d.log.Error("mail_panic",
				slog.String("op", op),
				slog.String("template", j.template),
				slog.Any("reason", rec),
			)
		}
	}()

	err := func() error {
		msg, err := j.build(ctx)
		if err != nil {
			return fmt.Errorf("build: %w", err)
		}

		return d.sender.Send(ctx, msg)
	}()

	if err != nil {
		d.metrics.MailDispatched(j.template, "failed")
		d.log.Error("mail_send_failed",
			slog.String("op", op),
			slog.String("template", j.template),
			slog.String("to", redact.Email(j.to)),
			slog.String("err", err.Error()),
		)
		return
	}

	d.metrics.MailDispatched(j.template, "sent")
	d.log.Debug("mail_sent",
		slog.String("template", j.template),
		slog.String("to", redact.Email(j.to)),
	)
}

// Stop закрывает очередь и ждёт, пока воркеры дошлют оставшиеся письма
// или истечёт ctx.
func (d *Dispatcher) Stop(ctx context.Context) error {
	const op = "notify.dispatcher.Stop"

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

// Проверка на соответствие интерфейсу Notifier.
var _ Notifier = (*Dispatcher)(nil)
