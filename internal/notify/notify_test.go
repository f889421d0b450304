package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/identity-service/internal/metrics"
)

// recSender запоминает отправленные письма; опционально блокируется до release.
type recSender struct {
	mu      sync.Mutex
	sent    []Message
	err     error
	release chan struct{}
}

func (s *recSender) Send(ctx context.Context, msg Message) error {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recSender) messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}

type issuerFunc func(ctx context.Context, email string) (string, error)

func (f issuerFunc) GenerateActivationToken(ctx context.Context, email string) (string, error) {
	return f(ctx, email)
}

func silentLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer("Identity Team", "http://api.local/", "http://app.local")
	require.NoError(t, err)
	return r
}

func TestRenderer_Activation(t *testing.T) {
	t.Parallel()

	r := newRenderer(t)
	msg, err := r.Activation("alice@example.com", "Alice", "tok/with+chars")
	require.NoError(t, err)

	require.Equal(t, TemplateActivation, msg.Template)
	require.Equal(t, "alice@example.com", msg.To)
	require.Contains(t, msg.HTML, "Hello Alice")
	require.Contains(t, msg.Plain, "http://api.local/api/auth/activate?token=tok%2Fwith%2Bchars")
}

func TestRenderer_Recovery_And_DefaultName(t *testing.T) {
	t.Parallel()

	r := newRenderer(t)
	msg, err := r.Recovery("bob@example.com", "", "reset-1", 10*time.Minute)
	require.NoError(t, err)

	require.Contains(t, msg.HTML, "Hello "+DefaultUserName)
	require.Contains(t, msg.HTML, "10m0s")
	require.Contains(t, msg.Plain, "http://app.local/auth/reset-password?token=reset-1")
}

func TestRenderer_HTMLEscaping(t *testing.T) {
	t.Parallel()

	r := newRenderer(t)
	msg, err := r.PasswordChanged("x@example.com", "<script>alert(1)</script>")
	require.NoError(t, err)
	require.NotContains(t, msg.HTML, "<script>")
}

func TestRenderer_LoanStatus(t *testing.T) {
	t.Parallel()

	r := newRenderer(t)

	for _, st := range []LoanStatus{LoanInitiated, LoanPreApproved, LoanApproved, LoanRefused, LoanPending} {
		msg, err := r.LoanStatus("c@example.com", "Carol", st, "")
		require.NoError(t, err, st)
		require.NotEmpty(t, msg.Subject)
		require.Contains(t, msg.HTML, "http://app.local/auth/sign-in")
	}

	msg, err := r.LoanStatus("c@example.com", "Carol", LoanRefused, "Income could not be verified.")
	require.NoError(t, err)
	require.Contains(t, msg.HTML, "Income could not be verified.")

	_, err = r.LoanStatus("c@example.com", "Carol", LoanStatus("CLOSED"), "")
	require.Error(t, err)
}

func TestParseLoanStatus(t *testing.T) {
	t.Parallel()

	st, ok := ParseLoanStatus(" pre_approved ")
	require.True(t, ok)
	require.Equal(t, LoanPreApproved, st)

	_, ok = ParseLoanStatus("closed")
	require.False(t, ok)
}

func TestDispatcher_DeliversAllEvents(t *testing.T) {
	t.Parallel()

	snd := &recSender{}
	d := NewDispatcher(snd, newRenderer(t), Options{Workers: 2, QueueSize: 8, ResetTTL: 10 * time.Minute}, silentLog(), nil)
	d.SetTokenIssuer(issuerFunc(func(_ context.Context, email string) (string, error) {
		return "act-" + email, nil
	}))

	ctx := context.Background()
	d.NotifyActivation(ctx, "a@example.com", "A")
	d.NotifyPasswordChanged(ctx, "b@example.com", "B")
	d.NotifyPasswordRecovery(ctx, "c@example.com", "C", "reset")
	d.NotifyLoanStatus(ctx, "d@example.com", "D", LoanApproved, "")

	require.NoError(t, d.Stop(context.Background()))

	msgs := snd.messages()
	require.Len(t, msgs, 4)

	byTpl := map[string]Message{}
	for _, m := range msgs {
		byTpl[m.Template] = m
	}
	require.Contains(t, byTpl[TemplateActivation].Plain, "act-a%40example.com")
	require.Equal(t, "d@example.com", byTpl[TemplateLoanStatus].To)
}

// TestDispatcher_CanceledRequestContext — отмена контекста запроса не отменяет отправку.
func TestDispatcher_CanceledRequestContext(t *testing.T) {
	t.Parallel()

	snd := &recSender{}
	d := NewDispatcher(snd, newRenderer(t), Options{Workers: 1, QueueSize: 1}, silentLog(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	d.NotifyPasswordChanged(ctx, "a@example.com", "A")
	cancel()

	require.NoError(t, d.Stop(context.Background()))
	require.Len(t, snd.messages(), 1)
}

// TestDispatcher_FullQueue_DropsWithoutBlocking — при заполненной очереди submit не блокирует.
func TestDispatcher_FullQueue_DropsWithoutBlocking(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	snd := &recSender{release: make(chan struct{})}
	d := NewDispatcher(snd, newRenderer(t), Options{Workers: 1, QueueSize: 1, SendTimeout: 5 * time.Second}, silentLog(), m)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.NotifyPasswordChanged(context.Background(), "a@example.com", "A")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submit blocked on a full queue")
	}

	close(snd.release)
	require.NoError(t, d.Stop(context.Background()))

	// Один в работе у воркера и один в очереди — максимум два письма.
	require.LessOrEqual(t, len(snd.messages()), 2)
	require.GreaterOrEqual(t, len(snd.messages()), 1)
}

func TestDispatcher_SendAndBuildFailures_AreSwallowed(t *testing.T) {
	t.Parallel()

	snd := &recSender{err: errors.New("smtp down")}
	d := NewDispatcher(snd, newRenderer(t), Options{Workers: 1, QueueSize: 4}, silentLog(), nil)

	d.NotifyPasswordChanged(context.Background(), "a@example.com", "A")
	// Источник токенов не задан — ошибка сборки письма.
	d.NotifyActivation(context.Background(), "b@example.com", "B")

	require.NoError(t, d.Stop(context.Background()))
	require.Empty(t, snd.messages())
}

func TestDispatcher_IssuerError_NoMail(t *testing.T) {
	t.Parallel()

	snd := &recSender{}
	d := NewDispatcher(snd, newRenderer(t), Options{Workers: 1, QueueSize: 4}, silentLog(), nil)
	d.SetTokenIssuer(issuerFunc(func(context.Context, string) (string, error) {
		return "", errors.New("user not found")
	}))

	d.NotifyActivation(context.Background(), "ghost@example.com", "")

	require.NoError(t, d.Stop(context.Background()))
	require.Empty(t, snd.messages())
}

func TestDispatcher_SubmitAfterStop_Drops(t *testing.T) {
	t.Parallel()

	snd := &recSender{}
	d := NewDispatcher(snd, newRenderer(t), Options{}, silentLog(), nil)
	require.NoError(t, d.Stop(context.Background()))
	require.NoError(t, d.Stop(context.Background()))

	require.NotPanics(t, func() {
		d.NotifyPasswordChanged(context.Background(), "a@example.com", "A")
	})
	require.Empty(t, snd.messages())
}

func TestDispatcher_StopTimeout(t *testing.T) {
	t.Parallel()

	snd := &recSender{release: make(chan struct{})}
	d := NewDispatcher(snd, newRenderer(t), Options{Workers: 1, QueueSize: 1, SendTimeout: time.Minute}, silentLog(), nil)
	d.NotifyPasswordChanged(context.Background(), "a@example.com", "A")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := d.Stop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(snd.release)
}

func TestBuildSendGridMail(t *testing.T) {
	t.Parallel()

	msg := Message{To: "a@example.com", ToName: "A", Subject: "S", Plain: "p", HTML: "<p>h</p>"}

	m := buildSendGridMail("Team", "no-reply@example.com", msg, true)
	require.Equal(t, "S", m.Subject)
	require.Equal(t, "no-reply@example.com", m.From.Address)
	require.NotNil(t, m.MailSettings)
	require.NotNil(t, m.MailSettings.SandboxMode)
	require.True(t, *m.MailSettings.SandboxMode.Enable)
	require.Len(t, m.Personalizations, 1)
	require.Equal(t, "a@example.com", m.Personalizations[0].To[0].Address)

	plain := buildSendGridMail("Team", "no-reply@example.com", msg, false)
	require.Nil(t, plain.MailSettings)
}

func TestLogSender(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	s := NewLogSender(slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, s.Send(context.Background(), Message{Template: "x", To: "alice@example.com", Subject: "S"}))
	require.Contains(t, buf.String(), "mail_logged")
	require.Contains(t, buf.String(), "al***@example.com")
	require.NotContains(t, buf.String(), "alice@example.com")
}
