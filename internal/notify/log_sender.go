package notify

import (
	"context"
	"log/slog"

	"github.com/pribylovaa/identity-service/internal/pkg/redact"
)

// LogSender пишет письма в лог вместо отправки (env=local, тесты).
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.Default()
	}

	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.log.InfoContext(ctx, "mail_logged",
		slog.String("template", msg.Template),
		slog.String("to", redact.Email(msg.To)),
		slog.String("subject", msg.Subject),
		slog.Int("html_bytes", len(msg.HTML)),
	)

	return nil
}
