package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridSender отправляет письма через SendGrid v3 API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	sandbox   bool
}

// NewSendGridSender создаёт отправителя. sandbox=true — SendGrid принимает
// запрос, но письмо не доставляет.
func NewSendGridSender(apiKey, fromEmail, fromName string, sandbox bool) *SendGridSender {
	return &SendGridSender{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
		sandbox:   sandbox,
	}
}

// Send отправляет письмо; ответ вне 2xx считается ошибкой.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	const op = "notify.sendgrid.Send"

	message := buildSendGridMail(s.fromName, s.fromEmail, msg, s.sandbox)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: sendgrid status %d", op, resp.StatusCode)
	}

	return nil
}

func buildSendGridMail(fromName, fromEmail string, msg Message, sandbox bool) *mail.SGMailV3 {
	from := mail.NewEmail(fromName, fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Plain, msg.HTML)

	if sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		message.MailSettings = ms
	}

	return message
}
