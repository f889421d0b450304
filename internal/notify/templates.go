package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// Имена шаблонов (они же — метка template в метриках).
const (
	TemplateActivation      = "activation"
	TemplatePasswordChanged = "password_changed"
	TemplateRecovery        = "password_recovery"
	TemplateLoanStatus      = "loan_status"
)

// DefaultUserName подставляется, когда имя пользователя неизвестно.
const DefaultUserName = "User"

// pageData — общий набор полей для всех шаблонов.
type pageData struct {
	Title        string
	UserName     string
	Body         string
	CallToAction string
	ButtonText   string
	Link         string
	Extra        string
	ValidFor     string
	Sender       string
	Year         int
}

type loanCopy struct {
	subject, title, body, extra string
}

var loanTexts = map[LoanStatus]loanCopy{
	LoanInitiated: {
		subject: "Your loan application has been received",
		title:   "Application received",
		body:    "We have received your loan application and started reviewing it.",
		extra:   "We will let you know as soon as there is an update.",
	},
	LoanPreApproved: {
		subject: "Your loan application is pre-approved",
		title:   "Pre-approved",
		body:    "Good news: your loan application has been pre-approved.",
		extra:   "A few final checks remain before the decision is confirmed.",
	},
	LoanApproved: {
		subject: "Your loan application is approved",
		title:   "Approved",
		body:    "Congratulations, your loan application has been approved.",
		extra:   "You can find the details and next steps in your account.",
	},
	LoanRefused: {
		subject: "Update on your loan application",
		title:   "Application declined",
		body:    "Unfortunately we are unable to approve your loan application at this time.",
		extra:   "You are welcome to apply again in the future.",
	},
	LoanPending: {
		subject: "Your loan application needs attention",
		title:   "Pending",
		body:    "Your loan application is pending additional information.",
		extra:   "Please sign in to review what is missing.",
	},
}

// Renderer собирает письма из встроенных HTML-шаблонов.
type Renderer struct {
	tpl         *template.Template
	sender      string
	backendURL  string
	frontendURL string
	now         func() time.Time
}

// NewRenderer парсит встроенные шаблоны.
func NewRenderer(sender, backendURL, frontendURL string) (*Renderer, error) {
	const op = "notify.templates.NewRenderer"

	tpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Renderer{
		tpl:         tpl,
		sender:      sender,
		backendURL:  strings.TrimRight(backendURL, "/"),
		frontendURL: strings.TrimRight(frontendURL, "/"),
		now:         time.Now,
	}, nil
}

// ActivationLink — ссылка, по которой бэкенд активирует аккаунт.
func (r *Renderer) ActivationLink(token string) string {
	return r.backendURL + "/api/auth/activate?token=" + url.QueryEscape(token)
}

// RecoveryLink — страница фронтенда для ввода нового пароля.
func (r *Renderer) RecoveryLink(token string) string {
	return r.frontendURL + "/auth/reset-password?token=" + url.QueryEscape(token)
}

func (r *Renderer) Activation(to, userName, token string) (Message, error) {
	d := r.base(userName)
	d.Title = "Registration confirmation"
	d.Body = "Thank you for signing up. We are glad to have you with us."
	d.CallToAction = "To complete your registration please confirm your e-mail address:"
	d.ButtonText = "Confirm e-mail"
	d.Link = r.ActivationLink(token)
	d.Extra = "This step keeps your account secure."

	return r.render(TemplateActivation, "confirmation.html", to, userName, "Confirm your registration", d,
		fmt.Sprintf("Confirm your e-mail address: %s", d.Link))
}

func (r *Renderer) PasswordChanged(to, userName string) (Message, error) {
	d := r.base(userName)
	d.Title = "Password changed"
	d.Body = "Your password has been updated successfully."
	d.Extra = "If you did not make this change, please contact support immediately."

	return r.render(TemplatePasswordChanged, "confirmation.html", to, userName, "Your password has been changed", d,
		"Your password has been updated successfully.")
}

func (r *Renderer) Recovery(to, userName, token string, validFor time.Duration) (Message, error) {
	d := r.base(userName)
	d.Link = r.RecoveryLink(token)
	d.ValidFor = validFor.String()

	return r.render(TemplateRecovery, "recovery.html", to, userName, "Password recovery", d,
		fmt.Sprintf("Reset your password (valid for %s): %s", d.ValidFor, d.Link))
}

// LoanStatus — письмо о смене статуса заявки. note, если задан, заменяет
// стандартный дополнительный текст (причина отказа и т.п.).
func (r *Renderer) LoanStatus(to, userName string, status LoanStatus, note string) (Message, error) {
	const op = "notify.templates.LoanStatus"

	c, ok := loanTexts[status]
	if !ok {
		return Message{}, fmt.Errorf("%s: unsupported loan status %q", op, status)
	}

	d := r.base(userName)
	d.Title = c.title
	d.Body = c.body
	d.Extra = c.extra
	if note != "" {
		d.Extra = note
	}
	d.CallToAction = "Sign in for more details:"
	d.ButtonText = "Go to my account"
	d.Link = r.frontendURL + "/auth/sign-in"

	return r.render(TemplateLoanStatus, "status.html", to, userName, c.subject, d, d.Body+" "+d.Extra)
}

func (r *Renderer) base(userName string) pageData {
	if strings.TrimSpace(userName) == "" {
		userName = DefaultUserName
	}

	return pageData{
		UserName: userName,
		Sender:   r.sender,
		Year:     r.now().Year(),
	}
}

func (r *Renderer) render(name, file, to, toName, subject string, d pageData, plain string) (Message, error) {
	const op = "notify.templates.render"

	var buf bytes.Buffer
	if err := r.tpl.ExecuteTemplate(&buf, file, d); err != nil {
		return Message{}, fmt.Errorf("%s: %w", op, err)
	}

	return Message{
		Template: name,
		To:       to,
		ToName:   toName,
		Subject:  subject,
		Plain:    plain,
		HTML:     buf.String(),
	}, nil
}
