// notify — асинхронная отправка писем о событиях жизненного цикла аккаунта.
//
// Ошибки доставки логируются здесь же и никогда не возвращаются вызывающему:
// сбой почты не должен откатывать регистрацию, смену пароля и т.п.
package notify

import (
	"context"
	"strings"
)

// Notifier — контракт, через который сервис сообщает о событиях.
// Методы не блокируют и не возвращают ошибок.
type Notifier interface {
	NotifyActivation(ctx context.Context, email, userName string)
	NotifyPasswordChanged(ctx context.Context, email, userName string)
	NotifyPasswordRecovery(ctx context.Context, email, userName, resetToken string)
	NotifyLoanStatus(ctx context.Context, email, userName string, status LoanStatus, note string)
}

// ActivationTokenIssuer выпускает токен активации по e-mail.
type ActivationTokenIssuer interface {
	GenerateActivationToken(ctx context.Context, email string) (string, error)
}

// Sender доставляет готовое письмо.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message — отрендеренное письмо.
type Message struct {
	Template string
	To       string
	ToName   string
	Subject  string
	Plain    string
	HTML     string
}

// LoanStatus — статус заявки на займ.
type LoanStatus string

const (
	LoanInitiated   LoanStatus = "INITIATED"
	LoanPreApproved LoanStatus = "PRE_APPROVED"
	LoanApproved    LoanStatus = "APPROVED"
	LoanRefused     LoanStatus = "REFUSED"
	LoanPending     LoanStatus = "PENDING"
)

// ParseLoanStatus разбирает статус без учёта регистра.
func ParseLoanStatus(s string) (LoanStatus, bool) {
	st := LoanStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case LoanInitiated, LoanPreApproved, LoanApproved, LoanRefused, LoanPending:
		return st, true
	default:
		return "", false
	}
}
