// errors стандартизирует ответы об ошибках HTTP-слоя.
// На вход принимает ошибку сервиса (сентинелы internal/service),
// а на выход даёт:
//   - корректный HTTP-статус;
//   - стабильный машиночитаемый code;
//   - краткое безопасное message без утечки деталей.
//
// Неизвестные ошибки всегда превращаются в 500/internal.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/pribylovaa/identity-service/internal/service"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// APIError — единый формат для фронта.
// Code — короткий стабильный код для машиночитаемой обработки на FE.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// InvalidInput — ошибка разбора/валидации запроса на уровне транспорта.
// Message уходит клиенту как есть, поэтому не должен содержать секретов.
type InvalidInput struct {
	Message string
}

func (e *InvalidInput) Error() string { return e.Message }

// Invalid создаёт InvalidInput.
func Invalid(msg string) error {
	return &InvalidInput{Message: msg}
}

var (
	// ErrMissingToken — в запросе нет Bearer-токена.
	ErrMissingToken = stderrors.New("missing bearer token")
	// ErrNotFound — маршрут не найден.
	ErrNotFound = stderrors.New("route not found")
	// ErrMethodNotAllowed — метод не поддерживается маршрутом.
	ErrMethodNotAllowed = stderrors.New("method not allowed")
)

type mapping struct {
	err    error
	status int
	code   string
	msg    string
}

// table — маппинг ошибок сервиса. Порядок важен: первая совпавшая запись выигрывает.
//   - учётные данные и токены -> 401 (неизвестный пользователь при входе
//     неотличим от неверного пароля);
//   - неактивный аккаунт -> 403;
//   - конфликт email -> 409;
//   - просроченный токен сброса -> 410;
//   - ошибки входных данных -> 400;
//   - отсутствующие сущности -> 404.
var table = []mapping{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "invalid email or password"},
	{service.ErrTokenExpired, http.StatusUnauthorized, "token_expired", "token expired"},
	{service.ErrTokenRevoked, http.StatusUnauthorized, "token_revoked", "token revoked"},
	{service.ErrTokenMismatch, http.StatusUnauthorized, "token_mismatch", "token does not match active session"},
	{service.ErrInvalidToken, http.StatusUnauthorized, "invalid_token", "invalid token"},
	{ErrMissingToken, http.StatusUnauthorized, "unauthenticated", "missing bearer token"},
	{service.ErrAccountNotActive, http.StatusForbidden, "account_not_active", "account is not active"},
	{service.ErrEmailTaken, http.StatusConflict, "email_taken", "email already taken"},
	{service.ErrResetTokenExpired, http.StatusGone, "reset_token_expired", "reset token expired"},
	{service.ErrResetTokenNotProvided, http.StatusBadRequest, "reset_token_not_provided", "reset token not provided"},
	{service.ErrResetTokenInvalid, http.StatusBadRequest, "reset_token_invalid", "reset token invalid"},
	{service.ErrInvalidActivationToken, http.StatusBadRequest, "invalid_activation_token", "invalid or expired activation token"},
	{service.ErrInvalidEmail, http.StatusBadRequest, "invalid_email", "invalid email format"},
	{service.ErrWeakPassword, http.StatusBadRequest, "weak_password", "password is too weak"},
	{service.ErrEmptyPassword, http.StatusBadRequest, "empty_password", "password is empty"},
	{service.ErrInvalidLoanStatus, http.StatusBadRequest, "invalid_loan_status", "invalid loan status"},
	{service.ErrActivationUserNotFound, http.StatusNotFound, "user_not_found", "user not found"},
	{service.ErrEmailUserNotFound, http.StatusNotFound, "user_not_found", "user not found"},
	{service.ErrUserNotFound, http.StatusNotFound, "user_not_found", "user not found"},
	{ErrNotFound, http.StatusNotFound, "not_found", "not found"},
	{ErrMethodNotAllowed, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed"},
	{context.Canceled, StatusClientClosedRequest, "canceled", "canceled"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"},
}

// ToHTTP конвертирует ошибку в HTTP-статус и унифицированный ответ для фронта.
//
// Поведение:
//   - err == nil - это программная ошибка вызова: возвращаем 500/internal,
//     чтобы не послать "200 OK" с телом ошибки и не маскировать баг.
//   - *InvalidInput - 400/invalid_argument с сообщением валидатора.
//   - сентинел из table - соответствующий статус.
//   - прочее - 500/internal (без утечки деталей).
func ToHTTP(err error) (int, ErrorResponse) {
	if err == nil {
		return internal()
	}

	var inv *InvalidInput
	if stderrors.As(err, &inv) {
		return http.StatusBadRequest, ErrorResponse{
			Error: APIError{
				Code:    "invalid_argument",
				Message: inv.Message,
			},
		}
	}

	for _, m := range table {
		if stderrors.Is(err, m.err) {
			return m.status, ErrorResponse{
				Error: APIError{
					Code:    m.code,
					Message: m.msg,
				},
			}
		}
	}

	return internal()
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	// Прокидываем request_id для фронта, чтобы он мог репортить баги с привязкой.
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func internal() (int, ErrorResponse) {
	return http.StatusInternalServerError, ErrorResponse{
		Error: APIError{
			Code:    "internal",
			Message: "internal error",
		},
	}
}
