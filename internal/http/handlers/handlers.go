package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "github.com/pribylovaa/identity-service/internal/errors"
	"github.com/pribylovaa/identity-service/internal/service"
)

// maxBodyBytes — предел размера JSON-тела запроса.
const maxBodyBytes = 1 << 20

// Handlers агрегирует зависимости хендлеров.
type Handlers struct {
	svc          *service.Service
	validate     *validator.Validate
	activatedURL string
}

// New создаёт хендлеры. activatedURL — куда редиректить после активации;
// пустое значение означает ответ JSON вместо редиректа.
func New(svc *service.Service, activatedURL string) *Handlers {
	v := validator.New()
	// В сообщениях об ошибках используем имена полей из json-тегов.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handlers{svc: svc, validate: v, activatedURL: activatedURL}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля и хвосты после объекта.
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(value); err != nil {
		return err
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after json object")
	}

	return nil
}

// decodeAndValidate разбирает тело и проверяет теги validate.
// Некорректный e-mail — service.ErrInvalidEmail, остальное — apierrors.InvalidInput (400).
func (h *Handlers) decodeAndValidate(w http.ResponseWriter, r *http.Request, value any) error {
	if err := decodeStrict(w, r, value); err != nil {
		return apierrors.Invalid("invalid json body")
	}

	if err := h.validate.Struct(value); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			if verrs[0].Tag() == "email" {
				return service.ErrInvalidEmail
			}
			return apierrors.Invalid(validationMessage(verrs[0]))
		}
		return apierrors.Invalid("invalid argument")
	}

	return nil
}

// validationMessage — человекочитаемое описание первой ошибки валидации.
func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", fe.Field())
	case "max":
		return fmt.Sprintf("field '%s' must not exceed %s in length", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of [%s]", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("field '%s' failed on the '%s' tag", fe.Field(), fe.Tag())
	}
}
