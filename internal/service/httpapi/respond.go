package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/upload"
)

const maxJSONBody = 1 << 20

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// newValidator сообщает об ошибках полей по их json-именам.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// requestError — ошибка разбора или валидации тела запроса.
type requestError struct {
	message string
	fields  map[string]string
}

func (e *requestError) Error() string {
	return e.message
}

// decodeJSON читает тело запроса и проверяет теги validate.
func (s *Server) decodeJSON(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxJSONBody)
	decoder := json.NewDecoder(body)
	if err := decoder.Decode(dst); err != nil {
		return &requestError{message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if err := s.validate.Struct(dst); err != nil {
		fields := make(map[string]string)
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			for _, fe := range validationErrs {
				fields[strings.TrimPrefix(fe.Namespace(), structName(dst)+".")] = fe.Tag()
			}
		}
		return &requestError{message: "validation failed", fields: fields}
	}
	return nil
}

func structName(v any) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// statusFor переводит ошибку сервиса в HTTP-статус и безопасное сообщение.
func statusFor(err error) (int, string) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, reqErr.message
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, ErrAdminDisabled):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, upload.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, upload.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, err.Error()
	case errors.Is(err, upload.ErrEmptyFile):
		return http.StatusBadRequest, err.Error()
	case domain.IsValidation(err):
		return http.StatusBadRequest, err.Error()
	case domain.IsNotFound(err):
		return http.StatusNotFound, err.Error()
	case domain.IsInsufficientStock(err), domain.IsConflict(err):
		return http.StatusConflict, err.Error()
	case domain.IsIdempotencyConflict(err):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// fail пишет ошибку; внутренние ошибки логируются, но не раскрываются клиенту.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	var reqErr *requestError
	if errors.As(err, &reqErr) && len(reqErr.fields) > 0 {
		writeJSON(w, status, errorResponse{Error: message, Fields: reqErr.fields})
		return
	}
	writeError(w, status, message)
}
