package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyReplayed  = "Idempotent-Replayed"
)

// bufferedResponse копит ответ обработчика, чтобы сохранить его по ключу.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) Header() http.Header {
	return b.header
}

func (b *bufferedResponse) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

// idempotent выполняет обработчик не больше одного раза на заголовок Idempotency-Key.
// Без заголовка или без хранилища запрос обрабатывается как обычно.
func (s *Server) idempotent(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		value := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
		if s.idemRepo == nil || value == "" {
			next(w, r)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		ctx := r.Context()
		key := domain.HTTPKey(value)
		record, err := s.idemRepo.CreateProcessing(ctx, key, requestHash(r.Method, r.URL.Path, body), time.Now().UTC().Add(domain.DefaultIdempotencyTTL))
		if err != nil {
			s.replay(w, key, record, err)
			return
		}

		buf := &bufferedResponse{header: w.Header()}
		next(buf, r)
		if buf.status == 0 {
			buf.status = http.StatusOK
		}

		if buf.status >= http.StatusInternalServerError {
			err = s.idemRepo.MarkFailed(ctx, key, buf.body.Bytes(), buf.status)
		} else {
			err = s.idemRepo.MarkDone(ctx, key, buf.body.Bytes(), buf.status)
		}
		if err != nil {
			s.logger.WithError(err).WithField("idempotency_key", key.String()).Warn("failed to store idempotent response")
		}

		w.WriteHeader(buf.status)
		_, _ = w.Write(buf.body.Bytes())
	}
}

func (s *Server) replay(w http.ResponseWriter, key domain.IdempotencyKey, record domain.IdempotencyRecord, createErr error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		writeError(w, http.StatusUnprocessableEntity, "idempotency key is already used with different request payload")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		if record.Status == domain.IdempotencyStatusProcessing {
			writeError(w, http.StatusConflict, "request with the same idempotency key is already processing")
			return
		}
		status := record.StatusCode
		if status == 0 {
			status = http.StatusInternalServerError
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(idempotencyReplayed, "true")
		w.WriteHeader(status)
		_, _ = w.Write(record.ResponseBody)
	default:
		s.logger.WithError(createErr).WithField("idempotency_key", key.String()).Warn("failed to create idempotency record")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// requestHash — sha256 от метода, пути и тела запроса.
func requestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(" "))
	h.Write([]byte(path))
	h.Write([]byte(":"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
