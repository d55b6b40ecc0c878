package httpapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func newIdempotentServer(repo domain.IdempotencyRepository) *Server {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Server{idemRepo: repo, logger: logrus.NewEntry(logger)}
}

func postWithKey(handler http.HandlerFunc, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	req.Header.Set(idempotencyKeyHeader, key)
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestIdempotent_ServerErrorIsReplayed(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	server := newIdempotentServer(repo)

	calls := 0
	handler := server.idempotent(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		writeError(w, http.StatusInternalServerError, "internal server error")
	})

	first := postWithKey(handler, "order-1", `{"items":[]}`)
	require.Equal(t, http.StatusInternalServerError, first.Code)
	require.Empty(t, first.Header().Get(idempotencyReplayed))

	second := postWithKey(handler, "order-1", `{"items":[]}`)
	require.Equal(t, http.StatusInternalServerError, second.Code)
	require.Equal(t, "true", second.Header().Get(idempotencyReplayed))
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Equal(t, 1, calls)

	record, err := repo.Get(context.Background(), domain.HTTPKey("order-1"))
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusFailed, record.Status)
}

func TestIdempotent_KeysAreScopedToHTTP(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	_, err := repo.CreateProcessing(context.Background(), domain.GRPCKey("shared"), "grpc-hash", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)

	server := newIdempotentServer(repo)
	handler := server.idempotent(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"placed":1}`))
	})

	rec := postWithKey(handler, "shared", `{"items":[1]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	replayed := postWithKey(handler, "shared", `{"items":[1]}`)
	require.Equal(t, http.StatusCreated, replayed.Code)
	require.Equal(t, "true", replayed.Header().Get(idempotencyReplayed))

	mismatch := postWithKey(handler, "shared", `{"items":[2]}`)
	require.Equal(t, http.StatusUnprocessableEntity, mismatch.Code)
}
