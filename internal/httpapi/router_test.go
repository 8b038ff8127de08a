package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemacanvas/server/internal/realtime"
)

type nopConn struct{}

func (nopConn) Send([]byte) error { return nil }
func (nopConn) Close()            {}

func testRouter(t *testing.T, registry *realtime.Registry, checks map[string]HealthCheck) http.Handler {
	t.Helper()
	ws := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusSwitchingProtocols)
	})
	return NewRouter(ws, registry, checks, zerolog.Nop())
}

func TestHealthzOK(t *testing.T) {
	router := testRouter(t, realtime.NewRegistry(zerolog.Nop()), map[string]HealthCheck{
		"redis": func(context.Context) error { return nil },
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["redis"])
}

func TestHealthzFailingDependency(t *testing.T) {
	router := testRouter(t, realtime.NewRegistry(zerolog.Nop()), map[string]HealthCheck{
		"redis":    func(context.Context) error { return nil },
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPresence(t *testing.T) {
	registry := realtime.NewRegistry(zerolog.Nop())
	registry.Register("doc-1", "s1", nopConn{}, realtime.Identity{UserID: "u1", Name: "Ada"})
	registry.Register("doc-1", "s2", nopConn{}, realtime.Identity{UserID: "u2", Name: "Grace"})
	router := testRouter(t, registry, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/documents/doc-1/presence", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		DocumentID   string                 `json:"documentId"`
		Count        int                    `json:"count"`
		Participants []realtime.Participant `json:"participants"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "doc-1", body.DocumentID)
	assert.Equal(t, 2, body.Count)
	assert.Len(t, body.Participants, 2)
}

func TestPresenceEmptyDocument(t *testing.T) {
	router := testRouter(t, realtime.NewRegistry(zerolog.Nop()), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/documents/ghost/presence", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count        int   `json:"count"`
		Participants []any `json:"participants"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Count)
	assert.NotNil(t, body.Participants)
}
