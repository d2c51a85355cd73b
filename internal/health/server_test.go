package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/strategy-lab/internal/models"
)

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(context.Context) error { return p.err }

type fakeSession struct {
	summary models.SessionSummary
	active  bool
}

func (s *fakeSession) Snapshot() (models.SessionSummary, bool) { return s.summary, s.active }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestServer(db DatabasePinger, session SessionSource) *Server {
	return NewServer(Config{
		ServiceName: "strategy-lab",
		Version:     "test",
		Logger:      quietLogger(),
		DB:          db,
		Session:     session,
	})
}

func TestHandleHealth(t *testing.T) {
	server := newTestServer(nil, nil)

	rec := httptest.NewRecorder()
	server.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "strategy-lab", body.Service)
}

func TestHandleReadyHealthy(t *testing.T) {
	server := newTestServer(&fakePinger{}, nil)
	server.SetReady(true)

	rec := httptest.NewRecorder()
	server.handleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body ReadyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Checks["database"])
}

func TestHandleReadyDatabaseDown(t *testing.T) {
	server := newTestServer(&fakePinger{err: errors.New("connection refused")}, nil)
	server.SetReady(true)

	rec := httptest.NewRecorder()
	server.handleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleReadyNotMarkedReady(t *testing.T) {
	server := newTestServer(&fakePinger{}, nil)

	rec := httptest.NewRecorder()
	server.handleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleSessionActive(t *testing.T) {
	summary := models.NewSessionSummary("nightly", time.Now()).WithResult(true)
	server := newTestServer(nil, &fakeSession{summary: summary, active: true})

	rec := httptest.NewRecorder()
	server.handleSession(rec, httptest.NewRequest(http.MethodGet, "/session", nil))

	var body SessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Active)
	require.NotNil(t, body.Session)
	assert.Equal(t, "nightly", body.Session.Name)
	assert.Equal(t, 1, body.Session.Total)
}

func TestHandleSessionIdle(t *testing.T) {
	server := newTestServer(nil, &fakeSession{})

	rec := httptest.NewRecorder()
	server.handleSession(rec, httptest.NewRequest(http.MethodGet, "/session", nil))

	var body SessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Active)
	assert.Nil(t, body.Session)
}
