package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probe(t *testing.T, endpoint http.HandlerFunc) (int, probeResponse) {
	t.Helper()

	w := httptest.NewRecorder()
	endpoint(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var resp probeResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	return w.Code, resp
}

func TestLiveEndpoint_NoChecks(t *testing.T) {
	code, resp := probe(t, New().LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestLiveEndpoint_FailingCheck(t *testing.T) {
	h := New()
	h.AddLivenessCheck("broken", time.Second, func(context.Context) error {
		return errors.New("it hurts")
	})
	h.AddLivenessCheck("fine", time.Second, func(context.Context) error {
		return nil
	})

	code, resp := probe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, map[string]string{"broken": "it hurts"}, resp.Checks)
}

func TestReadyEndpoint_Gate(t *testing.T) {
	h := New()

	code, resp := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, resp.Checks, "_readiness")

	h.SetReady(true)
	assert.True(t, h.IsReady())
	code, resp = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)

	// Graceful shutdown closes the gate again.
	h.SetReady(false)
	code, _ = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReadyEndpoint_FailingDependency(t *testing.T) {
	h := New()
	h.SetReady(true)
	h.AddReadinessCheck("postgres", time.Second, func(context.Context) error {
		return errors.New("connection refused")
	})

	code, resp := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "connection refused", resp.Checks["postgres"])
}

func TestCheckResultsAreCached(t *testing.T) {
	calls := 0
	h := New()
	h.AddLivenessCheck("counted", time.Second, func(context.Context) error {
		calls++
		return nil
	})

	for range 3 {
		code, _ := probe(t, h.LiveEndpoint)
		require.Equal(t, http.StatusOK, code)
	}
	assert.Equal(t, 1, calls, "fresh results must be served from cache")
}

func TestCheckTimeout(t *testing.T) {
	h := New()
	h.AddLivenessCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	code, resp := probe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, resp.Checks["slow"], "deadline exceeded")
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))
	assert.Error(t, GoroutineCountCheck(0)(context.Background()))
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestPingCheck(t *testing.T) {
	assert.NoError(t, PingCheck(fakePinger{})(context.Background()))

	err := PingCheck(fakePinger{err: errors.New("down")})(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
}
