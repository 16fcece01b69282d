package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func passing(context.Context) error { return nil }

func get(t *testing.T, fn http.HandlerFunc) (int, string) {
	t.Helper()
	w := httptest.NewRecorder()
	fn(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	return w.Code, w.Body.String()
}

func TestLiveEndpoint(t *testing.T) {
	h := New(nil)
	h.AddLivenessCheck("ok", time.Second, passing)

	code, body := get(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestFailureThreshold(t *testing.T) {
	h := New(nil)
	h.AddLivenessCheck("slot", time.Second, failing("connection refused"))
	c := h.live[0]
	ctx := context.Background()

	for i := 1; i < FailureThreshold; i++ {
		assert.False(t, c.run(ctx), "run %d", i)
		code, _ := get(t, h.LiveEndpoint)
		assert.Equal(t, http.StatusOK, code)
	}
	assert.True(t, c.run(ctx))

	code, body := get(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"slot":"connection refused"}}`, body)
}

func TestRecovery(t *testing.T) {
	fail := true
	h := New(nil)
	h.AddReadinessCheck("flaky", time.Second, func(context.Context) error {
		if fail {
			return errors.New("down")
		}
		return nil
	})
	h.SetReady(true)
	c := h.readyz[0]
	ctx := context.Background()

	for range FailureThreshold {
		c.run(ctx)
	}
	require.False(t, h.IsReady())

	fail = false
	assert.True(t, c.run(ctx))
	assert.True(t, h.IsReady())
}

func TestReadyEndpoint_NotMarkedReady(t *testing.T) {
	h := New(nil)
	h.AddReadinessCheck("ok", time.Second, passing)

	code, body := get(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "service is not ready")

	h.SetReady(true)
	code, _ = get(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
}

func TestStartRunsChecks(t *testing.T) {
	h := New(nil)
	h.AddReadinessCheck("slot", time.Second, failing("no route"))
	h.SetReady(true)

	h.Start(context.Background(), 5*time.Millisecond)
	defer h.Stop()

	assert.Eventually(t, func() bool { return !h.IsReady() }, time.Second, 5*time.Millisecond)
	h.Stop()
	h.Stop()
}

func TestCheckTimeout(t *testing.T) {
	h := New(nil)
	h.AddLivenessCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	c := h.live[0]
	for range FailureThreshold {
		c.run(context.Background())
	}

	_, body := get(t, h.LiveEndpoint)
	assert.Contains(t, body, "deadline exceeded")
}

func TestGoroutineCountCheck(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	require.Error(t, GoroutineCountCheck(0)(context.Background()))
}
