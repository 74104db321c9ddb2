package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pass(context.Context) error { return nil }

func fail(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

type body struct {
	status string
	checks map[string]string
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) body {
	t.Helper()
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var b body
	err := jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			s, err := d.Str()
			b.status = s
			return err
		case "checks":
			b.checks = map[string]string{}
			return d.Obj(func(d *jx.Decoder, name string) error {
				s, err := d.Str()
				b.checks[name] = s
				return err
			})
		default:
			return d.Skip()
		}
	})
	require.NoError(t, err)
	return b
}

func serve(handler http.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func runN(p *probe, n int) {
	for range n {
		p.run(context.Background())
	}
}

func TestLiveEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		runs     int
		wantCode int
		wantBody body
	}{
		{"fresh checks are healthy", 0, http.StatusOK, body{status: "ok"}},
		{"below failure threshold", failureThreshold - 1, http.StatusOK, body{status: "ok"}},
		{
			"at failure threshold", failureThreshold, http.StatusServiceUnavailable,
			body{status: "unhealthy", checks: map[string]string{"storage": "connection refused"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			h.AddLivenessCheck("goroutines", time.Second, pass)
			h.AddLivenessCheck("storage", time.Second, fail("connection refused"))
			runN(h.liveness[0], tt.runs)
			runN(h.liveness[1], tt.runs)

			w := serve(h.LiveEndpoint)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantBody, decodeBody(t, w))
		})
	}
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("storage", time.Second, pass)

	w := serve(h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "service is not ready", decodeBody(t, w).checks["_readiness"])
	assert.False(t, h.IsReady())

	h.SetReady(true)
	w = serve(h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, body{status: "ok"}, decodeBody(t, w))
	assert.True(t, h.IsReady())

	h.SetReady(false)
	assert.Equal(t, http.StatusServiceUnavailable, serve(h.ReadyEndpoint).Code)
}

func TestReadyEndpoint_FailingStorage(t *testing.T) {
	h := New()
	h.SetReady(true)
	h.AddReadinessCheck("cache", time.Second, pass)
	h.AddReadinessCheck("storage", time.Second, PingCheck(func(context.Context) error {
		return errors.New("dial tcp: refused")
	}))
	runN(h.readiness[1], failureThreshold)

	w := serve(h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, map[string]string{"storage": "ping: dial tcp: refused"}, decodeBody(t, w).checks)
	assert.False(t, h.IsReady())
}

func TestProbeRecovers(t *testing.T) {
	var (
		mu      sync.Mutex
		failing = true
	)
	p := newProbe("flaky", time.Second, func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if failing {
			return errors.New("down")
		}
		return nil
	})

	runN(p, failureThreshold)
	assert.Equal(t, "down", p.failure())

	mu.Lock()
	failing = false
	mu.Unlock()
	runN(p, successThreshold)
	assert.Empty(t, p.failure())
}

func TestStartRunsChecks(t *testing.T) {
	h := New()
	h.AddReadinessCheck("storage", time.Second, fail("down"))
	h.SetReady(true)

	h.Start(context.Background(), 5*time.Millisecond)
	defer h.Stop()

	assert.Eventually(t, func() bool { return !h.IsReady() }, time.Second, 5*time.Millisecond)
	h.Stop()
	h.Stop()
}

func TestConcurrentProbes(t *testing.T) {
	h := New()
	h.AddLivenessCheck("a", time.Second, pass)
	h.AddReadinessCheck("b", time.Second, pass)
	h.SetReady(true)
	h.Start(context.Background(), time.Millisecond)
	defer h.Stop()

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			serve(h.LiveEndpoint)
			serve(h.ReadyEndpoint)
			h.IsReady()
		})
	}
	wg.Wait()
}

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, GoroutineCountCheck(1_000_000)(ctx))
	err := GoroutineCountCheck(0)(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold")

	assert.NoError(t, GCMaxPauseCheck(time.Hour)(ctx))

	assert.NoError(t, PingCheck(pass)(ctx))
}
