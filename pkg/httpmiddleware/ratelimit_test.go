package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func limited(cfg RateLimitConfig) (http.Handler, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := newLimiter(cfg)
	l.now = clock.now
	return l.middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})), clock
}

type client struct {
	ip     string
	bearer string
	xff    string
	path   string
}

func (c client) send(h http.Handler) *httptest.ResponseRecorder {
	path := c.path
	if path == "" {
		path = "/api/product"
	}
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = c.ip + ":4321"
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.xff != "" {
		req.Header.Set("X-Forwarded-For", c.xff)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_Headers(t *testing.T) {
	h, _ := limited(RateLimitConfig{Max: 3, Window: time.Minute})
	c := client{ip: "10.0.0.1"}

	for _, want := range []string{"2", "1", "0"} {
		w := c.send(h)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, want, w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "1772366460", w.Header().Get("X-RateLimit-Reset"))
	}

	w := c.send(h)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var code, errCode string
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "code":
			n, err := d.Num()
			code = n.String()
			return err
		case "error":
			s, err := d.Str()
			errCode = s
			return err
		default:
			return d.Skip()
		}
	}))
	assert.Equal(t, "429", code)
	assert.Equal(t, "RATE_LIMITED", errCode)
}

func TestRateLimit_SlidingWindow(t *testing.T) {
	h, clock := limited(RateLimitConfig{Max: 4, Window: time.Minute})
	c := client{ip: "10.0.0.1"}

	for range 4 {
		require.Equal(t, http.StatusOK, c.send(h).Code)
	}
	require.Equal(t, http.StatusTooManyRequests, c.send(h).Code)

	// Half of the previous window still counts: 4 * 0.5 = 2 used.
	clock.advance(90 * time.Second)
	assert.Equal(t, http.StatusOK, c.send(h).Code)
	assert.Equal(t, http.StatusOK, c.send(h).Code)
	assert.Equal(t, http.StatusTooManyRequests, c.send(h).Code)

	// Two idle windows forget everything.
	clock.advance(3 * time.Minute)
	assert.Equal(t, "3", c.send(h).Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_Keys(t *testing.T) {
	tests := []struct {
		name    string
		keyFunc func(*http.Request) string
		first   client
		second  client
		limited bool
	}{
		{"different ips", nil, client{ip: "10.0.0.1"}, client{ip: "10.0.0.2"}, false},
		{"same ip", nil, client{ip: "10.0.0.1"}, client{ip: "10.0.0.1"}, true},
		{
			"forwarded for wins over remote addr", nil,
			client{ip: "192.168.1.1", xff: "203.0.113.50, 70.41.3.18"},
			client{ip: "192.168.1.2", xff: "203.0.113.50"}, true,
		},
		{
			"bearer tokens on one ip", KeyByBearer,
			client{ip: "10.0.0.1", bearer: "a"}, client{ip: "10.0.0.1", bearer: "b"}, false,
		},
		{
			"same bearer from two ips", KeyByBearer,
			client{ip: "10.0.0.1", bearer: "a"}, client{ip: "10.0.0.2", bearer: "a"}, true,
		},
		{
			"anonymous falls back to ip", KeyByBearer,
			client{ip: "10.0.0.1"}, client{ip: "10.0.0.1"}, true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := limited(RateLimitConfig{Max: 1, Window: time.Minute, KeyFunc: tt.keyFunc})
			require.Equal(t, http.StatusOK, tt.first.send(h).Code)

			want := http.StatusOK
			if tt.limited {
				want = http.StatusTooManyRequests
			}
			assert.Equal(t, want, tt.second.send(h).Code)
		})
	}
}

func TestRateLimit_Skip(t *testing.T) {
	h, _ := limited(RateLimitConfig{Max: 1, Window: time.Minute, Skip: SkipPaths("/livez", "/readyz")})
	probe := client{ip: "10.0.0.1", path: "/readyz"}

	for range 5 {
		w := probe.send(h)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
	assert.Equal(t, http.StatusOK, client{ip: "10.0.0.1"}.send(h).Code)
}

func TestLimiter_Evict(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l.now = clock.now

	_, _, ok := l.take("a")
	require.True(t, ok)
	clock.advance(time.Minute)
	_, _, ok = l.take("b")
	require.True(t, ok)

	clock.advance(90 * time.Second)
	l.evict()
	assert.NotContains(t, l.counters, "a")
	assert.Contains(t, l.counters, "b")
}
