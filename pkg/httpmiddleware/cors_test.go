package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(h http.Handler, method, origin string, preflight bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/vouchers", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
		req.Header.Set("Access-Control-Request-Headers", "Authorization")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCORS_Preflight(t *testing.T) {
	tests := []struct {
		name        string
		cfg         CORSConfig
		origin      string
		wantOrigin  string
		wantHeaders string
		wantCreds   string
	}{
		{"wildcard", CORSConfig{}, "https://shop.example", "*", "Authorization", ""},
		{
			"listed origin keeps configured spelling",
			CORSConfig{AllowOrigins: []string{"https://Shop.example"}, AllowHeaders: []string{"Content-Type", "Authorization"}},
			"https://shop.example", "https://Shop.example", "Content-Type, Authorization", "",
		},
		{
			"unlisted origin",
			CORSConfig{AllowOrigins: []string{"https://shop.example"}},
			"https://evil.example", "", "", "",
		},
		{
			"credentials echo the origin",
			CORSConfig{AllowOrigins: []string{"*"}, AllowCredentials: true},
			"https://shop.example", "https://shop.example", "Authorization", "true",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := CORS(tt.cfg)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

			w := corsRequest(h, http.MethodOptions, tt.origin, true)
			assert.False(t, called)
			assert.Equal(t, http.StatusNoContent, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantHeaders, w.Header().Get("Access-Control-Allow-Headers"))
			assert.Equal(t, tt.wantCreds, w.Header().Get("Access-Control-Allow-Credentials"))
			assert.Contains(t, w.Header().Values("Vary"), "Origin")
			if tt.wantOrigin != "" {
				assert.Equal(t, "GET, POST, PATCH, DELETE, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
			}
		})
	}
}

func TestCORS_ActualRequest(t *testing.T) {
	h := CORS(CORSConfig{
		AllowOrigins:  []string{"https://shop.example"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        600,
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := corsRequest(h, http.MethodGet, "https://shop.example", false)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "X-Request-ID", w.Header().Get("Access-Control-Expose-Headers"))
	assert.Equal(t, []string{"Origin"}, w.Header().Values("Vary"))

	w = corsRequest(h, http.MethodGet, "https://evil.example", false)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = corsRequest(h, http.MethodGet, "", false)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_MaxAge(t *testing.T) {
	for _, tt := range []struct {
		maxAge int
		want   string
	}{{0, ""}, {600, "600"}, {-1, "0"}} {
		h := CORS(CORSConfig{MaxAge: tt.maxAge})(http.NotFoundHandler())
		w := corsRequest(h, http.MethodOptions, "https://shop.example", true)
		assert.Equal(t, tt.want, w.Header().Get("Access-Control-Max-Age"))
	}
}
