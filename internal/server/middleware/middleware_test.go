package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:5173"})(ok)

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantAllow  string
	}{
		{"allowed origin", http.MethodGet, "http://localhost:5173", false, http.StatusOK, "http://localhost:5173"},
		{"allowed origin any case", http.MethodGet, "HTTP://LOCALHOST:5173", false, http.StatusOK, "HTTP://LOCALHOST:5173"},
		{"foreign origin", http.MethodGet, "http://evil.example", false, http.StatusOK, ""},
		{"preflight", http.MethodOptions, "http://localhost:5173", true, http.StatusNoContent, "http://localhost:5173"},
		{"plain options", http.MethodOptions, "", false, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/sessions", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", "PATCH")
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("allow origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

func TestCORSWildcard(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://anywhere.example")
	CORS([]string{"*"})(ok).ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://anywhere.example" {
		t.Error("wildcard did not allow origin")
	}
}

func TestAuthTokenSources(t *testing.T) {
	h := Auth("k1", "", "/api/health")(ok)

	tests := []struct {
		name string
		path string
		set  func(*http.Request)
		want int
	}{
		{"bearer", "/api/sessions", func(r *http.Request) { r.Header.Set("Authorization", "Bearer k1") }, http.StatusOK},
		{"bearer lower case scheme", "/api/sessions", func(r *http.Request) { r.Header.Set("Authorization", "bearer k1") }, http.StatusOK},
		{"api key header", "/api/sessions", func(r *http.Request) { r.Header.Set("X-API-Key", "k1") }, http.StatusOK},
		{"query on ws", "/ws?api_key=k1", func(*http.Request) {}, http.StatusOK},
		{"query elsewhere", "/api/sessions?api_key=k1", func(*http.Request) {}, http.StatusUnauthorized},
		{"wrong key", "/api/sessions", func(r *http.Request) { r.Header.Set("X-API-Key", "k2") }, http.StatusUnauthorized},
		{"open path", "/api/health", func(*http.Request) {}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			tt.set(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAuthDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	Auth("", "")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		limiter *stubLimiter
		want    int
	}{
		{"allowed", &stubLimiter{allow: true}, http.StatusOK},
		{"denied", &stubLimiter{allow: false}, http.StatusTooManyRequests},
		{"limiter down fails open", &stubLimiter{err: errors.New("redis down")}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
			req.Header.Set("X-Forwarded-For", "10.0.0.7, 172.16.0.1")
			rec := httptest.NewRecorder()
			RateLimit(tt.limiter, 10, 30*time.Second, logger)(ok).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if len(tt.limiter.keys) != 1 || tt.limiter.keys[0] != "api:10.0.0.7" {
				t.Errorf("limiter keys = %v", tt.limiter.keys)
			}
			if tt.want == http.StatusTooManyRequests && rec.Header().Get("Retry-After") != "30" {
				t.Errorf("retry-after = %q", rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestLoggingCapturesStatus(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var seen *responseWriter
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		seen = w.(*responseWriter)
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot || seen.statusCode != http.StatusTeapot || seen.bytes != 15 {
		t.Errorf("recorded status %d bytes %d", seen.statusCode, seen.bytes)
	}
}
