package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuthDisabledWithEmptyToken(t *testing.T) {
	h := RequireAuth(okHandler(), "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/entities", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRequireAuth(t *testing.T) {
	h := RequireAuth(okHandler(), "secret")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer secret", http.StatusOK},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"token without scheme", "secret", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/entities", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequireAuthErrorBody(t *testing.T) {
	h := RequireAuth(okHandler(), "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %q", rec.Body.String())
	}
	if body["code"] != "UNAUTHORIZED" {
		t.Errorf("body = %v", body)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	h := RateLimitMiddleware(okHandler(), rl)

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	// Burst of 2, then limited.
	if got := send("10.0.0.1:1111"); got != http.StatusOK {
		t.Errorf("first = %d", got)
	}
	if got := send("10.0.0.1:2222"); got != http.StatusOK {
		t.Errorf("second = %d", got)
	}
	if got := send("10.0.0.1:3333"); got != http.StatusTooManyRequests {
		t.Errorf("third = %d, want 429", got)
	}

	// Separate clients get their own bucket.
	if got := send("10.0.0.2:1111"); got != http.StatusOK {
		t.Errorf("other client = %d", got)
	}
}

func TestRateLimiterKeyedByHostNotPort(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	if !rl.Allow(clientKey(&http.Request{RemoteAddr: "10.0.0.1:1111"})) {
		t.Error("first request should pass")
	}
	if rl.Allow(clientKey(&http.Request{RemoteAddr: "10.0.0.1:9999"})) {
		t.Error("same host on a different port must share the bucket")
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if got := rec.Header().Get("Referrer-Policy"); got != "strict-origin-when-cross-origin" {
		t.Errorf("Referrer-Policy = %q", got)
	}
}
