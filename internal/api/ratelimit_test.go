package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d denied within budget", i+1)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Error("request beyond budget allowed")
	}
	// A different IP has its own bucket.
	if !rl.Allow("5.6.7.8") {
		t.Error("fresh IP denied")
	}
}

func TestRateLimiterRetryAfter(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	rl.Allow("1.2.3.4")

	if after := rl.RetryAfter("1.2.3.4"); after <= 0 || after > 61 {
		t.Errorf("RetryAfter = %d, want within (0, 61]", after)
	}
	if after := rl.RetryAfter("9.9.9.9"); after != 0 {
		t.Errorf("RetryAfter for unseen IP = %d, want 0", after)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"plain", "10.0.0.1:9999", "", "10.0.0.1"},
		{"forwarded single", "10.0.0.1:9999", "203.0.113.9", "203.0.113.9"},
		{"forwarded chain", "10.0.0.1:9999", "203.0.113.9, 10.0.0.2", "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientIP(r); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	handler := RateLimitMiddleware(rl, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/voters", nil)
	req.RemoteAddr = "10.0.0.1:9999"

	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After")
	}
}

func TestAdminOnlyRequiresBearerToken(t *testing.T) {
	s := &Server{AdminKey: "secret"}
	called := false
	handler := s.adminOnly(func(w http.ResponseWriter, r *http.Request) { called = true })

	get := httptest.NewRequest(http.MethodGet, "/api/v1/speed", nil)
	w := httptest.NewRecorder()
	handler(w, get)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", w.Code)
	}

	post := httptest.NewRequest(http.MethodPost, "/api/v1/speed", nil)
	w = httptest.NewRecorder()
	handler(w, post)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated POST status = %d, want 401", w.Code)
	}

	post.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	handler(w, post)
	if w.Code != http.StatusOK || !called {
		t.Errorf("authenticated POST status = %d, called = %v", w.Code, called)
	}
}

func TestAdminOnlyDisabledWithoutKey(t *testing.T) {
	s := &Server{}
	handler := s.adminOnly(func(w http.ResponseWriter, r *http.Request) {})

	post := httptest.NewRequest(http.MethodPost, "/api/v1/speed", nil)
	post.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()
	handler(w, post)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 when no admin key is configured", w.Code)
	}
}
