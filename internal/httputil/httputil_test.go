package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		trustProxy bool
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "192.0.2.1:5000",
			want:       "192.0.2.1",
		},
		{
			name:       "xff ignored without trust",
			remoteAddr: "192.0.2.1:5000",
			xff:        "203.0.113.9",
			want:       "192.0.2.1",
		},
		{
			name:       "xff first entry with trust",
			remoteAddr: "192.0.2.1:5000",
			xff:        "203.0.113.9, 10.0.0.1",
			trustProxy: true,
			want:       "203.0.113.9",
		},
		{
			name:       "x-real-ip fallback with trust",
			remoteAddr: "192.0.2.1:5000",
			xri:        "203.0.113.7",
			trustProxy: true,
			want:       "203.0.113.7",
		},
		{
			name:       "blank xff falls through to x-real-ip",
			remoteAddr: "192.0.2.1:5000",
			xff:        " , 10.0.0.1",
			xri:        "203.0.113.7",
			trustProxy: true,
			want:       "203.0.113.7",
		},
		{
			name:       "unparseable remote addr passed through",
			remoteAddr: "not-an-addr",
			want:       "not-an-addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}

			if got := ClientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("10.0.0.1:1"); code != http.StatusOK {
		t.Fatalf("first request = %d, want 200", code)
	}
	if code := send("10.0.0.1:1"); code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", code)
	}
	// A different client has its own bucket.
	if code := send("10.0.0.2:1"); code != http.StatusOK {
		t.Fatalf("other client = %d, want 200", code)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0})
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 20; i++ {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "10.0.0.1:1"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d = %d with limiting disabled", i, w.Code)
		}
	}
}
