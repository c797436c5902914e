package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/public/booking/x/slots", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if do("203.0.113.7") != http.StatusNoContent || do("203.0.113.7") != http.StatusNoContent {
		t.Fatal("first two requests should pass")
	}
	if got := do("203.0.113.7"); got != http.StatusTooManyRequests {
		t.Fatalf("third request: got %d, want 429", got)
	}
	if got := do("198.51.100.2"); got != http.StatusNoContent {
		t.Fatalf("other client: got %d", got)
	}

	now = now.Add(61 * time.Second)
	if got := do("203.0.113.7"); got != http.StatusNoContent {
		t.Fatalf("after window: got %d", got)
	}
	if len(rl.visitors) != 1 {
		t.Fatalf("expected expired visitors to be swept, have %d", len(rl.visitors))
	}
}
