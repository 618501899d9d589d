package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiterAllow(t *testing.T) {
	rl := NewLimiter(Config{Limit: 3, Window: time.Minute})
	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Fatal("fourth request should be rejected")
	}
	if !rl.Allow("5.6.7.8") {
		t.Fatal("other clients have their own window")
	}
	if got := rl.ActiveClients(); got != 2 {
		t.Fatalf("ActiveClients = %d", got)
	}
}

func TestLimiterWindowExpires(t *testing.T) {
	rl := NewLimiter(Config{Limit: 1, Window: 50 * time.Millisecond})
	if !rl.Allow("c") || rl.Allow("c") {
		t.Fatal("expected one request per window")
	}
	time.Sleep(80 * time.Millisecond)
	if !rl.Allow("c") {
		t.Fatal("new window should allow again")
	}
}

func TestLimiterDisabled(t *testing.T) {
	rl := NewLimiter(Config{Limit: 0})
	for i := 0; i < 100; i++ {
		if !rl.Allow("c") {
			t.Fatal("disabled limiter rejected a request")
		}
	}
}

func TestMiddleware(t *testing.T) {
	rl := NewLimiter(Config{Limit: 1, Window: time.Minute, Methods: []string{http.MethodPost}})
	var limited int
	h := rl.Middleware(
		func(*http.Request) string { return "ip" },
		func(http.ResponseWriter, *http.Request, string) { limited++ },
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := []int{}
	for _, m := range []string{http.MethodPost, http.MethodPost, http.MethodGet} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(m, "/username", nil))
		codes = append(codes, rr.Code)
		if rr.Code == http.StatusTooManyRequests && rr.Header().Get("Retry-After") != "60" {
			t.Fatalf("Retry-After = %q", rr.Header().Get("Retry-After"))
		}
	}
	want := []int{http.StatusNoContent, http.StatusTooManyRequests, http.StatusNoContent}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("codes = %v, want %v", codes, want)
		}
	}
	if limited != 1 {
		t.Fatalf("onLimit called %d times", limited)
	}
}
