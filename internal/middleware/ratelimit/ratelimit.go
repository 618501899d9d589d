package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Limiter counts requests per client in fixed windows. The first request
// of a client opens its window; the counter expires with it.
type Limiter struct {
	counters *gocache.Cache
	limit    int64
	window   time.Duration
	methods  map[string]bool
}

// Config holds rate limiter configuration
type Config struct {
	// Limit is the number of requests allowed per window. Zero disables
	// limiting.
	Limit int
	// Window is the length of a counting window (default: 1 minute)
	Window time.Duration
	// Methods restricts limiting to these HTTP methods. Empty means all.
	Methods []string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Limit:   60,
		Window:  time.Minute,
		Methods: []string{http.MethodPost},
	}
}

// NewLimiter creates a new rate limiter
func NewLimiter(config Config) *Limiter {
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	rl := &Limiter{
		counters: gocache.New(config.Window, 2*config.Window),
		limit:    int64(config.Limit),
		window:   config.Window,
		methods:  make(map[string]bool, len(config.Methods)),
	}
	for _, m := range config.Methods {
		rl.methods[m] = true
	}
	return rl
}

// Enabled reports whether the limiter rejects anything at all
func (rl *Limiter) Enabled() bool {
	return rl.limit > 0
}

// Allow records a request from client and reports whether it is within the
// limit.
func (rl *Limiter) Allow(client string) bool {
	if !rl.Enabled() {
		return true
	}
	if err := rl.counters.Add(client, int64(1), rl.window); err == nil {
		return true
	}
	n, err := rl.counters.IncrementInt64(client, 1)
	if err != nil {
		// Window expired between Add and Increment.
		rl.counters.Set(client, int64(1), rl.window)
		return true
	}
	return n <= rl.limit
}

// ActiveClients returns the number of clients with an open window
func (rl *Limiter) ActiveClients() int {
	return rl.counters.ItemCount()
}

// Middleware rejects requests over the limit with 429. onLimit, when set,
// is called before the response is written and may add headers to w.
func (rl *Limiter) Middleware(extractIP func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request, string)) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(rl.window.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(rl.methods) > 0 && !rl.methods[r.Method] {
				next.ServeHTTP(w, r)
				return
			}
			clientIP := extractIP(r)
			if !rl.Allow(clientIP) {
				if onLimit != nil {
					onLimit(w, r, clientIP)
				}
				w.Header().Set("Retry-After", retryAfter)
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
