package http

import (
	"bytes"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"bilancio/internal/chart"
	"bilancio/internal/log"
	"bilancio/internal/metrics"
	"bilancio/internal/username"
)

func newTestServer(t *testing.T, rateLimit int) *Server {
	t.Helper()
	renderer, err := chart.NewRenderer(chart.DefaultSize, time.Minute, 8)
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	srv, err := NewServer(":0", Options{
		Logger:             log.New(log.Config{Output: io.Discard}),
		Metrics:            metrics.New(metrics.DefaultConfig()),
		Renderer:           renderer,
		RateLimitPerMinute: rateLimit,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func do(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestNewServerRequiresRenderer(t *testing.T) {
	if _, err := NewServer(":0", Options{}); err == nil {
		t.Fatal("expected an error without a renderer")
	}
}

func TestIndex(t *testing.T) {
	srv := newTestServer(t, 0)

	rr := do(t, srv, httptest.NewRequest(http.MethodGet, "/?income-jan=1200&expense-dec=7.5", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"Choose a username",
		`id="income-jan"`,
		`id="expense-dec"`,
		`value="1200"`,
		`value="7.5"`,
		`id="chart"`,
		"/chart.png?",
		"Download chart",
		"<li>" + username.MsgNoDigit + "</li>",
		`src="/static/app.js"`,
		`id="notification"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}
	if strings.Contains(body, "Enter monthly figures") {
		t.Error("empty chart hint shown for a filled budget")
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("security headers not applied")
	}
	if rr.Header().Get(log.RequestIDHeader) == "" {
		t.Error("request id header not set")
	}
}

func TestRequestIDIsReusedWhenUUID(t *testing.T) {
	srv := newTestServer(t, 0)
	id := "3f1c1f7e-8f1e-4d0b-9a55-1f2a6a4d8f00"

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(log.RequestIDHeader, id)
	if got := do(t, srv, req).Header().Get(log.RequestIDHeader); got != id {
		t.Errorf("request id = %q, want %q", got, id)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(log.RequestIDHeader, "<not-a-uuid>")
	if got := do(t, srv, req).Header().Get(log.RequestIDHeader); got == "<not-a-uuid>" || got == "" {
		t.Errorf("request id = %q, want a fresh uuid", got)
	}
}

func TestUsernameFragment(t *testing.T) {
	srv := newTestServer(t, 0)

	tests := []struct {
		name      string
		input     string
		wantValid bool
		wantMsgs  []string
	}{
		{name: "valid", input: "Abcd1!", wantValid: true},
		{name: "trimmed before validation", input: "  Ab1!x  ", wantValid: true},
		{
			name:     "all rules fail",
			input:    "ab",
			wantMsgs: []string{username.MsgTooShort, username.MsgNoUppercase, username.MsgNoDigit, username.MsgNoSpecial},
		},
		{
			name:     "whitespace only is empty",
			input:    "   ",
			wantMsgs: []string{username.MsgTooShort, username.MsgNoUppercase, username.MsgNoDigit, username.MsgNoSpecial},
		},
		{name: "missing digit", input: "Abcde!", wantMsgs: []string{username.MsgNoDigit}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, postForm("/username", url.Values{"username": {tt.input}}))
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d", rr.Code)
			}
			body := rr.Body.String()
			if tt.wantValid {
				if !strings.Contains(body, UsernameValidMessage) {
					t.Fatalf("body = %q, want success message", body)
				}
				if strings.Contains(body, "✗") {
					t.Fatalf("success body has failures: %q", body)
				}
				return
			}
			if got := strings.Count(body, "✗ "); got != len(tt.wantMsgs) {
				t.Fatalf("body = %q, want %d failures", body, len(tt.wantMsgs))
			}
			last := -1
			for _, msg := range tt.wantMsgs {
				i := strings.Index(body, "✗ "+msg)
				if i < 0 {
					t.Fatalf("body %q missing %q", body, msg)
				}
				if i < last {
					t.Fatalf("messages out of order in %q", body)
				}
				last = i
			}
			if !strings.Contains(rr.Header().Get("HX-Trigger"), `"username:validated"`) {
				t.Errorf("HX-Trigger = %q", rr.Header().Get("HX-Trigger"))
			}
		})
	}
}

func TestUsernameJSON(t *testing.T) {
	srv := newTestServer(t, 0)

	decode := func(t *testing.T, rr *httptest.ResponseRecorder) username.Result {
		t.Helper()
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("Content-Type = %q", ct)
		}
		var res username.Result
		if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
			t.Fatalf("decode: %v (%s)", err, rr.Body.String())
		}
		return res
	}

	req := postForm("/username", url.Values{"username": {"abcde"}})
	req.Header.Set("Accept", "application/json")
	res := decode(t, do(t, srv, req))
	if res.Valid || len(res.Errors) != 3 || res.Errors[0] != username.MsgNoUppercase {
		t.Fatalf("result = %+v", res)
	}

	req = httptest.NewRequest(http.MethodPost, "/username", strings.NewReader(`{"username":"Abcd1!"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := do(t, srv, req)
	res = decode(t, rr)
	if !res.Valid || len(res.Errors) != 0 {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(rr.Body.String(), `"errors":[]`) {
		t.Fatalf("errors must encode as an empty list: %s", rr.Body.String())
	}
}

func TestUsernameMalformedJSON(t *testing.T) {
	srv := newTestServer(t, 0)
	req := httptest.NewRequest(http.MethodPost, "/username", strings.NewReader(`{"username":`))
	req.Header.Set("Content-Type", "application/json")
	rr := do(t, srv, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
	trigger := rr.Header().Get("HX-Trigger")
	if !strings.Contains(trigger, `"show-notification"`) || !strings.Contains(trigger, `"type":"error"`) {
		t.Fatalf("HX-Trigger = %q", trigger)
	}
}

func TestUsernameMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, 0)
	rr := do(t, srv, httptest.NewRequest(http.MethodGet, "/username", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("Allow = %q", rr.Header().Get("Allow"))
	}
}

func TestChartJSON(t *testing.T) {
	srv := newTestServer(t, 0)
	rr := do(t, srv, httptest.NewRequest(http.MethodGet, "/chart.json?income-jan=1200&expense-feb=abc", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var cfg chart.Config
	if err := json.Unmarshal(rr.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cfg.Data.Datasets) != 2 || cfg.Data.Datasets[0].Data[0] != 1200 || cfg.Data.Datasets[1].Data[1] != 0 {
		t.Fatalf("datasets = %+v", cfg.Data.Datasets)
	}
	if !strings.Contains(rr.Body.String(), `"rgba(75, 192, 192, 0.6)"`) {
		t.Errorf("colours not encoded as css strings: %s", rr.Body.String())
	}
}

func TestChartPNG(t *testing.T) {
	srv := newTestServer(t, 0)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantW      int
		wantH      int
		attachment bool
	}{
		{name: "default size", query: "income-jan=100", wantStatus: 200, wantW: 960, wantH: 480},
		{name: "empty budget", query: "", wantStatus: 200, wantW: 960, wantH: 480},
		{name: "explicit size", query: "width=400&height=300", wantStatus: 200, wantW: 400, wantH: 300},
		{name: "download", query: "expense-mar=5&download=1", wantStatus: 200, wantW: 960, wantH: 480, attachment: true},
		{name: "too small", query: "width=10", wantStatus: http.StatusBadRequest},
		{name: "not a number", query: "height=tall", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, httptest.NewRequest(http.MethodGet, "/chart.png?"+tt.query, nil))
			if rr.Code != tt.wantStatus {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
				t.Fatalf("Content-Type = %q", ct)
			}
			img, err := png.Decode(bytes.NewReader(rr.Body.Bytes()))
			if err != nil {
				t.Fatalf("decode png: %v", err)
			}
			if b := img.Bounds(); b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Fatalf("size = %dx%d", b.Dx(), b.Dy())
			}
			cd := rr.Header().Get("Content-Disposition")
			if tt.attachment && cd != `attachment; filename="income-expense-chart.png"` {
				t.Fatalf("Content-Disposition = %q", cd)
			}
			if !tt.attachment && cd != "" {
				t.Fatalf("unexpected Content-Disposition %q", cd)
			}
		})
	}
}

func TestChartFragment(t *testing.T) {
	srv := newTestServer(t, 0)
	rr := do(t, srv, postForm("/chart", url.Values{
		"income-jan":  {"1200"},
		"expense-jan": {"1500"},
		"expense-feb": {"  "},
	}))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{`id="chart"`, "income-jan=1200", "expense-jan=1500", "download=1", "$1,200", "$-300", "net-negative"} {
		if !strings.Contains(body, want) {
			t.Errorf("fragment missing %q: %s", want, body)
		}
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), `"chart:updated"`) {
		t.Errorf("HX-Trigger = %q", rr.Header().Get("HX-Trigger"))
	}
}

func TestChartFragmentEmptyBudget(t *testing.T) {
	srv := newTestServer(t, 0)
	rr := do(t, srv, postForm("/chart", url.Values{"income-jan": {"abc"}}))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Enter monthly figures") {
		t.Errorf("empty budget should show the hint: %s", rr.Body.String())
	}
}

func TestChartExtremeFigures(t *testing.T) {
	srv := newTestServer(t, 0)
	query := "income-jan=1e308&expense-jan=-1e308&income-feb=5e-324"
	for _, path := range []string{"/chart.json?", "/chart.png?"} {
		rr := do(t, srv, httptest.NewRequest(http.MethodGet, path+query, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, 0)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		var body map[string]interface{}
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if body["status"] != "ok" && body["status"] != "ready" {
			t.Fatalf("%s status field = %v", path, body["status"])
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, 0)
	do(t, srv, postForm("/username", url.Values{"username": {"abc"}}))
	do(t, srv, httptest.NewRequest(http.MethodGet, "/chart.png", nil))

	rr := do(t, srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`bilancio_username_validations_total{result="invalid"} 1`,
		`bilancio_username_rule_failures_total{rule="length"} 1`,
		`bilancio_chart_renders_total{cache="miss"} 1`,
		`bilancio_http_requests_total{method="POST",path="/username",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestRateLimitFormPosts(t *testing.T) {
	srv := newTestServer(t, 1)

	if rr := do(t, srv, postForm("/username", url.Values{"username": {"x"}})); rr.Code != http.StatusOK {
		t.Fatalf("first POST status=%d", rr.Code)
	}
	rr := do(t, srv, postForm("/username", url.Values{"username": {"x"}}))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second POST status=%d", rr.Code)
	}
	if trigger := rr.Header().Get("HX-Trigger"); !strings.Contains(trigger, `"type":"warning"`) {
		t.Errorf("HX-Trigger = %q", trigger)
	}
	if rr := do(t, srv, httptest.NewRequest(http.MethodGet, "/", nil)); rr.Code != http.StatusOK {
		t.Fatalf("page GET should not be limited, status=%d", rr.Code)
	}
}

func TestRateLimitChartImage(t *testing.T) {
	srv := newTestServer(t, 1)

	if rr := do(t, srv, httptest.NewRequest(http.MethodGet, "/chart.png?width=400&height=300", nil)); rr.Code != http.StatusOK {
		t.Fatalf("first image status=%d", rr.Code)
	}
	rr := do(t, srv, httptest.NewRequest(http.MethodGet, "/chart.png?width=401&height=300", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second image status=%d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Retry-After not set")
	}
	if n := srv.renderer.CachedEntries(); n != 1 {
		t.Errorf("rejected request reached the renderer, cached entries = %d", n)
	}

	// Form posts keep their own counter.
	if rr := do(t, srv, postForm("/username", url.Values{"username": {"x"}})); rr.Code != http.StatusOK {
		t.Fatalf("POST after image limit status=%d", rr.Code)
	}
}

func TestPanicIsLoggedAndCounted(t *testing.T) {
	renderer, err := chart.NewRenderer(chart.DefaultSize, 0, 0)
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	var logs bytes.Buffer
	srv, err := NewServer(":0", Options{
		Logger:   log.New(log.Config{Output: &logs}),
		Metrics:  metrics.New(metrics.DefaultConfig()),
		Renderer: renderer,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv.Handler.(*chi.Mux).Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	if rr := do(t, srv, httptest.NewRequest(http.MethodGet, "/boom", nil)); rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	rr := do(t, srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	want := `bilancio_http_requests_total{method="GET",path="/boom",status="500"} 1`
	if !strings.Contains(rr.Body.String(), want) {
		t.Errorf("metrics missing %q", want)
	}
	if !strings.Contains(logs.String(), "HTTP request completed") || !strings.Contains(logs.String(), "500") {
		t.Errorf("completion line missing from logs: %s", logs.String())
	}
}

func TestStaticAndNotFound(t *testing.T) {
	srv := newTestServer(t, 0)

	rr := do(t, srv, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("static status=%d", rr.Code)
	}
	if !strings.HasPrefix(rr.Header().Get("Cache-Control"), "public, max-age=3600") {
		t.Errorf("Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}

	rr = do(t, srv, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown path status=%d", rr.Code)
	}
}
