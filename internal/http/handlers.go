package http

import (
	"bytes"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"bilancio/internal/budget"
	"bilancio/internal/chart"
	"bilancio/internal/log"
	"bilancio/internal/username"
)

// Feedback markup returned to the username form.
const (
	UsernameValidMessage = "✓ Username is valid!"
	failurePrefix        = "✗ "
	failureSeparator     = "<br>✗ "
)

var started = time.Now()

// feedbackPolicy allows exactly the markup feedbackHTML produces.
func feedbackPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("br")
	p.AllowAttrs("id", "class").OnElements("div")
	return p
}

func feedbackHTML(res username.Result) string {
	if res.Valid {
		return `<div id="username-feedback" class="feedback success">` + UsernameValidMessage + `</div>`
	}
	escaped := make([]string, len(res.Errors))
	for i, msg := range res.Errors {
		escaped[i] = template.HTMLEscapeString(msg)
	}
	return `<div id="username-feedback" class="feedback error">` +
		failurePrefix + strings.Join(escaped, failureSeparator) + `</div>`
}

type monthRow struct {
	Label        string
	IncomeField  string
	ExpenseField string
	Income       string
	Expense      string
}

type chartView struct {
	ChartURL    string
	DownloadURL string
	Income      string
	Expense     string
	Net         string
	Negative    bool
	// Empty is set while every figure is still zero.
	Empty       bool
}

type indexView struct {
	Months   []monthRow
	Chart    chartView
	Policy   []string
	Specials string
}

func newChartView(b budget.Budget) chartView {
	q := b.Values()
	download := b.Values()
	download.Set("download", "1")
	return chartView{
		ChartURL:    "/chart.png?" + q.Encode(),
		DownloadURL: "/chart.png?" + download.Encode(),
		Income:      chart.FormatTick(b.TotalIncome()),
		Expense:     chart.FormatTick(b.TotalExpense()),
		Net:         chart.FormatTick(b.Net()),
		Negative:    b.Net() < 0,
		Empty:       b.IsZero(),
	}
}

func inputValue(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// handleIndex renders the widget page. Budget fields present in the query
// are echoed back so a reload keeps the entered figures.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	b := budget.FromValues(r.URL.Query())
	labels := budget.MonthLabels()
	data := indexView{
		Months:   make([]monthRow, budget.MonthCount),
		Chart:    newChartView(b),
		Specials: username.SpecialCharacters,
	}
	for _, rule := range username.Rules() {
		data.Policy = append(data.Policy, rule.Message)
	}
	for i := range data.Months {
		data.Months[i] = monthRow{
			Label:        labels[i],
			IncomeField:  budget.FieldName(budget.Income, i),
			ExpenseField: budget.FieldName(budget.Expense, i),
			Income:       inputValue(b.Income[i]),
			Expense:      inputValue(b.Expense[i]),
		}
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "index.html", data); err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentTemplate).
			ErrorContext(r.Context(), "Index template execution failed", log.FieldError, err, "template", "index.html")
		InternalServerError("Page rendering failed").Write(w)
		return
	}
	NewHTMXResponse().BodyHTML(buf.String()).Write(w)
}

// handleUsername validates the submitted username. Failed rules are a
// normal outcome, so both outcomes answer 200.
func (s *Server) handleUsername(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx).WithComponent(log.ComponentUsername)

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		logger.WarnContext(ctx, "Malformed username request", log.FieldError, err)
		BadRequestError("Malformed request").
			TriggerErrorNotification("The form could not be read, please try again.").
			Write(w)
		return
	}

	candidate := p.Get("username")
	res := username.Validate(candidate)
	failed := username.Failed(candidate)
	if s.metrics != nil {
		s.metrics.ObserveValidation(res.Valid, failed)
	}
	logger.DebugContext(ctx, "Username validated", log.NewFields().
		WithOperation(log.OpValidate).
		WithValidation(utf8.RuneCountInString(candidate), res.Valid, failed).
		ToSlice()...)

	if WantsJSON(r) || p.IsJSON() {
		NewHTMXResponse().BodyJSON(res).Write(w)
		return
	}
	NewHTMXResponse().
		TriggerUsernameValidated(res.Valid, len(res.Errors)).
		BodyHTML(s.sanitizer.Sanitize(feedbackHTML(res))).
		Write(w)
}

// handleChartFragment answers the budget form with the chart block pointing
// at a fresh image URL.
func (s *Server) handleChartFragment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx).WithComponent(log.ComponentChart)

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		logger.WarnContext(ctx, "Malformed chart request", log.FieldError, err)
		BadRequestError("Malformed request").
			TriggerErrorNotification("The form could not be read, please try again.").
			Write(w)
		return
	}
	b := budget.FromValues(p.Values())
	view := newChartView(b)

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "chart", view); err != nil {
		logger.ErrorContext(ctx, "Chart template execution failed", log.FieldError, err, "template", "chart")
		InternalServerError("Chart rendering failed").Write(w)
		return
	}
	logger.DebugContext(ctx, "Chart generated", log.FieldNet, b.Net())
	NewHTMXResponse().
		TriggerChartUpdated(view.ChartURL).
		BodyHTML(buf.String()).
		Write(w)
}

// handleChartJSON returns the chart configuration for the budget in the
// query string.
func (s *Server) handleChartJSON(w http.ResponseWriter, r *http.Request) {
	cfg := chart.Build(budget.FromValues(r.URL.Query()))
	NewHTMXResponse().BodyJSON(cfg).Write(w)
}

// handleChartPNG renders the chart for the budget in the query string.
// download=1 turns it into an attachment.
func (s *Server) handleChartPNG(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx).WithComponent(log.ComponentChart)
	q := r.URL.Query()

	size, err := ParseChartSize(q, s.renderer.Size())
	if err != nil {
		BadRequestError(err.Error()).TriggerErrorNotification(err.Error()).Write(w)
		return
	}

	data, cached, err := s.renderer.PNGSized(chart.Build(budget.FromValues(q)), size)
	if err != nil {
		logger.ErrorContext(ctx, "Chart render failed", log.FieldOperation, log.OpRender, log.FieldError, err)
		InternalServerError("Chart rendering failed").Write(w)
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveChartRender(cached)
	}
	logger.DebugContext(ctx, "Chart rendered", log.NewFields().
		WithOperation(log.OpRender).
		WithChart(size.Width, size.Height, len(data), cached).
		ToSlice()...)

	resp := NewHTMXResponse().
		Header("Content-Type", "image/png").
		Header("Cache-Control", "public, max-age=300").
		Body(data)
	if IsDownload(q) {
		resp.Header("Content-Disposition", `attachment; filename="`+chart.DownloadName+`"`)
	}
	resp.Write(w)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewHTMXResponse().BodyJSON(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports whether the templates and renderer are in place,
// together with the sizes of the in-memory state.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if s.templates == nil || s.templates.Lookup("index.html") == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	checks["chart_cache"] = map[string]interface{}{
		"entries": s.renderer.CachedEntries(),
		"status":  "ok",
	}
	checks["rate_limiter"] = map[string]interface{}{
		"enabled":        s.limiter.Enabled(),
		"active_clients": s.limiter.ActiveClients(),
		"image_clients":  s.imageLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewHTMXResponse().
		Status(httpStatus).
		BodyJSON(map[string]interface{}{
			"status":    status,
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    checks,
		}).
		Write(w)
}
