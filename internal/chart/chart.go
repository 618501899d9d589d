// Package chart builds the income vs expense bar chart for a budget and
// renders it as JSON configuration or as a PNG image.
package chart

import (
	"errors"
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"bilancio/internal/budget"
)

// DownloadName is the file name offered when the PNG is exported.
const DownloadName = "income-expense-chart.png"

var (
	ErrEmptyChart       = errors.New("chart has no labels or datasets")
	ErrMismatchedSeries = errors.New("dataset length does not match labels")
	ErrInvalidSize      = errors.New("invalid chart size")
)

// RGBA is a CSS rgba() colour.
type RGBA struct {
	R, G, B uint8
	A       float64
}

func (c RGBA) String() string {
	return fmt.Sprintf("rgba(%d, %d, %d, %g)", c.R, c.G, c.B, c.A)
}

func (c RGBA) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *RGBA) UnmarshalText(text []byte) error {
	var out RGBA
	if _, err := fmt.Sscanf(string(text), "rgba(%d, %d, %d, %g)", &out.R, &out.G, &out.B, &out.A); err != nil {
		return fmt.Errorf("parse colour %q: %w", text, err)
	}
	*c = out
	return nil
}

var (
	incomeFill    = RGBA{75, 192, 192, 0.6}
	incomeBorder  = RGBA{75, 192, 192, 1}
	expenseFill   = RGBA{255, 99, 132, 0.6}
	expenseBorder = RGBA{255, 99, 132, 1}
)

type (
	Config struct {
		Type    string  `json:"type"`
		Data    Data    `json:"data"`
		Options Options `json:"options"`
	}

	Data struct {
		Labels   []string  `json:"labels"`
		Datasets []Dataset `json:"datasets"`
	}

	Dataset struct {
		Label           string    `json:"label"`
		Data            []float64 `json:"data"`
		BackgroundColor RGBA      `json:"backgroundColor"`
		BorderColor     RGBA      `json:"borderColor"`
		BorderWidth     int       `json:"borderWidth"`
		// Tooltips holds the formatted hover label for each point.
		Tooltips        []string  `json:"tooltips,omitempty"`
	}

	Options struct {
		Responsive          bool    `json:"responsive"`
		MaintainAspectRatio bool    `json:"maintainAspectRatio"`
		Scales              Scales  `json:"scales"`
		Plugins             Plugins `json:"plugins"`
	}

	Scales struct {
		Y Axis `json:"y"`
	}

	Axis struct {
		BeginAtZero bool     `json:"beginAtZero"`
		Ticks       []string `json:"ticks,omitempty"`
	}

	Plugins struct {
		Legend Legend `json:"legend"`
	}

	Legend struct {
		Display  bool   `json:"display"`
		Position string `json:"position"`
	}
)

// Build turns a budget into the bar chart configuration: month labels on
// the x axis, an Income and an Expense dataset, y axis starting at zero.
func Build(b budget.Budget) Config {
	cfg := Config{
		Type: "bar",
		Data: Data{
			Labels: budget.MonthLabels(),
			Datasets: []Dataset{
				newDataset("Income", b.Income[:], incomeFill, incomeBorder),
				newDataset("Expense", b.Expense[:], expenseFill, expenseBorder),
			},
		},
		Options: Options{
			Responsive:          true,
			MaintainAspectRatio: true,
			Scales:              Scales{Y: Axis{BeginAtZero: true}},
			Plugins:             Plugins{Legend: Legend{Display: true, Position: "top"}},
		},
	}
	for _, t := range NewScale(cfg).Ticks() {
		cfg.Options.Scales.Y.Ticks = append(cfg.Options.Scales.Y.Ticks, FormatTick(t))
	}
	return cfg
}

func newDataset(label string, values []float64, fill, border RGBA) Dataset {
	ds := Dataset{
		Label:           label,
		Data:            append([]float64(nil), values...),
		BackgroundColor: fill,
		BorderColor:     border,
		BorderWidth:     1,
	}
	for _, v := range values {
		ds.Tooltips = append(ds.Tooltips, TooltipLabel(label, v))
	}
	return ds
}

// Check reports whether cfg can be drawn.
func (c Config) Check() error {
	if len(c.Data.Labels) == 0 || len(c.Data.Datasets) == 0 {
		return ErrEmptyChart
	}
	for _, ds := range c.Data.Datasets {
		if len(ds.Data) != len(c.Data.Labels) {
			return fmt.Errorf("%w: %s has %d values for %d labels", ErrMismatchedSeries, ds.Label, len(ds.Data), len(c.Data.Labels))
		}
	}
	return nil
}

var printer = message.NewPrinter(language.AmericanEnglish)

// FormatNumber groups thousands the en-US way with at most three fraction
// digits: 1234.5 is "1,234.5".
func FormatNumber(v float64) string {
	return printer.Sprintf("%v", number.Decimal(v, number.MaxFractionDigits(3)))
}

// FormatTick labels a y axis tick, e.g. "$1,200".
func FormatTick(v float64) string {
	return "$" + FormatNumber(v)
}

// TooltipLabel is the hover text for one bar: "Income: $1,200". An empty
// dataset label drops the prefix.
func TooltipLabel(label string, v float64) string {
	if label != "" {
		label += ": "
	}
	return label + "$" + FormatNumber(v)
}
