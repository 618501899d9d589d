// Package budget holds twelve months of income and expense figures.
//
// Figures come from loosely typed form fields: anything that does not start
// with a number counts as zero, so a half-filled form always yields a
// complete budget.
package budget

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// MonthCount is the number of months in a budget year.
const MonthCount = 12

var (
	monthKeys = [MonthCount]string{
		"jan", "feb", "mar", "apr", "may", "jun",
		"jul", "aug", "sep", "oct", "nov", "dec",
	}
	monthLabels = [MonthCount]string{
		"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December",
	}
)

var ErrUnknownMonth = errors.New("unknown month")

// Kind distinguishes the two series of a budget.
type Kind string

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

// Budget is a year of monthly figures, indexed January first.
type Budget struct {
	Income  [MonthCount]float64
	Expense [MonthCount]float64
}

// MonthKeys returns the short month keys used in field names.
func MonthKeys() []string {
	return monthKeys[:]
}

// MonthLabels returns the full month names used as chart labels.
func MonthLabels() []string {
	return monthLabels[:]
}

// FieldName returns the form field for a month, e.g. "income-jan".
func FieldName(kind Kind, month int) string {
	return string(kind) + "-" + monthKeys[month]
}

// MonthIndex resolves a short month key to its 0-based index.
func MonthIndex(key string) (int, error) {
	k := strings.ToLower(strings.TrimSpace(key))
	for i, m := range monthKeys {
		if m == k {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMonth, key)
}

// numericPrefix matches the longest leading decimal literal.
var numericPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ParseAmount reads a figure the way a lenient form does: leading whitespace
// is skipped, the longest numeric prefix is used ("12abc" is 12), and
// anything unparsable or non-finite is 0.
func ParseAmount(raw string) float64 {
	s := strings.TrimLeft(raw, " \t\n\r\v\f")
	m := numericPrefix.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}

// FromValues reads income-<month> and expense-<month> fields.
// Missing or malformed fields are 0.
func FromValues(values url.Values) Budget {
	var b Budget
	for i := range monthKeys {
		b.Income[i] = ParseAmount(values.Get(FieldName(Income, i)))
		b.Expense[i] = ParseAmount(values.Get(FieldName(Expense, i)))
	}
	return b
}

// Values encodes the budget back into form fields. Zero months are omitted.
func (b Budget) Values() url.Values {
	v := url.Values{}
	for i := range monthKeys {
		if b.Income[i] != 0 {
			v.Set(FieldName(Income, i), strconv.FormatFloat(b.Income[i], 'f', -1, 64))
		}
		if b.Expense[i] != 0 {
			v.Set(FieldName(Expense, i), strconv.FormatFloat(b.Expense[i], 'f', -1, 64))
		}
	}
	return v
}

func (b Budget) TotalIncome() float64  { return sum(b.Income[:]) }
func (b Budget) TotalExpense() float64 { return sum(b.Expense[:]) }

// Net is total income minus total expense.
func (b Budget) Net() float64 {
	return b.TotalIncome() - b.TotalExpense()
}

// IsZero reports whether every figure is zero.
func (b Budget) IsZero() bool {
	return b == Budget{}
}

func sum(xs []float64) float64 {
	var t float64
	for _, x := range xs {
		t += x
	}
	return t
}

// document is the YAML layout accepted by Load:
//
//	income:
//	  jan: 1200
//	expense:
//	  jan: 800
type document struct {
	Income  map[string]float64 `yaml:"income"`
	Expense map[string]float64 `yaml:"expense"`
}

// Load reads a YAML budget. Months may be omitted; unknown month keys are
// rejected.
func Load(r io.Reader) (Budget, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return Budget{}, fmt.Errorf("decode budget: %w", err)
	}

	var b Budget
	for key, v := range doc.Income {
		i, err := MonthIndex(key)
		if err != nil {
			return Budget{}, fmt.Errorf("income: %w", err)
		}
		b.Income[i] = finite(v)
	}
	for key, v := range doc.Expense {
		i, err := MonthIndex(key)
		if err != nil {
			return Budget{}, fmt.Errorf("expense: %w", err)
		}
		b.Expense[i] = finite(v)
	}
	return b, nil
}

// finite maps .nan and .inf to 0, the same as ParseAmount does.
func finite(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}
