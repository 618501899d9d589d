package chart

import "math"

const (
	// targetTicks is roughly how many intervals the y axis is split into.
	targetTicks = 5
	// maxTicks bounds Ticks whatever the scale holds.
	maxTicks = 100
)

// Scale is the y axis range of a chart, rounded out to whole steps.
type Scale struct {
	Min, Max, Step float64
}

// NewScale fits a scale around every finite value of cfg. With BeginAtZero
// the range always includes zero. Any finite input yields finite bounds and
// a positive step.
func NewScale(cfg Config) Scale {
	var lo, hi float64
	seeded := cfg.Options.Scales.Y.BeginAtZero
	for _, ds := range cfg.Data.Datasets {
		for _, v := range ds.Data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			if !seeded {
				lo, hi, seeded = v, v, true
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if hi == lo {
		hi = lo + 1
	}
	// Half the span, so 1e308 against -1e308 does not overflow.
	half := hi/2 - lo/2
	step := niceStep(half / (targetTicks / 2.0))
	return Scale{
		Min:  clamp(math.Floor(lo/step) * step),
		Max:  clamp(math.Ceil(hi/step) * step),
		Step: step,
	}
}

// niceStep rounds raw up to 1, 2 or 5 times a power of ten. Ranges too
// small to represent fall back to a step of 1.
func niceStep(raw float64) float64 {
	if !(raw > 0) || math.IsInf(raw, 0) {
		return 1
	}
	exp := math.Pow(10, math.Floor(math.Log10(raw)))
	if exp == 0 {
		return 1
	}
	var step float64
	switch f := raw / exp; {
	case f <= 1:
		step = exp
	case f <= 2:
		step = 2 * exp
	case f <= 5:
		step = 5 * exp
	default:
		step = 10 * exp
	}
	if math.IsInf(step, 0) {
		return math.MaxFloat64
	}
	return step
}

func clamp(v float64) float64 {
	return math.Max(-math.MaxFloat64, math.Min(math.MaxFloat64, v))
}

// Ticks lists the tick values from Min to Max inclusive.
func (s Scale) Ticks() []float64 {
	if !(s.Step > 0) || math.IsInf(s.Step, 0) || math.IsNaN(s.Min) || math.IsNaN(s.Max) {
		return []float64{s.Min}
	}
	n := int(math.Round(s.Max/s.Step - s.Min/s.Step))
	if n < 0 {
		n = 0
	}
	if n > maxTicks {
		n = maxTicks
	}
	ticks := make([]float64, 0, n+1)
	for i := 0; i <= n; i++ {
		v := clamp(s.Min + float64(i)*s.Step)
		if math.Abs(v) < 1e12 {
			// Drop float noise such as 0.6000000000000001.
			v = math.Round(v*1e9) / 1e9
		}
		ticks = append(ticks, v)
	}
	return ticks
}

// Y maps v onto a pixel row between top (Max) and bottom (Min).
func (s Scale) Y(v float64, top, bottom int) int {
	span := s.Max/2 - s.Min/2
	if !(span > 0) {
		return bottom
	}
	frac := (v/2 - s.Min/2) / span
	frac = math.Max(0, math.Min(1, frac))
	return bottom - int(math.Round(frac*float64(bottom-top)))
}
