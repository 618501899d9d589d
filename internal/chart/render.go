package chart

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Size is the pixel size of a rendered chart.
type Size struct {
	Width  int
	Height int
}

const (
	MinWidth  = 320
	MinHeight = 200
	MaxWidth  = 4096
	MaxHeight = 4096
)

// DefaultSize matches the canvas of the original page.
var DefaultSize = Size{Width: 960, Height: 480}

// Validate reports whether the size is within the renderable bounds.
func (s Size) Validate() error {
	if s.Width < MinWidth || s.Width > MaxWidth || s.Height < MinHeight || s.Height > MaxHeight {
		return fmt.Errorf("%w: %dx%d (allowed %dx%d to %dx%d)", ErrInvalidSize,
			s.Width, s.Height, MinWidth, MinHeight, MaxWidth, MaxHeight)
	}
	return nil
}

var (
	colBackground = color.White
	colGrid       = color.NRGBA{R: 0xe5, G: 0xe7, B: 0xeb, A: 0xff}
	colAxis       = color.NRGBA{R: 0x6b, G: 0x72, B: 0x80, A: 0xff}
	colText       = color.NRGBA{R: 0x37, G: 0x41, B: 0x51, A: 0xff}
)

var face = basicfont.Face7x13

const (
	marginTop    = 36
	marginRight  = 16
	marginBottom = 28
	legendBox    = 12
	legendGap    = 24
)

// Render draws cfg as a PNG bar chart: legend on top, y ticks on the left,
// one group of bars per label along the bottom.
func Render(w io.Writer, cfg Config, size Size) error {
	if err := cfg.Check(); err != nil {
		return err
	}
	if err := size.Validate(); err != nil {
		return err
	}

	img := image.NewNRGBA(image.Rect(0, 0, size.Width, size.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(colBackground), image.Point{}, draw.Src)

	scale := NewScale(cfg)
	ticks := scale.Ticks()

	marginLeft := 0
	for _, t := range ticks {
		marginLeft = max(marginLeft, textWidth(FormatTick(t)))
	}
	marginLeft += 12

	plot := image.Rect(marginLeft, marginTop, size.Width-marginRight, size.Height-marginBottom)

	for _, t := range ticks {
		y := scale.Y(t, plot.Min.Y, plot.Max.Y)
		hline(img, plot.Min.X, plot.Max.X, y, colGrid)
		label := FormatTick(t)
		drawText(img, label, plot.Min.X-6-textWidth(label), y+4, colText)
	}
	zero := scale.Y(0, plot.Min.Y, plot.Max.Y)
	switch {
	case scale.Min > 0:
		zero = plot.Max.Y
	case scale.Max < 0:
		zero = plot.Min.Y
	}
	vline(img, plot.Min.X, plot.Min.Y, plot.Max.Y, colAxis)
	hline(img, plot.Min.X, plot.Max.X, zero, colAxis)

	groups := len(cfg.Data.Labels)
	groupW := float64(plot.Dx()) / float64(groups)
	barW := groupW * 0.8 / float64(len(cfg.Data.Datasets))

	for i, label := range cfg.Data.Labels {
		gx := float64(plot.Min.X) + float64(i)*groupW
		for j, ds := range cfg.Data.Datasets {
			v := ds.Data[i]
			if math.IsNaN(v) || math.IsInf(v, 0) || v == 0 {
				continue
			}
			x0 := int(math.Round(gx + groupW*0.1 + float64(j)*barW))
			x1 := int(math.Round(gx + groupW*0.1 + float64(j+1)*barW))
			bar := image.Rect(x0, zero, x1, scale.Y(v, plot.Min.Y, plot.Max.Y))
			fillRect(img, bar, toNRGBA(ds.BackgroundColor))
			strokeRect(img, bar, toNRGBA(ds.BorderColor), ds.BorderWidth)
		}
		text := label
		if textWidth(text) > int(groupW)-2 && len(text) > 3 {
			text = text[:3]
		}
		cx := int(gx + groupW/2)
		drawText(img, text, cx-textWidth(text)/2, plot.Max.Y+18, colText)
	}

	if cfg.Options.Plugins.Legend.Display {
		drawLegend(img, cfg.Data.Datasets, size.Width)
	}

	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

func drawLegend(img *image.NRGBA, datasets []Dataset, width int) {
	total := 0
	for i, ds := range datasets {
		if i > 0 {
			total += legendGap
		}
		total += legendBox + 6 + textWidth(ds.Label)
	}
	x := (width - total) / 2
	y := 12
	for _, ds := range datasets {
		box := image.Rect(x, y, x+legendBox, y+legendBox)
		fillRect(img, box, toNRGBA(ds.BackgroundColor))
		strokeRect(img, box, toNRGBA(ds.BorderColor), 1)
		x += legendBox + 6
		drawText(img, ds.Label, x, y+legendBox-1, colText)
		x += textWidth(ds.Label) + legendGap
	}
}

func toNRGBA(c RGBA) color.NRGBA {
	a := math.Max(0, math.Min(1, c.A))
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(math.Round(a * 255))}
}

func fillRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	draw.Draw(img, r.Canon(), image.NewUniform(c), image.Point{}, draw.Over)
}

func strokeRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA, width int) {
	r = r.Canon()
	for i := 0; i < width; i++ {
		hline(img, r.Min.X, r.Max.X-1, r.Min.Y+i, c)
		hline(img, r.Min.X, r.Max.X-1, r.Max.Y-1-i, c)
		vline(img, r.Min.X+i, r.Min.Y, r.Max.Y-1, c)
		vline(img, r.Max.X-1-i, r.Min.Y, r.Max.Y-1, c)
	}
}

func hline(img *image.NRGBA, x0, x1, y int, c color.Color) {
	for x := x0; x <= x1; x++ {
		img.Set(x, y, c)
	}
}

func vline(img *image.NRGBA, x, y0, y1 int, c color.Color) {
	for y := y0; y <= y1; y++ {
		img.Set(x, y, c)
	}
}

func textWidth(s string) int {
	return font.MeasureString(face, s).Ceil()
}

func drawText(img *image.NRGBA, s string, x, baseline int, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, baseline),
	}
	d.DrawString(s)
}
