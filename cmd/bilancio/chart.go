package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"bilancio/internal/budget"
	"bilancio/internal/chart"
	"bilancio/internal/log"
)

type chartOptions struct {
	input  string
	output string
	width  int
	height int
}

func newChartCmd() *cobra.Command {
	var opts chartOptions
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Render a budget file as a PNG bar chart",
		Long: `Render the income and expense figures of a YAML budget file as a PNG bar chart.

The file maps month keys (jan..dec) to amounts:

  income:
    jan: 1200
  expense:
    jan: 800

Use "-" as input to read standard input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("width") {
				opts.width = cfg.ChartWidth
			}
			if !cmd.Flags().Changed("height") {
				opts.height = cfg.ChartHeight
			}
			return runChart(cmd.InOrStdin(), opts, newLogger(log.ComponentChart))
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "budget YAML file (\"-\" for stdin)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", chart.DownloadName, "PNG file to write")
	cmd.Flags().IntVar(&opts.width, "width", chart.DefaultSize.Width, "image width in pixels")
	cmd.Flags().IntVar(&opts.height, "height", chart.DefaultSize.Height, "image height in pixels")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func init() {
	rootCmd.AddCommand(newChartCmd())
}

func runChart(stdin io.Reader, opts chartOptions, logger *log.Logger) error {
	size := chart.Size{Width: opts.width, Height: opts.height}
	if err := size.Validate(); err != nil {
		return err
	}

	in := stdin
	if opts.input != "-" {
		f, err := os.Open(opts.input)
		if err != nil {
			return fmt.Errorf("open budget: %w", err)
		}
		defer f.Close()
		in = f
	}
	b, err := budget.Load(in)
	if err != nil {
		return fmt.Errorf("load budget %s: %w", opts.input, err)
	}

	var buf bytes.Buffer
	if err := chart.Render(&buf, chart.Build(b), size); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	if err := os.WriteFile(opts.output, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}

	logger.Info("Chart written",
		log.FieldOperation, log.OpRender,
		"output", opts.output,
		log.FieldBytes, buf.Len(),
		log.FieldNet, b.Net())
	return nil
}
