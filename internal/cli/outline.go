package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ironsheep/coloring-care/internal/imaging"
)

type outlineFlags struct {
	maxDimension int
	low          float64
	high         float64
}

func newOutlineCmd(a *app) *cobra.Command {
	var f outlineFlags
	cmd := &cobra.Command{
		Use:   "outline <input> <output.png>",
		Short: "Turn a photo into a coloring template",
		Long: `Turn a PNG or JPEG photo into a black-on-white line drawing.

The input is a local file or an http(s) URL. Unset flags take their
values from the outline section of the config.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runOutline(cmd, f, args[0], args[1])
		},
	}
	cmd.Flags().IntVar(&f.maxDimension, "max-dimension", 0, "longest side of the output in pixels")
	cmd.Flags().Float64Var(&f.low, "low", -1, "Canny low threshold")
	cmd.Flags().Float64Var(&f.high, "high", -1, "Canny high threshold")
	return cmd
}

func (a *app) runOutline(cmd *cobra.Command, f outlineFlags, input, output string) error {
	opts := imaging.OutlineOptions{
		MaxDimension:  a.cfg.Outline.MaxDimension,
		LowThreshold:  a.cfg.Outline.LowThreshold,
		HighThreshold: a.cfg.Outline.HighThreshold,
	}
	if f.maxDimension > 0 {
		opts.MaxDimension = f.maxDimension
	}
	if f.low >= 0 {
		opts.LowThreshold = f.low
	}
	if f.high >= 0 {
		opts.HighThreshold = f.high
	}

	data, err := a.readInput(cmd.Context(), input)
	if err != nil {
		return err
	}

	res, err := imaging.ExtractOutline(data, opts)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, res.PNG, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	a.log.Info("Outline written",
		zap.String("input", input),
		zap.String("output", output),
		zap.Int("width", res.Width),
		zap.Int("height", res.Height),
	)
	cmd.Printf("Wrote %s (%dx%d", output, res.Width, res.Height)
	if res.Scaled {
		cmd.Printf(", scaled from %dx%d", res.SourceWidth, res.SourceHeight)
	}
	cmd.Println(")")
	return nil
}

func (a *app) readInput(ctx context.Context, input string) ([]byte, error) {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		ctx, cancel := context.WithTimeout(ctx, a.cfg.Outline.FetchTimeout)
		defer cancel()
		return imaging.Fetch(ctx, nil, input, a.cfg.Outline.MaxFetchBytes)
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return data, nil
}
