package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/MeKo-Tech/prodshot/internal/canvas"
	"github.com/MeKo-Tech/prodshot/internal/tilt"
	"github.com/MeKo-Tech/prodshot/internal/utils"
	"github.com/spf13/cobra"
)

func newStraightenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "straighten <input> [output]",
		Short: "Estimate and correct the tilt of a single photo",
		Long: `Estimate the camera tilt of one photo and write the straightened image.
Without an output path only the estimate is printed.

Strategies: combined, lines, contour, bbox, alignment, none

Examples:
  prodshot straighten DSC_0101.jpg
  prodshot straighten DSC_0101.jpg straight.png --strategy lines`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Tilt
			if cmd.Flags().Changed("strategy") {
				cfg.Strategy, _ = cmd.Flags().GetString("strategy")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			est, err := tilt.New(cfg)
			if err != nil {
				return err
			}

			img, _, err := utils.LoadImage(args[0])
			if err != nil {
				return err
			}
			e, err := est.Estimate(cmd.Context(), img)
			if err != nil {
				return fmt.Errorf("estimating tilt: %w", err)
			}
			applied := cfg.Applies(e)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s", filepath.Base(args[0]), e)
			if !applied {
				fmt.Fprint(out, " (not applied)")
			}
			fmt.Fprintln(out)

			if len(args) < 2 {
				return nil
			}
			f, err := canvas.ParseFormat(filepath.Ext(args[1]))
			if err != nil {
				return err
			}
			quality, _ := cmd.Flags().GetInt("quality")
			if !cmd.Flags().Changed("quality") {
				quality = a.cfg.Canvas.Quality
			}
			return canvas.Save(args[1], tilt.Straighten(img, e, cfg), f, quality)
		},
	}

	cmd.Flags().String("strategy", "", "tilt strategy (default from config)")
	cmd.Flags().Int("quality", 0, "JPEG quality (1-100)")
	return cmd
}
