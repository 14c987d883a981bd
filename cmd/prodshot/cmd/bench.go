package cmd

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/prodshot/internal/benchmark"
	"github.com/MeKo-Tech/prodshot/internal/utils"
	"github.com/spf13/cobra"
)

func newBenchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench <input-dir>",
		Short: "Time tilt strategies, segmentation and canvas composition on real photos",
		Long: `Load the first photos of a session and time every per-photo stage on
them: each tilt strategy, the configured segmentation backend and the
canvas composition. Useful for choosing a strategy and a worker count
before processing a large shoot.

Examples:
  prodshot bench ./session
  prodshot bench ./session --limit 10 --iterations 5 --segmenter onnx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			iterations, _ := cmd.Flags().GetInt("iterations")
			if iterations < 1 {
				return fmt.Errorf("iterations must be positive, got %d", iterations)
			}

			imgs, err := loadSample(args[0], limit)
			if err != nil {
				return err
			}

			cfg := *a.cfg
			if cmd.Flags().Changed("segmenter") {
				cfg.Segment.Backend, _ = cmd.Flags().GetString("segmenter")
			}
			seg, err := newSegmenter(&cfg)
			if err != nil {
				return fmt.Errorf("segmenter: %w", err)
			}
			defer closeSegmenter(seg)

			suite, err := benchmark.StageSuite(imgs, cfg.Tilt, seg, cfg.Canvas.Size)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Timing %d photo(s), %d iteration(s) per stage...\n", len(imgs), iterations)
			results := suite.RunAll(cmd.Context(), iterations)
			if err := cmd.Context().Err(); err != nil {
				return err
			}
			return benchmark.WriteResults(cmd.OutOrStdout(), results)
		},
	}

	cmd.Flags().Int("limit", 5, "number of photos to load")
	cmd.Flags().IntP("iterations", "n", 3, "passes over the photos per stage")
	cmd.Flags().String("segmenter", "", "segmentation backend: keyer, onnx, none")
	return cmd
}

// loadSample decodes up to limit supported images of dir in name order.
func loadSample(dir string, limit int) ([]image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var imgs []image.Image
	for _, e := range entries {
		if len(imgs) >= limit {
			break
		}
		if e.IsDir() || !utils.IsSupportedImage(e.Name()) {
			continue
		}
		img, _, err := utils.LoadImage(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		imgs = append(imgs, img)
	}
	if len(imgs) == 0 {
		return nil, fmt.Errorf("no supported images in %s", dir)
	}
	return imgs, nil
}
