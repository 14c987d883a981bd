package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/prodshot/internal/testutil"
	"github.com/disintegration/imaging"
)

// manifestItem records what a correct run should produce for one item.
type manifestItem struct {
	Item   int      `json:"item"`
	Photos []string `json:"photos"`
	Front  string   `json:"front"`
	Back   string   `json:"back"`
	// Retakes are second, smaller front shots; they are never picked.
	Retakes []string `json:"retakes,omitempty"`
	Sides   []string `json:"sides,omitempty"`
	Tilt    float64  `json:"tilt_degrees"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		outDir   = flag.String("out", "testdata/session", "Directory to write the session to")
		items    = flag.Int("items", 5, "Number of items")
		sides    = flag.Bool("sides", true, "Add a side shot to every other item")
		maxTilt  = flag.Float64("tilt", 4, "Maximum random tilt in degrees")
		gap      = flag.Int("gap", 15, "Frame-number gap between items")
		seed     = flag.Uint64("seed", 1, "Random seed")
		manifest = flag.Bool("manifest", true, "Write manifest.json with the expected picks")
		help     = flag.Bool("h", false, "Show help")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate a synthetic product photo session for prodshot.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s                          # 5 items in testdata/session\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -items 50 -out /tmp/shoot # a larger shoot\n", os.Args[0])
	}
	flag.Parse()

	if *help {
		flag.Usage()
		return
	}

	if err := os.MkdirAll(*outDir, 0o750); err != nil {
		slog.Error("Failed to create output directory", "error", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)) //nolint:gosec // G404: test data, not security
	written, err := generateSession(*outDir, *items, *sides, *maxTilt, *gap, rng)
	if err != nil {
		slog.Error("Failed to generate session", "error", err)
		os.Exit(1)
	}
	slog.Info("Generated session", "dir", *outDir, "items", *items)

	if *manifest {
		data, err := json.MarshalIndent(written, "", "  ")
		if err != nil {
			slog.Error("Failed to encode manifest", "error", err)
			os.Exit(1)
		}
		path := filepath.Join(*outDir, "manifest.json")
		if err := os.WriteFile(path, data, 0o600); err != nil {
			slog.Error("Failed to write manifest", "error", err)
			os.Exit(1)
		}
		slog.Info("Wrote manifest", "path", path)
	}
}

// generateSession writes front, back, retake and optional side shots per
// item.
// Frames of one item are consecutive; items are separated by gap frames.
func generateSession(dir string, items int, sides bool, maxTilt float64, gap int, rng *rand.Rand) ([]manifestItem, error) {
	var out []manifestItem
	frame := 100
	for i := 1; i <= items; i++ {
		base := color.NRGBA{
			R: uint8(60 + rng.IntN(196)), //nolint:gosec // G115: bounded to 255
			G: uint8(60 + rng.IntN(196)), //nolint:gosec // G115: bounded to 255
			B: uint8(60 + rng.IntN(196)), //nolint:gosec // G115: bounded to 255
			A: 255,
		}
		angle := (rng.Float64()*2 - 1) * maxTilt
		it := manifestItem{Item: i, Tilt: angle}

		shot := func(stripes, width int) (string, error) {
			frame++
			cfg := testutil.DefaultShot()
			cfg.ObjectColor = base
			cfg.Stripes = stripes
			cfg.Angle = angle
			if width > 0 {
				cfg.ObjectWidth = width
			}
			name := fmt.Sprintf("DSC_%04d.jpg", frame)
			if err := imaging.Save(testutil.ProductShot(cfg), filepath.Join(dir, name), imaging.JPEGQuality(92)); err != nil {
				return "", err
			}
			it.Photos = append(it.Photos, name)
			return name, nil
		}

		var err error
		if it.Front, err = shot(3, 0); err != nil {
			return nil, err
		}
		if sides && i%2 == 0 {
			side, err := shot(0, 40)
			if err != nil {
				return nil, err
			}
			it.Sides = append(it.Sides, side)
		}
		if it.Back, err = shot(0, 0); err != nil {
			return nil, err
		}
		// A narrower second front keeps the back below the split score.
		retake, err := shot(3, 170)
		if err != nil {
			return nil, err
		}
		it.Retakes = append(it.Retakes, retake)

		out = append(out, it)
		frame += gap
	}
	return out, nil
}
