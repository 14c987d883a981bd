package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/prodshot/internal/config"
	"github.com/MeKo-Tech/prodshot/internal/models"
	"github.com/MeKo-Tech/prodshot/internal/segment"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app is the state shared by the commands of one root.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
}

// NewRootCmd builds the command tree. Each call gets its own viper
// instance, so tests can execute commands side by side.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "prodshot",
		Short: "Turn raw product photo sessions into catalog images",
		Long: `prodshot normalizes product photography for catalogs.

It walks a directory of session photos, groups them into items, picks the
front and back shot of every item, straightens them, cuts the item out and
places it centered on a white square canvas. A mapping.csv ties every
output back to its source photos.

Examples:
  prodshot process ./session ./catalog
  prodshot process ./session ./catalog --dry-run
  prodshot analyze ./session
  prodshot straighten photo.jpg photo-straight.jpg --strategy lines
  prodshot bench ./session
  prodshot serve --port 8080`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			if err := a.loadConfig(); err != nil {
				return err
			}
			setupLogging(cmd.ErrOrStderr(), a.cfg)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is search in ., $HOME, $HOME/.config/prodshot, /etc/prodshot)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")

	defaultModelsDir := models.DefaultModelsDir
	if envDir := os.Getenv(models.EnvModelsDir); envDir != "" {
		defaultModelsDir = envDir
	}
	pf.String("models-dir", defaultModelsDir,
		"directory containing ONNX models (can also be set via "+models.EnvModelsDir+")")

	_ = a.v.BindPFlag("verbose", pf.Lookup("verbose"))
	_ = a.v.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = a.v.BindPFlag("models_dir", pf.Lookup("models-dir"))

	root.AddCommand(
		newProcessCmd(a),
		newAnalyzeCmd(a),
		newStraightenCmd(a),
		newBenchCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the config file, environment and bound flags.
func (a *app) loadConfig() error {
	cfg, err := config.NewLoaderWithViper(a.v).LoadWithFile(a.cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	a.cfg = cfg
	return nil
}

// setupLogging installs the JSON slog handler at the configured level.
func setupLogging(w io.Writer, cfg *config.Config) {
	var level slog.Level
	if cfg.Verbose {
		level = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

// newSegmenter builds the configured backend. A missing ONNX model is not
// fatal: the keyer takes over.
func newSegmenter(cfg *config.Config) (segment.Segmenter, error) {
	segCfg := cfg.ToSegmentConfig()
	seg, err := segment.New(segCfg)
	if errors.Is(err, segment.ErrModelUnavailable) {
		slog.Warn("segmentation model unavailable, using the background keyer", "error", err)
		segCfg.Backend = segment.BackendKeyer
		return segment.New(segCfg)
	}
	return seg, err
}

func closeSegmenter(seg segment.Segmenter) {
	if seg == nil {
		return
	}
	if err := seg.Close(); err != nil {
		slog.Warn("closing segmenter", "error", err)
	}
}
