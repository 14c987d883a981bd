package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/prodshot/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server for submitting and watching runs",
		Long: `Start an HTTP server that runs batches on directories of the host.

Endpoints:
  POST /runs           start a run ({"input_dir": ..., "output_dir": ...})
  GET  /runs/{id}      run status and result
  GET  /ws/runs/{id}   live progress over WebSocket
  GET  /health         health check
  GET  /metrics        Prometheus metrics

Examples:
  prodshot serve
  prodshot serve --host 0.0.0.0 --port 9000 --root /srv/photos`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Server
			f := cmd.Flags()
			if f.Changed("host") {
				cfg.Host, _ = f.GetString("host")
			}
			if f.Changed("port") {
				cfg.Port, _ = f.GetInt("port")
			}
			if f.Changed("cors-origin") {
				cfg.CORSOrigin, _ = f.GetString("cors-origin")
			}
			if f.Changed("timeout") {
				cfg.TimeoutSec, _ = f.GetInt("timeout")
			}
			if f.Changed("shutdown-timeout") {
				cfg.ShutdownTimeout, _ = f.GetInt("shutdown-timeout")
			}
			if f.Changed("max-runs") {
				cfg.MaxRuns, _ = f.GetInt("max-runs")
			}
			if f.Changed("root") {
				cfg.Root, _ = f.GetString("root")
			}
			if f.Changed("requests-per-minute") {
				cfg.RequestsPerMinute, _ = f.GetInt("requests-per-minute")
			}

			seg, err := newSegmenter(a.cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize segmenter: %w", err)
			}
			defer closeSegmenter(seg)

			srv := server.NewServer(server.Config{
				Host:              cfg.Host,
				Port:              cfg.Port,
				CORSOrigin:        cfg.CORSOrigin,
				TimeoutSec:        cfg.TimeoutSec,
				Batch:             a.cfg.ToBatchConfig(),
				Segmenter:         seg,
				Root:              cfg.Root,
				MaxRuns:           cfg.MaxRuns,
				RunTTL:            time.Duration(cfg.RunTTLMinutes) * time.Minute,
				ProgressRate:      cfg.ProgressRate,
				RequestsPerMinute: cfg.RequestsPerMinute,
			})

			mux := http.NewServeMux()
			srv.SetupRoutes(mux)

			httpServer := &http.Server{
				Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       time.Duration(cfg.TimeoutSec) * time.Second,
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			serveErr := make(chan error, 1)
			go func() {
				slog.Info("Starting prodshot server", "host", cfg.Host, "port", cfg.Port, "root", cfg.Root)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
					cancel()
				}
			}()

			<-ctx.Done()
			slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", cfg.ShutdownTimeout))

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
			defer shutdownCancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("HTTP server shutdown error", "error", err)
			}
			// Running batches are cancelled; their mapping files are not written.
			if err := srv.Close(); err != nil {
				slog.Error("Server cleanup error", "error", err)
			}
			slog.Info("Graceful shutdown completed")

			select {
			case err := <-serveErr:
				return fmt.Errorf("server error: %w", err)
			default:
				return nil
			}
		},
	}

	f := cmd.Flags()
	f.StringP("host", "H", "localhost", "server host")
	f.IntP("port", "p", 8080, "server port")
	f.String("cors-origin", "*", "CORS allowed origins")
	f.Int("timeout", 30, "request read timeout in seconds")
	f.Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	f.Int("max-runs", 2, "runs executing at the same time")
	f.String("root", "", "directory that must contain every input and output directory")
	f.Int("requests-per-minute", 30, "run submissions per minute and client (0 disables)")
	return cmd
}
