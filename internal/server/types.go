package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/MeKo-Tech/prodshot/internal/batch"
	"github.com/MeKo-Tech/prodshot/internal/segment"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RunFunc executes one batch; batch.Run in production.
type RunFunc func(ctx context.Context, cfg *batch.Config, deps batch.Deps) (*batch.Result, error)

// Server holds the HTTP server state and dependencies.
type Server struct {
	corsOrigin   string
	root         string
	base         batch.Config
	segmenter    segment.Segmenter
	runFn        RunFunc
	progressRate float64
	rateLimiter  *RateLimiter

	runs   *cache.Cache
	slots  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds server configuration.
type Config struct {
	Host       string
	Port       int
	CORSOrigin string
	TimeoutSec int
	// Batch is the template every submitted run starts from.
	Batch *batch.Config
	// Segmenter is shared by all runs; nil always falls back.
	Segmenter segment.Segmenter
	// Root, when set, must contain every input and output directory.
	Root string
	// MaxRuns caps concurrently executing runs; more are queued.
	MaxRuns int
	// RunTTL is how long finished runs remain queryable.
	RunTTL time.Duration
	// ProgressRate is the websocket message budget per second and client.
	ProgressRate float64
	// RequestsPerMinute limits run submissions per client; 0 disables it.
	RequestsPerMinute int
	// RunFunc replaces batch.Run, mainly in tests.
	RunFunc RunFunc
}

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// RunRequest starts a batch over a directory.
type RunRequest struct {
	InputDir      string `json:"input_dir"`
	OutputDir     string `json:"output_dir"`
	DryRun        bool   `json:"dry_run"`
	ForceFallback bool   `json:"force_fallback"`
}

type RunCreatedResponse struct {
	ID     string    `json:"id"`
	Status RunStatus `json:"status"`
	URL    string    `json:"url"`
	Events string    `json:"events"`
}

// NewServer creates a server. Runs started through it live until Close.
func NewServer(config Config) *Server {
	base := batch.DefaultConfig()
	if config.Batch != nil {
		base = config.Batch
	}
	runFn := config.RunFunc
	if runFn == nil {
		runFn = batch.Run
	}
	maxRuns := max(1, config.MaxRuns)
	ttl := config.RunTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	rateLimit := config.ProgressRate
	if rateLimit <= 0 {
		rateLimit = 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		corsOrigin:   config.CORSOrigin,
		root:         config.Root,
		base:         *base,
		segmenter:    config.Segmenter,
		runFn:        runFn,
		progressRate: rateLimit,
		runs:         cache.New(ttl, ttl/2),
		slots:        make(chan struct{}, maxRuns),
		ctx:          ctx,
		cancel:       cancel,
	}
	if config.RequestsPerMinute > 0 {
		s.rateLimiter = NewRateLimiter(config.RequestsPerMinute)
	}
	return s
}

// Close cancels running batches and waits for them to stop.
func (s *Server) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/runs", s.corsMiddleware(s.rateLimitMiddleware(s.createRunHandler)))
	mux.HandleFunc("GET /runs/{id}", s.corsMiddleware(s.getRunHandler))
	mux.HandleFunc("GET /ws/runs/{id}", s.progressWebSocketHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
}
