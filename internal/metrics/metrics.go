// Package metrics holds the Prometheus collectors shared by batch runs and
// the HTTP server.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	photosTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prodshot_photos_total",
			Help: "Source photos seen by the analysis stage",
		},
		[]string{"status"}, // analyzed, cached, failed
	)

	outputsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prodshot_outputs_total",
			Help: "Output images handled by the render stage",
		},
		[]string{"role", "status"}, // status: written, skipped, failed
	)

	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prodshot_foreground_fallbacks_total",
			Help: "Renders that fell back to the unsegmented original",
		},
		[]string{"reason"},
	)

	tiltCorrection = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prodshot_tilt_correction_degrees",
			Help:    "Absolute tilt correction applied per render",
			Buckets: []float64{0, 0.3, 0.5, 1, 2, 4, 8, 12, 18},
		},
		[]string{"strategy", "confidence"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prodshot_stage_duration_seconds",
			Help:    "Duration of batch stages",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"stage"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prodshot_runs_total",
			Help: "Batch runs by outcome",
		},
		[]string{"status"}, // completed, failed, cancelled, dry_run
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prodshot_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prodshot_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	activeRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "prodshot_active_runs",
		Help: "Runs currently executing in the server",
	})

	websocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "prodshot_websocket_clients",
		Help: "Connected progress websocket clients",
	})
)

// RecordPhoto counts one analyzed, cached or failed source photo.
func RecordPhoto(status string) { photosTotal.WithLabelValues(status).Inc() }

// RecordOutput counts one render outcome.
func RecordOutput(role, status string) { outputsTotal.WithLabelValues(role, status).Inc() }

// RecordFallback counts a foreground fallback.
func RecordFallback(reason string) { fallbacksTotal.WithLabelValues(reason).Inc() }

// RecordTilt observes the magnitude of an applied correction.
func RecordTilt(strategy, confidence string, angle float64) {
	if angle < 0 {
		angle = -angle
	}
	tiltCorrection.WithLabelValues(strategy, confidence).Observe(angle)
}

// RecordStage observes a stage duration.
func RecordStage(stage string, d time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordRun counts a finished run.
func RecordRun(status string) { runsTotal.WithLabelValues(status).Inc() }

// RecordHTTPRequest records method, endpoint, status and latency.
func RecordHTTPRequest(method, endpoint string, status int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, fmt.Sprint(status)).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

// RunStarted and RunFinished track the active-run gauge.
func RunStarted()  { activeRuns.Inc() }
func RunFinished() { activeRuns.Dec() }

// WebsocketConnected and WebsocketDisconnected track connected clients.
func WebsocketConnected()    { websocketClients.Inc() }
func WebsocketDisconnected() { websocketClients.Dec() }

// WriteTextfile dumps the default registry in the node_exporter textfile
// format, for batch runs started from cron.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
