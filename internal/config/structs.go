//nolint:lll
package config

import (
	"github.com/MeKo-Tech/prodshot/internal/canvas"
	"github.com/MeKo-Tech/prodshot/internal/classify"
	"github.com/MeKo-Tech/prodshot/internal/foreground"
	"github.com/MeKo-Tech/prodshot/internal/grouping"
	"github.com/MeKo-Tech/prodshot/internal/segment"
	"github.com/MeKo-Tech/prodshot/internal/tilt"
)

// Config represents the complete configuration for prodshot.
// It covers every command (process, analyze, straighten, serve) and is
// loaded from configuration files, environment variables and command-line flags.
type Config struct {
	// Global settings
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Input  InputConfig  `mapstructure:"input" yaml:"input" json:"input"`
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Pipeline stages
	Grouping   grouping.Config   `mapstructure:"grouping" yaml:"grouping" json:"grouping"`
	Classify   classify.Config   `mapstructure:"classify" yaml:"classify" json:"classify"`
	Tilt       tilt.Config       `mapstructure:"tilt" yaml:"tilt" json:"tilt"`
	Segment    segment.Config    `mapstructure:"segment" yaml:"segment" json:"segment"`
	Foreground foreground.Config `mapstructure:"foreground" yaml:"foreground" json:"foreground"`
	Canvas     canvas.Config     `mapstructure:"canvas" yaml:"canvas" json:"canvas"`

	// Batch processing configuration
	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// InputConfig selects the source photos.
type InputConfig struct {
	Dir       string   `mapstructure:"dir" yaml:"dir" json:"dir"`
	Recursive bool     `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	Exclude   []string `mapstructure:"exclude" yaml:"exclude" json:"exclude"`
}

// OutputConfig names the output directory and the files written into it.
type OutputConfig struct {
	Dir          string `mapstructure:"dir" yaml:"dir" json:"dir"`
	Prefix       string `mapstructure:"prefix" yaml:"prefix" json:"prefix"`
	MappingFile  string `mapstructure:"mapping_file" yaml:"mapping_file" json:"mapping_file"`
	AnalysisFile string `mapstructure:"analysis_file" yaml:"analysis_file" json:"analysis_file"`
	// OverridesFile is a YAML catalog of manual front/back picks.
	OverridesFile string `mapstructure:"overrides_file" yaml:"overrides_file" json:"overrides_file"`
	ProofFile     string `mapstructure:"proof_file" yaml:"proof_file" json:"proof_file"`
	MetricsFile   string `mapstructure:"metrics_file" yaml:"metrics_file" json:"metrics_file"`
	// Report selects the end-of-run report: text or json.
	Report string `mapstructure:"report" yaml:"report" json:"report"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers  int  `mapstructure:"workers" yaml:"workers" json:"workers"`
	DryRun   bool `mapstructure:"dry_run" yaml:"dry_run" json:"dry_run"`
	Progress bool `mapstructure:"progress" yaml:"progress" json:"progress"`
	Quiet    bool `mapstructure:"quiet" yaml:"quiet" json:"quiet"`
	// ProgressIntervalMS throttles console progress redraws.
	ProgressIntervalMS int `mapstructure:"progress_interval_ms" yaml:"progress_interval_ms" json:"progress_interval_ms"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	// MaxRuns caps concurrently executing runs.
	MaxRuns int `mapstructure:"max_runs" yaml:"max_runs" json:"max_runs"`
	// RunTTLMinutes is how long finished runs stay queryable.
	RunTTLMinutes int `mapstructure:"run_ttl_minutes" yaml:"run_ttl_minutes" json:"run_ttl_minutes"`
	// ProgressRate limits websocket progress messages per second and client.
	ProgressRate float64 `mapstructure:"progress_rate" yaml:"progress_rate" json:"progress_rate"`
	// Root restricts the directories a run may read and write; empty allows any.
	Root string `mapstructure:"root" yaml:"root" json:"root"`
	// RequestsPerMinute limits run submissions per client; 0 disables the limit.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
}
