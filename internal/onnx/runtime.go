// Package onnx locates the ONNX Runtime shared library and applies the
// optional CUDA execution provider to session options.
package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	onnxrt "github.com/yalue/onnxruntime_go"
)

// GPUConfig holds configuration for GPU acceleration using CUDA.
type GPUConfig struct {
	UseGPU   bool `mapstructure:"use_gpu" yaml:"use_gpu" json:"use_gpu"`
	DeviceID int  `mapstructure:"device_id" yaml:"device_id" json:"device_id"`
	// MemLimit caps the CUDA arena in bytes; 0 is unlimited.
	MemLimit uint64 `mapstructure:"mem_limit" yaml:"mem_limit" json:"mem_limit"`
	// ArenaExtendStrategy is "kNextPowerOfTwo" or "kSameAsRequested".
	ArenaExtendStrategy string `mapstructure:"arena_extend_strategy" yaml:"arena_extend_strategy" json:"arena_extend_strategy"`
	// ConvAlgoSearch is "EXHAUSTIVE", "HEURISTIC" or "DEFAULT".
	ConvAlgoSearch string `mapstructure:"conv_algo_search" yaml:"conv_algo_search" json:"conv_algo_search"`
}

// DefaultGPUConfig returns a CPU-only configuration with CUDA defaults
// filled in for when UseGPU is switched on.
func DefaultGPUConfig() GPUConfig {
	return GPUConfig{
		ArenaExtendStrategy: "kNextPowerOfTwo",
		ConvAlgoSearch:      "DEFAULT",
	}
}

// Validate checks the CUDA settings. CPU-only configs are always valid.
func (c GPUConfig) Validate() error {
	if !c.UseGPU {
		return nil
	}
	if c.DeviceID < 0 {
		return fmt.Errorf("device ID must be non-negative, got %d", c.DeviceID)
	}
	switch c.ArenaExtendStrategy {
	case "", "kNextPowerOfTwo", "kSameAsRequested":
	default:
		return fmt.Errorf("invalid arena extend strategy: %s (must be 'kNextPowerOfTwo' or 'kSameAsRequested')",
			c.ArenaExtendStrategy)
	}
	switch c.ConvAlgoSearch {
	case "", "EXHAUSTIVE", "HEURISTIC", "DEFAULT":
	default:
		return fmt.Errorf("invalid CUDNN conv algo search: %s (must be 'EXHAUSTIVE', 'HEURISTIC', or 'DEFAULT')",
			c.ConvAlgoSearch)
	}
	return nil
}

// cudaSettings renders c as CUDA provider options.
func (c GPUConfig) cudaSettings() map[string]string {
	s := map[string]string{
		"device_id":                 strconv.Itoa(c.DeviceID),
		"do_copy_in_default_stream": "1",
	}
	if c.MemLimit > 0 {
		s["gpu_mem_limit"] = strconv.FormatUint(c.MemLimit, 10)
	}
	if c.ArenaExtendStrategy != "" {
		s["arena_extend_strategy"] = c.ArenaExtendStrategy
	}
	if c.ConvAlgoSearch != "" {
		s["cudnn_conv_algo_search"] = c.ConvAlgoSearch
	}
	return s
}

// ConfigureSessionForGPU appends the CUDA execution provider to opts when
// c.UseGPU is set. On error the options are left CPU-only.
func ConfigureSessionForGPU(opts *onnxrt.SessionOptions, c GPUConfig) error {
	if !c.UseGPU {
		return nil
	}
	cudaOpts, err := onnxrt.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("failed to create CUDA provider options (GPU may not be available): %w", err)
	}
	defer func() {
		if err := cudaOpts.Destroy(); err != nil {
			slog.Warn("failed to destroy CUDA provider options", "error", err)
		}
	}()

	if err := cudaOpts.Update(c.cudaSettings()); err != nil {
		return fmt.Errorf("failed to update CUDA provider options: %w", err)
	}
	if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
		return fmt.Errorf("failed to append CUDA execution provider: %w", err)
	}
	return nil
}

// LibraryName returns the runtime library file name for goos.
func LibraryName(goos string) (string, error) {
	switch goos {
	case "linux":
		return "libonnxruntime.so", nil
	case "darwin":
		return "libonnxruntime.dylib", nil
	case "windows":
		return "onnxruntime.dll", nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", goos)
	}
}

// systemLibraryPaths lists system-wide install locations, GPU builds first
// when useGPU is set.
func systemLibraryPaths(useGPU bool) []string {
	paths := []string{
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/libonnxruntime.so",
		"/opt/onnxruntime/cpu/lib/libonnxruntime.so",
	}
	if useGPU {
		paths = append([]string{"/opt/onnxruntime/gpu/lib/libonnxruntime.so"}, paths...)
	}
	return paths
}

// projectLibraryPaths walks up from dir and lists onnxruntime/lib (and
// onnxruntime/gpu/lib when useGPU) of every ancestor.
func projectLibraryPaths(dir, lib string, useGPU bool) []string {
	var paths []string
	for {
		if useGPU {
			paths = append(paths, filepath.Join(dir, "onnxruntime", "gpu", "lib", lib))
		}
		paths = append(paths, filepath.Join(dir, "onnxruntime", "lib", lib))
		parent := filepath.Dir(dir)
		if parent == dir {
			return paths
		}
		dir = parent
	}
}

// FindLibrary returns the first existing runtime library. ONNXRUNTIME_LIB
// overrides the search.
func FindLibrary(useGPU bool) (string, error) {
	if p := os.Getenv("ONNXRUNTIME_LIB"); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("ONNXRUNTIME_LIB: %w", err)
		}
		return p, nil
	}

	candidates := systemLibraryPaths(useGPU)
	lib, err := LibraryName(runtime.GOOS)
	if err != nil {
		return "", err
	}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, projectLibraryPaths(cwd, lib, useGPU)...)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.New("ONNX Runtime library " + lib + " not found")
}

// Initialize points onnxruntime_go at the library and creates the shared
// environment once per process.
func Initialize(useGPU bool) error {
	if onnxrt.IsInitialized() {
		return nil
	}
	path, err := FindLibrary(useGPU)
	if err != nil {
		return err
	}
	onnxrt.SetSharedLibraryPath(path)
	if err := onnxrt.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx runtime %s: %w", path, err)
	}
	slog.Debug("ONNX Runtime initialized", "library", path, "gpu", useGPU)
	return nil
}
