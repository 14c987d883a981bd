// Package models resolves the on-disk location of the segmentation models.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Segmentation model files.
const (
	U2Net      = "u2net.onnx"
	U2NetP     = "u2netp.onnx"
	ISNetGen   = "isnet-general-use.onnx"
	DefaultSeg = U2Net
)

// TypeSegmentation is the sub-directory holding segmentation models.
const TypeSegmentation = "segmentation"

// DefaultModelsDir is used when neither a flag nor the environment names one.
const DefaultModelsDir = "models"

// EnvModelsDir overrides the models directory.
const EnvModelsDir = "PRODSHOT_MODELS_DIR"

// ModelInfo describes a known model.
type ModelInfo struct {
	Name        string
	Filename    string
	InputSize   int
	Description string
}

// Known lists the segmentation models the ONNX backend can run.
func Known() []ModelInfo {
	return []ModelInfo{
		{Name: "u2net", Filename: U2Net, InputSize: 320, Description: "U2-Net salient object segmentation"},
		{Name: "u2netp", Filename: U2NetP, InputSize: 320, Description: "U2-Net portable, faster and smaller"},
		{Name: "isnet", Filename: ISNetGen, InputSize: 1024, Description: "IS-Net general use dichotomous segmentation"},
	}
}

// Lookup returns the model info for a name or file name.
func Lookup(name string) (ModelInfo, bool) {
	for _, m := range Known() {
		if m.Name == name || m.Filename == name {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// GetModelsDir returns the models directory.
// Priority: explicit argument, environment variable, project root, relative default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}
	if root, err := findProjectRoot(); err == nil {
		return filepath.Join(root, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// SegmentationModelPath resolves filename under modelsDir, preferring the
// segmentation/ sub-directory and falling back to a flat layout.
func SegmentationModelPath(modelsDir, filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	base := GetModelsDir(modelsDir)
	organized := filepath.Join(base, TypeSegmentation, filename)
	if _, err := os.Stat(organized); err == nil {
		return organized
	}
	return filepath.Join(base, filename)
}

// ValidateModelExists checks that a model file exists.
func ValidateModelExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("model file not found: %s", path)
	}
	return nil
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("could not find project root (go.mod not found)")
		}
		dir = parent
	}
}
