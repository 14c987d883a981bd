// Package proof assembles the rendered catalog images into a PDF proof
// sheet, one image per page, for a quick visual review of a run.
package proof

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

// ErrNoImages is returned when there is nothing to put on the sheet.
var ErrNoImages = errors.New("proof: no images")

// Write creates the PDF at path from images, in the given order. Missing
// files are skipped. An existing file at path is replaced.
func Write(path string, images []string) (int, error) {
	files := make([]string, 0, len(images))
	for _, img := range images {
		if _, err := os.Stat(img); err == nil {
			files = append(files, img)
		}
	}
	if len(files) == 0 {
		return 0, ErrNoImages
	}

	// ImportImagesFile appends to an existing PDF, so start from scratch.
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove old proof sheet: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return 0, fmt.Errorf("create proof directory: %w", err)
	}

	imp := pdfcpu.DefaultImportConfig()
	if err := api.ImportImagesFile(files, path, imp, nil); err != nil {
		return 0, fmt.Errorf("build proof sheet: %w", err)
	}
	return len(files), nil
}

// PageCount reports the number of pages of a PDF.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("count pages of %s: %w", path, err)
	}
	return n, nil
}
