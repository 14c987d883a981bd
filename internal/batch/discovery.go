package batch

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MeKo-Tech/prodshot/internal/photo"
	"github.com/MeKo-Tech/prodshot/internal/utils"
)

// discoverImages lists the supported images below dir. Hidden files and
// anything matching an exclude pattern (matched against the base name) are
// skipped; sub-directories are only entered when recursive is set.
func discoverImages(dir string, recursive bool, exclude []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && (!recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !utils.IsSupportedImage(path) {
			return nil
		}
		if matchesAnyPattern(path, exclude) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	slices.Sort(files)
	return files, nil
}

// matchesAnyPattern reports whether the base name matches one of patterns.
func matchesAnyPattern(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}

// sortPhotos orders photos by acquisition: frame number first, then EXIF
// capture time, then file name. Photos without a frame number go last.
func sortPhotos(photos []*photo.Photo) {
	slices.SortStableFunc(photos, func(a, b *photo.Photo) int {
		if a.HasSequence != b.HasSequence {
			if a.HasSequence {
				return -1
			}
			return 1
		}
		if a.HasSequence && a.SequenceNumber != b.SequenceNumber {
			return a.SequenceNumber - b.SequenceNumber
		}
		if c := a.CapturedAt.Compare(b.CapturedAt); c != 0 {
			return c
		}
		return strings.Compare(a.SourcePath, b.SourcePath)
	})
}
