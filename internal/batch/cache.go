package batch

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/MeKo-Tech/prodshot/internal/classify"
	"github.com/MeKo-Tech/prodshot/internal/photo"
	"github.com/parquet-go/parquet-go"
)

// AnalysisRow is one photo in the analysis file. The file doubles as a
// cache for reruns and as a report that can be loaded into any columnar
// tool.
type AnalysisRow struct {
	Path                string  `parquet:"path"`
	SizeBytes           int64   `parquet:"size_bytes"`
	ModTimeUnixNano     int64   `parquet:"mod_time_unix_nano"`
	SequenceNumber      int64   `parquet:"sequence_number"`
	HasSequence         bool    `parquet:"has_sequence"`
	CapturedAtUnixNano  int64   `parquet:"captured_at_unix_nano"`
	Width               int32   `parquet:"width"`
	Height              int32   `parquet:"height"`
	DominantR           float64 `parquet:"dominant_r"`
	DominantG           float64 `parquet:"dominant_g"`
	DominantB           float64 `parquet:"dominant_b"`
	EdgeScore           float64 `parquet:"edge_score"`
	WidthFraction       float64 `parquet:"width_fraction"`
	ContentAreaFraction float64 `parquet:"content_area_fraction"`
	Item                int32   `parquet:"item"`
	Role                string  `parquet:"role"`
}

func (row AnalysisRow) photo(path string) *photo.Photo {
	p := &photo.Photo{
		SourcePath:          path,
		SequenceNumber:      int(row.SequenceNumber),
		HasSequence:         row.HasSequence,
		Width:               int(row.Width),
		Height:              int(row.Height),
		DominantColor:       photo.RGB{R: row.DominantR, G: row.DominantG, B: row.DominantB},
		EdgeScore:           row.EdgeScore,
		WidthFraction:       row.WidthFraction,
		ContentAreaFraction: row.ContentAreaFraction,
	}
	if row.CapturedAtUnixNano != 0 {
		p.CapturedAt = time.Unix(0, row.CapturedAtUnixNano).UTC()
	}
	return p
}

func (r *runner) analysisPath() string {
	if r.cfg.AnalysisFile == "" || r.cfg.OutputDir == "" {
		return ""
	}
	if filepath.IsAbs(r.cfg.AnalysisFile) {
		return r.cfg.AnalysisFile
	}
	return filepath.Join(r.cfg.OutputDir, r.cfg.AnalysisFile)
}

// loadCache reads the previous analysis file. A missing or unreadable file
// only means every photo is decoded again.
func (r *runner) loadCache() map[string]AnalysisRow {
	path := r.analysisPath()
	if path == "" {
		return nil
	}
	rows, err := ReadAnalysis(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("ignoring analysis cache", "path", path, "error", err)
		}
		return nil
	}
	cache := make(map[string]AnalysisRow, len(rows))
	for _, row := range rows {
		cache[row.Path] = row
	}
	slog.Debug("analysis cache loaded", "path", path, "rows", len(rows))
	return cache
}

// saveCache writes the analysis file for this run. Failures are logged.
func (r *runner) saveCache(photos []*photo.Photo, items []Item) {
	path := r.analysisPath()
	if path == "" {
		return
	}
	item := make(map[string]int32, len(photos))
	role := make(map[string]classify.Role, len(photos))
	for _, it := range items {
		for _, p := range it.Group.Photos {
			item[p.SourcePath] = int32(it.Index)
			role[p.SourcePath] = it.RoleOf(p)
		}
	}

	rows := make([]AnalysisRow, 0, len(photos))
	for _, p := range photos {
		info, err := os.Stat(p.SourcePath)
		if err != nil {
			continue
		}
		row := AnalysisRow{
			Path:                r.cacheKey(p.SourcePath),
			SizeBytes:           info.Size(),
			ModTimeUnixNano:     info.ModTime().UnixNano(),
			SequenceNumber:      int64(p.SequenceNumber),
			HasSequence:         p.HasSequence,
			Width:               int32(p.Width),
			Height:              int32(p.Height),
			DominantR:           p.DominantColor.R,
			DominantG:           p.DominantColor.G,
			DominantB:           p.DominantColor.B,
			EdgeScore:           p.EdgeScore,
			WidthFraction:       p.WidthFraction,
			ContentAreaFraction: p.ContentAreaFraction,
			Item:                item[p.SourcePath],
			Role:                string(role[p.SourcePath]),
		}
		if !p.CapturedAt.IsZero() {
			row.CapturedAtUnixNano = p.CapturedAt.UnixNano()
		}
		rows = append(rows, row)
	}
	if err := writeAnalysis(path, rows); err != nil {
		slog.Warn("analysis cache not written", "path", path, "error", err)
	}
}

// ReadAnalysis loads an analysis file.
func ReadAnalysis(path string) ([]AnalysisRow, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is under the configured output directory
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat analysis file: %w", err)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[AnalysisRow](pf)
	defer func() { _ = reader.Close() }()

	rows := make([]AnalysisRow, 0, pf.NumRows())
	buf := make([]AnalysisRow, 128)
	for {
		n, err := reader.Read(buf)
		rows = append(rows, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
	}
}

func writeAnalysis(path string, rows []AnalysisRow) error {
	return writeAtomic(path, func(w io.Writer) error {
		pw := parquet.NewGenericWriter[AnalysisRow](w)
		if _, err := pw.Write(rows); err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
		return pw.Close()
	})
}

// writeAtomic writes through a temporary file in the target directory and
// renames it into place, so readers never see a partial file.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
