package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// MappingRecord is one row of the mapping file: which outputs belong to an
// item and which photos they were made from.
type MappingRecord struct {
	ItemIndex   int    `json:"item_index"`
	PhotoRange  string `json:"photo_range"`
	TotalPhotos int    `json:"total_photos"`
	FrontFile   string `json:"front_file"`
	BackFile    string `json:"back_file"`
	FrontSource string `json:"front_source"`
	BackSource  string `json:"back_source"`
}

var mappingHeader = []string{
	"itemIndex", "photoRange", "totalPhotos", "frontFile", "backFile", "frontSource", "backSource",
}

func (m MappingRecord) row() []string {
	return []string{
		strconv.Itoa(m.ItemIndex), m.PhotoRange, strconv.Itoa(m.TotalPhotos),
		m.FrontFile, m.BackFile, m.FrontSource, m.BackSource,
	}
}

// buildMapping derives one record per item. With outcomes, outputs whose
// render failed are left blank; without (dry run) the planned names are used.
func buildMapping(items []Item, outcomes []Outcome) []MappingRecord {
	failed := make(map[string]bool)
	for _, o := range outcomes {
		if o.Status == StatusFailed {
			failed[o.Path] = true
		}
	}
	files := func(out *Output) (string, string) {
		if out == nil || failed[out.Path] {
			return "", ""
		}
		return out.File, out.Source.Name()
	}

	records := make([]MappingRecord, 0, len(items))
	for _, it := range items {
		rec := MappingRecord{
			ItemIndex:   it.Index,
			PhotoRange:  it.Group.Range(),
			TotalPhotos: len(it.Group.Photos),
		}
		rec.FrontFile, rec.FrontSource = files(it.Front)
		rec.BackFile, rec.BackSource = files(it.Back)
		records = append(records, rec)
	}
	return records
}

// WriteMapping writes records as CSV in one atomic step.
func WriteMapping(path string, records []MappingRecord) error {
	err := writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(mappingHeader); err != nil {
			return err
		}
		for _, rec := range records {
			if err := cw.Write(rec.row()); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return fmt.Errorf("write mapping %s: %w", path, err)
	}
	return nil
}

// ReadMapping parses a mapping file written by WriteMapping.
func ReadMapping(path string) ([]MappingRecord, error) {
	f, err := os.Open(path) //nolint:gosec // G304: mapping file inside the output directory
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = len(mappingHeader)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read mapping %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("mapping %s has no header", path)
	}

	records := make([]MappingRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		idx, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, fmt.Errorf("mapping %s line %d: item index: %w", path, i+2, err)
		}
		total, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, fmt.Errorf("mapping %s line %d: total photos: %w", path, i+2, err)
		}
		records = append(records, MappingRecord{
			ItemIndex: idx, PhotoRange: row[1], TotalPhotos: total,
			FrontFile: row[3], BackFile: row[4], FrontSource: row[5], BackSource: row[6],
		})
	}
	return records, nil
}
