package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MeKo-Tech/prodshot/internal/canvas"
	"github.com/MeKo-Tech/prodshot/internal/classify"
	"github.com/MeKo-Tech/prodshot/internal/grouping"
	"github.com/MeKo-Tech/prodshot/internal/photo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputName(t *testing.T) {
	assert.Equal(t, "item-001-front.jpg", OutputName("item", 1, classify.RoleFront, canvas.FormatJPEG))
	assert.Equal(t, "sku-042-back.png", OutputName("sku", 42, classify.RoleBack, canvas.FormatPNG))
	assert.Equal(t, "item-1000-front.jpg", OutputName("item", 1000, classify.RoleFront, canvas.FormatJPEG))
}

func TestSortPhotos(t *testing.T) {
	at := func(s int) time.Time { return time.Date(2024, 5, 1, 10, 0, s, 0, time.UTC) }
	photos := []*photo.Photo{
		{SourcePath: "b.jpg", CapturedAt: at(1)},
		{SourcePath: "IMG_0009.jpg", SequenceNumber: 9, HasSequence: true},
		{SourcePath: "a.jpg", CapturedAt: at(1)},
		{SourcePath: "IMG_0002.jpg", SequenceNumber: 2, HasSequence: true},
		{SourcePath: "c.jpg", CapturedAt: at(0)},
	}
	sortPhotos(photos)

	var names []string
	for _, p := range photos {
		names = append(names, p.SourcePath)
	}
	assert.Equal(t, []string{"IMG_0002.jpg", "IMG_0009.jpg", "c.jpg", "a.jpg", "b.jpg"}, names)
}

func TestDiscoverImages(t *testing.T) {
	dir := t.TempDir()
	touch := func(rel string) {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, nil, 0o600))
	}
	touch("DSC_0002.jpg")
	touch("DSC_0001.JPG")
	touch("notes.txt")
	touch(".hidden.jpg")
	touch("reject_0003.jpg")
	touch("sub/DSC_0004.png")
	touch(".trash/DSC_0005.jpg")

	files, err := discoverImages(dir, false, []string{"reject_*"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "DSC_0001.JPG"),
		filepath.Join(dir, "DSC_0002.jpg"),
	}, files)

	files, err = discoverImages(dir, true, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "DSC_0001.JPG"),
		filepath.Join(dir, "DSC_0002.jpg"),
		filepath.Join(dir, "reject_0003.jpg"),
		filepath.Join(dir, "sub", "DSC_0004.png"),
	}, files)

	_, err = discoverImages(filepath.Join(dir, "missing"), false, nil)
	require.Error(t, err)
}

func planned(t *testing.T) ([]Item, []*photo.Photo) {
	t.Helper()
	p := func(seq int, edge float64) *photo.Photo {
		return &photo.Photo{
			SourcePath: filepath.Join("in", fmt.Sprintf("DSC_%04d.jpg", seq)), SequenceNumber: seq, HasSequence: true,
			EdgeScore: edge, WidthFraction: 0.8, ContentAreaFraction: 0.5,
		}
	}
	photos := []*photo.Photo{p(1, 40), p(2, 10), p(3, 12), p(10, 30)}
	groups := []grouping.Group{
		{Index: 1, Photos: photos[:3]},
		{Index: 2, Photos: photos[3:]},
	}
	assignments := []classify.Assignment{
		classify.Classify(groups[0], classify.DefaultConfig()),
		classify.Classify(groups[1], classify.DefaultConfig()),
	}
	return planItems(groups, assignments, "out", "item", canvas.FormatJPEG), photos
}

func TestPlanItems(t *testing.T) {
	items, photos := planned(t)
	require.Len(t, items, 2)

	first := items[0]
	require.NotNil(t, first.Front)
	assert.Equal(t, photos[0], first.Front.Source)
	assert.Equal(t, filepath.Join("out", "item-001-front.jpg"), first.Front.Path)
	require.NotNil(t, first.Back)
	assert.Len(t, first.Outputs(), 2)
	assert.Equal(t, photos[1], first.Back.Source)
	assert.Equal(t, classify.RoleUnused, first.RoleOf(photos[2]), "a front candidate that was not picked is unused")

	second := items[1]
	assert.Nil(t, second.Back)
	assert.Len(t, second.Outputs(), 1)
}

func TestBuildMapping_BlanksFailedOutputs(t *testing.T) {
	items, _ := planned(t)
	outcomes := []Outcome{
		{Item: 1, Role: classify.RoleFront, Path: items[0].Front.Path, Status: StatusWritten},
		{Item: 1, Role: classify.RoleBack, Path: items[0].Back.Path, Status: StatusFailed},
		{Item: 2, Role: classify.RoleFront, Path: items[1].Front.Path, Status: StatusSkipped},
	}

	recs := buildMapping(items, outcomes)
	require.Len(t, recs, 2)
	assert.Equal(t, MappingRecord{
		ItemIndex: 1, PhotoRange: "1-3", TotalPhotos: 3,
		FrontFile: "item-001-front.jpg", FrontSource: "DSC_0001.jpg",
	}, recs[0])
	assert.Equal(t, "item-002-front.jpg", recs[1].FrontFile)
	assert.Equal(t, "10", recs[1].PhotoRange)
}

func TestMappingRoundTripAndErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mapping.csv")
	recs := []MappingRecord{{ItemIndex: 1, PhotoRange: "1-3", TotalPhotos: 3, FrontFile: "item-001-front.jpg", FrontSource: "a, b.jpg"}}
	require.NoError(t, WriteMapping(path, recs))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "itemIndex,photoRange,totalPhotos,frontFile,backFile,frontSource,backSource\n"+
		"1,1-3,3,item-001-front.jpg,,\"a, b.jpg\",\n", string(data))

	got, err := ReadMapping(path)
	require.NoError(t, err)
	assert.Equal(t, recs, got)

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("h1,h2,h3,h4,h5,h6,h7\nx,1-3,3,,,,\n"), 0o600))
	_, err = ReadMapping(bad)
	require.Error(t, err)

	_, err = ReadMapping(filepath.Join(dir, "missing.csv"))
	require.ErrorIs(t, err, os.ErrNotExist)

	require.Error(t, WriteMapping(filepath.Join(dir, "nope", "mapping.csv"), recs))
}

func TestOverrides(t *testing.T) {
	dir := t.TempDir()
	write := func(body string) string {
		path := filepath.Join(dir, "o.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}

	_, err := LoadOverrides(write("items:\n  - item: 0\n"))
	require.Error(t, err)
	_, err = LoadOverrides(write("items:\n  - item: 1\n  - item: 1\n"))
	require.Error(t, err)
	_, err = LoadOverrides(write("items:\n  - item: 1\n    side: x.jpg\n"))
	require.Error(t, err, "unknown keys are rejected")

	o, err := LoadOverrides(write("items:\n  - item: 1\n    back: DSC_0003.jpg\n  - item: 2\n    front: ghost.jpg\n    back: DSC_0002.jpg\n"))
	require.NoError(t, err)

	items, photos := planned(t)
	warnings := o.Apply(items, photos, "in")

	assert.Equal(t, photos[0], items[0].Front.Source, "omitted keys keep the automatic pick")
	assert.Equal(t, photos[2], items[0].Back.Source)
	assert.True(t, items[0].Overridden)
	assert.Equal(t, classify.RoleUnused, items[0].RoleOf(photos[1]))

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "ghost.jpg")
	assert.Equal(t, photos[1], items[1].Back.Source, "photos from other items may be pinned")
	assert.Equal(t, "item-002-back.jpg", items[1].Back.File)
}
