package batch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/MeKo-Tech/prodshot/internal/segment"
	"github.com/MeKo-Tech/prodshot/internal/testutil"
	"github.com/MeKo-Tech/prodshot/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeShoot(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteSession(t, dir)
	return dir
}

func testConfig(in, out string) *Config {
	cfg := DefaultConfig()
	cfg.InputDir = in
	cfg.OutputDir = out
	cfg.Workers = 2
	cfg.ShowProgress = false
	cfg.Canvas.Size = 128
	return cfg
}

// countingLoad wraps the default decoder and counts calls.
func countingLoad(n *atomic.Int32) func(string) (image.Image, error) {
	return func(path string) (image.Image, error) {
		n.Add(1)
		img, _, err := utils.LoadImage(path)
		return img, err
	}
}

func TestRun_ProducesOutputsAndMapping(t *testing.T) {
	in, out := writeShoot(t), filepath.Join(t.TempDir(), "out")
	cfg := testConfig(in, out)

	res, err := Run(context.Background(), cfg, Deps{Segmenter: segment.NewKeyer(segment.DefaultConfig())})
	require.NoError(t, err)

	require.Len(t, res.Items, 2)
	assert.Equal(t, []MappingRecord{
		{ItemIndex: 1, PhotoRange: "101-103", TotalPhotos: 3,
			FrontFile: "item-001-front.jpg", BackFile: "item-001-back.jpg",
			FrontSource: "DSC_0101.png", BackSource: "DSC_0102.png"},
		{ItemIndex: 2, PhotoRange: "120-122", TotalPhotos: 3,
			FrontFile: "item-002-front.jpg", BackFile: "item-002-back.jpg",
			FrontSource: "DSC_0120.png", BackSource: "DSC_0121.png"},
	}, res.Mapping)

	for _, rec := range res.Mapping {
		for _, f := range []string{rec.FrontFile, rec.BackFile} {
			img, _, err := utils.LoadImage(filepath.Join(out, f))
			require.NoError(t, err, f)
			assert.Equal(t, image.Rect(0, 0, 128, 128), img.Bounds())
		}
	}

	onDisk, err := ReadMapping(filepath.Join(out, DefaultMappingFile))
	require.NoError(t, err)
	assert.Equal(t, res.Mapping, onDisk)

	s := res.Summary
	assert.Equal(t, 6, s.Photos)
	assert.Equal(t, 6, s.Analyzed)
	assert.Equal(t, 4, s.Written)
	assert.Zero(t, s.Skipped)
	assert.Zero(t, s.Fallbacks)
	assert.Equal(t, int64(10), s.Decodes, "6 analysis decodes plus 4 render decodes")
	assert.Equal(t, int64(4), s.Encodes)
	assert.Empty(t, res.Failures)
	assert.FileExists(t, filepath.Join(out, DefaultAnalysisFile))

	require.NotNil(t, res.Render)
	assert.Equal(t, 4, res.Render.Total)
	assert.Equal(t, 4, res.Render.Succeeded)
	assert.Equal(t, 2, res.Render.Workers)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, res))
	assert.Contains(t, buf.String(), "outputs/s on 2 workers")
}

func TestRun_RenderFailureIsRecorded(t *testing.T) {
	in, out := writeShoot(t), filepath.Join(t.TempDir(), "out")
	cfg := testConfig(in, out)
	cfg.Tilt.Strategy = "none"

	_, err := Run(context.Background(), cfg, Deps{})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(out, "item-002-back.jpg")))

	// Analysis comes from the cache, so only the render stage decodes.
	broken := func(string) (image.Image, error) { return nil, errors.New("disk gone") }
	res, err := Run(context.Background(), cfg, Deps{Load: broken})
	require.NoError(t, err)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, stageRender, res.Failures[0].Stage)
	assert.Contains(t, res.Failures[0].Path, "DSC_0121.png")
	require.NotNil(t, res.Render)
	assert.Equal(t, 1, res.Render.Failed)
	assert.Equal(t, 3, res.Render.Succeeded)
	assert.Equal(t, 1, res.Summary.Failed)
	assert.Empty(t, res.Mapping[1].BackFile)
}

func TestRun_ResumeSkipsFinishedWork(t *testing.T) {
	in, out := writeShoot(t), filepath.Join(t.TempDir(), "out")
	cfg := testConfig(in, out)
	cfg.Tilt.Strategy = "none"

	first, err := Run(context.Background(), cfg, Deps{})
	require.NoError(t, err)
	require.Equal(t, 4, first.Summary.Written)

	front := filepath.Join(out, "item-001-front.jpg")
	before := testutil.ModTime(t, front)

	var loads atomic.Int32
	second, err := Run(context.Background(), cfg, Deps{Load: countingLoad(&loads)})
	require.NoError(t, err)

	assert.Zero(t, loads.Load(), "a finished run must not decode anything")
	assert.Zero(t, second.Summary.Decodes)
	assert.Zero(t, second.Summary.Encodes)
	assert.Equal(t, 4, second.Summary.Skipped)
	assert.Equal(t, 6, second.Summary.Cached)
	assert.Equal(t, before, testutil.ModTime(t, front))
	assert.Equal(t, first.Mapping, second.Mapping)

	onDisk, err := ReadMapping(second.MappingPath)
	require.NoError(t, err)
	assert.Len(t, onDisk, 2)
}

func TestRun_ResumeWithoutCacheOnlyDecodesForAnalysis(t *testing.T) {
	in, out := writeShoot(t), filepath.Join(t.TempDir(), "out")
	cfg := testConfig(in, out)
	cfg.Tilt.Strategy = "none"
	cfg.AnalysisFile = ""

	_, err := Run(context.Background(), cfg, Deps{})
	require.NoError(t, err)

	// A missing output is rendered again, the rest is skipped.
	require.NoError(t, os.Remove(filepath.Join(out, "item-002-back.jpg")))

	res, err := Run(context.Background(), cfg, Deps{})
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Summary.Decodes)
	assert.Equal(t, int64(1), res.Summary.Encodes)
	assert.Equal(t, 3, res.Summary.Skipped)
	assert.Equal(t, 1, res.Summary.Written)
	assert.NoFileExists(t, filepath.Join(out, DefaultAnalysisFile))
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	in, out := writeShoot(t), filepath.Join(t.TempDir(), "out")
	cfg := testConfig(in, out)
	cfg.DryRun = true

	res, err := Run(context.Background(), cfg, Deps{})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Len(t, res.Mapping, 2)
	assert.Equal(t, "item-001-front.jpg", res.Mapping[0].FrontFile)
	assert.Empty(t, res.Outcomes)
	assert.Empty(t, res.MappingPath)
	assert.NoDirExists(t, out)

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, res))
	assert.Contains(t, buf.String(), "Item 001  photos 101-103 (3)")
	assert.Contains(t, buf.String(), "Front  DSC_0101.png -> item-001-front.jpg")
	assert.Contains(t, buf.String(), "Back   DSC_0121.png -> item-002-back.jpg")

	buf.Reset()
	require.NoError(t, WriteSummary(&buf, res))
	assert.Contains(t, buf.String(), "Dry run")
	assert.NotContains(t, buf.String(), "Mapping:")
	assert.Nil(t, res.Render)
	assert.NotContains(t, buf.String(), "Render:")
}

func TestRun_ForceFallback(t *testing.T) {
	in, out := writeShoot(t), filepath.Join(t.TempDir(), "out")
	cfg := testConfig(in, out)
	cfg.Tilt.Strategy = "none"
	cfg.Foreground.ForceFallback = true

	res, err := Run(context.Background(), cfg, Deps{Segmenter: segment.NewKeyer(segment.DefaultConfig())})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Summary.Fallbacks)
	for _, o := range res.Outcomes {
		assert.Equal(t, "forced", o.FallbackReason)
	}
}

func TestRun_DecodeFailureIsRecorded(t *testing.T) {
	in, out := writeShoot(t), filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(filepath.Join(in, "DSC_0104.jpg"), []byte("not a jpeg"), 0o600))
	cfg := testConfig(in, out)
	cfg.Tilt.Strategy = "none"

	res, err := Run(context.Background(), cfg, Deps{})
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, stageAnalyze, res.Failures[0].Stage)
	assert.Equal(t, 1, res.Summary.FailedPhotos)
	assert.Len(t, res.Photos, 6)
	assert.Len(t, res.Mapping, 2)
}

func TestRun_FatalErrorsBeforeProcessing(t *testing.T) {
	in := writeShoot(t)

	_, err := Run(context.Background(), testConfig(filepath.Join(in, "missing"), t.TempDir()), Deps{})
	require.ErrorIs(t, err, ErrInputMissing)

	notDir := filepath.Join(in, "DSC_0101.png")
	_, err = Run(context.Background(), testConfig(notDir, t.TempDir()), Deps{})
	require.ErrorIs(t, err, ErrInputMissing)

	var loads atomic.Int32
	_, err = Run(context.Background(), testConfig(in, filepath.Join(notDir, "out")), Deps{Load: countingLoad(&loads)})
	require.ErrorIs(t, err, ErrOutputUnwritable)
	assert.Zero(t, loads.Load())

	out := t.TempDir()
	_, err = Run(context.Background(), testConfig(t.TempDir(), out), Deps{})
	require.ErrorIs(t, err, ErrNoImages)
	assert.NoFileExists(t, filepath.Join(out, DefaultMappingFile))

	cfg := testConfig(in, out)
	cfg.OverridesFile = filepath.Join(in, "missing.yaml")
	_, err = Run(context.Background(), cfg, Deps{Load: countingLoad(&loads)})
	require.Error(t, err)
	assert.Zero(t, loads.Load())
}

func TestRun_CancelledWritesNoMapping(t *testing.T) {
	in, out := writeShoot(t), filepath.Join(t.TempDir(), "out")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, testConfig(in, out), Deps{})
	require.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, filepath.Join(out, DefaultMappingFile))
}

func TestRun_Overrides(t *testing.T) {
	in, out := writeShoot(t), filepath.Join(t.TempDir(), "out")
	overrides := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(overrides, []byte(`items:
  - item: 1
    front: DSC_0102.png
    back: DSC_0101.png
  - item: 2
    back: none
  - item: 9
    front: DSC_0120.png
`), 0o600))

	cfg := testConfig(in, out)
	cfg.DryRun = true
	cfg.OverridesFile = overrides

	res, err := Run(context.Background(), cfg, Deps{})
	require.NoError(t, err)
	assert.Equal(t, "DSC_0102.png", res.Mapping[0].FrontSource)
	assert.Equal(t, "DSC_0101.png", res.Mapping[0].BackSource)
	assert.Equal(t, "item-001-front.jpg", res.Mapping[0].FrontFile)
	assert.Empty(t, res.Mapping[1].BackFile)
	assert.True(t, res.Items[0].Overridden)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "item 9")
}

func TestRun_ProofSheet(t *testing.T) {
	in, out := writeShoot(t), filepath.Join(t.TempDir(), "out")
	cfg := testConfig(in, out)
	cfg.Tilt.Strategy = "none"
	cfg.ProofFile = filepath.Join(out, "proof.pdf")
	cfg.MetricsFile = filepath.Join(out, "prodshot.prom")

	res, err := Run(context.Background(), cfg, Deps{})
	require.NoError(t, err)
	assert.Equal(t, cfg.ProofFile, res.ProofPath)
	assert.FileExists(t, cfg.ProofFile)
	assert.FileExists(t, cfg.MetricsFile)
	assert.Empty(t, res.Warnings)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Validate(), "input is required")

	cfg.InputDir = "in"
	require.Error(t, cfg.Validate(), "output is required unless dry run")
	cfg.DryRun = true
	require.NoError(t, cfg.Validate())

	cfg.Canvas.Quality = 0
	require.Error(t, cfg.Validate())
}

func TestAnalysisFile(t *testing.T) {
	in, out := writeShoot(t), filepath.Join(t.TempDir(), "out")
	cfg := testConfig(in, out)
	cfg.Tilt.Strategy = "none"

	_, err := Run(context.Background(), cfg, Deps{})
	require.NoError(t, err)

	rows, err := ReadAnalysis(filepath.Join(out, DefaultAnalysisFile))
	require.NoError(t, err)
	require.Len(t, rows, 6)

	byPath := make(map[string]AnalysisRow)
	for _, row := range rows {
		byPath[row.Path] = row
	}
	front := byPath["DSC_0101.png"]
	assert.Equal(t, int64(101), front.SequenceNumber)
	assert.Equal(t, int32(1), front.Item)
	assert.Equal(t, "front", front.Role)
	assert.Equal(t, "back", byPath["DSC_0121.png"].Role)
	assert.Equal(t, int32(2), byPath["DSC_0121.png"].Item)
	assert.Greater(t, front.EdgeScore, byPath["DSC_0102.png"].EdgeScore)
	assert.Equal(t, "unused", byPath["DSC_0103.png"].Role, "second front candidate")
	assert.Greater(t, front.ContentAreaFraction, byPath["DSC_0103.png"].ContentAreaFraction)
}
