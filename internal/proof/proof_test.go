package proof

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/prodshot/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	a := testutil.SaveImage(t, dir, "item-001-front.jpg", testutil.Solid(60, 60, color.White))
	b := testutil.SaveImage(t, dir, "item-001-back.jpg", testutil.Solid(60, 60, color.Black))
	out := filepath.Join(dir, "proof.pdf")

	n, err := Write(out, []string{a, filepath.Join(dir, "missing.jpg"), b})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pages, err := PageCount(out)
	require.NoError(t, err)
	assert.Equal(t, 2, pages)

	// Rewriting replaces rather than appends.
	_, err = Write(out, []string{a})
	require.NoError(t, err)
	pages, err = PageCount(out)
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
}

func TestWrite_NoImages(t *testing.T) {
	_, err := Write(filepath.Join(t.TempDir(), "proof.pdf"), []string{"/nope.jpg"})
	require.ErrorIs(t, err, ErrNoImages)
}
