package main

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSession(t *testing.T) {
	dir := t.TempDir()
	items, err := generateSession(dir, 3, true, 3, 15, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, []string{"DSC_0101.jpg", "DSC_0102.jpg", "DSC_0103.jpg"}, items[0].Photos)
	assert.Equal(t, "DSC_0101.jpg", items[0].Front)
	assert.Equal(t, "DSC_0102.jpg", items[0].Back)
	assert.Equal(t, []string{"DSC_0103.jpg"}, items[0].Retakes)
	assert.Empty(t, items[0].Sides)

	// The second item has a side shot between front and back.
	assert.Equal(t, []string{"DSC_0119.jpg", "DSC_0120.jpg", "DSC_0121.jpg", "DSC_0122.jpg"}, items[1].Photos)
	assert.Equal(t, []string{"DSC_0120.jpg"}, items[1].Sides)

	for _, it := range items {
		assert.LessOrEqual(t, it.Tilt, 3.0)
		assert.GreaterOrEqual(t, it.Tilt, -3.0)
		for _, name := range it.Photos {
			_, err := os.Stat(filepath.Join(dir, name))
			assert.NoError(t, err, name)
		}
	}
}
