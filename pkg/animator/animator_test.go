package animator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desi-focalplane/fpanticoll/pkg/geometry"
)

func tri(x float64) []geometry.Point {
	return []geometry.Point{{X: x, Y: 0}, {X: x + 1, Y: 0}, {X: x, Y: 1}}
}

func TestAnimator_DisabledDropsSnapshots(t *testing.T) {
	a := New(zerolog.Nop(), Options{})
	a.Add("M00001.arm", 0, tri(0), "arm")
	assert.Empty(t, a.Frames())
}

func TestAnimator_FramesGroupByTime(t *testing.T) {
	a := New(zerolog.Nop(), Options{FrameStep: 0.5})
	a.Enable()
	a.Add("M00002.arm", 0.1, tri(1), "arm")
	a.Add("M00001.body", 0.2, tri(0), "body")
	a.Add("M00001.body", 0.7, tri(2), "body")

	frames := a.Frames()
	require.Len(t, frames, 2)
	require.Len(t, frames[0].Snapshots, 2)
	assert.Equal(t, "M00001.body", frames[0].Snapshots[0].ItemKey)
	assert.Equal(t, "M00002.arm", frames[0].Snapshots[1].ItemKey)
	assert.InDelta(t, 0.5, frames[1].Time, 1e-12)
}

func TestAnimator_WriteFrameSequence(t *testing.T) {
	a := New(zerolog.Nop(), Options{Label: "petal 3"})
	a.Enable()
	a.Add("M00001.body", 0.0, tri(0), "body")
	a.Add("M00001.body", 1.0, tri(3), "body")

	dir := t.TempDir()
	require.NoError(t, a.WriteFrameSequence(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	raw, err := os.ReadFile(filepath.Join(dir, "frame-000000.svg"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "<polygon")
	assert.Contains(t, string(raw), "petal 3")
}
