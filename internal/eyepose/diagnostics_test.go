package eyepose

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlotFit(t *testing.T) {
	e := FromExplicit(320, 240, 40, 25, 0.4)
	path := filepath.Join(t.TempDir(), "fit.png")
	require.NoError(t, PlotFit(path, e.Boundary(9), e))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestPlotFitUndefinedEllipse(t *testing.T) {
	// Observed points without a usable fit still plot (scatter only).
	path := filepath.Join(t.TempDir(), "nofit.png")
	pts := [][2]Real{{1, 1}, {2, 2}, {3, 1}}
	require.NoError(t, PlotFit(path, pts, NaNEllipse()))
}
