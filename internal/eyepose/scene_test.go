package eyepose

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func calibrationTargets() []GazeTarget {
	return []GazeTarget{
		{0, 0}, {10, 0}, {-10, 0}, {0, 8}, {0, -8},
	}
}

// synthConfig builds an estimator config whose scenes were rendered from
// the config's own biometry at the given camera depth, so the truth vector
// is exactly recoverable.
func synthConfig(t *testing.T, depth Real) (*EstimatorConfig, ParamVector) {
	t.Helper()
	bio := DefaultBiometry()
	eye, err := NewEyeModel(bio)
	require.NoError(t, err)
	sg := &SceneGeometry{
		Camera: DefaultCamera(1400, 1400, 320, 240, depth),
		Eye:    eye,
	}
	sc := SynthesizeScene("synthetic", calibrationTargets(), 2, sg, ProjectOptions{PerimeterPoints: 8})

	cfg := &EstimatorConfig{
		Intrinsics:      Intrinsics{Fx: 1400, Fy: 1400, Cx: 320, Cy: 240},
		Biometry:        bio,
		Scenes:          []Scene{sc},
		PerimeterPoints: 8,
	}
	return cfg, cfg.InitialVector(depth)
}

func TestSynthesizeScene(t *testing.T) {
	cfg, _ := synthConfig(t, 30)
	sc := cfg.Scenes[0]
	require.Len(t, sc.Frames, len(calibrationTargets()))
	for i, f := range sc.Frames {
		assert.GreaterOrEqual(t, len(f.Observed), MinPerimeterPoints, "frame %d", i)
		assert.Equal(t, calibrationTargets()[i], f.Target, "frame %d", i)
	}
}

func TestEvaluateScenesAtTruth(t *testing.T) {
	cfg, truth := synthConfig(t, 30)
	e := cfg.EvaluateScenes(truth)
	require.True(t, isFinite(e))
	assert.Less(t, e, 0.05, "residual at the generating geometry")
}

func TestEvaluateScenesNoRefraction(t *testing.T) {
	bio := DefaultBiometry()
	eye, err := NewEyeModel(bio)
	require.NoError(t, err)
	sg := &SceneGeometry{Camera: DefaultCamera(1400, 1400, 320, 240, 30), Eye: eye}
	sc := SynthesizeScene("plain", calibrationTargets(), 2, sg,
		ProjectOptions{PerimeterPoints: 8, NoRefraction: true})

	cfg := &EstimatorConfig{
		Intrinsics:      Intrinsics{Fx: 1400, Fy: 1400, Cx: 320, Cy: 240},
		Biometry:        bio,
		Scenes:          []Scene{sc},
		PerimeterPoints: 8,
		NoRefraction:    true,
	}
	e := cfg.EvaluateScenes(cfg.InitialVector(30))
	require.True(t, isFinite(e))
	assert.Less(t, e, 0.05, "unrefracted synthesis under the unrefracted objective")
}

func TestEvaluateScenesPenalizesWrongDepth(t *testing.T) {
	cfg, truth := synthConfig(t, 30)
	atTruth := cfg.EvaluateScenes(truth)

	off := truth.Clone()
	off.Eye()[idxEyeDepth] += 4
	atOff := cfg.EvaluateScenes(off)
	require.True(t, isFinite(atOff))
	assert.Greater(t, atOff, atTruth*2, "4mm depth error must cost clearly more")
}

func TestEvaluateScenesMeridianOrder(t *testing.T) {
	cfg, truth := synthConfig(t, 30)
	bad := truth.Clone()
	bad.Eye()[idxEyeK1] = 46
	bad.Eye()[idxEyeK2] = 43
	assert.True(t, math.IsInf(cfg.EvaluateScenes(bad), 1),
		"steep meridian flatter than the flat one must be infeasible")
}

func TestEvaluateScenesRegularization(t *testing.T) {
	cfg, truth := synthConfig(t, 30)
	base := cfg.EvaluateScenes(truth)

	cfg.DepthPriorMm = 25
	cfg.DepthWeight = 1
	withPrior := cfg.EvaluateScenes(truth)
	assert.InDelta(t, base+25, withPrior, 1e-6, "depth prior term is (30-25)^2")
}

func TestPatternSearchRecoversDepth(t *testing.T) {
	if testing.Short() {
		t.Skip("nested-search objective is slow")
	}
	cfg, truth := synthConfig(t, 30)

	x0 := truth.Clone()
	x0.Eye()[idxEyeDepth] = 33
	depthIdx := headParamCount + idxEyeDepth

	best, _ := PatternSearch(cfg.EvaluateScenes, x0, PatternSearchOptions{
		Active:      []int{depthIdx},
		Bounds:      DefaultSearchBounds(1),
		InitialStep: 2,
		MinStep:     0.05,
		MaxEvals:    200,
	})
	assert.InDelta(t, 30, best.Eye()[idxEyeDepth], 0.5, "camera depth")
}

func TestGeometryCfgAtBuildable(t *testing.T) {
	cfg, truth := synthConfig(t, 30)
	gc := cfg.GeometryCfgAt(truth, 0)
	assert.InDelta(t, 30, gc.Camera.DepthMm, 1e-12)
	assert.InDelta(t, cfg.Biometry.K1, gc.Biometry.K1, 1e-12)

	sg, err := gc.Build()
	require.NoError(t, err)
	n := sg.Camera.NodalPoint()
	assert.InDelta(t, -30, n.Z, 1e-9)
}

func TestPredictedPose(t *testing.T) {
	sg := &SceneGeometry{PrimaryAzimuthDeg: 2, PrimaryElevationDeg: -1}
	head := []Real{1, 0.5, 3}
	p := predictedPose(GazeTarget{AzimuthDeg: 10, ElevationDeg: -5}, sg, head)
	assert.InDelta(t, 11, p.AzimuthDeg, 1e-12)
	assert.InDelta(t, -6.5, p.ElevationDeg, 1e-12)
	assert.InDelta(t, -3, p.TorsionDeg, 1e-12)
}
