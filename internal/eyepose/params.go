package eyepose

// The scene estimator searches one flat parameter vector laid out as
// [head | eye | scene_1 | scene_2 | ...]. The offsets are fixed integers
// so a staged search can name the index ranges it is allowed to move
// without any per-run bookkeeping.

const (
	headParamCount     = 3
	eyeParamCount      = 5
	perSceneParamCount = 5
)

// Head block.
const (
	idxHeadAzimuthDeg = iota
	idxHeadElevationDeg
	idxHeadTorsionDeg
)

// Eye block (offsets relative to headParamCount).
const (
	idxEyeK1 = iota
	idxEyeK2
	idxEyeScaleAzi
	idxEyeScaleEle
	idxEyeDepth
)

// Per-scene block (offsets relative to the scene's base).
const (
	idxSceneCamHorizontalDeg = iota
	idxSceneCamVerticalDeg
	idxSceneCamTorsionDeg
	idxScenePrimaryAzimuthDeg
	idxScenePrimaryElevationDeg
)

// ParamVector is the scene estimator's search space: one head block, one
// eye block, and one block per recording scene. All methods operate on
// views into the same backing slice.
type ParamVector []Real

// NewParamVector allocates a vector for nScenes scenes.
func NewParamVector(nScenes int) ParamVector {
	return make(ParamVector, headParamCount+eyeParamCount+nScenes*perSceneParamCount)
}

// NumScenes derives the scene count from the vector length.
func (v ParamVector) NumScenes() int {
	return (len(v) - headParamCount - eyeParamCount) / perSceneParamCount
}

// Head returns the head-orientation block [azimuth, elevation, torsion]
// in degrees.
func (v ParamVector) Head() []Real { return v[:headParamCount] }

// Eye returns the eye block [K1, K2, scaleAzi, scaleEle, cameraDepthMm].
// Camera depth is shared by all scenes: the eye does not move relative to
// a head-mounted camera between recordings.
func (v ParamVector) Eye() []Real {
	return v[headParamCount : headParamCount+eyeParamCount]
}

// Scene returns the i-th scene block [camHorizontalDeg, camVerticalDeg,
// camTorsionDeg, primaryAzimuthDeg, primaryElevationDeg].
func (v ParamVector) Scene(i int) []Real {
	base := headParamCount + eyeParamCount + i*perSceneParamCount
	return v[base : base+perSceneParamCount]
}

// Clone copies the vector. The staged search mutates candidates in place
// and must not alias the incumbent.
func (v ParamVector) Clone() ParamVector {
	out := make(ParamVector, len(v))
	copy(out, v)
	return out
}

// paramRange is a half-open index interval [Lo, Hi) of the flat vector.
type paramRange struct{ Lo, Hi int }

// eyeRange spans the eye block.
func (v ParamVector) eyeRange() paramRange {
	return paramRange{headParamCount, headParamCount + eyeParamCount}
}

// headRange spans the head block.
func (v ParamVector) headRange() paramRange {
	return paramRange{0, headParamCount}
}

// sceneRange spans the i-th scene block.
func (v ParamVector) sceneRange(i int) paramRange {
	base := headParamCount + eyeParamCount + i*perSceneParamCount
	return paramRange{base, base + perSceneParamCount}
}

// activeIndices expands ranges into the sorted flat index list a staged
// search moves. Ranges may not overlap.
func activeIndices(ranges ...paramRange) []int {
	var idx []int
	for _, r := range ranges {
		for i := r.Lo; i < r.Hi; i++ {
			idx = append(idx, i)
		}
	}
	return idx
}
