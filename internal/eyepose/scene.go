package eyepose

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// GazeTarget is the direction a subject was instructed to fixate during a
// calibration frame, in degrees of visual angle.
type GazeTarget struct {
	AzimuthDeg   Real `json:"azimuthDeg"`
	ElevationDeg Real `json:"elevationDeg"`
}

// Frame pairs one video frame's observed pupil perimeter points (px) with
// the gaze target shown at that moment.
type Frame struct {
	Target   GazeTarget `json:"target"`
	Observed [][2]Real  `json:"observed"`
}

// Scene is one recording session: a camera placement that stays fixed
// across its frames. Camera placements differ between scenes; the eye and
// head parameters do not.
type Scene struct {
	Name   string  `json:"name,omitempty"`
	Frames []Frame `json:"frames"`
}

// EstimatorConfig holds the fixed inputs of the scene-geometry search.
type EstimatorConfig struct {
	Intrinsics Intrinsics
	Distortion Distortion
	Biometry   Biometry
	Scenes     []Scene

	// Regularization pulls camera depth and torsion toward their priors.
	// Weight zero disables a term.
	DepthPriorMm    Real
	DepthWeight     Real
	TorsionPriorDeg Real
	TorsionWeight   Real

	// UseL2 switches the cross-scene aggregate from the default mean
	// absolute error to root mean square. L1 is the default because a
	// single badly segmented scene should not dominate the fit.
	UseL2 bool

	// PerimeterPoints and NoRefraction forwarded to the projector
	// (0 = default perimeter density).
	PerimeterPoints int
	NoRefraction    bool
}

// radiusSearchIter bounds the per-frame pupil radius refinement. The
// objective in radius is smooth and unimodal, so few iterations suffice.
const radiusSearchIter = 24

// DefaultEstimatorPriors fills the regularization fields commonly wanted:
// a weak pull of camera depth toward the schematic 30mm and torsion toward
// level.
func (c *EstimatorConfig) DefaultEstimatorPriors() {
	c.DepthPriorMm = 30
	c.DepthWeight = 1e-3
	c.TorsionWeight = 1e-3
}

// sceneGeometryAt materializes the candidate geometry of scene i from the
// parameter vector: biometry overridden by the eye block, camera rotated
// by the scene block's angles at the shared depth.
func (c *EstimatorConfig) sceneGeometryAt(v ParamVector, i int) (*SceneGeometry, error) {
	return c.GeometryCfgAt(v, i).Build()
}

// GeometryCfgAt exports scene i's estimated geometry in the on-disk config
// form, so a calibration result can be saved and later rebuilt with
// SceneGeometryCfg.Build.
func (c *EstimatorConfig) GeometryCfgAt(v ParamVector, i int) SceneGeometryCfg {
	eye := v.Eye()
	sc := v.Scene(i)

	bio := c.Biometry
	bio.K1 = eye[idxEyeK1]
	bio.K2 = eye[idxEyeK2]
	bio.RotationScaleAzi = eye[idxEyeScaleAzi]
	bio.RotationScaleEle = eye[idxEyeScaleEle]

	return SceneGeometryCfg{
		Camera: CameraCfg{
			Fx: c.Intrinsics.Fx, Fy: c.Intrinsics.Fy,
			Cx: c.Intrinsics.Cx, Cy: c.Intrinsics.Cy,
			K1: c.Distortion.K1, K2: c.Distortion.K2,
			DepthMm:       eye[idxEyeDepth],
			HorizontalDeg: sc[idxSceneCamHorizontalDeg],
			VerticalDeg:   sc[idxSceneCamVerticalDeg],
			TorsionDeg:    sc[idxSceneCamTorsionDeg],
		},
		Biometry:            bio,
		PrimaryAzimuthDeg:   sc[idxScenePrimaryAzimuthDeg],
		PrimaryElevationDeg: sc[idxScenePrimaryElevationDeg],
	}
}

// predictedPose maps a gaze target through the candidate's primary
// position and head orientation to the eye-in-head pose the projector
// needs. Pupil radius is left for the per-frame refinement.
func predictedPose(t GazeTarget, sg *SceneGeometry, head []Real) EyePose {
	return EyePose{
		AzimuthDeg:   t.AzimuthDeg + sg.PrimaryAzimuthDeg - head[idxHeadAzimuthDeg],
		ElevationDeg: t.ElevationDeg + sg.PrimaryElevationDeg - head[idxHeadElevationDeg],
		TorsionDeg:   -head[idxHeadTorsionDeg],
	}
}

// frameError scores one frame under a candidate geometry: the pose angles
// are pinned by the gaze target, only the pupil radius is free, so a 1D
// search recovers it and the residual RMSE is the frame's error. NaN when
// no radius makes the frame projectable.
func frameError(f Frame, sg *SceneGeometry, head []Real, opt ProjectOptions) Real {
	if len(f.Observed) < MinPerimeterPoints {
		return math.NaN()
	}
	pose := predictedPose(f.Target, sg, head)

	score := func(r Real) Real {
		pose.PupilRadius = r
		proj := Project(pose, sg, opt)
		if proj.Ellipse.IsUndefined() {
			return math.Inf(1)
		}
		return rmseToEllipse(f.Observed, proj.Ellipse)
	}
	r := minimize1D(score, 0.5, 4, radiusSearchIter)
	rmse := score(r)
	if math.IsInf(rmse, 1) {
		return math.NaN()
	}
	return rmse
}

// EvaluateScenes is the scene estimator's objective: for each scene,
// the mean frame RMSE under the candidate geometry; across scenes, the
// configured aggregate; plus regularization. It is a pure function of
// (config, vector) so search strategies can probe it from any number of
// goroutines.
//
// Infeasible candidates return +Inf: an eye geometry that fails to build,
// a steep meridian flatter than the flat one (K2 < K1), or a scene where
// every frame is unprojectable.
func (c *EstimatorConfig) EvaluateScenes(v ParamVector) Real {
	eye := v.Eye()
	if eye[idxEyeK2] < eye[idxEyeK1] {
		return math.Inf(1)
	}

	opt := ProjectOptions{PerimeterPoints: c.PerimeterPoints, NoRefraction: c.NoRefraction}
	head := v.Head()
	sceneErrs := make([]Real, 0, len(c.Scenes))
	for i, sc := range c.Scenes {
		sg, err := c.sceneGeometryAt(v, i)
		if err != nil {
			return math.Inf(1)
		}
		var sum Real
		var cnt int
		for _, f := range sc.Frames {
			e := frameError(f, sg, head, opt)
			if !isFinite(e) {
				continue
			}
			sum += e
			cnt++
		}
		if cnt == 0 {
			return math.Inf(1)
		}
		sceneErrs = append(sceneErrs, sum/Real(cnt))
	}

	var total Real
	if c.UseL2 {
		total = floats.Norm(sceneErrs, 2) / math.Sqrt(Real(len(sceneErrs)))
	} else {
		total = stat.Mean(sceneErrs, nil)
	}

	if c.DepthWeight > 0 {
		d := eye[idxEyeDepth] - c.DepthPriorMm
		total += c.DepthWeight * d * d
	}
	if c.TorsionWeight > 0 {
		for i := range c.Scenes {
			t := v.Scene(i)[idxSceneCamTorsionDeg] - c.TorsionPriorDeg
			total += c.TorsionWeight * t * t
		}
	}
	return total
}

// InitialVector seeds the search at the config's biometry and nominal
// camera placement.
func (c *EstimatorConfig) InitialVector(depthMm Real) ParamVector {
	bio := c.Biometry.withDefaults()
	v := NewParamVector(len(c.Scenes))
	eye := v.Eye()
	eye[idxEyeK1] = bio.K1
	eye[idxEyeK2] = bio.K2
	eye[idxEyeScaleAzi] = bio.RotationScaleAzi
	eye[idxEyeScaleEle] = bio.RotationScaleEle
	eye[idxEyeDepth] = depthMm
	return v
}

// SynthesizeScene renders a scene from known geometry: one frame per gaze
// target, its observed points taken from the forward projection. Used by
// tests and by offline validation of a finished calibration.
func SynthesizeScene(name string, targets []GazeTarget, pupilRadius Real, sg *SceneGeometry, opt ProjectOptions) Scene {
	sc := Scene{Name: name, Frames: make([]Frame, 0, len(targets))}
	for _, t := range targets {
		pose := EyePose{
			AzimuthDeg:   t.AzimuthDeg + sg.PrimaryAzimuthDeg,
			ElevationDeg: t.ElevationDeg + sg.PrimaryElevationDeg,
			PupilRadius:  pupilRadius,
		}
		proj := Project(pose, sg, opt)
		f := Frame{Target: t}
		for i, lbl := range proj.Labels {
			p := proj.ImagePoints[i]
			if lbl == LabelPupilPerimeter && isFinite(p[0]) && isFinite(p[1]) {
				f.Observed = append(f.Observed, p)
			}
		}
		sc.Frames = append(sc.Frames, f)
	}
	return sc
}
