package eyepose

import (
	"math"

	"gonum.org/v1/gonum/optimize"
)

// PoseBounds constrains the pose search. Torsion is not searched: with a
// single camera the pupil ellipse carries essentially no torsion signal, so
// the fitter holds it at FixedTorsionDeg.
type PoseBounds struct {
	AzimuthDeg   [2]Real
	ElevationDeg [2]Real
	PupilRadius  [2]Real

	FixedTorsionDeg Real
}

// DefaultPoseBounds covers the oculomotor range reachable in practice.
func DefaultPoseBounds() PoseBounds {
	return PoseBounds{
		AzimuthDeg:   [2]Real{-35, 35},
		ElevationDeg: [2]Real{-25, 25},
		PupilRadius:  [2]Real{0.5, 4},
	}
}

// FitOptions tunes a single-frame pose fit.
type FitOptions struct {
	Bounds PoseBounds

	// Initial guess [azimuthDeg, elevationDeg, pupilRadiusMm]. The zero
	// value falls back to straight-ahead gaze with a 2mm pupil.
	X0 [3]Real

	// PerimeterPoints and Refraction are forwarded to the projector.
	PerimeterPoints int
	NoRefraction    bool
}

// objectiveScale converts a pose candidate that projects to nothing (NaN
// ellipse) into a large finite penalty, so the simplex can back out of a
// degenerate region instead of collapsing on NaN.
const objectiveScale = 1e6

// FitPose recovers the eye pose whose forward projection best matches the
// observed pupil perimeter, by Nelder-Mead over [azimuth, elevation,
// radius]. The returned RMSE is the root mean square signed distance (px)
// of the observed points from the fitted candidate's ellipse; NaN when the
// search never found a projectable pose.
//
// observed must hold at least MinPerimeterPoints image points.
func FitPose(observed [][2]Real, sg *SceneGeometry, opt FitOptions) (EyePose, Real, error) {
	if len(observed) < MinPerimeterPoints {
		return EyePose{}, math.NaN(), ErrDegenerateEllipseFit
	}
	b := opt.Bounds
	if b.AzimuthDeg == ([2]Real{}) {
		b = DefaultPoseBounds()
	}
	x0 := opt.X0
	if x0 == ([3]Real{}) {
		x0 = [3]Real{0, 0, 2}
	}

	pr := ProjectOptions{PerimeterPoints: opt.PerimeterPoints, NoRefraction: opt.NoRefraction}
	cost := func(x []float64) float64 {
		pose, penalty := clampPose(x, b)
		proj := Project(pose, sg, pr)
		if proj.Ellipse.IsUndefined() {
			return objectiveScale + penalty
		}
		return rmseToEllipse(observed, proj.Ellipse) + penalty
	}

	problem := optimize.Problem{Func: cost}
	result, err := optimize.Minimize(problem, []float64{x0[0], x0[1], x0[2]}, &optimize.Settings{
		Converger: &optimize.FunctionConverge{Absolute: 1e-10, Iterations: 50},
	}, &optimize.NelderMead{})
	if err != nil {
		return EyePose{}, math.NaN(), err
	}

	pose, _ := clampPose(result.X, b)
	rmse := result.F
	if rmse >= objectiveScale {
		rmse = math.NaN()
	}
	return pose, rmse, nil
}

// clampPose maps an unconstrained simplex point into bounds and returns a
// quadratic penalty proportional to how far outside it was. Clamping keeps
// the projector in a sane regime; the penalty keeps the simplex informed
// about the direction back in.
func clampPose(x []float64, b PoseBounds) (EyePose, Real) {
	var penalty Real
	cl := func(v Real, lim [2]Real) Real {
		if v < lim[0] {
			penalty += (lim[0] - v) * (lim[0] - v)
			return lim[0]
		}
		if v > lim[1] {
			penalty += (v - lim[1]) * (v - lim[1])
			return lim[1]
		}
		return v
	}
	return EyePose{
		AzimuthDeg:   cl(x[0], b.AzimuthDeg),
		ElevationDeg: cl(x[1], b.ElevationDeg),
		TorsionDeg:   b.FixedTorsionDeg,
		PupilRadius:  cl(x[2], b.PupilRadius),
	}, penalty
}

// rmseToEllipse scores how well an ellipse explains a set of image points.
func rmseToEllipse(pts [][2]Real, e TransparentEllipse) Real {
	var sum Real
	for _, p := range pts {
		d := e.SignedDistance(p[0], p[1])
		sum += d * d
	}
	return math.Sqrt(sum / Real(len(pts)))
}
