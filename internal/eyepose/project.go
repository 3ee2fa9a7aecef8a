package eyepose

import (
	"math"

	"github.com/golang/geo/r3"
)

// EyePose is the pose searched per video frame: rotation angles in degrees
// and the physical pupil radius in mm. A pose is ephemeral; the scene
// geometry it is measured against is not.
type EyePose struct {
	AzimuthDeg   Real `json:"azimuthDeg"`
	ElevationDeg Real `json:"elevationDeg"`
	TorsionDeg   Real `json:"torsionDeg"`
	PupilRadius  Real `json:"pupilRadiusMm"`
}

// Vector returns the canonical [azimuth, elevation, torsion, radius] form.
func (p EyePose) Vector() [4]Real {
	return [4]Real{p.AzimuthDeg, p.ElevationDeg, p.TorsionDeg, p.PupilRadius}
}

// SceneGeometry bundles everything the forward projection depends on:
// camera model, eye biometry, and the primary position (the zero-torsion
// reference orientation). It is read-only to the projector and the pose
// fitter; the scene estimator is the only producer.
type SceneGeometry struct {
	Camera Camera
	Eye    *EyeModel

	// Primary position offsets added to gaze-target angles when predicting
	// a pose during calibration (degrees).
	PrimaryAzimuthDeg   Real
	PrimaryElevationDeg Real
}

// ProjectOptions selects the rendering mode of the forward projection.
// The zero value is the fast path used inside searches.
type ProjectOptions struct {
	// PerimeterPoints is the number of pupil boundary points to generate
	// (minimum and default 5: five points determine an ellipse uniquely).
	PerimeterPoints int

	// FullEye adds iris, chamber and landmark points and enables the
	// behind-the-eye visibility filter.
	FullEye bool

	// NoRefraction skips the corneal virtual-image computation and
	// degenerates the projection to simple perspective. Materially less
	// accurate, and a legitimate mode when speed matters more.
	NoRefraction bool

	// NodalErrors requests the per-point residual distance (mm) between
	// the refracted ray and the camera nodal point. Roughly doubles cost.
	NodalErrors bool
}

// Projection is the forward projector's output. ImagePoints, WorldPoints
// and Labels are parallel-indexed; NodalErrors too when requested.
type Projection struct {
	Ellipse     TransparentEllipse
	ImagePoints [][2]Real
	WorldPoints []r3.Vector
	Labels      []PointLabel
	NodalErrors []Real
}

// worldFromEye re-expresses an eye-frame point in scene coordinates. This
// is an axis permutation only: eye Y (horizontal) becomes world X, eye Z
// (vertical) becomes world Y, eye X (depth) becomes world Z.
func worldFromEye(p r3.Vector) r3.Vector {
	return r3.Vector{X: p.Y, Y: p.Z, Z: p.X}
}

// eyeFromWorld is the inverse permutation.
func eyeFromWorld(p r3.Vector) r3.Vector {
	return r3.Vector{X: p.Z, Y: p.X, Z: p.Y}
}

// Project forward-projects an eye pose to the image plane: generate the
// model points, replace refracted points with their corneal virtual images,
// rotate rigidly about the three rotation centers (torsion, then elevation,
// then azimuth; this order defines the pose parameterization), filter
// hidden points, re-express in the world frame, apply the pinhole camera
// with radial distortion, and fit the pupil-perimeter ellipse.
//
// Project always returns: every degenerate configuration (zero pupil,
// too few visible points, refraction failure, near-linear fit) yields the
// NaN-sentinel ellipse rather than an error, because the routine runs
// thousands of times inside searches where one ill-posed candidate must be
// penalized, not crash the optimizer.
func Project(pose EyePose, sg *SceneGeometry, opt ProjectOptions) Projection {
	n := opt.PerimeterPoints
	if n < MinPerimeterPoints {
		n = DefaultPerimeterPoints
	}

	pts, labels := sg.Eye.ModelPoints(pose.PupilRadius, n, opt.FullEye)
	out := Projection{Labels: labels}
	if opt.NodalErrors {
		out.NodalErrors = make([]Real, len(pts))
		for i := range out.NodalErrors {
			out.NodalErrors[i] = math.NaN()
		}
	}

	// Step 2: corneal refraction. The camera nodal point is brought into
	// the un-rotated eye frame by the inverse eye rotation, so the search
	// sees the cornea where the pose will put it.
	if !opt.NoRefraction {
		nodalEye := inverseRotatePoint(eyeFromWorld(sg.Camera.NodalPoint()), pose, sg.Eye)
		for i := range pts {
			if !labels[i].Refracted() || pts[i].X <= 0 {
				continue
			}
			vp, resid, ok := virtualImage(pts[i], nodalEye, sg.Eye)
			if !ok {
				pts[i] = r3.Vector{X: math.NaN(), Y: math.NaN(), Z: math.NaN()}
				continue
			}
			pts[i] = vp
			if opt.NodalErrors {
				out.NodalErrors[i] = resid
			}
		}
	}

	// Step 3: rigid rotation about the rotation centers.
	for i := range pts {
		pts[i] = rotatePoint(pts[i], pose, sg.Eye)
	}

	// Step 4: behind-the-eye visibility filter (full rendering only).
	if opt.FullEye {
		kept := pts[:0]
		keptLabels := labels[:0]
		keptErrs := out.NodalErrors[:0]
		limit := sg.Eye.RotationCenterAzi.X
		for i := range pts {
			if pts[i].X > limit {
				continue
			}
			kept = append(kept, pts[i])
			keptLabels = append(keptLabels, labels[i])
			if out.NodalErrors != nil {
				keptErrs = append(keptErrs, out.NodalErrors[i])
			}
		}
		pts, labels = kept, keptLabels
		out.Labels = labels
		if out.NodalErrors != nil {
			out.NodalErrors = keptErrs
		}
	}

	// Steps 5–7: world frame, pinhole, distortion.
	out.WorldPoints = make([]r3.Vector, len(pts))
	out.ImagePoints = make([][2]Real, len(pts))
	perimeter := make([][2]Real, 0, n)
	for i := range pts {
		w := worldFromEye(pts[i])
		out.WorldPoints[i] = w
		u, v := sg.Camera.Project(w)
		out.ImagePoints[i] = [2]Real{u, v}
		if labels[i] == LabelPupilPerimeter && isFinite(u) && isFinite(v) {
			perimeter = append(perimeter, [2]Real{u, v})
		}
	}

	// Step 8: direct ellipse fit on the surviving perimeter points.
	if pose.PupilRadius <= 0 || len(perimeter) < MinPerimeterPoints {
		out.Ellipse = NaNEllipse()
		return out
	}
	ell, err := FitEllipse(perimeter)
	if err != nil {
		out.Ellipse = NaNEllipse()
		return out
	}
	out.Ellipse = ell
	return out
}

// rotatePoint applies the eye rotation to an eye-frame point: torsion
// about the depth axis, then elevation about the horizontal axis, then
// azimuth about the vertical axis, each about its own rotation center.
// Reversing this order silently produces a different, incompatible pose
// parameterization.
func rotatePoint(p r3.Vector, pose EyePose, eye *EyeModel) r3.Vector {
	p = rotateAbout(p, eye.RotationCenterTor, rotDepth(degToRad(pose.TorsionDeg)))
	p = rotateAbout(p, eye.RotationCenterEle, rotHorizontal(degToRad(pose.ElevationDeg)))
	p = rotateAbout(p, eye.RotationCenterAzi, rotVertical(degToRad(pose.AzimuthDeg)))
	return p
}

// inverseRotatePoint undoes rotatePoint (reverse order, negated angles).
func inverseRotatePoint(p r3.Vector, pose EyePose, eye *EyeModel) r3.Vector {
	p = rotateAbout(p, eye.RotationCenterAzi, rotVertical(degToRad(-pose.AzimuthDeg)))
	p = rotateAbout(p, eye.RotationCenterEle, rotHorizontal(degToRad(-pose.ElevationDeg)))
	p = rotateAbout(p, eye.RotationCenterTor, rotDepth(degToRad(-pose.TorsionDeg)))
	return p
}

func rotateAbout(p, center r3.Vector, m Mat3) r3.Vector {
	return m.MulVec(p.Sub(center)).Add(center)
}

// virtualImage replaces an eye-frame point behind the cornea with its
// apparent position as seen through the refractive surface stack. Two 1D
// searches run in sequence: the emission angle in the horizontal (p1p2)
// plane, then in the vertical (p1p3) plane, each minimizing the distance by
// which the refracted ray misses the camera nodal point in that plane.
// This two-stage decomposition is a documented approximation kept for
// compatibility; it is not a joint 2D search.
//
// The returned residual is the combined miss distance (mm). ok is false
// when no candidate emission angle yields a finite refracted ray.
func virtualImage(p, nodalEye r3.Vector, eye *EyeModel) (r3.Vector, Real, bool) {
	zP := -p.X // trace axis points from eye toward camera
	zN := -nodalEye.X

	hY, missY, okY := virtualHeight(zP, p.Y, zN, nodalEye.Y, eye.CorneaHorizontal)
	if !okY {
		return r3.Vector{}, math.NaN(), false
	}
	hZ, missZ, okZ := virtualHeight(zP, p.Z, zN, nodalEye.Z, eye.CorneaVertical)
	if !okZ {
		return r3.Vector{}, math.NaN(), false
	}
	return r3.Vector{X: p.X, Y: hY, Z: hZ}, math.Hypot(missY, missZ), true
}

// virtualHeight runs the in-plane refraction search: find the emission
// angle whose refracted ray passes nearest the nodal point, then read the
// virtual image height off the outgoing ray at the point's own depth.
func virtualHeight(zP, hP, zN, hN Real, sys OpticalSystem) (Real, Real, bool) {
	missAt := func(theta Real) (Real, Ray, bool) {
		res, err := sys.TraceRay(Ray{Z: zP, H: hP, Theta: theta})
		if err != nil {
			return math.Inf(1), Ray{}, false
		}
		outRay := res.OutRay()
		// Perpendicular distance from the outgoing ray line to the nodal
		// point.
		ct, st := math.Cos(outRay.Theta), math.Sin(outRay.Theta)
		miss := math.Abs((zN-outRay.Z)*st - (hN-outRay.H)*ct)
		if !isFinite(miss) {
			return math.Inf(1), Ray{}, false
		}
		return miss, outRay, true
	}

	theta0 := math.Atan2(hN-hP, zN-zP)
	lo, hi := theta0-0.25, theta0+0.25
	best := minimize1D(func(t Real) Real {
		m, _, _ := missAt(t)
		return m
	}, lo, hi, refractSearchIter)

	miss, outRay, ok := missAt(best)
	if !ok {
		return 0, math.NaN(), false
	}
	h := outRay.HeightAt(zP)
	if !isFinite(h) {
		return 0, math.NaN(), false
	}
	return h, miss, true
}

// minimize1D is a golden-section search. It only compares values, so an
// objective that returns +Inf over part of the bracket (critical-angle
// cutoffs) degrades gracefully instead of derailing the search.
func minimize1D(f func(Real) Real, lo, hi Real, iters int) Real {
	const invPhi = 0.6180339887498949
	a, b := lo, hi
	x1 := b - invPhi*(b-a)
	x2 := a + invPhi*(b-a)
	f1, f2 := f(x1), f(x2)
	for i := 0; i < iters && b-a > refractSearchTol; i++ {
		if f1 <= f2 {
			b, x2, f2 = x2, x1, f1
			x1 = b - invPhi*(b-a)
			f1 = f(x1)
		} else {
			a, x1, f1 = x1, x2, f2
			x2 = a + invPhi*(b-a)
			f2 = f(x2)
		}
	}
	return (a + b) / 2
}
