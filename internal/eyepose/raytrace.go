package eyepose

import (
	"fmt"
	"math"
)

// Surface is one row of an OpticalSystem. Center is the surface's center of
// curvature on the optical axis (mm from the corneal apex), Radius is the
// signed radius of curvature (positive = convex toward the traveling ray)
// and Index is the refractive index of the medium on the far side of the
// surface. Row 0 of a system carries only the index of the medium the ray
// originates in; its Center and Radius are overwritten at trace time with
// the ray's own axis-intersection point.
type Surface struct {
	Center Real
	Radius Real
	Index  Real
}

// OpticalSystem is an ordered sequence of centered spherical refractive
// surfaces, traversed front to back by a traced ray. It is a plain slice on
// purpose: the trace runs inside nested searches and must not pay for any
// dispatch or hidden state.
type OpticalSystem []Surface

// Ray is a 2D ray in a plane containing the optical axis. Z is the axial
// position, H the height above the axis, Theta the angle to the axis in
// radians (positive rotates toward +H). A Ray is a value; tracing never
// mutates its input.
type Ray struct {
	Z, H  Real
	Theta Real
}

// AxisCrossing returns the axial position at which the ray's line crosses
// the optical axis. Rays parallel to the axis cross at ±Inf.
func (r Ray) AxisCrossing() Real {
	s := math.Sin(r.Theta)
	if math.Abs(s) < epsDenom {
		if r.H >= 0 == (r.Theta >= 0) {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}
	return r.Z - r.H*math.Cos(r.Theta)/s
}

// PointAt returns the (z, h) point a parameter t along the ray.
func (r Ray) PointAt(t Real) (Real, Real) {
	return r.Z + t*math.Cos(r.Theta), r.H + t*math.Sin(r.Theta)
}

// HeightAt returns the height of the ray's (extended) line at axial
// position z.
func (r Ray) HeightAt(z Real) Real {
	c := math.Cos(r.Theta)
	if math.Abs(c) < epsDenom {
		return math.NaN()
	}
	return r.H + (z-r.Z)*math.Tan(r.Theta)
}

// TraceResult carries the outcome of tracing one ray through an optical
// system. Images holds the per-surface axis-intersection ("virtual image")
// points, index-parallel with the system rows (entry 0 is the incoming
// ray's own axis crossing). Intersections holds the literal (z, h) points
// at which the ray met each physical surface; these are diagnostic only.
// Out describes the outgoing ray as two points: an axis point and a point
// one unit farther along the ray.
type TraceResult struct {
	Theta         Real
	Images        []Real
	Intersections [][2]Real
	Out           [2][2]Real
}

// OutRay reconstructs the outgoing ray from the two-point description.
func (t TraceResult) OutRay() Ray {
	return Ray{Z: t.Out[0][0], H: t.Out[0][1], Theta: t.Theta}
}

// TraceRay propagates a ray through the system using the generalized
// per-surface recurrence: with d the axial separation between successive
// centers of curvature and rel the ratio of indices across surface i, the
// auxiliary value
//
//	a[i] = (a[i-1]·rel[i-1]·radius[i-1] + d·sin(theta[i-1])) / radius[i]
//
// is the sine of the angle of incidence at surface i, and the refracted
// angle follows Snell as
//
//	theta[i] = theta[i-1] - asin(a[i]) + asin(a[i]·rel[i]).
//
// |a·rel| > 1 means the incidence exceeds the critical angle: the trace
// stops with ErrRefractionLimit and the partial result. A geometric miss or
// tangency of a physical surface stops with ErrRayMissesSurface. Both are
// routine outcomes during pose search; callers convert them to sentinels.
//
// The function is pure and keeps no state between invocations.
func (sys OpticalSystem) TraceRay(r Ray) (TraceResult, error) {
	n := len(sys)
	if n < 2 {
		return TraceResult{}, fmt.Errorf("optical system needs at least one surface beyond the origin medium, got %d rows", n)
	}

	res := TraceResult{
		Theta:         r.Theta,
		Images:        make([]Real, 1, n),
		Intersections: make([][2]Real, 1, n),
	}
	// Row 0 is replaced by the ray's own axis crossing.
	res.Images[0] = r.AxisCrossing()
	res.Intersections[0] = [2]Real{r.Z, r.H}

	theta := r.Theta
	zCur, hCur := r.Z, r.H
	var aPrev, relPrev, radPrev Real // zero: row 0 contributes no curvature term

	for i := 1; i < n; i++ {
		s := sys[i]
		if s.Radius == 0 || s.Index <= 0 {
			return res, fmt.Errorf("surface %d invalid (radius=%g, index=%g)", i, s.Radius, s.Index)
		}
		rel := sys[i-1].Index / s.Index

		var a Real
		if i == 1 {
			// Perpendicular-distance form of the recurrence, valid even for
			// rays parallel to the axis (where the row-0 crossing is at ∞).
			a = ((s.Center-zCur)*math.Sin(theta) + hCur*math.Cos(theta)) / s.Radius
		} else {
			d := s.Center - sys[i-1].Center
			a = (aPrev*relPrev*radPrev + d*math.Sin(theta)) / s.Radius
		}

		if math.Abs(a*rel) > 1 {
			return res, ErrRefractionLimit
		}
		if math.Abs(a) > 1 {
			return res, ErrRayMissesSurface
		}

		// Literal intersection with the physical surface, kept for
		// diagnostics and as the launch point of the next segment.
		zHit, hHit, err := intersectSphere(zCur, hCur, theta, s.Center, s.Radius)
		if err != nil {
			return res, err
		}

		theta = theta - math.Asin(a) + math.Asin(a*rel)

		img := math.Inf(1)
		if sa := math.Sin(theta); math.Abs(sa) >= epsDenom {
			img = s.Center - s.Radius*a*rel/sa
		}

		res.Images = append(res.Images, img)
		res.Intersections = append(res.Intersections, [2]Real{zHit, hHit})
		zCur, hCur = zHit, hHit
		aPrev, relPrev, radPrev = a, rel, s.Radius
	}

	res.Theta = theta
	// Outgoing ray as an axis point plus a unit-offset point. Fall back to
	// the last surface intersection when the exit ray never crosses the
	// axis (parallel exit).
	axisZ := res.Images[len(res.Images)-1]
	if isFinite(axisZ) {
		res.Out[0] = [2]Real{axisZ, 0}
	} else {
		res.Out[0] = [2]Real{zCur, hCur}
	}
	res.Out[1] = [2]Real{res.Out[0][0] + math.Cos(theta), res.Out[0][1] + math.Sin(theta)}
	return res, nil
}

// TraceRays traces a batch of rays through one fixed system. Errors are
// positional; a failed entry leaves its partial result in place.
func (sys OpticalSystem) TraceRays(rays []Ray) ([]TraceResult, []error) {
	out := make([]TraceResult, len(rays))
	errs := make([]error, len(rays))
	for i, r := range rays {
		out[i], errs[i] = sys.TraceRay(r)
	}
	return out, errs
}

// intersectSphere finds the point at which the ray from (z, h) at angle
// theta meets the sphere of the given center and signed radius, picking the
// root on the apex side of the surface (the side selected by the sign of
// center relative to radius). A negative discriminant is a miss; zero is a
// tangency. Both stop the trace.
func intersectSphere(z, h, theta, center, radius Real) (Real, Real, error) {
	ct, st := math.Cos(theta), math.Sin(theta)
	dz := z - center
	b := dz*ct + h*st
	c0 := dz*dz + h*h - radius*radius
	disc := b*b - c0
	if disc <= 0 {
		return 0, 0, ErrRayMissesSurface
	}
	sq := math.Sqrt(disc)
	t1, t2 := -b-sq, -b+sq

	apex := center - radius
	z1 := z + t1*ct
	z2 := z + t2*ct
	if math.Abs(z1-apex) <= math.Abs(z2-apex) {
		return z1, h + t1*st, nil
	}
	return z2, h + t2*st, nil
}
