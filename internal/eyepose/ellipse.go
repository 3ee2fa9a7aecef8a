package eyepose

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// TransparentEllipse parameterizes a 2D ellipse as center, area,
// eccentricity and tilt. Each parameter can be bounded independently during
// search (area ≥ 0, eccentricity ∈ [0,1)), which is why this form rather
// than semi-axes is the canonical one throughout the package. Theta is
// always normalized into [0, π): an ellipse is symmetric under a 180°
// rotation, so half the circle describes every tilt.
type TransparentEllipse struct {
	CenterX      Real `json:"centerX"`
	CenterY      Real `json:"centerY"`
	Area         Real `json:"area"`
	Eccentricity Real `json:"eccentricity"`
	Theta        Real `json:"theta"`
}

// NaNEllipse is the sentinel returned for every degenerate projection or
// fit. Forward evaluation must always return; the optimizers penalize the
// sentinel instead of crashing.
func NaNEllipse() TransparentEllipse {
	nan := math.NaN()
	return TransparentEllipse{nan, nan, nan, nan, nan}
}

// IsUndefined reports whether the ellipse is the NaN sentinel.
func (e TransparentEllipse) IsUndefined() bool {
	return !isFinite(e.CenterX) || !isFinite(e.CenterY) || !isFinite(e.Area) ||
		!isFinite(e.Eccentricity) || !isFinite(e.Theta)
}

// Vector returns the canonical 5-vector form.
func (e TransparentEllipse) Vector() [5]Real {
	return [5]Real{e.CenterX, e.CenterY, e.Area, e.Eccentricity, e.Theta}
}

// Normalize returns the same geometric ellipse with theta wrapped into
// [0, π).
func (e TransparentEllipse) Normalize() TransparentEllipse {
	e.Theta = math.Mod(e.Theta, math.Pi)
	if e.Theta < 0 {
		e.Theta += math.Pi
	}
	return e
}

// Explicit converts to center, semi-axes (major, minor) and tilt.
func (e TransparentEllipse) Explicit() (cx, cy, semiMajor, semiMinor, theta Real) {
	q := math.Sqrt(1 - e.Eccentricity*e.Eccentricity)
	semiMajor = math.Sqrt(e.Area / (math.Pi * q))
	semiMinor = semiMajor * q
	return e.CenterX, e.CenterY, semiMajor, semiMinor, e.Theta
}

// FromExplicit builds a transparent ellipse from explicit parameters,
// swapping the axes if needed so that theta tracks the major axis.
func FromExplicit(cx, cy, semiA, semiB, theta Real) TransparentEllipse {
	if semiB > semiA {
		semiA, semiB = semiB, semiA
		theta += math.Pi / 2
	}
	e := TransparentEllipse{
		CenterX:      cx,
		CenterY:      cy,
		Area:         math.Pi * semiA * semiB,
		Eccentricity: math.Sqrt(1 - (semiB*semiB)/(semiA*semiA)),
		Theta:        theta,
	}
	return e.Normalize()
}

// Boundary samples n points around the ellipse boundary.
func (e TransparentEllipse) Boundary(n int) [][2]Real {
	cx, cy, a, b, th := e.Explicit()
	ct, st := math.Cos(th), math.Sin(th)
	pts := make([][2]Real, n)
	for i := 0; i < n; i++ {
		t := 2 * math.Pi * Real(i) / Real(n)
		u, v := a*math.Cos(t), b*math.Sin(t)
		pts[i] = [2]Real{cx + u*ct - v*st, cy + u*st + v*ct}
	}
	return pts
}

// SignedDistance returns the Euclidean distance from the point to its
// orthogonal foot point on the ellipse boundary, negative when the point
// lies inside the ellipse (the sign of the implicit conic at the point).
func (e TransparentEllipse) SignedDistance(px, py Real) Real {
	if e.IsUndefined() {
		return math.NaN()
	}
	cx, cy, a, b, th := e.Explicit()
	if !(a > 0) || !(b > 0) {
		return math.NaN()
	}
	ct, st := math.Cos(th), math.Sin(th)
	dx, dy := px-cx, py-cy
	u := dx*ct + dy*st
	v := -dx*st + dy*ct

	au, av := math.Abs(u), math.Abs(v)
	// Foot point via Newton on the eccentric anomaly, first quadrant.
	t := math.Atan2(a*av, b*au)
	for i := 0; i < 8; i++ {
		c, s := math.Cos(t), math.Sin(t)
		f := (a*a-b*b)*c*s - au*a*s + av*b*c
		df := (a*a-b*b)*(c*c-s*s) - au*a*c - av*b*s
		if math.Abs(df) < epsDenom {
			break
		}
		t -= f / df
	}
	t = clamp(t, 0, math.Pi/2)
	fx, fy := a*math.Cos(t), b*math.Sin(t)
	d := math.Hypot(fx-au, fy-av)

	if (u/a)*(u/a)+(v/b)*(v/b) < 1 {
		return -d
	}
	return d
}

// FitEllipse performs the direct (non-iterative) algebraic conic fit to a
// point set, in the numerically stable partitioned form, and converts the
// result to the transparent parameterization. Point sets that are too close
// to a line, or that yield a non-elliptical conic, fail with
// ErrDegenerateEllipseFit; callers inside searches convert that to the NaN
// sentinel.
func FitEllipse(points [][2]Real) (TransparentEllipse, error) {
	n := len(points)
	if n < MinPerimeterPoints {
		return NaNEllipse(), ErrDegenerateEllipseFit
	}

	// Center the data for conditioning; undo at the end.
	var mx, my Real
	for _, p := range points {
		mx += p[0]
		my += p[1]
	}
	mx /= Real(n)
	my /= Real(n)

	d1 := mat.NewDense(n, 3, nil)
	d2 := mat.NewDense(n, 3, nil)
	for i, p := range points {
		x, y := p[0]-mx, p[1]-my
		d1.Set(i, 0, x*x)
		d1.Set(i, 1, x*y)
		d1.Set(i, 2, y*y)
		d2.Set(i, 0, x)
		d2.Set(i, 1, y)
		d2.Set(i, 2, 1)
	}

	var s1, s2, s3 mat.Dense
	s1.Mul(d1.T(), d1)
	s2.Mul(d1.T(), d2)
	s3.Mul(d2.T(), d2)

	var t mat.Dense
	if err := t.Solve(&s3, s2.T()); err != nil {
		return NaNEllipse(), ErrDegenerateEllipseFit
	}
	t.Scale(-1, &t)

	var m0 mat.Dense
	m0.Mul(&s2, &t)
	m0.Add(&s1, &m0)

	// Premultiply by the inverse constraint matrix: rows become
	// (m2/2, -m1, m0/2).
	mr := mat.NewDense(3, 3, nil)
	for c := 0; c < 3; c++ {
		mr.Set(0, c, m0.At(2, c)/2)
		mr.Set(1, c, -m0.At(1, c))
		mr.Set(2, c, m0.At(0, c)/2)
	}

	var eig mat.Eigen
	if ok := eig.Factorize(mr, mat.EigenRight); !ok {
		return NaNEllipse(), ErrDegenerateEllipseFit
	}
	var vecs mat.CDense
	eig.VectorsTo(&vecs)

	best := -1
	for j := 0; j < 3; j++ {
		a := real(vecs.At(0, j))
		b := real(vecs.At(1, j))
		c := real(vecs.At(2, j))
		if 4*a*c-b*b > 0 {
			best = j
			break
		}
	}
	if best < 0 {
		return NaNEllipse(), ErrDegenerateEllipseFit
	}

	a1 := mat.NewVecDense(3, []float64{
		real(vecs.At(0, best)),
		real(vecs.At(1, best)),
		real(vecs.At(2, best)),
	})
	var a2 mat.VecDense
	a2.MulVec(&t, a1)

	// Conic in centred coordinates; shift back to the data frame.
	A, B, C := a1.AtVec(0), a1.AtVec(1), a1.AtVec(2)
	D := a2.AtVec(0) - 2*A*mx - B*my
	E := a2.AtVec(1) - 2*C*my - B*mx
	F := a2.AtVec(2) + A*mx*mx + B*mx*my + C*my*my - (a2.AtVec(0))*mx - (a2.AtVec(1))*my

	return conicToTransparent(A, B, C, D, E, F)
}

// conicToTransparent converts Ax²+Bxy+Cy²+Dx+Ey+F=0 to the transparent
// form, normalizing theta into [0, π).
func conicToTransparent(A, B, C, D, E, F Real) (TransparentEllipse, error) {
	// A conic and its negation are the same curve; fix the overall sign so
	// the axis extraction below is stable.
	if A+C < 0 {
		A, B, C, D, E, F = -A, -B, -C, -D, -E, -F
	}
	den := B*B - 4*A*C
	if !(den < 0) {
		return NaNEllipse(), ErrDegenerateEllipseFit
	}
	cx := (2*C*D - B*E) / den
	cy := (2*A*E - B*D) / den

	common := 2 * (A*E*E + C*D*D - B*D*E + den*F)
	t2 := math.Sqrt((A-C)*(A-C) + B*B)
	s1 := -math.Sqrt(common*(A+C+t2)) / den
	s2 := -math.Sqrt(common*(A+C-t2)) / den
	if !isFinite(s1) || !isFinite(s2) || s1 <= 0 || s2 <= 0 {
		return NaNEllipse(), ErrDegenerateEllipseFit
	}
	theta := 0.5 * math.Atan2(-B, C-A)
	semiA, semiB := s1, s2
	if semiB > semiA {
		semiA, semiB = semiB, semiA
		theta += 0.5 * math.Pi
	}
	e := TransparentEllipse{
		CenterX:      cx,
		CenterY:      cy,
		Area:         math.Pi * semiA * semiB,
		Eccentricity: math.Sqrt(1 - (semiB*semiB)/(semiA*semiA)),
		Theta:        theta,
	}
	return e.Normalize(), nil
}
