package eyepose

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Intrinsics holds the pinhole matrix entries: focal lengths in pixels and
// the principal point.
type Intrinsics struct {
	Fx Real `json:"fx"`
	Fy Real `json:"fy"`
	Cx Real `json:"cx"`
	Cy Real `json:"cy"`
}

// Matrix returns the 3×3 intrinsic matrix for callers working in gonum.
func (k Intrinsics) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		k.Fx, 0, k.Cx,
		0, k.Fy, k.Cy,
		0, 0, 1,
	})
}

// Distortion is the radial lens model: in normalized (principal-point
// centred, focal-length scaled) coordinates, both components scale by
// 1 + k1·r² + k2·r⁴.
type Distortion struct {
	K1 Real `json:"k1"`
	K2 Real `json:"k2"`
}

// Apply distorts a normalized image point.
func (d Distortion) Apply(xn, yn Real) (Real, Real) {
	r2 := xn*xn + yn*yn
	f := 1 + d.K1*r2 + d.K2*r2*r2
	return xn * f, yn * f
}

// Undistort inverts Apply by Newton iteration on the radial magnitude: with
// g(r) = r·(1 + k1·r² + k2·r⁴), solve g(r) = rd and rescale the components.
// Within the calibrated radial range this converges in a handful of steps.
func (d Distortion) Undistort(xd, yd Real) (Real, Real) {
	rd := math.Hypot(xd, yd)
	if rd < epsDenom || (d.K1 == 0 && d.K2 == 0) {
		return xd, yd
	}
	r := rd
	for i := 0; i < 20; i++ {
		r2 := r * r
		g := r * (1 + d.K1*r2 + d.K2*r2*r2)
		dg := 1 + 3*d.K1*r2 + 5*d.K2*r2*r2
		if math.Abs(dg) < epsDenom {
			break
		}
		step := (g - rd) / dg
		r -= step
		if math.Abs(step) < 1e-12 {
			break
		}
	}
	s := r / rd
	return xd * s, yd * s
}

// Extrinsics carries the camera pose in scene (world) coordinates: the
// rotation taking world vectors into the camera frame and the translation
// of the world origin in camera coordinates (mm).
type Extrinsics struct {
	Rotation    Mat3
	Translation r3.Vector
}

// Matrix returns the 3×4 [R|t] matrix for callers working in gonum.
func (e Extrinsics) Matrix() *mat.Dense {
	return mat.NewDense(3, 4, []float64{
		e.Rotation.M[0][0], e.Rotation.M[0][1], e.Rotation.M[0][2], e.Translation.X,
		e.Rotation.M[1][0], e.Rotation.M[1][1], e.Rotation.M[1][2], e.Translation.Y,
		e.Rotation.M[2][0], e.Rotation.M[2][1], e.Rotation.M[2][2], e.Translation.Z,
	})
}

// Camera is the full projective model: pinhole intrinsics, radial
// distortion, extrinsic pose. Values are immutable per fit.
type Camera struct {
	Intrinsics Intrinsics
	Distortion Distortion
	Extrinsics Extrinsics
}

// DefaultCamera places an undistorted camera on the optical axis looking at
// the corneal apex from depthMm in front of it.
func DefaultCamera(fx, fy, cx, cy, depthMm Real) Camera {
	return Camera{
		Intrinsics: Intrinsics{Fx: fx, Fy: fy, Cx: cx, Cy: cy},
		Extrinsics: Extrinsics{
			Rotation:    I3(),
			Translation: r3.Vector{Z: depthMm},
		},
	}
}

// NodalPoint returns the camera's nodal point in world coordinates
// (the point all projection rays pass through): -Rᵀ·t.
func (c *Camera) NodalPoint() r3.Vector {
	rt := c.Extrinsics.Rotation.Transpose()
	t := c.Extrinsics.Translation
	return rt.MulVec(r3.Vector{X: -t.X, Y: -t.Y, Z: -t.Z})
}

// Project maps a world point to distorted pixel coordinates:
// K·[R|t]·Xʰ with perspective division, then the radial distortion in
// normalized coordinates. Points at or behind the camera plane project to
// NaN.
func (c *Camera) Project(w r3.Vector) (Real, Real) {
	p := c.Extrinsics.Rotation.MulVec(w).Add(c.Extrinsics.Translation)
	if p.Z <= epsDenom {
		return math.NaN(), math.NaN()
	}
	xn := p.X / p.Z
	yn := p.Y / p.Z
	xd, yd := c.Distortion.Apply(xn, yn)
	return c.Intrinsics.Fx*xd + c.Intrinsics.Cx, c.Intrinsics.Fy*yd + c.Intrinsics.Cy
}
