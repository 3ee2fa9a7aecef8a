package eyepose

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
)

func TestDistortionRoundTrip(t *testing.T) {
	d := Distortion{K1: -0.21, K2: 0.04}
	for _, p := range [][2]Real{
		{0, 0}, {0.1, 0}, {0, -0.2}, {0.3, 0.25}, {-0.4, 0.1}, {0.45, -0.45},
	} {
		xd, yd := d.Apply(p[0], p[1])
		x, y := d.Undistort(xd, yd)
		if !nearly(x, p[0], 1e-9) || !nearly(y, p[1], 1e-9) {
			t.Fatalf("round trip (%g, %g) -> (%g, %g)", p[0], p[1], x, y)
		}
	}
}

func TestDistortionIdentity(t *testing.T) {
	var d Distortion
	x, y := d.Apply(0.3, -0.1)
	if x != 0.3 || y != -0.1 {
		t.Fatalf("zero distortion must be identity, got (%g, %g)", x, y)
	}
}

func TestProjectDefaultCamera(t *testing.T) {
	cam := DefaultCamera(1000, 1000, 320, 240, 30)

	// A point on the optical axis lands on the principal point.
	u, v := cam.Project(r3.Vector{Z: 3.7})
	if !nearly(u, 320, 1e-9) || !nearly(v, 240, 1e-9) {
		t.Fatalf("axial point off principal point: (%g, %g)", u, v)
	}

	// 1mm lateral offset at 33.7mm total depth.
	u, v = cam.Project(r3.Vector{X: 1, Z: 3.7})
	if !nearly(u, 320+1000/33.7, 1e-9) || !nearly(v, 240, 1e-9) {
		t.Fatalf("offset point at (%g, %g)", u, v)
	}
}

func TestProjectBehindCamera(t *testing.T) {
	cam := DefaultCamera(1000, 1000, 0, 0, 30)
	u, v := cam.Project(r3.Vector{Z: -40})
	if !math.IsNaN(u) || !math.IsNaN(v) {
		t.Fatalf("point behind the camera must project to NaN, got (%g, %g)", u, v)
	}
}

func TestNodalPoint(t *testing.T) {
	cam := DefaultCamera(1000, 1000, 0, 0, 30)
	n := cam.NodalPoint()
	if !nearly(n.X, 0, 1e-12) || !nearly(n.Y, 0, 1e-12) || !nearly(n.Z, -30, 1e-12) {
		t.Fatalf("default camera nodal point at %+v, want (0, 0, -30)", n)
	}

	// A rotated camera keeps its nodal point at the rotated position.
	cam.Extrinsics.Rotation = rotVertical(degToRad(10)).Mul(cam.Extrinsics.Rotation)
	n = cam.NodalPoint()
	if !nearly(n.Norm(), 30, 1e-9) {
		t.Fatalf("rotation changed the nodal distance: %g", n.Norm())
	}
}

func TestIntrinsicsMatrix(t *testing.T) {
	k := Intrinsics{Fx: 1400, Fy: 1380, Cx: 320, Cy: 240}
	m := k.Matrix()
	if m.At(0, 0) != 1400 || m.At(1, 1) != 1380 || m.At(0, 2) != 320 || m.At(1, 2) != 240 || m.At(2, 2) != 1 {
		t.Fatalf("intrinsic matrix wrong: %v", m.RawMatrix().Data)
	}
}
