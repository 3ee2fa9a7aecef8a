package eyepose

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestFitEllipseRecoversExact(t *testing.T) {
	// The direct algebraic fit is exact on noise-free boundary samples.
	want := FromExplicit(3.2, -1.5, 4, 2, 0.7)
	got, err := FitEllipse(want.Boundary(12))
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(1e-6, 1e-8)); diff != "" {
		t.Fatalf("fitted ellipse mismatch (-want +got):\n%s", diff)
	}
}

func TestFitEllipseFivePoints(t *testing.T) {
	// Five points determine the conic uniquely; the fit must not need more.
	want := FromExplicit(100, 200, 30, 20, 2.1)
	got, err := FitEllipse(want.Boundary(5))
	if err != nil {
		t.Fatalf("five-point fit failed: %v", err)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(1e-6, 1e-6)); diff != "" {
		t.Fatalf("five-point fit mismatch (-want +got):\n%s", diff)
	}
}

func TestConicSignInvariance(t *testing.T) {
	// A conic and its negation describe the same curve and must convert to
	// the same transparent form.
	want := FromExplicit(0, 0, 2, 1, 0)
	got, err := conicToTransparent(0.25, 0, 1, 0, 0, -1)
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	neg, err := conicToTransparent(-0.25, 0, -1, 0, 0, 1)
	if err != nil {
		t.Fatalf("negated convert failed: %v", err)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(1e-9, 1e-12)); diff != "" {
		t.Fatalf("conic mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(got, neg, cmpopts.EquateApprox(1e-9, 1e-12)); diff != "" {
		t.Fatalf("negated conic mismatch (-got +neg):\n%s", diff)
	}

	// Same invariance for a tilted ellipse, semi-axes 4 and 2 at 0.7rad.
	phi, a2, b2 := 0.7, 16.0, 4.0
	cp, sp := math.Cos(phi), math.Sin(phi)
	A := cp*cp/a2 + sp*sp/b2
	B := 2 * sp * cp * (1/a2 - 1/b2)
	C := sp*sp/a2 + cp*cp/b2
	want = FromExplicit(0, 0, 4, 2, phi)
	got, err = conicToTransparent(A, B, C, 0, 0, -1)
	if err != nil {
		t.Fatalf("tilted convert failed: %v", err)
	}
	neg, err = conicToTransparent(-A, -B, -C, 0, 0, 1)
	if err != nil {
		t.Fatalf("tilted negated convert failed: %v", err)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(1e-9, 1e-12)); diff != "" {
		t.Fatalf("tilted conic mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(got, neg, cmpopts.EquateApprox(1e-9, 1e-12)); diff != "" {
		t.Fatalf("tilted negated conic mismatch (-got +neg):\n%s", diff)
	}
}

func TestFitEllipseTiltSweep(t *testing.T) {
	// The fit must recover the same shape at every orientation, including
	// the axis swap near theta = π/2. Compared by boundary distance so a
	// wrapped theta cannot mask a rotated fit.
	for k := 0; k < 24; k++ {
		theta := Real(k) * math.Pi / 24
		want := FromExplicit(12, -7, 5, 2, theta)
		got, err := FitEllipse(want.Boundary(16))
		if err != nil {
			t.Fatalf("theta %g: fit failed: %v", theta, err)
		}
		for _, p := range want.Boundary(64) {
			if d := math.Abs(got.SignedDistance(p[0], p[1])); d > 1e-6 {
				t.Fatalf("theta %g: boundary point (%g, %g) is %g from the fit", theta, p[0], p[1], d)
			}
		}
		if !nearly(got.Area, want.Area, 1e-6) {
			t.Fatalf("theta %g: area %g want %g", theta, got.Area, want.Area)
		}
	}
}

func TestFitEllipseCircle(t *testing.T) {
	want := FromExplicit(0, 0, 3, 3, 0)
	got, err := FitEllipse(want.Boundary(8))
	if err != nil {
		t.Fatalf("circle fit failed: %v", err)
	}
	// Theta is meaningless for a circle; compare the rest.
	if !nearly(got.CenterX, 0, 1e-8) || !nearly(got.CenterY, 0, 1e-8) {
		t.Fatalf("circle center off: (%g, %g)", got.CenterX, got.CenterY)
	}
	if !nearly(got.Area, math.Pi*9, 1e-6) {
		t.Fatalf("circle area off: %g", got.Area)
	}
	if got.Eccentricity > 1e-4 {
		t.Fatalf("circle eccentricity should be ~0, got %g", got.Eccentricity)
	}
}

func TestFitEllipseCollinear(t *testing.T) {
	pts := make([][2]Real, 8)
	for i := range pts {
		x := Real(i)
		pts[i] = [2]Real{x, 2*x + 1}
	}
	_, err := FitEllipse(pts)
	if !errors.Is(err, ErrDegenerateEllipseFit) {
		t.Fatalf("collinear points want ErrDegenerateEllipseFit, got %v", err)
	}
}

func TestFitEllipseTooFewPoints(t *testing.T) {
	pts := [][2]Real{{0, 1}, {1, 0}, {0, -1}, {-1, 0}}
	if _, err := FitEllipse(pts); !errors.Is(err, ErrDegenerateEllipseFit) {
		t.Fatalf("four points want ErrDegenerateEllipseFit, got %v", err)
	}
}

func TestNormalizeTheta(t *testing.T) {
	for _, raw := range []Real{-0.3, -3.0, 4.0, math.Pi, 7.5} {
		e := TransparentEllipse{Area: 10, Eccentricity: 0.5, Theta: raw}.Normalize()
		if e.Theta < 0 || e.Theta >= math.Pi {
			t.Fatalf("theta %g normalized to %g, outside [0, pi)", raw, e.Theta)
		}
		// Same geometric ellipse: every boundary point of the normalized
		// form lies on the original's boundary.
		orig := TransparentEllipse{Area: 10, Eccentricity: 0.5, Theta: raw}
		for _, p := range e.Boundary(7) {
			if d := math.Abs(orig.SignedDistance(p[0], p[1])); d > 1e-9 {
				t.Fatalf("normalization moved the boundary by %g", d)
			}
		}
	}
}

func TestSignedDistance(t *testing.T) {
	// Circle of radius 2 at (1, 1): distances are exact.
	e := FromExplicit(1, 1, 2, 2, 0)
	cases := []struct {
		x, y, want Real
	}{
		{4, 1, 1},    // outside
		{1, 1, -2},   // center
		{1, 3, 0},    // on boundary
		{1, 2, -1},   // inside
		{1, -4, 3},   // outside below
	}
	for _, c := range cases {
		if got := e.SignedDistance(c.x, c.y); !nearly(got, c.want, 1e-9) {
			t.Fatalf("SignedDistance(%g, %g) = %g, want %g", c.x, c.y, got, c.want)
		}
	}

	// Tilted ellipse: boundary samples sit at distance ~0.
	e = FromExplicit(-2, 5, 6, 2, 1.1)
	for _, p := range e.Boundary(16) {
		if d := math.Abs(e.SignedDistance(p[0], p[1])); d > 1e-9 {
			t.Fatalf("boundary point at distance %g", d)
		}
	}
}

func TestNaNEllipseSentinel(t *testing.T) {
	e := NaNEllipse()
	if !e.IsUndefined() {
		t.Fatal("NaNEllipse must be undefined")
	}
	if !math.IsNaN(e.SignedDistance(0, 0)) {
		t.Fatal("distance to the sentinel must be NaN")
	}
	if (TransparentEllipse{Area: 1}).IsUndefined() {
		t.Fatal("finite ellipse flagged as undefined")
	}
}
