package eyepose

import (
	"errors"
	"math"
	"testing"
)

func nearly(a, b, tol Real) bool { return math.Abs(a-b) <= tol }

func TestTraceRayThroughCenterUndeviated(t *testing.T) {
	// A ray aimed at a sphere's center of curvature meets the surface along
	// its normal and must pass unbent, with the image point at the center.
	sys := OpticalSystem{
		{Index: 1},
		{Center: 10, Radius: 5, Index: 1.5},
	}
	theta := math.Atan2(2, 4)
	res, err := sys.TraceRay(Ray{Z: 6, H: -2, Theta: theta})
	if err != nil {
		t.Fatalf("trace failed: %v", err)
	}
	if !nearly(res.Theta, theta, 1e-12) {
		t.Fatalf("normal-incidence ray bent: in=%.15g out=%.15g", theta, res.Theta)
	}
	if !nearly(res.Images[1], 10, 1e-9) {
		t.Fatalf("image of center-aimed ray not at center: got %.15g", res.Images[1])
	}
}

func TestTraceRayFlatInterfaceSnell(t *testing.T) {
	// A sphere of enormous radius approximates a flat interface at z=10;
	// the exit angle must satisfy Snell's law directly.
	const R = 1e6
	sys := OpticalSystem{
		{Index: 1},
		{Center: R + 10, Radius: R, Index: 1.5},
	}
	thetaIn := degToRad(30)
	res, err := sys.TraceRay(Ray{Z: 0, H: 0, Theta: thetaIn})
	if err != nil {
		t.Fatalf("trace failed: %v", err)
	}
	want := math.Asin(math.Sin(thetaIn) / 1.5)
	if !nearly(res.Theta, want, 1e-4) {
		t.Fatalf("Snell violated at flat interface: got %.6g want %.6g", res.Theta, want)
	}
}

func TestTraceRayCriticalAngleBoundary(t *testing.T) {
	// Dense-to-rare transition. A parallel ray at height h has sin of
	// incidence h/R, so the critical height is R·(n2/n1): exactly there the
	// trace still succeeds, any farther out it fails.
	sys := OpticalSystem{
		{Index: 1.5},
		{Center: 10, Radius: 5, Index: 1},
	}
	hCrit := 5.0 / 1.5

	if _, err := sys.TraceRay(Ray{Z: 0, H: hCrit, Theta: 0}); err != nil {
		t.Fatalf("ray at exact critical height must pass, got %v", err)
	}
	_, err := sys.TraceRay(Ray{Z: 0, H: hCrit * (1 + 1e-6), Theta: 0})
	if !errors.Is(err, ErrRefractionLimit) {
		t.Fatalf("beyond critical height want ErrRefractionLimit, got %v", err)
	}
}

func TestTraceRayMiss(t *testing.T) {
	// Rare-to-dense so the refraction check cannot preempt the miss.
	sys := OpticalSystem{
		{Index: 1},
		{Center: 10, Radius: 5, Index: 1.5},
	}
	_, err := sys.TraceRay(Ray{Z: 0, H: 5.5, Theta: 0})
	if !errors.Is(err, ErrRayMissesSurface) {
		t.Fatalf("ray above the surface want ErrRayMissesSurface, got %v", err)
	}
}

func TestTraceRayTooFewSurfaces(t *testing.T) {
	sys := OpticalSystem{{Index: 1}}
	if _, err := sys.TraceRay(Ray{}); err == nil {
		t.Fatal("single-row system must be rejected")
	}
}

func TestCorneaEntrancePupil(t *testing.T) {
	// The virtual image of the pupil through the cornea sits ~0.5mm in
	// front of the physical pupil plane and appears magnified. Both are
	// textbook entrance-pupil values and pin down the sign conventions of
	// the whole surface stack.
	eye, err := NewEyeModel(Biometry{})
	if err != nil {
		t.Fatalf("default eye: %v", err)
	}

	res, err := eye.CorneaHorizontal.TraceRay(Ray{Z: -defaultPupilDepth, H: 0, Theta: 0.1})
	if err != nil {
		t.Fatalf("axial pupil ray: %v", err)
	}
	img := res.Images[len(res.Images)-1]
	if img < -3.35 || img > -2.9 {
		t.Fatalf("entrance pupil depth out of range: got %.4g, want about -3.1", img)
	}

	h, _, ok := virtualHeight(-defaultPupilDepth, 0.5, 30, 0, eye.CorneaHorizontal)
	if !ok {
		t.Fatal("virtual height search failed on the default cornea")
	}
	mag := h / 0.5
	if mag < 1.05 || mag > 1.25 {
		t.Fatalf("entrance pupil magnification out of range: got %.4g, want about 1.13", mag)
	}
}

func TestRayHelpers(t *testing.T) {
	r := Ray{Z: 2, H: 1, Theta: -math.Pi / 4}
	if got := r.HeightAt(3); !nearly(got, 0, 1e-12) {
		t.Fatalf("HeightAt: got %.15g want 0", got)
	}
	if got := r.AxisCrossing(); !nearly(got, 3, 1e-12) {
		t.Fatalf("AxisCrossing: got %.15g want 3", got)
	}
	if got := (Ray{Z: 0, H: 1, Theta: 0}).AxisCrossing(); !math.IsInf(got, -1) {
		t.Fatalf("parallel ray must cross at -Inf, got %v", got)
	}
}
