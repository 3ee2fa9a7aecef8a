package eyepose

import "errors"

// Failure taxonomy. The first two arise routinely during wide parameter
// search and are converted to NaN sentinels by the callers that can absorb
// them; the last two indicate a broken configuration and are fatal to the
// calling routine.
var (
	// ErrRefractionLimit reports that a traced ray exceeded the critical
	// angle at a refractive surface. The trace is truncated; there is no
	// refracted ray for this geometry.
	ErrRefractionLimit = errors.New("incidence beyond critical angle, refraction undefined")

	// ErrRayMissesSurface reports that a traced ray is tangent to or misses
	// a physical surface entirely.
	ErrRayMissesSurface = errors.New("ray tangent to or missing spherical surface")

	// ErrDegenerateEllipseFit reports that a perimeter point set is too
	// close to a line (or otherwise ill-conditioned) for a direct conic fit.
	ErrDegenerateEllipseFit = errors.New("point set degenerate for direct ellipse fit")

	// ErrDegenerateEyeGeometry reports a biometric configuration that is
	// physically inconsistent (e.g. cornea behind the posterior chamber).
	ErrDegenerateEyeGeometry = errors.New("biometric parameters produce degenerate eye geometry")
)
