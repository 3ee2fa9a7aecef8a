package eyepose

// Shared numeric knobs. A pupil ellipse is determined by five points, so
// perimeter sampling never drops below MinPerimeterPoints.
const (
	DefaultPerimeterPoints = 5
	MinPerimeterPoints     = 5

	// mm of tissue between the corneal apex and the pupil plane et al.
	// (defaults follow the Navarro schematic eye; see eyemodel.go).
	defaultPupilDepth       = 3.70
	defaultIrisDepth        = 3.90
	defaultCornealThickness = 0.55
	defaultPosteriorRadius  = 6.40
	defaultAziRotationDepth = 14.45
	defaultEleRotationDepth = 12.17
	defaultIrisRadius       = 5.57

	// Refractive indices per ocular medium.
	indexAir     = 1.0
	indexCornea  = 1.376
	indexAqueous = 1.3374
	indexLens    = 1.498
	indexTears   = 1.3370

	// Keratometry diopters to corneal radius of curvature in mm.
	keratometricConstant = 337.5

	// Refraction search (virtual image) controls.
	refractSearchIter = 48
	refractSearchTol  = 1e-8 // radians

	// hot-loop constants
	epsDenom = 1e-12
)
