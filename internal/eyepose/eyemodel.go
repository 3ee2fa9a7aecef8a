package eyepose

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// PointLabel tags entries of a model point set so that callers can select
// subsets (only the pupil perimeter feeds the ellipse fit) and decide which
// points sit behind the cornea and are therefore subject to refraction.
type PointLabel uint8

const (
	LabelPupilCenter PointLabel = iota
	LabelIrisCenter
	LabelRotationCenterAzi
	LabelRotationCenterEle
	LabelPupilPerimeter
	LabelIrisPerimeter
	LabelAnteriorChamber
	LabelPosteriorChamber
	LabelCornealApex
)

func (l PointLabel) String() string {
	switch l {
	case LabelPupilCenter:
		return "pupilCenter"
	case LabelIrisCenter:
		return "irisCenter"
	case LabelRotationCenterAzi:
		return "rotationCenterAzi"
	case LabelRotationCenterEle:
		return "rotationCenterEle"
	case LabelPupilPerimeter:
		return "pupilPerimeter"
	case LabelIrisPerimeter:
		return "irisPerimeter"
	case LabelAnteriorChamber:
		return "anteriorChamber"
	case LabelPosteriorChamber:
		return "posteriorChamber"
	case LabelCornealApex:
		return "cornealApex"
	}
	return "unknown"
}

// Refracted reports whether points carrying this label lie behind the
// cornea along the pupil axis and must be replaced by their virtual image.
func (l PointLabel) Refracted() bool {
	switch l {
	case LabelPupilCenter, LabelIrisCenter, LabelPupilPerimeter, LabelIrisPerimeter:
		return true
	}
	return false
}

// Biometry holds the per-subject parameters the eye model is built from.
// Depths are mm behind the corneal apex (positive into the eye); K1/K2 are
// keratometric diopters for the flat and steep corneal meridians.
type Biometry struct {
	K1 Real `json:"k1"`
	K2 Real `json:"k2"`

	CornealThickness Real `json:"cornealThickness,omitempty"`
	PupilDepth       Real `json:"pupilDepth,omitempty"`
	IrisDepth        Real `json:"irisDepth,omitempty"`
	IrisRadius       Real `json:"irisRadius,omitempty"`

	// Rotation-center depths, scaled by the calibration search.
	AziRotationDepth Real `json:"aziRotationDepth,omitempty"`
	EleRotationDepth Real `json:"eleRotationDepth,omitempty"`
	RotationScaleAzi Real `json:"rotationScaleAzi,omitempty"`
	RotationScaleEle Real `json:"rotationScaleEle,omitempty"`

	// Ellipsoid semi-radii (depth, horizontal, vertical) and the depth of
	// the posterior chamber center.
	AnteriorChamberRadii  [3]Real `json:"anteriorChamberRadii,omitempty"`
	PosteriorChamberRadii [3]Real `json:"posteriorChamberRadii,omitempty"`
	PosteriorChamberDepth Real    `json:"posteriorChamberDepth,omitempty"`

	// Refractive indices per ocular medium.
	IndexAqueous Real `json:"indexAqueous,omitempty"`
	IndexCornea  Real `json:"indexCornea,omitempty"`
	IndexAir     Real `json:"indexAir,omitempty"`

	// Optional corrective surfaces appended to the media stack, front of
	// the cornea, in wear order (contact first, then spectacle).
	Lenses []LensSurface `json:"lenses,omitempty"`

	Laterality string `json:"laterality,omitempty"` // "right" or "left"
}

// LensSurface is a corrective refractive surface placed in front of the
// cornea, in the trace frame (axis from eye toward camera).
type LensSurface struct {
	VertexDistance Real `json:"vertexDistance"` // mm in front of the apex
	Radius         Real `json:"radius"`         // signed, trace convention
	Index          Real `json:"index"`
}

// DefaultBiometry returns the schematic-eye defaults used when a field is
// left zero.
func DefaultBiometry() Biometry {
	return Biometry{
		K1:                    43.40,
		K2:                    43.85,
		CornealThickness:      defaultCornealThickness,
		PupilDepth:            defaultPupilDepth,
		IrisDepth:             defaultIrisDepth,
		IrisRadius:            defaultIrisRadius,
		AziRotationDepth:      defaultAziRotationDepth,
		EleRotationDepth:      defaultEleRotationDepth,
		RotationScaleAzi:      1,
		RotationScaleEle:      1,
		AnteriorChamberRadii:  [3]Real{7.25, 9.75, 9.50},
		PosteriorChamberRadii: [3]Real{10.15, 11.45, 11.38},
		PosteriorChamberDepth: 13.50,
		IndexAqueous:          indexAqueous,
		IndexCornea:           indexCornea,
		IndexAir:              indexAir,
		Laterality:            "right",
	}
}

func (b Biometry) withDefaults() Biometry {
	d := DefaultBiometry()
	if b.K1 == 0 {
		b.K1 = d.K1
	}
	if b.K2 == 0 {
		b.K2 = d.K2
	}
	if b.CornealThickness == 0 {
		b.CornealThickness = d.CornealThickness
	}
	if b.PupilDepth == 0 {
		b.PupilDepth = d.PupilDepth
	}
	if b.IrisDepth == 0 {
		b.IrisDepth = d.IrisDepth
	}
	if b.IrisRadius == 0 {
		b.IrisRadius = d.IrisRadius
	}
	if b.AziRotationDepth == 0 {
		b.AziRotationDepth = d.AziRotationDepth
	}
	if b.EleRotationDepth == 0 {
		b.EleRotationDepth = d.EleRotationDepth
	}
	if b.RotationScaleAzi == 0 {
		b.RotationScaleAzi = 1
	}
	if b.RotationScaleEle == 0 {
		b.RotationScaleEle = 1
	}
	if b.AnteriorChamberRadii == ([3]Real{}) {
		b.AnteriorChamberRadii = d.AnteriorChamberRadii
	}
	if b.PosteriorChamberRadii == ([3]Real{}) {
		b.PosteriorChamberRadii = d.PosteriorChamberRadii
	}
	if b.PosteriorChamberDepth == 0 {
		b.PosteriorChamberDepth = d.PosteriorChamberDepth
	}
	if b.IndexAqueous == 0 {
		b.IndexAqueous = d.IndexAqueous
	}
	if b.IndexCornea == 0 {
		b.IndexCornea = d.IndexCornea
	}
	if b.IndexAir == 0 {
		b.IndexAir = d.IndexAir
	}
	if b.Laterality == "" {
		b.Laterality = d.Laterality
	}
	return b
}

// EyeModel is the fixed geometric description of one eye, in the eye frame
// (origin at the corneal apex, X positive toward the back of the eye, Y
// horizontal, Z vertical). It is immutable once built and safe to share
// across goroutines.
type EyeModel struct {
	Bio Biometry

	PupilCenter       r3.Vector
	IrisCenter        r3.Vector
	RotationCenterAzi r3.Vector
	RotationCenterEle r3.Vector
	RotationCenterTor r3.Vector

	AnteriorChamberCenter  r3.Vector
	AnteriorChamberRadii   [3]Real
	PosteriorChamberCenter r3.Vector
	PosteriorChamberRadii  [3]Real

	// Corneal media stacks for the two trace planes (the meridians differ
	// under astigmatism). Trace frame: axis from eye toward camera, apex at
	// zero, eye interior at negative z.
	CorneaHorizontal OpticalSystem
	CorneaVertical   OpticalSystem
}

// NewEyeModel assembles the eye geometry from biometric parameters. It
// enforces plausibility only loosely: configurations that are physically
// inconsistent (cornea behind the posterior chamber, non-positive radii or
// indices) fail with ErrDegenerateEyeGeometry.
func NewEyeModel(bio Biometry) (*EyeModel, error) {
	bio = bio.withDefaults()

	if bio.K1 <= 0 || bio.K2 <= 0 {
		return nil, fmt.Errorf("keratometry must be positive (K1=%g, K2=%g): %w", bio.K1, bio.K2, ErrDegenerateEyeGeometry)
	}
	if bio.CornealThickness <= 0 || bio.CornealThickness >= bio.PupilDepth {
		return nil, fmt.Errorf("corneal thickness %gmm not in front of the pupil plane at %gmm: %w",
			bio.CornealThickness, bio.PupilDepth, ErrDegenerateEyeGeometry)
	}
	if bio.PosteriorChamberDepth <= bio.PupilDepth {
		return nil, fmt.Errorf("cornea/pupil at %gmm behind the posterior chamber at %gmm: %w",
			bio.PupilDepth, bio.PosteriorChamberDepth, ErrDegenerateEyeGeometry)
	}
	if bio.IndexAqueous <= 0 || bio.IndexCornea <= 0 || bio.IndexAir <= 0 {
		return nil, fmt.Errorf("refractive indices must be positive: %w", ErrDegenerateEyeGeometry)
	}
	for _, r := range bio.AnteriorChamberRadii {
		if r <= 0 {
			return nil, fmt.Errorf("anterior chamber radii must be positive: %w", ErrDegenerateEyeGeometry)
		}
	}
	for _, r := range bio.PosteriorChamberRadii {
		if r <= 0 {
			return nil, fmt.Errorf("posterior chamber radii must be positive: %w", ErrDegenerateEyeGeometry)
		}
	}

	m := &EyeModel{
		Bio:                    bio,
		PupilCenter:            r3.Vector{X: bio.PupilDepth},
		IrisCenter:             r3.Vector{X: bio.IrisDepth},
		RotationCenterAzi:      r3.Vector{X: bio.AziRotationDepth * bio.RotationScaleAzi},
		RotationCenterEle:      r3.Vector{X: bio.EleRotationDepth * bio.RotationScaleEle},
		RotationCenterTor:      r3.Vector{X: bio.AziRotationDepth * bio.RotationScaleAzi},
		AnteriorChamberCenter:  r3.Vector{X: bio.AnteriorChamberRadii[0]},
		AnteriorChamberRadii:   bio.AnteriorChamberRadii,
		PosteriorChamberCenter: r3.Vector{X: bio.PosteriorChamberDepth},
		PosteriorChamberRadii:  bio.PosteriorChamberRadii,
	}
	m.CorneaHorizontal = corneaSystem(bio, bio.K1)
	m.CorneaVertical = corneaSystem(bio, bio.K2)
	return m, nil
}

// corneaSystem builds the aqueous→cornea→air surface stack for one corneal
// meridian, plus any corrective lens surfaces, in the trace frame. Radii
// are signed per the standard convention (center of curvature ahead of the
// vertex along the trace direction = positive); traced from inside the eye
// both corneal surfaces carry negative radii.
func corneaSystem(bio Biometry, k Real) OpticalSystem {
	frontR := keratometricConstant / k
	backR := frontR * (defaultPosteriorRadius / 7.77)

	sys := OpticalSystem{
		{Index: bio.IndexAqueous},
		{
			Center: -bio.CornealThickness - backR,
			Radius: -backR,
			Index:  bio.IndexCornea,
		},
		{
			Center: -frontR,
			Radius: -frontR,
			Index:  bio.IndexAir,
		},
	}
	for _, l := range bio.Lenses {
		sys = append(sys, Surface{
			Center: l.VertexDistance + l.Radius,
			Radius: l.Radius,
			Index:  l.Index,
		})
	}
	return sys
}

// ModelPoints produces the eye-frame point set for a given pupil radius:
// the pupil perimeter (n evenly spaced points, n ≥ MinPerimeterPoints),
// pupil and iris centers, and, when full is set, iris perimeter, chamber
// ellipsoid samples, rotation centers and the corneal apex.
func (m *EyeModel) ModelPoints(pupilRadiusMm Real, n int, full bool) ([]r3.Vector, []PointLabel) {
	if n < MinPerimeterPoints {
		n = MinPerimeterPoints
	}
	pts := make([]r3.Vector, 0, n+2)
	labels := make([]PointLabel, 0, n+2)

	for i := 0; i < n; i++ {
		phi := 2 * math.Pi * Real(i) / Real(n)
		pts = append(pts, r3.Vector{
			X: m.PupilCenter.X,
			Y: pupilRadiusMm * math.Cos(phi),
			Z: pupilRadiusMm * math.Sin(phi),
		})
		labels = append(labels, LabelPupilPerimeter)
	}
	pts = append(pts, m.PupilCenter, m.IrisCenter)
	labels = append(labels, LabelPupilCenter, LabelIrisCenter)

	if !full {
		return pts, labels
	}

	for i := 0; i < n; i++ {
		phi := 2 * math.Pi * Real(i) / Real(n)
		pts = append(pts, r3.Vector{
			X: m.IrisCenter.X,
			Y: m.Bio.IrisRadius * math.Cos(phi),
			Z: m.Bio.IrisRadius * math.Sin(phi),
		})
		labels = append(labels, LabelIrisPerimeter)
	}
	pts, labels = appendEllipsoidRing(pts, labels, m.AnteriorChamberCenter, m.AnteriorChamberRadii, n, LabelAnteriorChamber)
	pts, labels = appendEllipsoidRing(pts, labels, m.PosteriorChamberCenter, m.PosteriorChamberRadii, n, LabelPosteriorChamber)

	pts = append(pts, m.RotationCenterAzi, m.RotationCenterEle, r3.Vector{})
	labels = append(labels, LabelRotationCenterAzi, LabelRotationCenterEle, LabelCornealApex)
	return pts, labels
}

// appendEllipsoidRing samples rings of an axis-aligned ellipsoid at a few
// latitudes; enough for rendering the chamber outline, not a full mesh.
func appendEllipsoidRing(pts []r3.Vector, labels []PointLabel, center r3.Vector, radii [3]Real, n int, label PointLabel) ([]r3.Vector, []PointLabel) {
	lats := []Real{-math.Pi / 3, 0, math.Pi / 3}
	for _, lat := range lats {
		cl, sl := math.Cos(lat), math.Sin(lat)
		for i := 0; i < n; i++ {
			phi := 2 * math.Pi * Real(i) / Real(n)
			pts = append(pts, r3.Vector{
				X: center.X + radii[0]*sl,
				Y: center.Y + radii[1]*cl*math.Cos(phi),
				Z: center.Z + radii[2]*cl*math.Sin(phi),
			})
			labels = append(labels, label)
		}
	}
	return pts, labels
}
