package cmd

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/gazelab/eyepose/internal/eyepose"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Forward-project a pose and print the predicted pupil ellipse",
	Long: `Project runs the forward model for one pose against a calibrated scene
geometry and prints the predicted pupil ellipse, with the full point set
when requested.

Examples:
  eyepose project --geometry geometry.json --azimuth 10 --elevation -5 --radius 2
  eyepose project --geometry geometry.json --azimuth 10 --full --plot frame.png`,
	RunE: runProject,
}

var (
	projGeometryPath string
	projAzimuth      float64
	projElevation    float64
	projTorsion      float64
	projRadius       float64
	projPoints       int
	projFull         bool
	projNoRefraction bool
	projPlotPath     string
	projNodalErrors  bool
)

func init() {
	projectCmd.Flags().StringVar(&projGeometryPath, "geometry", "", "scene geometry JSON (required)")
	projectCmd.Flags().Float64Var(&projAzimuth, "azimuth", 0, "eye azimuth (deg)")
	projectCmd.Flags().Float64Var(&projElevation, "elevation", 0, "eye elevation (deg)")
	projectCmd.Flags().Float64Var(&projTorsion, "torsion", 0, "eye torsion (deg)")
	projectCmd.Flags().Float64Var(&projRadius, "radius", 2, "pupil radius (mm)")
	projectCmd.Flags().IntVar(&projPoints, "points", 0, "pupil perimeter points (0 = default)")
	projectCmd.Flags().BoolVar(&projFull, "full", false, "project the full eye model, not just the pupil")
	projectCmd.Flags().BoolVar(&projNoRefraction, "no-refraction", false, "skip corneal refraction")
	projectCmd.Flags().BoolVar(&projNodalErrors, "nodal-errors", false, "include per-point refraction residuals")
	projectCmd.Flags().StringVar(&projPlotPath, "plot", "", "write a PNG of the projected points and ellipse")
	_ = projectCmd.MarkFlagRequired("geometry")
	rootCmd.AddCommand(projectCmd)
}

// JSON has no NaN, so the output types hold pointers: sentinel values
// serialize as null.
type projectionOutput struct {
	Pose    eyepose.EyePose  `json:"pose"`
	Ellipse ellipseOutput    `json:"ellipse"`
	Points  []projectedPoint `json:"points"`
}

type ellipseOutput struct {
	CenterX      *float64 `json:"centerX"`
	CenterY      *float64 `json:"centerY"`
	Area         *float64 `json:"area"`
	Eccentricity *float64 `json:"eccentricity"`
	Theta        *float64 `json:"theta"`
}

type projectedPoint struct {
	Label      string      `json:"label"`
	Image      [2]*float64 `json:"image"`
	World      [3]*float64 `json:"world"`
	NodalError *float64    `json:"nodalErrorMm,omitempty"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func ellipseOut(e eyepose.TransparentEllipse) ellipseOutput {
	return ellipseOutput{
		CenterX:      finite(e.CenterX),
		CenterY:      finite(e.CenterY),
		Area:         finite(e.Area),
		Eccentricity: finite(e.Eccentricity),
		Theta:        finite(e.Theta),
	}
}

func runProject(cmd *cobra.Command, args []string) error {
	sg, err := eyepose.LoadSceneGeometry(projGeometryPath)
	if err != nil {
		return fmt.Errorf("load geometry: %w", err)
	}

	pose := eyepose.EyePose{
		AzimuthDeg:   projAzimuth,
		ElevationDeg: projElevation,
		TorsionDeg:   projTorsion,
		PupilRadius:  projRadius,
	}
	proj := eyepose.Project(pose, sg, eyepose.ProjectOptions{
		PerimeterPoints: projPoints,
		FullEye:         projFull,
		NoRefraction:    projNoRefraction,
		NodalErrors:     projNodalErrors,
	})

	out := projectionOutput{Pose: pose, Ellipse: ellipseOut(proj.Ellipse)}
	for i, lbl := range proj.Labels {
		w := proj.WorldPoints[i]
		img := proj.ImagePoints[i]
		pp := projectedPoint{
			Label: lbl.String(),
			Image: [2]*float64{finite(img[0]), finite(img[1])},
			World: [3]*float64{finite(w.X), finite(w.Y), finite(w.Z)},
		}
		if proj.NodalErrors != nil {
			pp.NodalError = finite(proj.NodalErrors[i])
		}
		out.Points = append(out.Points, pp)
	}

	if projPlotPath != "" {
		var perimeter [][2]float64
		for i, lbl := range proj.Labels {
			if lbl == eyepose.LabelPupilPerimeter {
				perimeter = append(perimeter, proj.ImagePoints[i])
			}
		}
		if err := eyepose.PlotFit(projPlotPath, perimeter, proj.Ellipse); err != nil {
			return fmt.Errorf("plot: %w", err)
		}
	}
	return writeJSON("", out)
}
