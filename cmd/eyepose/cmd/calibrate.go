package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/gazelab/eyepose/internal/eyepose"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Estimate scene geometry from calibration recordings",
	Long: `Calibrate searches for the scene geometry (camera placement, eye
biometry, head orientation) that best explains calibration recordings in
which the subject fixated known gaze targets.

The scenes file groups frames by recording session:
  {"scenes": [{"name": "s1", "frames": [
      {"target": {"azimuthDeg": 0, "elevationDeg": 0},
       "observed": [[312.1, 240.8], ...]}, ...]}]}

Examples:
  eyepose calibrate --scenes scenes.json --fx 1400 --fy 1400 --cx 320 --cy 240 --out geometry.json`,
	RunE: runCalibrate,
}

var (
	calScenesPath string
	calOutPath    string
	calFx, calFy  float64
	calCx, calCy  float64
	calK1, calK2  float64
	calDepth      float64
	calUseL2      bool
)

func init() {
	calibrateCmd.Flags().StringVar(&calScenesPath, "scenes", "", "calibration scenes JSON (required)")
	calibrateCmd.Flags().StringVar(&calOutPath, "out", "", "write per-scene geometry JSON here instead of stdout")
	calibrateCmd.Flags().Float64Var(&calFx, "fx", 0, "focal length x (px, required)")
	calibrateCmd.Flags().Float64Var(&calFy, "fy", 0, "focal length y (px, required)")
	calibrateCmd.Flags().Float64Var(&calCx, "cx", 0, "principal point x (px)")
	calibrateCmd.Flags().Float64Var(&calCy, "cy", 0, "principal point y (px)")
	calibrateCmd.Flags().Float64Var(&calK1, "k1", 0, "radial distortion k1")
	calibrateCmd.Flags().Float64Var(&calK2, "k2", 0, "radial distortion k2")
	calibrateCmd.Flags().Float64Var(&calDepth, "depth", 30, "initial camera depth guess (mm)")
	calibrateCmd.Flags().BoolVar(&calUseL2, "l2", false, "aggregate scenes by RMS instead of mean absolute error")
	_ = calibrateCmd.MarkFlagRequired("scenes")
	_ = calibrateCmd.MarkFlagRequired("fx")
	_ = calibrateCmd.MarkFlagRequired("fy")
	rootCmd.AddCommand(calibrateCmd)
}

// calibrationResult is the calibrate command's output document: the shared
// head and eye estimates plus one buildable geometry config per scene.
type calibrationResult struct {
	HeadAzimuthDeg   float64 `json:"headAzimuthDeg"`
	HeadElevationDeg float64 `json:"headElevationDeg"`
	HeadTorsionDeg   float64 `json:"headTorsionDeg"`

	ResidualPx float64 `json:"residualPx"`

	Scenes []namedGeometry `json:"scenes"`
}

type namedGeometry struct {
	Name     string                   `json:"name,omitempty"`
	Geometry eyepose.SceneGeometryCfg `json:"geometry"`
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	scenes, err := eyepose.LoadScenes(calScenesPath)
	if err != nil {
		return fmt.Errorf("load scenes: %w", err)
	}

	cfg := &eyepose.EstimatorConfig{
		Intrinsics: eyepose.Intrinsics{Fx: calFx, Fy: calFy, Cx: calCx, Cy: calCy},
		Distortion: eyepose.Distortion{K1: calK1, K2: calK2},
		Biometry:   eyepose.DefaultBiometry(),
		Scenes:     scenes,
		UseL2:      calUseL2,
	}
	cfg.DefaultEstimatorPriors()
	cfg.DepthPriorMm = calDepth

	slog.Info("calibrating", "scenes", len(scenes), "depth0", calDepth)
	start := time.Now()
	x0 := cfg.InitialVector(calDepth)
	best, residual := eyepose.EstimateSceneGeometry(cfg, x0, eyepose.DefaultSearchBounds(len(scenes)))
	slog.Info("calibration done", "residualPx", residual, "elapsed", time.Since(start))

	out := calibrationResult{
		HeadAzimuthDeg:   best.Head()[0],
		HeadElevationDeg: best.Head()[1],
		HeadTorsionDeg:   best.Head()[2],
		ResidualPx:       residual,
	}
	for i, sc := range scenes {
		out.Scenes = append(out.Scenes, namedGeometry{
			Name:     sc.Name,
			Geometry: cfg.GeometryCfgAt(best, i),
		})
	}
	return writeJSON(calOutPath, out)
}
