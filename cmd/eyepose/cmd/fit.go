package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/gazelab/eyepose/internal/eyepose"
)

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit an eye pose to each frame's pupil perimeter points",
	Long: `Fit reads per-frame pupil perimeter points (pixels) and recovers an eye
pose for every frame against a calibrated scene geometry.

The frames file is a JSON array of frames, each an array of [u, v] points:
  [ [[312.1, 240.8], [330.4, 238.2], ...], ... ]

Examples:
  eyepose fit --geometry geometry.json --frames frames.json
  eyepose fit --geometry geometry.json --frames frames.json --out poses.json --plot-dir plots/`,
	RunE: runFit,
}

var (
	fitGeometryPath string
	fitFramesPath   string
	fitOutPath      string
	fitPlotDir      string
	fitWorkers      int
	fitNoRefraction bool
	fitNoWarmStart  bool
	fitProgress     bool
)

func init() {
	fitCmd.Flags().StringVar(&fitGeometryPath, "geometry", "", "scene geometry JSON (required)")
	fitCmd.Flags().StringVar(&fitFramesPath, "frames", "", "per-frame perimeter points JSON (required)")
	fitCmd.Flags().StringVar(&fitOutPath, "out", "", "write results JSON here instead of stdout")
	fitCmd.Flags().StringVar(&fitPlotDir, "plot-dir", "", "write a fit diagnostic PNG per frame into this directory")
	fitCmd.Flags().IntVar(&fitWorkers, "workers", 0, "worker goroutines (0 = one per CPU)")
	fitCmd.Flags().BoolVar(&fitNoRefraction, "no-refraction", false, "skip corneal refraction (faster, less accurate)")
	fitCmd.Flags().BoolVar(&fitNoWarmStart, "no-warm-start", false, "do not seed each frame with the previous pose")
	fitCmd.Flags().BoolVar(&fitProgress, "progress", false, "print progress")
	_ = fitCmd.MarkFlagRequired("geometry")
	_ = fitCmd.MarkFlagRequired("frames")
	rootCmd.AddCommand(fitCmd)
}

// RMSE is a pointer because JSON cannot carry the NaN sentinel; failed
// frames serialize it as null.
type fitRecord struct {
	Frame int             `json:"frame"`
	Pose  eyepose.EyePose `json:"pose"`
	RMSE  *float64        `json:"rmsePx"`
	Error string          `json:"error,omitempty"`
}

func runFit(cmd *cobra.Command, args []string) error {
	sg, err := eyepose.LoadSceneGeometry(fitGeometryPath)
	if err != nil {
		return fmt.Errorf("load geometry: %w", err)
	}
	frames, err := loadFrames(fitFramesPath)
	if err != nil {
		return fmt.Errorf("load frames: %w", err)
	}
	slog.Info("fitting", "frames", len(frames), "geometry", fitGeometryPath)

	start := time.Now()
	results := eyepose.FitFrames(frames, sg, eyepose.BatchOptions{
		Fit:       eyepose.FitOptions{NoRefraction: fitNoRefraction},
		Workers:   fitWorkers,
		Progress:  fitProgress,
		WarmStart: !fitNoWarmStart,
	})
	slog.Info("done", "elapsed", time.Since(start))

	records := make([]fitRecord, len(results))
	var failed int
	for i, r := range results {
		records[i] = fitRecord{Frame: i, Pose: r.Pose, RMSE: finite(r.RMSE)}
		if r.Err != nil {
			records[i].Error = r.Err.Error()
			failed++
		} else if math.IsNaN(r.RMSE) {
			failed++
		}
	}
	if failed > 0 {
		slog.Warn("some frames did not fit", "failed", failed, "total", len(results))
	}

	if fitPlotDir != "" {
		if err := writeFitPlots(frames, results, sg); err != nil {
			return err
		}
	}
	return writeJSON(fitOutPath, records)
}

func writeFitPlots(frames [][][2]float64, results []eyepose.FrameResult, sg *eyepose.SceneGeometry) error {
	if err := os.MkdirAll(fitPlotDir, 0o755); err != nil {
		return err
	}
	for i, r := range results {
		if r.Err != nil || math.IsNaN(r.RMSE) {
			continue
		}
		proj := eyepose.Project(r.Pose, sg, eyepose.ProjectOptions{NoRefraction: fitNoRefraction})
		path := filepath.Join(fitPlotDir, fmt.Sprintf("frame_%05d.png", i))
		if err := eyepose.PlotFit(path, frames[i], proj.Ellipse); err != nil {
			return fmt.Errorf("plot frame %d: %w", i, err)
		}
	}
	return nil
}

func loadFrames(path string) ([][][2]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var frames [][][2]float64
	if err := json.Unmarshal(data, &frames); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames in %s", path)
	}
	return frames, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
