package eyepose

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// FrameResult is one entry of a batch fit: the recovered pose and its
// residual. RMSE is NaN when the frame had too few points or no reachable
// pose projected at all.
type FrameResult struct {
	Pose EyePose
	RMSE Real
	Err  error
}

// BatchOptions controls FitFrames.
type BatchOptions struct {
	Fit FitOptions

	// Workers caps the pool size; 0 means one per CPU.
	Workers int

	// Progress enables ~1% progress prints on stdout. Off in library use,
	// handy for long videos from the CLI.
	Progress bool

	// WarmStart seeds each frame's search with the previous frame's pose
	// when that fit succeeded. Eye movements between adjacent video frames
	// are small, so this typically cuts iterations substantially. Implies
	// chunked ordering rather than pure round-robin.
	WarmStart bool
}

// FitFrames fits an eye pose to every frame's observed perimeter points,
// fanning out over a worker pool. Each worker owns a contiguous chunk of
// frames so warm-starting stays local to the worker; results come back in
// input order regardless.
func FitFrames(frames [][][2]Real, sg *SceneGeometry, opt BatchOptions) []FrameResult {
	results := make([]FrameResult, len(frames))
	if len(frames) == 0 {
		return results
	}

	workers := opt.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(frames) {
		workers = len(frames)
	}

	var counter int64
	nextPrint := int64(1)
	if len(frames) >= 100 {
		nextPrint = int64(len(frames) / 100)
	}

	chunk := (len(frames) + workers - 1) / workers
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(frames) {
			hi = len(frames)
		}
		go func(lo, hi int) {
			defer wg.Done()
			fit := opt.Fit
			for i := lo; i < hi; i++ {
				pose, rmse, err := FitPose(frames[i], sg, fit)
				results[i] = FrameResult{Pose: pose, RMSE: rmse, Err: err}
				if opt.WarmStart && err == nil && isFinite(rmse) {
					fit.X0 = [3]Real{pose.AzimuthDeg, pose.ElevationDeg, pose.PupilRadius}
				}
				done := atomic.AddInt64(&counter, 1)
				if opt.Progress && done%nextPrint == 0 {
					fmt.Printf("[PROGRESS] %.2f%%\n", Real(done)*100/Real(len(frames)))
				}
			}
		}(lo, hi)
	}
	wg.Wait()
	return results
}
