package eyepose

import (
	"math"
)

// The scene objective is noisy at small scales (each probe embeds nested
// golden-section searches), not everywhere differentiable, and returns
// +Inf on infeasible candidates. A compass pattern search tolerates all of
// that where gradient and simplex methods do not, which is why the staged
// estimator is built on one rather than on the gonum optimizers used for
// the per-frame pose fit.

// SearchBounds limits each flat-vector coordinate. A zero-valued pair
// means unbounded.
type SearchBounds struct {
	Lo, Hi []Real
}

// DefaultSearchBounds returns plausible limits for an nScenes vector:
// head within ±20°, keratometry in the physiological 38..48D range,
// rotation scales near unity, camera depth 15..60mm, camera and primary
// angles within ±20°.
func DefaultSearchBounds(nScenes int) SearchBounds {
	n := headParamCount + eyeParamCount + nScenes*perSceneParamCount
	b := SearchBounds{Lo: make([]Real, n), Hi: make([]Real, n)}
	set := func(i int, lo, hi Real) { b.Lo[i], b.Hi[i] = lo, hi }

	for i := 0; i < headParamCount; i++ {
		set(i, -20, 20)
	}
	eyeBase := headParamCount
	set(eyeBase+idxEyeK1, 38, 48)
	set(eyeBase+idxEyeK2, 38, 48)
	set(eyeBase+idxEyeScaleAzi, 0.75, 1.25)
	set(eyeBase+idxEyeScaleEle, 0.75, 1.25)
	set(eyeBase+idxEyeDepth, 15, 60)
	for s := 0; s < nScenes; s++ {
		base := headParamCount + eyeParamCount + s*perSceneParamCount
		for i := 0; i < perSceneParamCount; i++ {
			set(base+i, -20, 20)
		}
	}
	return b
}

func (b SearchBounds) clamp(i int, v Real) Real {
	if len(b.Lo) == 0 {
		return v
	}
	if b.Lo[i] == 0 && b.Hi[i] == 0 {
		return v
	}
	return clamp(v, b.Lo[i], b.Hi[i])
}

// PatternSearchOptions tunes one compass-search stage.
type PatternSearchOptions struct {
	// Active restricts the search to these flat indices; the rest of the
	// vector is frozen. Empty means all indices move.
	Active []int

	Bounds SearchBounds

	// InitialStep is the starting mesh size per coordinate unit (degrees,
	// diopters, mm share the same step; their bounds keep that sane).
	InitialStep Real

	// MinStep terminates the stage once the mesh has contracted below it.
	MinStep Real

	// MaxEvals caps objective evaluations as a safety net.
	MaxEvals int
}

func (o PatternSearchOptions) withDefaults(n int) PatternSearchOptions {
	if len(o.Active) == 0 {
		o.Active = make([]int, n)
		for i := range o.Active {
			o.Active[i] = i
		}
	}
	if o.InitialStep == 0 {
		o.InitialStep = 1
	}
	if o.MinStep == 0 {
		o.MinStep = 1e-3
	}
	if o.MaxEvals == 0 {
		o.MaxEvals = 20000
	}
	return o
}

// PatternSearch minimizes f over the active coordinates of x0 by compass
// search: probe ±step along each active axis, move to any improvement,
// halve the step when a full sweep finds none. f may return NaN or +Inf
// freely; such probes simply never improve. Returns the best vector and
// value found.
func PatternSearch(f func(ParamVector) Real, x0 ParamVector, opt PatternSearchOptions) (ParamVector, Real) {
	opt = opt.withDefaults(len(x0))

	eval := func(v ParamVector) Real {
		y := f(v)
		if math.IsNaN(y) {
			return math.Inf(1)
		}
		return y
	}

	best := x0.Clone()
	fBest := eval(best)
	evals := 1
	step := opt.InitialStep

	probe := best.Clone()
	for step >= opt.MinStep && evals < opt.MaxEvals {
		improved := false
		for _, i := range opt.Active {
			for _, dir := range [2]Real{1, -1} {
				copy(probe, best)
				probe[i] = opt.Bounds.clamp(i, best[i]+dir*step)
				if probe[i] == best[i] {
					continue
				}
				y := eval(probe)
				evals++
				if y < fBest {
					best, probe = probe, best
					fBest = y
					improved = true
					break
				}
				if evals >= opt.MaxEvals {
					break
				}
			}
			if evals >= opt.MaxEvals {
				break
			}
		}
		if !improved {
			step /= 2
			DebugLog("pattern search: mesh -> %g (f=%g, evals=%d)", step, fBest, evals)
		}
	}
	return best, fBest
}

// EstimateSceneGeometry runs the staged calibration search. Stage one
// frees the eye block and every scene block while the head stays at its
// prior: camera placement and biometry explain most of the signal and are
// well conditioned on their own. Stage two frees the head block too and
// refines everything jointly from the stage-one incumbent.
func EstimateSceneGeometry(cfg *EstimatorConfig, x0 ParamVector, bounds SearchBounds) (ParamVector, Real) {
	f := cfg.EvaluateScenes

	ranges := []paramRange{x0.eyeRange()}
	for i := range cfg.Scenes {
		ranges = append(ranges, x0.sceneRange(i))
	}
	stage1 := PatternSearchOptions{
		Active:      activeIndices(ranges...),
		Bounds:      bounds,
		InitialStep: 2,
		MinStep:     1e-2,
	}
	x1, f1 := PatternSearch(f, x0, stage1)
	DebugLog("stage 1 done: f=%g", f1)

	stage2 := PatternSearchOptions{
		Active:      activeIndices(append(ranges, x0.headRange())...),
		Bounds:      bounds,
		InitialStep: 0.5,
		MinStep:     1e-3,
	}
	x2, f2 := PatternSearch(f, x1, stage2)
	DebugLog("stage 2 done: f=%g", f2)
	return x2, f2
}
