package workmode

import (
	"math"
	"sync"
	"time"
)

// referenceAnalyzer is the "reference" implementation registered for
// every mode by RegisterReferenceAnalyzers. Real signal-processing math
// is out of scope for this controller (spec §1: "concrete analyzer
// implementations ... specified only as collaborators") — this
// implementation exists only to exercise the Analyzer contract end to
// end with deterministic, reproducible numbers, not to model RF physics.
type referenceAnalyzer struct {
	mode     Mode
	freq     uint64
	refPower float32
	started  time.Time

	mu       sync.Mutex
	overflow float32
}

func newReferenceAnalyzer(mode Mode) Constructor {
	return func(freq uint64, refPower float32) (Analyzer, error) {
		return &referenceAnalyzer{
			mode:     mode,
			freq:     freq,
			refPower: refPower,
			started:  time.Now(),
			overflow: float32(math.NaN()),
		}, nil
	}
}

// RegisterReferenceAnalyzers registers the "reference" implementation for
// LLZ, GP, and VOR on r.
func RegisterReferenceAnalyzers(r *Registry) {
	r.Register(LLZ, "reference", newReferenceAnalyzer(LLZ))
	r.Register(GP, "reference", newReferenceAnalyzer(GP))
	r.Register(VOR, "reference", newReferenceAnalyzer(VOR))
}

func (a *referenceAnalyzer) Mode() Mode        { return a.mode }
func (a *referenceAnalyzer) Frequency() uint64 { return a.freq }

func (a *referenceAnalyzer) Overflow() float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.overflow
}

// FillMeasurements synthesizes a small, bounded oscillation around the
// configured reference power so downstream calibration and thinning
// logic has non-constant input to exercise.
func (a *referenceAnalyzer) FillMeasurements(e *Entry) {
	t := time.Since(a.started).Seconds()
	phase := float32(math.Sin(t))

	switch a.mode {
	case LLZ, GP:
		e.DDM = 0.01 * phase
		e.SDM = 0.95 + 0.01*phase
		e.AM90 = 0.40 + 0.02*phase
		e.AM150 = 0.40 - 0.02*phase
	case VOR:
		e.Radial = float32(math.Mod(t*6, 360))
	}

	overflow := a.refPower + phase
	a.mu.Lock()
	a.overflow = overflow
	a.mu.Unlock()
	e.Overflow = overflow
}

func (a *referenceAnalyzer) Close() {}
