// Package trajectory keeps a short motion history per tracking id and
// detects the wave gesture that promotes a candidate point to active.
package trajectory

import (
	"math"

	"github.com/golang/geo/r3"
)

// Settings tunes wave detection. Angles are in degrees, distances in world
// units.
type Settings struct {
	// MaxFramesBetweenInflections resets the inflection count when the hand
	// has not turned for this many frames.
	MaxFramesBetweenInflections int
	// MinHeadingDiffForInflection is the heading change that counts as one
	// swing of the wave.
	MinHeadingDiffForInflection float64
	// MaxHeadingDiffForContinuation is the largest heading change still
	// treated as the same swing.
	MaxHeadingDiffForContinuation float64
	// DeltaHeadingFactor is the exponential smoothing factor applied to the
	// per-frame motion before a heading is derived from it.
	DeltaHeadingFactor float64
	// MinHeadingDist is the distance a swing must cover before a turn counts.
	MinHeadingDist float64
	// MinWaveCount is the number of inflections that make a wave.
	MinWaveCount int
	// MinSteadyDelta is the smoothed per-frame motion below which the hand
	// is considered steady and the heading is left alone.
	MinSteadyDelta float64
	// MaxHistory bounds the number of samples kept.
	MaxHistory int
}

// DefaultSettings returns the wave detection settings used by the tracker.
func DefaultSettings() Settings {
	return Settings{
		MaxFramesBetweenInflections:   90,
		MinHeadingDiffForInflection:   135,
		MaxHeadingDiffForContinuation: 45,
		DeltaHeadingFactor:            0.5,
		MinHeadingDist:                150,
		MinWaveCount:                  3,
		MinSteadyDelta:                15,
		MaxHistory:                    30,
	}
}

// Sample is one observation of a tracked point.
type Sample struct {
	Tracking      bool
	WorldPosition r3.Vector
	WorldDelta    r3.Vector
}

// Analyzer detects waves for a single tracking id. It is not safe for
// concurrent use.
type Analyzer struct {
	trackingID int
	settings   Settings

	history []Sample

	avgDelta              r3.Vector
	heading               float64
	hasHeading            bool
	accumulatedDist       float64
	framesSinceInflection int
	inflectionCount       int
	waveDetected          bool
}

// NewAnalyzer creates an analyzer for trackingID.
func NewAnalyzer(trackingID int, settings Settings) *Analyzer {
	return &Analyzer{
		trackingID: trackingID,
		settings:   settings,
	}
}

// TrackingID returns the id this analyzer belongs to.
func (a *Analyzer) TrackingID() int {
	return a.trackingID
}

// Update feeds the next sample. A sample that is not tracking resets the
// analyzer.
func (a *Analyzer) Update(s Sample) {
	a.waveDetected = false

	if !s.Tracking {
		a.Reset()
		return
	}

	a.history = append(a.history, s)
	if n := a.settings.MaxHistory; n > 0 && len(a.history) > n {
		a.history = a.history[len(a.history)-n:]
	}

	delta := r3.Vector{X: s.WorldDelta.X, Y: s.WorldDelta.Y}
	f := a.settings.DeltaHeadingFactor
	a.avgDelta = a.avgDelta.Mul(1 - f).Add(delta.Mul(f))
	a.accumulatedDist += delta.Norm()

	a.framesSinceInflection++
	if a.framesSinceInflection > a.settings.MaxFramesBetweenInflections {
		a.inflectionCount = 0
		a.framesSinceInflection = 0
	}

	if a.avgDelta.Norm() < a.settings.MinSteadyDelta {
		return
	}

	heading := math.Atan2(a.avgDelta.Y, a.avgDelta.X) * 180 / math.Pi
	if !a.hasHeading {
		a.heading = heading
		a.hasHeading = true
		return
	}

	diff := headingDiff(heading, a.heading)
	switch {
	case diff <= a.settings.MaxHeadingDiffForContinuation:
		a.heading = heading
	case diff >= a.settings.MinHeadingDiffForInflection && a.accumulatedDist >= a.settings.MinHeadingDist:
		a.heading = heading
		a.accumulatedDist = 0
		a.framesSinceInflection = 0
		a.inflectionCount++
		if a.inflectionCount >= a.settings.MinWaveCount {
			a.waveDetected = true
			a.inflectionCount = 0
		}
	}
}

// IsWaveGesture reports whether the last Update completed a wave.
func (a *Analyzer) IsWaveGesture() bool {
	return a.waveDetected
}

// History returns a copy of the retained samples, oldest first.
func (a *Analyzer) History() []Sample {
	out := make([]Sample, len(a.history))
	copy(out, a.history)
	return out
}

// Reset clears the motion history and the wave state.
func (a *Analyzer) Reset() {
	a.history = nil
	a.avgDelta = r3.Vector{}
	a.heading = 0
	a.hasHeading = false
	a.accumulatedDist = 0
	a.framesSinceInflection = 0
	a.inflectionCount = 0
	a.waveDetected = false
}

// headingDiff returns the absolute difference of two headings in [0, 180].
func headingDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}
