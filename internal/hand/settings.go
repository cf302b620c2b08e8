package hand

import (
	"errors"
	"fmt"

	"github.com/ayusman/handpoint/internal/config"
	"github.com/ayusman/handpoint/internal/segmentation"
	"github.com/ayusman/handpoint/internal/trajectory"
)

// ErrInvalidSettings is returned for settings a processor cannot run with.
var ErrInvalidSettings = errors.New("invalid point processor settings")

// Settings tunes the point processor. Distances are in world units
// (millimetres). A processor never changes its settings.
type Settings struct {
	MaxMatchDistDefault    float64
	MaxMatchDistLostActive float64
	SteadyDeadBandRadius   float64

	MaxInactiveFramesForCandidatePoints int
	MaxInactiveFramesForLostPoints      int
	MaxInactiveFramesForActivePoints    int

	PointSmoothingFactor         float64
	PointDeadBandSmoothingFactor float64
	PointSmoothingDeadZone       float64

	MaxFailedTestsInProbation             int
	ProbationFrameCount                   int
	MaxFailedTestsInProbationActivePoints int

	SecondChanceMinDistance     float64
	MaxHandPointUpdatesPerFrame int
	MergePointDistance          float64

	// RefineHighResPosition re-runs region growth on a full resolution
	// window around each active point.
	RefineHighResPosition bool

	Segmentation segmentation.Settings
	Trajectory   trajectory.Settings
}

// DefaultSettings returns the settings the tracker ships with.
func DefaultSettings() Settings {
	return Settings{
		MaxMatchDistDefault:                   200,
		MaxMatchDistLostActive:                500,
		SteadyDeadBandRadius:                  75,
		MaxInactiveFramesForCandidatePoints:   60,
		MaxInactiveFramesForLostPoints:        15,
		MaxInactiveFramesForActivePoints:      480,
		PointSmoothingFactor:                  0.75,
		PointDeadBandSmoothingFactor:          0.05,
		PointSmoothingDeadZone:                50,
		MaxFailedTestsInProbation:             5,
		ProbationFrameCount:                   30,
		MaxFailedTestsInProbationActivePoints: 3,
		SecondChanceMinDistance:               100,
		MaxHandPointUpdatesPerFrame:           3,
		MergePointDistance:                    50,
		Segmentation:                          segmentation.DefaultSettings(),
		Trajectory:                            trajectory.DefaultSettings(),
	}
}

// SettingsFromTuning overlays the fields set in cfg on DefaultSettings.
func SettingsFromTuning(cfg *config.TuningConfig) Settings {
	s := DefaultSettings()
	if cfg == nil {
		return s
	}

	setFloat(&s.MaxMatchDistDefault, cfg.MaxMatchDistDefault)
	setFloat(&s.MaxMatchDistLostActive, cfg.MaxMatchDistLostActive)
	setFloat(&s.SteadyDeadBandRadius, cfg.SteadyDeadBandRadius)
	setInt(&s.MaxInactiveFramesForCandidatePoints, cfg.MaxInactiveFramesForCandidatePoints)
	setInt(&s.MaxInactiveFramesForLostPoints, cfg.MaxInactiveFramesForLostPoints)
	setInt(&s.MaxInactiveFramesForActivePoints, cfg.MaxInactiveFramesForActivePoints)
	setFloat(&s.PointSmoothingFactor, cfg.PointSmoothingFactor)
	setFloat(&s.PointDeadBandSmoothingFactor, cfg.PointDeadBandSmoothingFactor)
	setFloat(&s.PointSmoothingDeadZone, cfg.PointSmoothingDeadZone)
	setInt(&s.MaxFailedTestsInProbation, cfg.MaxFailedTestsInProbation)
	setInt(&s.ProbationFrameCount, cfg.ProbationFrameCount)
	setInt(&s.MaxFailedTestsInProbationActivePoints, cfg.MaxFailedTestsInProbationActivePoints)
	setFloat(&s.SecondChanceMinDistance, cfg.SecondChanceMinDistance)
	setInt(&s.MaxHandPointUpdatesPerFrame, cfg.MaxHandPointUpdatesPerFrame)
	setFloat(&s.MergePointDistance, cfg.MergePointDistance)
	if cfg.RefineHighResPosition != nil {
		s.RefineHighResPosition = *cfg.RefineHighResPosition
	}

	seg := &s.Segmentation
	setFloat(&seg.MaxSegmentationDist, cfg.MaxSegmentationDist)
	setFloat(&seg.BandwidthDepthNear, cfg.BandwidthDepthNear)
	setFloat(&seg.BandwidthDepthFar, cfg.BandwidthDepthFar)
	setInt(&seg.SeedSearchRadius, cfg.SeedSearchRadius)
	setFloat(&seg.MinArea, cfg.MinArea)
	setFloat(&seg.MaxArea, cfg.MaxArea)
	setFloat(&seg.MinDepth, cfg.MinDepth)
	setFloat(&seg.MaxDepth, cfg.MaxDepth)
	setFloat(&seg.HeightScoreFactor, cfg.HeightScoreFactor)
	setFloat(&seg.DepthScoreFactor, cfg.DepthScoreFactor)
	setFloat(&seg.PointInertiaFactor, cfg.PointInertiaFactor)
	setFloat(&seg.PointInertiaRadius, cfg.PointInertiaRadius)

	tr := &s.Trajectory
	setInt(&tr.MaxFramesBetweenInflections, cfg.MaxFramesBetweenInflections)
	setFloat(&tr.MinHeadingDiffForInflection, cfg.MinHeadingDiffForInflection)
	setFloat(&tr.MaxHeadingDiffForContinuation, cfg.MaxHeadingDiffForContinuation)
	setFloat(&tr.DeltaHeadingFactor, cfg.DeltaHeadingFactor)
	setFloat(&tr.MinHeadingDist, cfg.MinHeadingDist)
	setInt(&tr.MinWaveCount, cfg.MinWaveCount)
	setFloat(&tr.MinSteadyDelta, cfg.MinSteadyDelta)
	setInt(&tr.MaxHistory, cfg.MaxTrajectoryHistory)

	return s
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// Validate rejects settings a processor cannot run with.
func (s Settings) Validate() error {
	for _, f := range []floatField{
		{"MaxMatchDistDefault", s.MaxMatchDistDefault},
		{"MaxMatchDistLostActive", s.MaxMatchDistLostActive},
		{"SteadyDeadBandRadius", s.SteadyDeadBandRadius},
		{"SecondChanceMinDistance", s.SecondChanceMinDistance},
		{"MergePointDistance", s.MergePointDistance},
	} {
		if f.v < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %v", ErrInvalidSettings, f.name, f.v)
		}
	}

	for _, f := range []intField{
		{"MaxInactiveFramesForCandidatePoints", s.MaxInactiveFramesForCandidatePoints},
		{"MaxInactiveFramesForLostPoints", s.MaxInactiveFramesForLostPoints},
		{"MaxInactiveFramesForActivePoints", s.MaxInactiveFramesForActivePoints},
		{"MaxFailedTestsInProbation", s.MaxFailedTestsInProbation},
		{"ProbationFrameCount", s.ProbationFrameCount},
		{"MaxFailedTestsInProbationActivePoints", s.MaxFailedTestsInProbationActivePoints},
		{"MaxHandPointUpdatesPerFrame", s.MaxHandPointUpdatesPerFrame},
	} {
		if f.v < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalidSettings, f.name, f.v)
		}
	}

	for _, f := range []floatField{
		{"PointSmoothingFactor", s.PointSmoothingFactor},
		{"PointDeadBandSmoothingFactor", s.PointDeadBandSmoothingFactor},
		{"Trajectory.DeltaHeadingFactor", s.Trajectory.DeltaHeadingFactor},
	} {
		if f.v < 0 || f.v > 1 {
			return fmt.Errorf("%w: %s must be in [0, 1], got %v", ErrInvalidSettings, f.name, f.v)
		}
	}

	if s.PointSmoothingDeadZone <= 0 {
		return fmt.Errorf("%w: PointSmoothingDeadZone must be positive, got %v", ErrInvalidSettings, s.PointSmoothingDeadZone)
	}

	if err := s.Segmentation.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return nil
}

// floatField and intField pair a setting with its name so Validate reports
// the first invalid field in a fixed order.
type floatField struct {
	name string
	v    float64
}

type intField struct {
	name string
	v    int
}
