package segmentation

import (
	"errors"
	"fmt"
)

// ErrInvalidSettings is returned by Settings.Validate.
var ErrInvalidSettings = errors.New("invalid segmentation settings")

// Settings tunes region growth. Distances and areas are in world units
// (millimetres and square millimetres).
type Settings struct {
	// MaxSegmentationDist bounds the region to a sphere around the
	// reference world position.
	MaxSegmentationDist float64
	// BandwidthDepthNear and BandwidthDepthFar bound accepted depths to
	// [reference-near, reference+far].
	BandwidthDepthNear float64
	BandwidthDepthFar  float64
	// SeedSearchRadius is how far, in pixels, to look for an in-band pixel
	// when the seed itself is outside the depth band.
	SeedSearchRadius int
	// MinArea and MaxArea bound the footprint area of a hand region.
	// MaxArea is only enforced when creating points.
	MinArea float64
	MaxArea float64
	// MinDepth and MaxDepth bound the depth of a valid target point.
	MinDepth float64
	MaxDepth float64

	HeightScoreFactor  float64
	DepthScoreFactor   float64
	PointInertiaFactor float64
	PointInertiaRadius float64
}

// DefaultSettings returns the segmentation settings used by the hand tracker.
func DefaultSettings() Settings {
	return Settings{
		MaxSegmentationDist: 250,
		BandwidthDepthNear:  150,
		BandwidthDepthFar:   150,
		SeedSearchRadius:    8,
		MinArea:             5000,
		MaxArea:             35000,
		MinDepth:            500,
		MaxDepth:            4000,
		HeightScoreFactor:   0.5,
		DepthScoreFactor:    1.0,
		PointInertiaFactor:  100,
		PointInertiaRadius:  40,
	}
}

// Validate checks that thresholds are usable.
func (s Settings) Validate() error {
	switch {
	case s.MaxSegmentationDist <= 0:
		return fmt.Errorf("%w: max segmentation distance must be positive, got %v", ErrInvalidSettings, s.MaxSegmentationDist)
	case s.BandwidthDepthNear < 0 || s.BandwidthDepthFar < 0:
		return fmt.Errorf("%w: depth bandwidth must not be negative", ErrInvalidSettings)
	case s.SeedSearchRadius < 0:
		return fmt.Errorf("%w: seed search radius must not be negative, got %d", ErrInvalidSettings, s.SeedSearchRadius)
	case s.MinArea < 0 || s.MaxArea < s.MinArea:
		return fmt.Errorf("%w: area bounds [%v, %v] are not ordered", ErrInvalidSettings, s.MinArea, s.MaxArea)
	case s.MinDepth < 0 || s.MaxDepth < s.MinDepth:
		return fmt.Errorf("%w: depth bounds [%v, %v] are not ordered", ErrInvalidSettings, s.MinDepth, s.MaxDepth)
	case s.PointInertiaRadius < 0 || s.PointInertiaFactor < 0:
		return fmt.Errorf("%w: point inertia must not be negative", ErrInvalidSettings)
	}
	return nil
}
