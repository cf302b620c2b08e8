// Package config loads the JSON tuning file of the hand tracker.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the shipped tuning defaults file.
const DefaultConfigPath = "config/handpoint.defaults.json"

// TuningConfig is the root of the tuning file. Every field is optional; a nil
// field keeps the compiled-in default, so partial files are safe.
type TuningConfig struct {
	// Stream params
	ProcessingScale        *int     `json:"processing_scale,omitempty"`
	FrameInterval          *string  `json:"frame_interval,omitempty"` // duration string like "33ms"
	HorizontalFOVDegrees   *float64 `json:"horizontal_fov_degrees,omitempty"`
	VerticalFOVDegrees     *float64 `json:"vertical_fov_degrees,omitempty"`
	IncludeCandidatePoints *bool    `json:"include_candidate_points,omitempty"`
	MaxHandCount           *int     `json:"max_hand_count,omitempty"`

	// Seed detector params
	MotionThreshold *float64 `json:"motion_threshold,omitempty"`
	MinContourArea  *float64 `json:"min_contour_area,omitempty"`
	MaxSeeds        *int     `json:"max_seeds,omitempty"`

	// Point processor params
	MaxMatchDistDefault                   *float64 `json:"max_match_dist_default,omitempty"`
	MaxMatchDistLostActive                *float64 `json:"max_match_dist_lost_active,omitempty"`
	SteadyDeadBandRadius                  *float64 `json:"steady_dead_band_radius,omitempty"`
	MaxInactiveFramesForCandidatePoints   *int     `json:"max_inactive_frames_for_candidate_points,omitempty"`
	MaxInactiveFramesForLostPoints        *int     `json:"max_inactive_frames_for_lost_points,omitempty"`
	MaxInactiveFramesForActivePoints      *int     `json:"max_inactive_frames_for_active_points,omitempty"`
	PointSmoothingFactor                  *float64 `json:"point_smoothing_factor,omitempty"`
	PointDeadBandSmoothingFactor          *float64 `json:"point_dead_band_smoothing_factor,omitempty"`
	PointSmoothingDeadZone                *float64 `json:"point_smoothing_dead_zone,omitempty"`
	MaxFailedTestsInProbation             *int     `json:"max_failed_tests_in_probation,omitempty"`
	ProbationFrameCount                   *int     `json:"probation_frame_count,omitempty"`
	MaxFailedTestsInProbationActivePoints *int     `json:"max_failed_tests_in_probation_active_points,omitempty"`
	SecondChanceMinDistance               *float64 `json:"second_chance_min_distance,omitempty"`
	MaxHandPointUpdatesPerFrame           *int     `json:"max_hand_point_updates_per_frame,omitempty"`
	MergePointDistance                    *float64 `json:"merge_point_distance,omitempty"`
	RefineHighResPosition                 *bool    `json:"refine_high_res_position,omitempty"`

	// Segmentation params
	MaxSegmentationDist *float64 `json:"max_segmentation_dist,omitempty"`
	BandwidthDepthNear  *float64 `json:"bandwidth_depth_near,omitempty"`
	BandwidthDepthFar   *float64 `json:"bandwidth_depth_far,omitempty"`
	SeedSearchRadius    *int     `json:"seed_search_radius,omitempty"`
	MinArea             *float64 `json:"min_area,omitempty"`
	MaxArea             *float64 `json:"max_area,omitempty"`
	MinDepth            *float64 `json:"min_depth,omitempty"`
	MaxDepth            *float64 `json:"max_depth,omitempty"`
	HeightScoreFactor   *float64 `json:"height_score_factor,omitempty"`
	DepthScoreFactor    *float64 `json:"depth_score_factor,omitempty"`
	PointInertiaFactor  *float64 `json:"point_inertia_factor,omitempty"`
	PointInertiaRadius  *float64 `json:"point_inertia_radius,omitempty"`

	// Trajectory params
	MaxFramesBetweenInflections   *int     `json:"max_frames_between_inflections,omitempty"`
	MinHeadingDiffForInflection   *float64 `json:"min_heading_diff_for_inflection,omitempty"`
	MaxHeadingDiffForContinuation *float64 `json:"max_heading_diff_for_continuation,omitempty"`
	DeltaHeadingFactor            *float64 `json:"delta_heading_factor,omitempty"`
	MinHeadingDist                *float64 `json:"min_heading_dist,omitempty"`
	MinWaveCount                  *int     `json:"min_wave_count,omitempty"`
	MinSteadyDelta                *float64 `json:"min_steady_delta,omitempty"`
	MaxTrajectoryHistory          *int     `json:"max_trajectory_history,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory or
// one of its parents. Panics if the file cannot be loaded; intended for tests.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set.
func (c *TuningConfig) Validate() error {
	if c.ProcessingScale != nil && *c.ProcessingScale < 1 {
		return fmt.Errorf("processing_scale must be at least 1, got %d", *c.ProcessingScale)
	}
	if c.FrameInterval != nil && *c.FrameInterval != "" {
		d, err := time.ParseDuration(*c.FrameInterval)
		if err != nil {
			return fmt.Errorf("invalid frame_interval '%s': %w", *c.FrameInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("frame_interval must be positive, got %s", d)
		}
	}
	if c.MaxHandCount != nil && *c.MaxHandCount < 0 {
		return fmt.Errorf("max_hand_count must be non-negative, got %d", *c.MaxHandCount)
	}

	for _, f := range []floatField{
		{"horizontal_fov_degrees", c.HorizontalFOVDegrees},
		{"vertical_fov_degrees", c.VerticalFOVDegrees},
	} {
		if f.v != nil && (*f.v <= 0 || *f.v >= 180) {
			return fmt.Errorf("%s must be between 0 and 180, got %f", f.name, *f.v)
		}
	}

	for _, f := range []floatField{
		{"point_smoothing_factor", c.PointSmoothingFactor},
		{"point_dead_band_smoothing_factor", c.PointDeadBandSmoothingFactor},
		{"delta_heading_factor", c.DeltaHeadingFactor},
	} {
		if f.v != nil && (*f.v < 0 || *f.v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", f.name, *f.v)
		}
	}

	if c.PointSmoothingDeadZone != nil && *c.PointSmoothingDeadZone <= 0 {
		return fmt.Errorf("point_smoothing_dead_zone must be positive, got %f", *c.PointSmoothingDeadZone)
	}

	for _, f := range []floatField{
		{"motion_threshold", c.MotionThreshold},
		{"min_contour_area", c.MinContourArea},
		{"max_match_dist_default", c.MaxMatchDistDefault},
		{"max_match_dist_lost_active", c.MaxMatchDistLostActive},
		{"steady_dead_band_radius", c.SteadyDeadBandRadius},
		{"second_chance_min_distance", c.SecondChanceMinDistance},
		{"merge_point_distance", c.MergePointDistance},
		{"max_segmentation_dist", c.MaxSegmentationDist},
		{"bandwidth_depth_near", c.BandwidthDepthNear},
		{"bandwidth_depth_far", c.BandwidthDepthFar},
		{"min_area", c.MinArea},
		{"max_area", c.MaxArea},
		{"min_depth", c.MinDepth},
		{"max_depth", c.MaxDepth},
		{"point_inertia_factor", c.PointInertiaFactor},
		{"point_inertia_radius", c.PointInertiaRadius},
		{"min_heading_dist", c.MinHeadingDist},
		{"min_steady_delta", c.MinSteadyDelta},
		{"min_heading_diff_for_inflection", c.MinHeadingDiffForInflection},
		{"max_heading_diff_for_continuation", c.MaxHeadingDiffForContinuation},
	} {
		if f.v != nil && *f.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", f.name, *f.v)
		}
	}

	for _, f := range []intField{
		{"max_seeds", c.MaxSeeds},
		{"max_inactive_frames_for_candidate_points", c.MaxInactiveFramesForCandidatePoints},
		{"max_inactive_frames_for_lost_points", c.MaxInactiveFramesForLostPoints},
		{"max_inactive_frames_for_active_points", c.MaxInactiveFramesForActivePoints},
		{"max_failed_tests_in_probation", c.MaxFailedTestsInProbation},
		{"probation_frame_count", c.ProbationFrameCount},
		{"max_failed_tests_in_probation_active_points", c.MaxFailedTestsInProbationActivePoints},
		{"max_hand_point_updates_per_frame", c.MaxHandPointUpdatesPerFrame},
		{"seed_search_radius", c.SeedSearchRadius},
		{"max_frames_between_inflections", c.MaxFramesBetweenInflections},
		{"min_wave_count", c.MinWaveCount},
		{"max_trajectory_history", c.MaxTrajectoryHistory},
	} {
		if f.v != nil && *f.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", f.name, *f.v)
		}
	}

	return nil
}

// GetProcessingScale returns the processing_scale value or the default.
func (c *TuningConfig) GetProcessingScale() int {
	if c.ProcessingScale == nil {
		return 2
	}
	return *c.ProcessingScale
}

// GetFrameInterval parses and returns the FrameInterval as a time.Duration.
func (c *TuningConfig) GetFrameInterval() time.Duration {
	if c.FrameInterval == nil || *c.FrameInterval == "" {
		return 33 * time.Millisecond // ~30 fps
	}
	d, err := time.ParseDuration(*c.FrameInterval)
	if err != nil {
		return 33 * time.Millisecond
	}
	return d
}

// GetHorizontalFOVDegrees returns the horizontal_fov_degrees value or the default.
func (c *TuningConfig) GetHorizontalFOVDegrees() float64 {
	if c.HorizontalFOVDegrees == nil {
		return 58
	}
	return *c.HorizontalFOVDegrees
}

// GetVerticalFOVDegrees returns the vertical_fov_degrees value or the default.
func (c *TuningConfig) GetVerticalFOVDegrees() float64 {
	if c.VerticalFOVDegrees == nil {
		return 45
	}
	return *c.VerticalFOVDegrees
}

// GetIncludeCandidatePoints returns the include_candidate_points value or the default.
func (c *TuningConfig) GetIncludeCandidatePoints() bool {
	if c.IncludeCandidatePoints == nil {
		return false
	}
	return *c.IncludeCandidatePoints
}

// GetMaxHandCount returns the max_hand_count value or the default.
func (c *TuningConfig) GetMaxHandCount() int {
	if c.MaxHandCount == nil {
		return 2
	}
	return *c.MaxHandCount
}

// GetMotionThreshold returns the motion_threshold value or the default.
func (c *TuningConfig) GetMotionThreshold() float64 {
	if c.MotionThreshold == nil {
		return 25 // mm of depth change
	}
	return *c.MotionThreshold
}

// GetMinContourArea returns the min_contour_area value or the default.
func (c *TuningConfig) GetMinContourArea() float64 {
	if c.MinContourArea == nil {
		return 40 // processing pixels
	}
	return *c.MinContourArea
}

// GetMaxSeeds returns the max_seeds value or the default.
func (c *TuningConfig) GetMaxSeeds() int {
	if c.MaxSeeds == nil {
		return 4
	}
	return *c.MaxSeeds
}

// floatField and intField pair a setting with its name so Validate reports
// the first invalid field in a fixed order.
type floatField struct {
	name string
	v    *float64
}

type intField struct {
	name string
	v    *int
}
