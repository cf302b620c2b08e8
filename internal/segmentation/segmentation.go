// Package segmentation implements the seed-growing primitive: a bounded
// region growth over the depth buffer that turns a seed pixel into a refined
// hand target, or reports InvalidPoint.
//
// Results depend only on the inputs and the buffer contents. The point
// processor relies on this to make tracking reproducible.
package segmentation

import (
	"image"
	"math"

	"github.com/ayusman/handpoint/internal/debuglog"
	"github.com/ayusman/handpoint/internal/frame"
	"github.com/golang/geo/r3"
	"gocv.io/x/gocv"
)

// InvalidPoint is returned when no target could be found.
var InvalidPoint = image.Point{X: -1, Y: -1}

// VelocityPolicy controls what region growth does with the velocity signal.
type VelocityPolicy int

const (
	// VelocityPolicyIgnore leaves the velocity signal untouched.
	VelocityPolicyIgnore VelocityPolicy = iota
	// VelocityPolicyResetTTL clears the velocity signal under the grown
	// region so the same moving blob cannot seed twice in one frame.
	VelocityPolicyResetTTL
)

// TestPhase selects which tests a region must pass.
type TestPhase int

const (
	TestPhaseCreate TestPhase = iota
	TestPhaseUpdate
)

// TestBehavior selects whether failed range tests are logged.
type TestBehavior int

const (
	TestBehaviorNone TestBehavior = iota
	TestBehaviorLog
)

// TrackingData is the input of one region growth.
type TrackingData struct {
	Matrices               *frame.Matrices
	SeedPosition           image.Point
	ReferenceWorldPosition r3.Vector
	ReferenceAreaSqrt      float32
	VelocityPolicy         VelocityPolicy
	Settings               Settings
	Phase                  TestPhase
}

const (
	layerUnvisited = 0
	layerRegion    = 1
)

// TrackPointFromSeed grows a region around the seed and returns the best
// scoring target pixel, or InvalidPoint.
func TrackPointFromSeed(data TrackingData) image.Point {
	m := data.Matrices
	s := data.Settings
	ref := data.ReferenceWorldPosition

	if !m.Contains(data.SeedPosition) || ref.Z <= 0 || data.ReferenceAreaSqrt <= 0 {
		return InvalidPoint
	}

	minDepth := float32(ref.Z - s.BandwidthDepthNear)
	maxDepth := float32(ref.Z + s.BandwidthDepthFar)
	inBand := func(p image.Point) bool {
		d := m.DepthAt(p)
		return d != 0 && d >= minDepth && d <= maxDepth
	}

	start, ok := nearestInBand(m, data.SeedPosition, s.SeedSearchRadius, inBand)
	if !ok {
		return InvalidPoint
	}

	radius := int(math.Ceil(s.MaxSegmentationDist / float64(data.ReferenceAreaSqrt)))
	window := image.Rect(start.X-radius, start.Y-radius, start.X+radius+1, start.Y+radius+1).
		Intersect(image.Rect(0, 0, m.Width(), m.Height()))

	m.LayerSegmentation.SetTo(gocv.NewScalar(layerUnvisited, 0, 0, 0))

	region := growRegion(m, start, window, func(p image.Point) bool {
		return inBand(p) && m.WorldPointAt(p).Distance(ref) <= s.MaxSegmentationDist
	})

	var totalArea float64
	for _, p := range region {
		totalArea += float64(m.AreaAt(p))
	}
	if totalArea < s.MinArea || (data.Phase == TestPhaseCreate && totalArea > s.MaxArea) {
		return InvalidPoint
	}

	target := InvalidPoint
	bestScore := math.Inf(-1)
	for _, p := range region {
		score := scorePoint(m.WorldPointAt(p), ref, s, data.Phase)
		if score > bestScore {
			bestScore = score
			target = p
		}
	}

	if data.VelocityPolicy == VelocityPolicyResetTTL && m.HasVelocitySignal() {
		for _, p := range region {
			m.VelocitySignal.SetUCharAt(p.Y, p.X, 0)
		}
	}

	return target
}

// nearestInBand returns seed when it is in band, otherwise the closest
// in-band pixel on the square rings around it.
func nearestInBand(m *frame.Matrices, seed image.Point, maxRadius int, inBand func(image.Point) bool) (image.Point, bool) {
	if inBand(seed) {
		return seed, true
	}
	for r := 1; r <= maxRadius; r++ {
		best := InvalidPoint
		bestDist := math.MaxInt
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if max(abs(dx), abs(dy)) != r {
					continue
				}
				p := image.Pt(seed.X+dx, seed.Y+dy)
				if !m.Contains(p) || !inBand(p) {
					continue
				}
				if d := abs(dx) + abs(dy); d < bestDist {
					bestDist = d
					best = p
				}
			}
		}
		if best != InvalidPoint {
			return best, true
		}
	}
	return InvalidPoint, false
}

// growRegion runs a 4-connected breadth-first fill from start, restricted
// to window, and returns the pixels in visit order.
func growRegion(m *frame.Matrices, start image.Point, window image.Rectangle, accept func(image.Point) bool) []image.Point {
	if !accept(start) {
		return nil
	}

	neighbors := [4]image.Point{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}}
	region := []image.Point{start}
	m.LayerSegmentation.SetUCharAt(start.Y, start.X, layerRegion)

	for i := 0; i < len(region); i++ {
		p := region[i]
		for _, n := range neighbors {
			q := p.Add(n)
			if !q.In(window) || m.LayerSegmentation.GetUCharAt(q.Y, q.X) != layerUnvisited {
				continue
			}
			if !accept(q) {
				continue
			}
			m.LayerSegmentation.SetUCharAt(q.Y, q.X, layerRegion)
			region = append(region, q)
		}
	}
	return region
}

func scorePoint(w, ref r3.Vector, s Settings, phase TestPhase) float64 {
	score := s.HeightScoreFactor*(w.Y-ref.Y) + s.DepthScoreFactor*(ref.Z-w.Z)
	if phase == TestPhaseUpdate && s.PointInertiaRadius > 0 {
		if d := w.Distance(ref); d < s.PointInertiaRadius {
			score += s.PointInertiaFactor * (1 - d/s.PointInertiaRadius)
		}
	}
	return score
}

// TestPointInRange validates a target point against the current frame.
func TestPointInRange(m *frame.Matrices, p image.Point, s Settings, behavior TestBehavior) bool {
	reason := ""
	switch {
	case p == InvalidPoint:
		reason = "invalid point"
	case !m.Contains(p):
		reason = "out of bounds"
	default:
		depth := float64(m.DepthAt(p))
		switch {
		case depth == 0:
			reason = "zero depth"
		case depth < s.MinDepth || depth > s.MaxDepth:
			reason = "depth out of range"
		case m.AreaSqrtAt(p) == 0:
			reason = "zero area"
		}
	}

	if reason == "" {
		return true
	}
	if behavior == TestBehaviorLog {
		debuglog.Tracef("test_point_in_range failed at (%d,%d): %s", p.X, p.Y, reason)
	}
	return false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
