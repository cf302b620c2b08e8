// Package hand maintains the population of tracked hand points across depth
// frames. A PointProcessor is fed one frame at a time; it updates existing
// points, promotes waving candidates, merges duplicates, evicts stale points
// and creates new points from externally supplied seeds.
//
// A PointProcessor is not safe for concurrent use. Run one per stream.
package hand

import (
	"image"
	"math"

	"github.com/ayusman/handpoint/internal/debuglog"
	"github.com/ayusman/handpoint/internal/frame"
	"github.com/ayusman/handpoint/internal/mapper"
	"github.com/ayusman/handpoint/internal/segmentation"
	"github.com/ayusman/handpoint/internal/trajectory"
	"github.com/golang/geo/r3"
)

// PointProcessor tracks hand points frame to frame.
type PointProcessor struct {
	settings Settings

	points       []TrackedPoint
	trajectories map[int]*trajectory.Analyzer

	nextTrackingID int
}

// NewPointProcessor creates a processor. It fails only for invalid settings.
func NewPointProcessor(settings Settings) (*PointProcessor, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &PointProcessor{
		settings:     settings,
		trajectories: make(map[int]*trajectory.Analyzer),
	}, nil
}

// Settings returns the processor settings.
func (p *PointProcessor) Settings() Settings {
	return p.settings
}

// TrackedPoints returns a copy of the live points in tracking order.
func (p *PointProcessor) TrackedPoints() []TrackedPoint {
	out := make([]TrackedPoint, len(p.points))
	copy(out, p.points)
	return out
}

// Reset drops every point and trajectory and restarts tracking ids at 0.
func (p *PointProcessor) Reset() {
	p.points = nil
	p.trajectories = make(map[int]*trajectory.Analyzer)
	p.nextTrackingID = 0
}

// ProcessFrame runs one full frame: area, updates, trajectories, merge,
// eviction, full resolution refinement and finally the create cycle for
// each seed.
func (p *PointProcessor) ProcessFrame(m *frame.Matrices, seeds []image.Point) {
	p.InitializeCommonCalculations(m)
	p.UpdateTrackedPoints(m)
	p.UpdateTrajectories()
	p.RemoveDuplicatePoints()
	p.RemoveStaleOrDeadPoints()
	p.UpdateFullResolutionPoints(m)

	for _, seed := range seeds {
		p.UpdateTrackedOrCreateNewPointFromSeed(m, seed)
	}

	debuglog.Diagf("frame: %d points, %d seeds", len(p.points), len(seeds))
}

// InitializeCommonCalculations fills the world point and area maps of m.
func (p *PointProcessor) InitializeCommonCalculations(m *frame.Matrices) {
	p.CalculateArea(m, m.Mapper)
}

// CalculateArea fills the world points and the per-pixel footprint area of
// m. The footprint of a pixel is the world-space rectangle between it and
// its lower right neighbour at the same depth.
func (p *PointProcessor) CalculateArea(m *frame.Matrices, scaling mapper.Scaling) {
	width, height := m.Width(), m.Height()
	fullWidth, fullHeight := m.FullSizeWidth(), m.FullSizeHeight()

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			fx := int((float64(x) + scaling.OffsetX) * scaling.Scale)
			fy := int((float64(y) + scaling.OffsetY) * scaling.Scale)

			var world r3.Vector
			if fx < fullWidth && fy < fullHeight {
				world = m.FullSizeWorldPoints[fy*fullWidth+fx]
			}
			m.WorldPoints[y*width+x] = world

			if world.Z == 0 {
				m.Area.SetFloatAt(y, x, 0)
				m.AreaSqrt.SetFloatAt(y, x, 0)
				continue
			}

			corner := mapper.DepthToWorld(scaling.Cache,
				(float64(x)+1+scaling.OffsetX)*scaling.Scale,
				(float64(y)+1+scaling.OffsetY)*scaling.Scale,
				world.Z)
			area := math.Abs((corner.X - world.X) * (corner.Y - world.Y))

			m.Area.SetFloatAt(y, x, float32(area))
			m.AreaSqrt.SetFloatAt(y, x, float32(math.Sqrt(area)))
		}
	}
}

// UpdateTrackedPoints updates active points first, then non-active points
// up to MaxHandPointUpdatesPerFrame. Every point visited by the second pass
// counts toward the cap, active ones included.
func (p *PointProcessor) UpdateTrackedPoints(m *frame.Matrices) {
	for i := range p.points {
		if p.points[i].Type == ActivePoint {
			p.updateTrackedPoint(m, &p.points[i])
		}
	}

	updated := 0
	for i := range p.points {
		if p.points[i].Type != ActivePoint {
			p.updateTrackedPoint(m, &p.points[i])
		}
		updated++
		if updated > p.settings.MaxHandPointUpdatesPerFrame {
			break
		}
	}
}

func (p *PointProcessor) updateTrackedPoint(m *frame.Matrices, pt *TrackedPoint) {
	if pt.Status == Dead {
		return
	}

	pt.InactiveFrameCount++

	target := segmentation.TrackPointFromSeed(segmentation.TrackingData{
		Matrices:               m,
		SeedPosition:           pt.Position,
		ReferenceWorldPosition: pt.WorldPosition,
		ReferenceAreaSqrt:      pt.ReferenceAreaSqrt,
		VelocityPolicy:         segmentation.VelocityPolicyIgnore,
		Settings:               p.settings.Segmentation,
		Phase:                  segmentation.TestPhaseUpdate,
	})

	p.validateAndUpdateTrackedPoint(m, pt, target)

	// A lost point gets one more try at the position it would have reached
	// had it kept moving the way it did last frame.
	xyDelta := r3.Vector{X: pt.WorldDeltaPosition.X, Y: pt.WorldDeltaPosition.Y}
	xyDist := xyDelta.Norm()
	if pt.Status == Tracking || target != segmentation.InvalidPoint || xyDist <= p.settings.SecondChanceMinDistance {
		return
	}

	direction := xyDelta.Mul(1 / xyDist)
	estimated := pt.WorldPosition.Add(direction.Mul(p.settings.Segmentation.MaxSegmentationDist))
	estimatedPosition := m.Mapper.WorldToDepth(estimated)

	seed := image.Pt(
		clamp(int(estimatedPosition.X), 0, m.Width()-1),
		clamp(int(estimatedPosition.Y), 0, m.Height()-1),
	)

	target = segmentation.TrackPointFromSeed(segmentation.TrackingData{
		Matrices:               m,
		SeedPosition:           seed,
		ReferenceWorldPosition: estimated,
		ReferenceAreaSqrt:      pt.ReferenceAreaSqrt,
		VelocityPolicy:         segmentation.VelocityPolicyIgnore,
		Settings:               p.settings.Segmentation,
		Phase:                  segmentation.TestPhaseUpdate,
	})

	// an invalid recovery must not count as another failed test
	if target != segmentation.InvalidPoint {
		p.validateAndUpdateTrackedPoint(m, pt, target)
	}

	if pt.Status == Tracking {
		debuglog.Tracef("point #%d: second chance recovered at (%d,%d)", pt.TrackingID, pt.Position.X, pt.Position.Y)
	}
}

func (p *PointProcessor) validateAndUpdateTrackedPoint(m *frame.Matrices, pt *TrackedPoint, target image.Point) {
	if pt.Status == Dead {
		return
	}

	old := pt.trackingState()
	valid := segmentation.TestPointInRange(m, target, p.settings.Segmentation, segmentation.TestBehaviorNone)

	next, probationFailed := nextTrackingState(old, pt.Type, valid, p.settings)
	pt.setTrackingState(next)

	if debuglog.TraceEnabled() {
		if !old.Probation.Active && next.Probation.Active {
			debuglog.Tracef("point #%d: started probation", pt.TrackingID)
		}
		if old.Probation.Active && !next.Probation.Active {
			debuglog.Tracef("point #%d: ended probation after %d/%d frames, failed=%t",
				pt.TrackingID, next.Probation.FrameCount, p.settings.ProbationFrameCount, probationFailed)
		}
		if next.Status != old.Status {
			debuglog.Tracef("point #%d: %s %s -> %s", pt.TrackingID, pt.Type, old.Status, next.Status)
		}
	}

	if valid {
		p.updateTrackedPointData(m, pt, target)
	}
}

func (p *PointProcessor) updateTrackedPointData(m *frame.Matrices, pt *TrackedPoint, target image.Point) {
	depth := float64(m.DepthAt(target))
	world := m.Mapper.DepthToWorld(float64(target.X), float64(target.Y), depth)

	pt.WorldDeltaPosition = world.Sub(pt.WorldPosition)
	pt.WorldPosition = world
	pt.Position = target
	pt.ReferenceAreaSqrt = m.AreaSqrtAt(target)

	if world.Distance(pt.SteadyWorldPosition) > p.settings.SteadyDeadBandRadius {
		pt.SteadyWorldPosition = world
		pt.InactiveFrameCount = 0
	}
}

// UpdateTrajectories feeds every point to its trajectory analyzer. A
// detected wave ends probation and promotes the point to active.
func (p *PointProcessor) UpdateTrajectories() {
	for i := range p.points {
		pt := &p.points[i]

		analyzer, ok := p.trajectories[pt.TrackingID]
		if !ok {
			analyzer = trajectory.NewAnalyzer(pt.TrackingID, p.settings.Trajectory)
			p.trajectories[pt.TrackingID] = analyzer
		}

		analyzer.Update(trajectory.Sample{
			Tracking:      pt.Status == Tracking,
			WorldPosition: pt.WorldPosition,
			WorldDelta:    pt.WorldDeltaPosition,
		})

		if analyzer.IsWaveGesture() {
			if pt.Type != ActivePoint {
				debuglog.Tracef("point #%d: wave detected, promoted to active", pt.TrackingID)
			}
			pt.Probation = pt.Probation.end()
			pt.Type = ActivePoint
		}
	}
}

// RemoveDuplicatePoints merges points closer than MergePointDistance. The
// survivor keeps the lower inactivity count and takes over the id and role
// of an active victim; the victim is marked Dead.
func (p *PointProcessor) RemoveDuplicatePoints() {
	for i := range p.points {
		tracked := &p.points[i]
		for j := range p.points {
			other := &p.points[j]
			if tracked.TrackingID == other.TrackingID || tracked.Status == Dead || other.Status == Dead {
				continue
			}
			if tracked.WorldPosition.Distance(other.WorldPosition) >= p.settings.MergePointDistance {
				continue
			}

			tracked.InactiveFrameCount = min(tracked.InactiveFrameCount, other.InactiveFrameCount)
			if other.Type == ActivePoint && tracked.Type != ActivePoint {
				tracked.TrackingID = other.TrackingID
				tracked.Type = ActivePoint
			}
			other.Status = Dead
			debuglog.Tracef("point #%d: merged into #%d", other.TrackingID, tracked.TrackingID)
		}
	}
}

// RemoveStaleOrDeadPoints evicts dead points and points inactive for longer
// than their ceiling, along with their trajectories.
func (p *PointProcessor) RemoveStaleOrDeadPoints() {
	kept := p.points[:0]
	for _, pt := range p.points {
		if pt.Status == Dead || pt.InactiveFrameCount > p.inactiveCeiling(pt) {
			delete(p.trajectories, pt.TrackingID)
			debuglog.Tracef("point #%d: evicted (%s, %s, inactive %d)", pt.TrackingID, pt.Type, pt.Status, pt.InactiveFrameCount)
			continue
		}
		kept = append(kept, pt)
	}
	p.points = kept

	// a merge can leave the survivor's old id without a point
	for id := range p.trajectories {
		if !p.hasPoint(id) {
			delete(p.trajectories, id)
		}
	}
}

func (p *PointProcessor) inactiveCeiling(pt TrackedPoint) int {
	if pt.Type != ActivePoint {
		return p.settings.MaxInactiveFramesForCandidatePoints
	}
	if pt.Status == Lost {
		return p.settings.MaxInactiveFramesForLostPoints
	}
	return p.settings.MaxInactiveFramesForActivePoints
}

func (p *PointProcessor) hasPoint(id int) bool {
	for i := range p.points {
		if p.points[i].TrackingID == id {
			return true
		}
	}
	return false
}

// UpdateFullResolutionPoints derives the sensor resolution fields of every
// point. Tracking active points are smoothed, and refined first when
// RefineHighResPosition is set.
func (p *PointProcessor) UpdateFullResolutionPoints(m *frame.Matrices) {
	resizeFactor := m.ResizeFactor()
	resizeNeeded := m.ResizeNeeded()

	for i := range p.points {
		pt := &p.points[i]

		// centre of the processing pixel
		pt.FullSizePosition = image.Pt(
			int((float64(pt.Position.X)+0.5)*resizeFactor),
			int((float64(pt.Position.Y)+0.5)*resizeFactor),
		)

		if !resizeNeeded || pt.Status != Tracking || pt.Type != ActivePoint {
			pt.FullSizeWorldPosition = pt.WorldPosition
			pt.FullSizeWorldDeltaPosition = pt.WorldDeltaPosition
			continue
		}

		refined := pt.WorldPosition
		if p.settings.RefineHighResPosition {
			refined = p.refinedHighResPosition(m, pt)
		}
		smoothed := p.SmoothWorldPositions(pt.FullSizeWorldPosition, refined)
		updateFromWorldPosition(pt, smoothed, m.DepthToWorld)
	}
}

// refinedHighResPosition re-runs region growth on a processing sized window
// of the full resolution depth centred on the point.
func (p *PointProcessor) refinedHighResPosition(m *frame.Matrices, pt *TrackedPoint) r3.Vector {
	if pt.WorldPosition.Z == 0 {
		return pt.WorldPosition
	}

	width, height := m.Width(), m.Height()
	left := clamp(pt.FullSizePosition.X-width/2, 0, m.FullSizeWidth()-width)
	top := clamp(pt.FullSizePosition.Y-height/2, 0, m.FullSizeHeight()-height)

	window := m.Window(image.Rect(left, top, left+width, top+height))
	defer window.Close()

	p.CalculateArea(window, window.Mapper)

	roiPosition := pt.FullSizePosition.Sub(image.Pt(left, top))
	if !window.Contains(roiPosition) {
		return pt.WorldPosition
	}
	referenceAreaSqrt := window.AreaSqrtAt(roiPosition)
	if referenceAreaSqrt == 0 {
		return pt.WorldPosition
	}

	target := segmentation.TrackPointFromSeed(segmentation.TrackingData{
		Matrices:               window,
		SeedPosition:           roiPosition,
		ReferenceWorldPosition: pt.WorldPosition,
		ReferenceAreaSqrt:      referenceAreaSqrt,
		VelocityPolicy:         segmentation.VelocityPolicyIgnore,
		Settings:               p.settings.Segmentation,
		Phase:                  segmentation.TestPhaseUpdate,
	})
	if target == segmentation.InvalidPoint {
		return pt.WorldPosition
	}

	full := target.Add(image.Pt(left, top))
	depth := float64(m.FullSizeDepthAt(full))
	if depth == 0 {
		depth = pt.WorldPosition.Z
	}
	return mapper.DepthToWorld(m.DepthToWorld, float64(full.X), float64(full.Y), depth)
}

// SmoothWorldPositions blends next into prev. Movements inside the smoothing
// dead zone ramp the factor down toward PointDeadBandSmoothingFactor so a
// still hand does not jitter.
func (p *PointProcessor) SmoothWorldPositions(prev, next r3.Vector) r3.Vector {
	factor := p.settings.PointSmoothingFactor

	delta := next.Distance(prev)
	if delta < p.settings.PointSmoothingDeadZone {
		ramp := delta / p.settings.PointSmoothingDeadZone
		factor = p.settings.PointSmoothingFactor*ramp + p.settings.PointDeadBandSmoothingFactor*(1-ramp)
	}

	return prev.Mul(1 - factor).Add(next.Mul(factor))
}

func updateFromWorldPosition(pt *TrackedPoint, world r3.Vector, cache mapper.ConversionCache) {
	depthPosition := mapper.WorldToDepth(cache, world)
	pt.FullSizePosition = image.Pt(int(depthPosition.X), int(depthPosition.Y))

	pt.FullSizeWorldDeltaPosition = world.Sub(pt.FullSizeWorldPosition)
	pt.FullSizeWorldPosition = world
}

// UpdateTrackedOrCreateNewPointFromSeed grows a region from seed and either
// refreshes the closest existing point or creates a new candidate.
func (p *PointProcessor) UpdateTrackedOrCreateNewPointFromSeed(m *frame.Matrices, seed image.Point) {
	if seed == segmentation.InvalidPoint || !m.Contains(seed) {
		return
	}
	// an earlier seed already grew over this pixel this frame
	if m.HasVelocitySignal() && m.VelocitySignal.GetUCharAt(seed.Y, seed.X) == 0 {
		return
	}
	referenceDepth := m.DepthAt(seed)
	referenceAreaSqrt := m.AreaSqrtAt(seed)
	if referenceDepth == 0 || referenceAreaSqrt == 0 {
		return
	}

	referenceWorld := m.Mapper.DepthToWorld(float64(seed.X), float64(seed.Y), float64(referenceDepth))

	target := segmentation.TrackPointFromSeed(segmentation.TrackingData{
		Matrices:               m,
		SeedPosition:           seed,
		ReferenceWorldPosition: referenceWorld,
		ReferenceAreaSqrt:      referenceAreaSqrt,
		VelocityPolicy:         segmentation.VelocityPolicyResetTTL,
		Settings:               p.settings.Segmentation,
		Phase:                  segmentation.TestPhaseCreate,
	})
	if !segmentation.TestPointInRange(m, target, p.settings.Segmentation, segmentation.TestBehaviorNone) {
		return
	}

	world := m.Mapper.DepthToWorld(float64(target.X), float64(target.Y), float64(m.DepthAt(target)))

	for i := range p.points {
		pt := &p.points[i]
		if pt.Status == Dead {
			continue
		}

		lost := pt.Status == Lost
		maxDist := p.settings.MaxMatchDistDefault
		if lost && pt.Type == ActivePoint {
			maxDist = p.settings.MaxMatchDistLostActive
		}
		if pt.WorldPosition.Distance(world) >= maxDist {
			continue
		}

		pt.InactiveFrameCount = 0
		if lost {
			pt.Position = target
			pt.ReferenceAreaSqrt = m.AreaSqrtAt(target)
			pt.WorldPosition = world
			pt.WorldDeltaPosition = r3.Vector{}
			// the recovery may be wrong, so watch it like a new point
			pt.Probation = pt.Probation.start()
			debuglog.Tracef("point #%d: recovered by seed at (%d,%d)", pt.TrackingID, target.X, target.Y)
		}
		pt.Status = Tracking
		return
	}

	pt := newTrackedPoint(target, world, m.AreaSqrtAt(target), p.nextTrackingID)
	pt.Status = Tracking
	pt.Probation = pt.Probation.start()
	pt.FullSizePosition = image.Pt(
		int((float64(target.X)+0.5)*m.ResizeFactor()),
		int((float64(target.Y)+0.5)*m.ResizeFactor()),
	)
	p.nextTrackingID++
	p.points = append(p.points, pt)

	debuglog.Tracef("point #%d: created at (%d,%d)", pt.TrackingID, target.X, target.Y)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
