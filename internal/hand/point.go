package hand

import (
	"image"

	"github.com/golang/geo/r3"
)

// PointType is the role of a tracked point.
type PointType int

const (
	// CandidatePoint is a point that has not yet been promoted by a wave.
	CandidatePoint PointType = iota
	// ActivePoint is a confirmed hand point.
	ActivePoint
)

func (t PointType) String() string {
	switch t {
	case CandidatePoint:
		return "candidate"
	case ActivePoint:
		return "active"
	default:
		return "unknown"
	}
}

// TrackingStatus is the per-frame tracking outcome of a point.
type TrackingStatus int

const (
	NotTracking TrackingStatus = iota
	Tracking
	Lost
	// Dead points are never updated again and are evicted by the next
	// eviction pass.
	Dead
)

func (s TrackingStatus) String() string {
	switch s {
	case NotTracking:
		return "not_tracking"
	case Tracking:
		return "tracking"
	case Lost:
		return "lost"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// Probation is the grace period a new or recovered point spends under
// observation.
type Probation struct {
	Active      bool
	FrameCount  int
	FailedTests int
}

// start enters probation. It is a no-op while already in probation.
func (p Probation) start() Probation {
	if p.Active {
		return p
	}
	return Probation{Active: true}
}

func (p Probation) end() Probation {
	p.Active = false
	p.FailedTests = 0
	return p
}

// TrackedPoint is one hand point followed across frames. Position and
// WorldPosition are at processing resolution; the FullSize fields are
// derived at sensor resolution after each frame.
type TrackedPoint struct {
	TrackingID int

	Position           image.Point
	WorldPosition      r3.Vector
	WorldDeltaPosition r3.Vector

	FullSizePosition           image.Point
	FullSizeWorldPosition      r3.Vector
	FullSizeWorldDeltaPosition r3.Vector

	// SteadyWorldPosition is the last position at which the point moved
	// further than the steady dead band.
	SteadyWorldPosition r3.Vector
	ReferenceAreaSqrt   float32

	Type      PointType
	Status    TrackingStatus
	Probation Probation

	InactiveFrameCount int
}

func newTrackedPoint(position image.Point, world r3.Vector, referenceAreaSqrt float32, id int) TrackedPoint {
	return TrackedPoint{
		TrackingID:            id,
		Position:              position,
		WorldPosition:         world,
		FullSizeWorldPosition: world,
		SteadyWorldPosition:   world,
		ReferenceAreaSqrt:     referenceAreaSqrt,
		Type:                  CandidatePoint,
		Status:                NotTracking,
	}
}

func (p *TrackedPoint) trackingState() trackingState {
	return trackingState{Status: p.Status, Probation: p.Probation}
}

func (p *TrackedPoint) setTrackingState(s trackingState) {
	p.Status = s.Status
	p.Probation = s.Probation
}
