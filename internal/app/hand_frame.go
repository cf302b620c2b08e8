package app

import (
	"image"

	"github.com/ayusman/handpoint/internal/hand"
	"github.com/golang/geo/r3"
)

// HandData is one reported hand.
type HandData struct {
	TrackingID int
	Type       hand.PointType
	Status     hand.TrackingStatus
	// Position is in processing pixels, FullSizePosition in sensor pixels.
	Position         image.Point
	FullSizePosition image.Point
	// WorldPosition and WorldDeltaPosition are the smoothed full
	// resolution world coordinates in millimetres.
	WorldPosition      r3.Vector
	WorldDeltaPosition r3.Vector
}

// HandFrame is the output of one processed depth frame.
type HandFrame struct {
	Index int
	Hands []HandData
}

// ActiveHands counts the active points in the frame.
func (f HandFrame) ActiveHands() int {
	n := 0
	for _, h := range f.Hands {
		if h.Type == hand.ActivePoint {
			n++
		}
	}
	return n
}

// handFrame selects the reported hands: tracking or lost active points
// first, then candidates when included, capped at the max hand count.
func (a *App) handFrame(index int, points []hand.TrackedPoint) HandFrame {
	a.mu.RLock()
	include, maxHands := a.includeCandidates, a.maxHands
	a.mu.RUnlock()

	return selectHands(index, points, include, maxHands)
}

func selectHands(index int, points []hand.TrackedPoint, includeCandidates bool, maxHands int) HandFrame {
	hf := HandFrame{Index: index}

	add := func(t hand.PointType) {
		for _, p := range points {
			if maxHands > 0 && len(hf.Hands) >= maxHands {
				return
			}
			if p.Type != t || !reportable(p.Status) {
				continue
			}
			hf.Hands = append(hf.Hands, HandData{
				TrackingID:         p.TrackingID,
				Type:               p.Type,
				Status:             p.Status,
				Position:           p.Position,
				FullSizePosition:   p.FullSizePosition,
				WorldPosition:      p.FullSizeWorldPosition,
				WorldDeltaPosition: p.FullSizeWorldDeltaPosition,
			})
		}
	}

	add(hand.ActivePoint)
	if includeCandidates {
		add(hand.CandidatePoint)
	}
	return hf
}

func reportable(s hand.TrackingStatus) bool {
	return s == hand.Tracking || s == hand.Lost
}
