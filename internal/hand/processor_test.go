package hand

import (
	"image"
	"testing"

	"github.com/ayusman/handpoint/internal/frame"
	"github.com/ayusman/handpoint/testdata"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

const testScale = 2

func newTestProcessor(t *testing.T, settings Settings) *PointProcessor {
	t.Helper()
	p, err := NewPointProcessor(settings)
	require.NoError(t, err)
	return p
}

func sceneMatrices(t *testing.T, boxes ...testdata.Box) *frame.Matrices {
	t.Helper()
	m := testdata.NewScene(boxes...).Matrices(testScale)
	t.Cleanup(m.Close)
	return m
}

// handBox is a flat 16x24 processing pixel hand at one metre.
func handBox(center image.Point) testdata.Box {
	return testdata.HandBox(center, 16, 24, testScale, 1000)
}

func worldAt(m *frame.Matrices, x, y int, depth float64) r3.Vector {
	return m.Mapper.DepthToWorld(float64(x), float64(y), depth)
}

// trackedAt returns an active tracking point at processing pixel (x, y).
func trackedAt(m *frame.Matrices, id, x, y int) TrackedPoint {
	w := worldAt(m, x, y, 1000)
	pt := newTrackedPoint(image.Pt(x, y), w, 6.9, id)
	pt.Type = ActivePoint
	pt.Status = Tracking
	return pt
}

func TestCalculateArea(t *testing.T) {
	m := sceneMatrices(t, handBox(image.Pt(80, 60)))
	p := newTestProcessor(t, DefaultSettings())

	p.InitializeCommonCalculations(m)

	// two sensor pixels per processing pixel at one metre
	assert.InDelta(t, 47.84, m.AreaAt(image.Pt(80, 60)), 0.1)
	assert.InDelta(t, 6.917, m.AreaSqrtAt(image.Pt(80, 60)), 0.01)
	assert.Zero(t, m.AreaAt(image.Pt(10, 10)))
	assert.Zero(t, m.AreaSqrtAt(image.Pt(10, 10)))

	assert.Equal(t, m.FullSizeWorldPoints[120*testdata.FullWidth+160], m.WorldPointAt(image.Pt(80, 60)))
	assert.InDelta(t, 0, m.WorldPointAt(image.Pt(80, 60)).X, 1e-9)
}

func TestCreatePointFromSeed(t *testing.T) {
	m := sceneMatrices(t, handBox(image.Pt(100, 80)))
	p := newTestProcessor(t, DefaultSettings())

	p.InitializeCommonCalculations(m)
	p.UpdateTrackedOrCreateNewPointFromSeed(m, image.Pt(100, 80))

	points := p.TrackedPoints()
	require.Len(t, points, 1)

	pt := points[0]
	assert.Equal(t, 0, pt.TrackingID)
	assert.Equal(t, CandidatePoint, pt.Type)
	assert.Equal(t, Tracking, pt.Status)
	assert.Equal(t, Probation{Active: true, FrameCount: 0, FailedTests: 0}, pt.Probation)

	// top of the hand
	assert.Equal(t, image.Pt(100, 68), pt.Position)
	assert.Equal(t, 1000.0, pt.WorldPosition.Z)
	assert.Equal(t, pt.WorldPosition, pt.SteadyWorldPosition)
	assert.Greater(t, pt.ReferenceAreaSqrt, float32(0))
	assert.Equal(t, image.Pt(201, 137), pt.FullSizePosition)
}

func TestCreatePointRejectsSeeds(t *testing.T) {
	m := sceneMatrices(t, handBox(image.Pt(100, 80)))

	tests := []struct {
		name string
		seed image.Point
	}{
		{"invalid", image.Pt(-1, -1)},
		{"out of bounds", image.Pt(400, 80)},
		{"zero depth", image.Pt(10, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProcessor(t, DefaultSettings())
			p.InitializeCommonCalculations(m)
			p.UpdateTrackedOrCreateNewPointFromSeed(m, tt.seed)
			assert.Empty(t, p.TrackedPoints())
		})
	}
}

func TestCreatePointConsumesVelocitySignal(t *testing.T) {
	box := handBox(image.Pt(80, 60))
	seeds := []image.Point{image.Pt(74, 66), image.Pt(86, 66)}

	tests := []struct {
		name     string
		velocity bool
		want     int
	}{
		{"without velocity signal", false, 2},
		{"seeds share one moving blob", true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sceneMatrices(t, box)
			if tt.velocity {
				mask := gocv.Zeros(m.Height(), m.Width(), gocv.MatTypeCV8U)
				for y := 48; y < 72; y++ {
					for x := 72; x < 88; x++ {
						mask.SetUCharAt(y, x, 255)
					}
				}
				m.SetVelocitySignal(mask)
			}

			settings := DefaultSettings()
			// never match, so each accepted seed creates a point
			settings.MaxMatchDistDefault = 0
			p := newTestProcessor(t, settings)
			p.InitializeCommonCalculations(m)

			for _, seed := range seeds {
				p.UpdateTrackedOrCreateNewPointFromSeed(m, seed)
			}
			assert.Len(t, p.TrackedPoints(), tt.want)
		})
	}
}

func TestCreatePointMatchesExisting(t *testing.T) {
	m := sceneMatrices(t, handBox(image.Pt(100, 80)))
	p := newTestProcessor(t, DefaultSettings())
	p.InitializeCommonCalculations(m)

	p.UpdateTrackedOrCreateNewPointFromSeed(m, image.Pt(100, 80))
	p.points[0].InactiveFrameCount = 12

	p.UpdateTrackedOrCreateNewPointFromSeed(m, image.Pt(98, 84))

	points := p.TrackedPoints()
	require.Len(t, points, 1)
	assert.Equal(t, 0, points[0].InactiveFrameCount)
	assert.Equal(t, 0, points[0].TrackingID)
}

func TestCreatePointRecoversLostPoint(t *testing.T) {
	tests := []struct {
		name      string
		pointType PointType
		recovered bool
	}{
		// 300mm away: inside the lost-active match distance only
		{"lost active", ActivePoint, true},
		{"lost candidate", CandidatePoint, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sceneMatrices(t, handBox(image.Pt(100, 80)))
			p := newTestProcessor(t, DefaultSettings())
			p.InitializeCommonCalculations(m)

			lost := newTrackedPoint(image.Pt(150, 68), r3.Vector{X: 450, Y: -55, Z: 1000}, 6.9, 5)
			lost.Type = tt.pointType
			lost.Status = Lost
			lost.WorldDeltaPosition = r3.Vector{X: 20}
			lost.InactiveFrameCount = 9
			p.points = append(p.points, lost)
			p.nextTrackingID = 6

			p.UpdateTrackedOrCreateNewPointFromSeed(m, image.Pt(100, 80))

			points := p.TrackedPoints()
			if !tt.recovered {
				require.Len(t, points, 2)
				assert.Equal(t, Lost, points[0].Status)
				assert.Equal(t, 6, points[1].TrackingID)
				return
			}

			require.Len(t, points, 1)
			pt := points[0]
			assert.Equal(t, 5, pt.TrackingID)
			assert.Equal(t, Tracking, pt.Status)
			assert.Equal(t, image.Pt(100, 68), pt.Position)
			assert.Equal(t, r3.Vector{}, pt.WorldDeltaPosition)
			assert.Equal(t, 0, pt.InactiveFrameCount)
			assert.True(t, pt.Probation.Active)
			assert.Equal(t, 0, pt.Probation.FrameCount)
		})
	}
}

func TestTrackingIDsAreUnique(t *testing.T) {
	boxes := []testdata.Box{handBox(image.Pt(40, 40)), handBox(image.Pt(120, 80))}
	seeds := []image.Point{{X: 40, Y: 40}, {X: 120, Y: 80}, {X: 40, Y: 42}}
	p := newTestProcessor(t, DefaultSettings())

	for i := 0; i < 5; i++ {
		m := testdata.NewScene(boxes...).Matrices(testScale)
		p.ProcessFrame(m, seeds)
		m.Close()

		ids := map[int]bool{}
		for _, pt := range p.TrackedPoints() {
			assert.False(t, ids[pt.TrackingID], "duplicate id %d in frame %d", pt.TrackingID, i)
			ids[pt.TrackingID] = true
		}
		assert.Equal(t, map[int]bool{0: true, 1: true}, ids)
	}

	p.Reset()
	assert.Empty(t, p.TrackedPoints())
	assert.Empty(t, p.trajectories)

	m := sceneMatrices(t, boxes...)
	p.ProcessFrame(m, seeds[:1])
	require.Len(t, p.TrackedPoints(), 1)
	assert.Equal(t, 0, p.TrackedPoints()[0].TrackingID)
}

func TestActivePointLostAfterFailedUpdates(t *testing.T) {
	m := sceneMatrices(t)
	p := newTestProcessor(t, DefaultSettings())
	p.InitializeCommonCalculations(m)
	p.points = []TrackedPoint{trackedAt(m, 0, 80, 60)}

	want := []trackingState{
		{Status: Tracking, Probation: Probation{Active: true, FrameCount: 1, FailedTests: 1}},
		{Status: Tracking, Probation: Probation{Active: true, FrameCount: 2, FailedTests: 2}},
		{Status: Lost, Probation: Probation{Active: false, FrameCount: 3, FailedTests: 0}},
	}
	for i, w := range want {
		p.UpdateTrackedPoints(m)
		assert.Equal(t, w, p.points[0].trackingState(), "update %d", i+1)
		assert.Equal(t, i+1, p.points[0].InactiveFrameCount)
	}
}

func TestCandidateLostAfterFailedProbation(t *testing.T) {
	m := sceneMatrices(t)
	p := newTestProcessor(t, DefaultSettings())
	p.InitializeCommonCalculations(m)

	pt := trackedAt(m, 0, 80, 60)
	pt.Type = CandidatePoint
	pt.Probation = pt.Probation.start()
	p.points = []TrackedPoint{pt}

	for i := 1; i < p.settings.MaxFailedTestsInProbation; i++ {
		p.UpdateTrackedPoints(m)
		require.Equal(t, Tracking, p.points[0].Status, "update %d", i)
	}
	p.UpdateTrackedPoints(m)
	assert.Equal(t, Lost, p.points[0].Status)
	assert.False(t, p.points[0].Probation.Active)
}

func TestSecondChanceRecovery(t *testing.T) {
	tests := []struct {
		name         string
		boxes        []testdata.Box
		wantStatus   TrackingStatus
		wantFailed   int
		wantPosition image.Point
	}{
		{
			name:         "hand where the motion leads",
			boxes:        []testdata.Box{testdata.HandBox(image.Pt(78, 62), 16, 24, testScale, 1000)},
			wantStatus:   Tracking,
			wantFailed:   0,
			wantPosition: image.Pt(76, 60),
		},
		{
			name:         "nothing there",
			wantStatus:   Lost,
			wantFailed:   1,
			wantPosition: image.Pt(40, 60),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sceneMatrices(t, tt.boxes...)
			p := newTestProcessor(t, DefaultSettings())
			p.InitializeCommonCalculations(m)

			pt := trackedAt(m, 3, 40, 60)
			pt.Status = Lost
			pt.WorldDeltaPosition = r3.Vector{X: 150}
			p.points = []TrackedPoint{pt}

			p.UpdateTrackedPoints(m)

			got := p.points[0]
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantFailed, got.Probation.FailedTests)
			assert.Equal(t, tt.wantPosition, got.Position)
			assert.True(t, got.Probation.Active)
		})
	}
}

func TestSecondChanceNeedsMotion(t *testing.T) {
	m := sceneMatrices(t, testdata.HandBox(image.Pt(78, 62), 16, 24, testScale, 1000))
	p := newTestProcessor(t, DefaultSettings())
	p.InitializeCommonCalculations(m)

	pt := trackedAt(m, 3, 40, 60)
	pt.Status = Lost
	// below SecondChanceMinDistance
	pt.WorldDeltaPosition = r3.Vector{X: 60, Z: 400}
	p.points = []TrackedPoint{pt}

	p.UpdateTrackedPoints(m)
	assert.Equal(t, Lost, p.points[0].Status)
	assert.Equal(t, image.Pt(40, 60), p.points[0].Position)
}

func TestUpdateCapCountsEveryVisitedPoint(t *testing.T) {
	m := sceneMatrices(t)
	p := newTestProcessor(t, DefaultSettings())
	p.InitializeCommonCalculations(m)

	for i := 0; i < 6; i++ {
		pt := trackedAt(m, i, 10+20*i, 60)
		if i >= 2 {
			pt.Type = CandidatePoint
		}
		p.points = append(p.points, pt)
	}

	p.UpdateTrackedPoints(m)

	var inactive []int
	for _, pt := range p.points {
		inactive = append(inactive, pt.InactiveFrameCount)
	}
	assert.Equal(t, []int{1, 1, 1, 1, 0, 0}, inactive)
}

func TestRemoveDuplicatePoints(t *testing.T) {
	near := func(id int, pointType PointType, inactive int, dx float64) TrackedPoint {
		pt := newTrackedPoint(image.Pt(80, 60), r3.Vector{X: dx, Z: 1000}, 6.9, id)
		pt.Type = pointType
		pt.Status = Tracking
		pt.InactiveFrameCount = inactive
		return pt
	}

	tests := []struct {
		name         string
		points       []TrackedPoint
		wantID       int
		wantType     PointType
		wantInactive int
	}{
		{
			name:         "candidate before active",
			points:       []TrackedPoint{near(9, CandidatePoint, 4, 0), near(7, ActivePoint, 10, 20)},
			wantID:       7,
			wantType:     ActivePoint,
			wantInactive: 4,
		},
		{
			name:         "active before candidate",
			points:       []TrackedPoint{near(7, ActivePoint, 10, 0), near(9, CandidatePoint, 4, 20)},
			wantID:       7,
			wantType:     ActivePoint,
			wantInactive: 4,
		},
		{
			name:         "two candidates",
			points:       []TrackedPoint{near(3, CandidatePoint, 8, 0), near(4, CandidatePoint, 2, 20)},
			wantID:       3,
			wantType:     CandidatePoint,
			wantInactive: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProcessor(t, DefaultSettings())
			p.points = tt.points

			p.RemoveDuplicatePoints()
			afterFirst := p.TrackedPoints()
			p.RemoveDuplicatePoints()
			assert.Equal(t, afterFirst, p.TrackedPoints(), "merge must be idempotent")

			p.RemoveStaleOrDeadPoints()
			points := p.TrackedPoints()
			require.Len(t, points, 1)
			assert.Equal(t, tt.wantID, points[0].TrackingID)
			assert.Equal(t, tt.wantType, points[0].Type)
			assert.Equal(t, tt.wantInactive, points[0].InactiveFrameCount)

			p.RemoveDuplicatePoints()
			assert.Equal(t, points, p.TrackedPoints())
		})
	}
}

func TestRemoveDuplicatePointsKeepsDistantPoints(t *testing.T) {
	p := newTestProcessor(t, DefaultSettings())
	a := newTrackedPoint(image.Pt(10, 10), r3.Vector{Z: 1000}, 6.9, 0)
	b := newTrackedPoint(image.Pt(20, 10), r3.Vector{X: 60, Z: 1000}, 6.9, 1)
	a.Status, b.Status = Tracking, Tracking
	p.points = []TrackedPoint{a, b}

	p.RemoveDuplicatePoints()
	for _, pt := range p.TrackedPoints() {
		assert.Equal(t, Tracking, pt.Status)
	}
}

func TestRemoveStaleOrDeadPoints(t *testing.T) {
	s := DefaultSettings()
	tests := []struct {
		name      string
		pointType PointType
		status    TrackingStatus
		inactive  int
		evicted   bool
	}{
		{"candidate at ceiling", CandidatePoint, Tracking, s.MaxInactiveFramesForCandidatePoints, false},
		{"candidate over ceiling", CandidatePoint, Tracking, s.MaxInactiveFramesForCandidatePoints + 1, true},
		{"lost candidate uses candidate ceiling", CandidatePoint, Lost, s.MaxInactiveFramesForLostPoints + 1, false},
		{"lost active at ceiling", ActivePoint, Lost, s.MaxInactiveFramesForLostPoints, false},
		{"lost active over ceiling", ActivePoint, Lost, s.MaxInactiveFramesForLostPoints + 1, true},
		{"active at ceiling", ActivePoint, Tracking, s.MaxInactiveFramesForActivePoints, false},
		{"active over ceiling", ActivePoint, Tracking, s.MaxInactiveFramesForActivePoints + 1, true},
		{"dead", ActivePoint, Dead, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProcessor(t, s)
			pt := newTrackedPoint(image.Pt(5, 5), r3.Vector{Z: 1000}, 6.9, 11)
			pt.Type = tt.pointType
			pt.Status = tt.status
			pt.InactiveFrameCount = tt.inactive
			p.points = []TrackedPoint{pt}
			p.UpdateTrajectories()
			require.Contains(t, p.trajectories, 11)

			p.RemoveStaleOrDeadPoints()

			if tt.evicted {
				assert.Empty(t, p.TrackedPoints())
				assert.NotContains(t, p.trajectories, 11)
			} else {
				assert.Len(t, p.TrackedPoints(), 1)
				assert.Contains(t, p.trajectories, 11)
			}
		})
	}
}

func TestMergedPointTrajectoriesAreDropped(t *testing.T) {
	p := newTestProcessor(t, DefaultSettings())
	candidate := newTrackedPoint(image.Pt(80, 60), r3.Vector{Z: 1000}, 6.9, 9)
	candidate.Status = Tracking
	active := newTrackedPoint(image.Pt(80, 60), r3.Vector{X: 10, Z: 1000}, 6.9, 7)
	active.Type = ActivePoint
	active.Status = Tracking
	p.points = []TrackedPoint{candidate, active}

	p.UpdateTrajectories()
	p.RemoveDuplicatePoints()
	p.RemoveStaleOrDeadPoints()

	require.Len(t, p.points, 1)
	assert.Equal(t, 7, p.points[0].TrackingID)
	assert.Empty(t, p.trajectories)

	p.UpdateTrajectories()
	assert.Contains(t, p.trajectories, 7)
}

func TestUpdateTrajectoriesPromotesWave(t *testing.T) {
	p := newTestProcessor(t, DefaultSettings())
	pt := newTrackedPoint(image.Pt(80, 60), r3.Vector{Z: 1000}, 6.9, 0)
	pt.Status = Tracking
	pt.Probation = pt.Probation.start()
	p.points = []TrackedPoint{pt}

	dir := 1.0
	for i := 0; i < 17; i++ {
		require.Equal(t, CandidatePoint, p.points[0].Type, "promoted early at frame %d", i)
		if i > 0 && i%5 == 0 {
			dir = -dir
		}
		p.points[0].WorldDeltaPosition = r3.Vector{X: 40 * dir}
		p.points[0].WorldPosition = p.points[0].WorldPosition.Add(p.points[0].WorldDeltaPosition)
		p.UpdateTrajectories()
	}

	assert.Equal(t, ActivePoint, p.points[0].Type)
	assert.False(t, p.points[0].Probation.Active)
}

func TestUpdateFullResolutionPoints(t *testing.T) {
	m := sceneMatrices(t, handBox(image.Pt(80, 60)))
	p := newTestProcessor(t, DefaultSettings())

	candidate := trackedAt(m, 0, 80, 60)
	candidate.Type = CandidatePoint
	candidate.WorldDeltaPosition = r3.Vector{X: 3}

	active := trackedAt(m, 1, 30, 30)
	active.FullSizeWorldPosition = r3.Vector{}

	lost := trackedAt(m, 2, 120, 90)
	lost.Status = Lost

	p.points = []TrackedPoint{candidate, active, lost}
	p.UpdateFullResolutionPoints(m)

	got := p.TrackedPoints()

	assert.Equal(t, image.Pt(161, 121), got[0].FullSizePosition)
	assert.Equal(t, candidate.WorldPosition, got[0].FullSizeWorldPosition)
	assert.Equal(t, candidate.WorldDeltaPosition, got[0].FullSizeWorldDeltaPosition)

	// a jump larger than the dead zone uses the nominal factor
	want := active.WorldPosition.Mul(0.75)
	assert.InDelta(t, want.X, got[1].FullSizeWorldPosition.X, 1e-6)
	assert.InDelta(t, want.Z, got[1].FullSizeWorldPosition.Z, 1e-6)
	assert.InDelta(t, want.Z, got[1].FullSizeWorldDeltaPosition.Z, 1e-6)
	assert.InDelta(t, 60, got[1].FullSizePosition.X, 1)
	assert.InDelta(t, 60, got[1].FullSizePosition.Y, 1)

	assert.Equal(t, lost.WorldPosition, got[2].FullSizeWorldPosition)
	assert.Equal(t, image.Pt(241, 181), got[2].FullSizePosition)
}

func TestUpdateFullResolutionPointsWithoutResize(t *testing.T) {
	m := testdata.NewScene(handBox(image.Pt(80, 60))).Matrices(1)
	defer m.Close()
	p := newTestProcessor(t, DefaultSettings())

	active := trackedAt(m, 0, 80, 60)
	p.points = []TrackedPoint{active}
	p.UpdateFullResolutionPoints(m)

	assert.Equal(t, active.WorldPosition, p.points[0].FullSizeWorldPosition)
	assert.Equal(t, image.Pt(80, 60), p.points[0].FullSizePosition)
}

func TestRefinedHighResPosition(t *testing.T) {
	m := sceneMatrices(t, handBox(image.Pt(80, 60)))
	p := newTestProcessor(t, DefaultSettings())
	p.InitializeCommonCalculations(m)

	pt := trackedAt(m, 0, 80, 60)
	pt.FullSizePosition = image.Pt(161, 121)

	refined := p.refinedHighResPosition(m, &pt)
	assert.Equal(t, 1000.0, refined.Z)
	assert.Less(t, refined.Distance(pt.WorldPosition), 10.0)

	// the parent context is intact after the window is closed
	assert.Equal(t, float32(1000), m.FullSizeDepthAt(image.Pt(161, 121)))
	assert.InDelta(t, 47.84, m.AreaAt(image.Pt(80, 60)), 0.1)

	pt.WorldPosition = r3.Vector{}
	assert.Equal(t, r3.Vector{}, p.refinedHighResPosition(m, &pt))
}

func TestRefinementIsApplied(t *testing.T) {
	settings := DefaultSettings()
	settings.RefineHighResPosition = true

	m := sceneMatrices(t, handBox(image.Pt(80, 60)))
	p := newTestProcessor(t, settings)
	p.InitializeCommonCalculations(m)

	pt := trackedAt(m, 0, 80, 60)
	pt.FullSizeWorldPosition = pt.WorldPosition
	p.points = []TrackedPoint{pt}

	p.UpdateFullResolutionPoints(m)
	got := p.points[0]
	assert.InDelta(t, 1000, got.FullSizeWorldPosition.Z, 1)
	assert.Less(t, got.FullSizeWorldPosition.Distance(pt.WorldPosition), 10.0)
}

func TestSmoothWorldPositions(t *testing.T) {
	s := DefaultSettings()
	p := newTestProcessor(t, s)
	prev := r3.Vector{Z: 1000}

	t.Run("no movement", func(t *testing.T) {
		got := p.SmoothWorldPositions(prev, prev)
		assert.InDelta(t, prev.Z, got.Z, 1e-9)
		assert.Zero(t, got.X)
	})

	t.Run("tiny movement uses the dead band factor", func(t *testing.T) {
		next := prev.Add(r3.Vector{X: 0.001})
		got := p.SmoothWorldPositions(prev, next)
		assert.InDelta(t, 0.001*s.PointDeadBandSmoothingFactor, got.X, 1e-6)
	})

	t.Run("large movement uses the nominal factor", func(t *testing.T) {
		next := prev.Add(r3.Vector{X: 200})
		got := p.SmoothWorldPositions(prev, next)
		assert.InDelta(t, 200*s.PointSmoothingFactor, got.X, 1e-9)
	})

	t.Run("continuous at the dead zone edge", func(t *testing.T) {
		below := p.SmoothWorldPositions(prev, prev.Add(r3.Vector{X: s.PointSmoothingDeadZone - 1e-6}))
		at := p.SmoothWorldPositions(prev, prev.Add(r3.Vector{X: s.PointSmoothingDeadZone}))
		assert.InDelta(t, at.X, below.X, 1e-4)
	})

	t.Run("monotonic in distance", func(t *testing.T) {
		last := 0.0
		for d := 0.0; d <= 2*s.PointSmoothingDeadZone; d += 1 {
			got := p.SmoothWorldPositions(prev, prev.Add(r3.Vector{X: d}))
			assert.GreaterOrEqual(t, got.X, last)
			last = got.X
		}
	})
}

func TestNextTrackingState(t *testing.T) {
	s := DefaultSettings()
	inProbation := func(frames, failed int) Probation {
		return Probation{Active: true, FrameCount: frames, FailedTests: failed}
	}

	tests := []struct {
		name       string
		state      trackingState
		pointType  PointType
		valid      bool
		want       trackingState
		wantFailed bool
	}{
		{
			name:  "dead is absorbing",
			state: trackingState{Status: Dead}, pointType: ActivePoint, valid: true,
			want: trackingState{Status: Dead},
		},
		{
			name:  "valid marks tracking",
			state: trackingState{Status: Lost}, pointType: CandidatePoint, valid: true,
			want: trackingState{Status: Tracking},
		},
		{
			name:  "valid clears active failures",
			state: trackingState{Status: Tracking, Probation: inProbation(3, 2)}, pointType: ActivePoint, valid: true,
			want: trackingState{Status: Tracking, Probation: inProbation(4, 0)},
		},
		{
			name:  "valid keeps candidate failures",
			state: trackingState{Status: Tracking, Probation: inProbation(3, 2)}, pointType: CandidatePoint, valid: true,
			want: trackingState{Status: Tracking, Probation: inProbation(4, 2)},
		},
		{
			name:  "invalid starts probation",
			state: trackingState{Status: Tracking}, pointType: ActivePoint, valid: false,
			want: trackingState{Status: Tracking, Probation: inProbation(1, 1)},
		},
		{
			name:  "invalid in probation counts",
			state: trackingState{Status: Tracking, Probation: inProbation(5, 1)}, pointType: CandidatePoint, valid: false,
			want: trackingState{Status: Tracking, Probation: inProbation(6, 2)},
		},
		{
			name:  "active fails probation",
			state: trackingState{Status: Tracking, Probation: inProbation(5, 2)}, pointType: ActivePoint, valid: false,
			want:       trackingState{Status: Lost, Probation: Probation{FrameCount: 6}},
			wantFailed: true,
		},
		{
			name:  "candidate fails probation",
			state: trackingState{Status: Tracking, Probation: inProbation(5, 4)}, pointType: CandidatePoint, valid: false,
			want:       trackingState{Status: Lost, Probation: Probation{FrameCount: 6}},
			wantFailed: true,
		},
		{
			name:  "probation expires",
			state: trackingState{Status: Tracking, Probation: inProbation(30, 1)}, pointType: CandidatePoint, valid: true,
			want: trackingState{Status: Tracking, Probation: Probation{FrameCount: 31}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, failed := nextTrackingState(tt.state, tt.pointType, tt.valid, s)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantFailed, failed)
		})
	}
}

func TestProbationIsBounded(t *testing.T) {
	s := DefaultSettings()
	st := trackingState{Status: Tracking, Probation: Probation{}.start()}

	frames := 0
	for st.Probation.Active {
		st, _ = nextTrackingState(st, CandidatePoint, true, s)
		frames++
		require.LessOrEqual(t, st.Probation.FrameCount, s.ProbationFrameCount+1)
		require.LessOrEqual(t, frames, s.ProbationFrameCount+1)
	}
	assert.Equal(t, s.ProbationFrameCount+1, frames)

	// entering probation again while in it does not restart the count
	p := Probation{Active: true, FrameCount: 7, FailedTests: 2}
	assert.Equal(t, p, p.start())
}

func TestProcessFrameFollowsMovingHand(t *testing.T) {
	p := newTestProcessor(t, DefaultSettings())

	for i := 0; i < 10; i++ {
		m := testdata.NewScene(handBox(image.Pt(80+2*i, 60))).Matrices(testScale)

		var seeds []image.Point
		if i == 0 {
			seeds = []image.Point{{X: 80, Y: 60}}
		}
		p.ProcessFrame(m, seeds)

		points := p.TrackedPoints()
		require.Len(t, points, 1, "frame %d", i)
		assert.Equal(t, 0, points[0].TrackingID)
		assert.Equal(t, Tracking, points[0].Status, "frame %d", i)
		assert.Equal(t, float32(1000), m.DepthAt(points[0].Position), "frame %d", i)

		m.Close()
	}
}

func TestTrackingStatusString(t *testing.T) {
	assert.Equal(t, "not_tracking", NotTracking.String())
	assert.Equal(t, "tracking", Tracking.String())
	assert.Equal(t, "lost", Lost.String())
	assert.Equal(t, "dead", Dead.String())
	assert.Equal(t, "active", ActivePoint.String())
	assert.Equal(t, "candidate", CandidatePoint.String())
}

func TestNewPointProcessorRejectsInvalidSettings(t *testing.T) {
	s := DefaultSettings()
	s.PointSmoothingDeadZone = 0
	_, err := NewPointProcessor(s)
	assert.ErrorIs(t, err, ErrInvalidSettings)
}
