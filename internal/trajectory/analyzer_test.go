package trajectory

import (
	"testing"

	"github.com/golang/geo/r3"
)

// wave returns frames of horizontal motion that reverse every swing frames.
func wave(frames, swing int, step float64) []Sample {
	samples := make([]Sample, 0, frames)
	pos := r3.Vector{Z: 1000}
	dir := 1.0
	for i := 0; i < frames; i++ {
		if i > 0 && i%swing == 0 {
			dir = -dir
		}
		delta := r3.Vector{X: dir * step}
		pos = pos.Add(delta)
		samples = append(samples, Sample{Tracking: true, WorldPosition: pos, WorldDelta: delta})
	}
	return samples
}

func TestAnalyzer_DetectsWave(t *testing.T) {
	a := NewAnalyzer(1, DefaultSettings())

	detections := 0
	for i, s := range wave(30, 5, 40) {
		a.Update(s)
		if a.IsWaveGesture() {
			detections++
			if i != 16 {
				t.Errorf("expected wave on frame 16, got frame %d", i)
			}
		}
	}

	if detections != 1 {
		t.Errorf("expected exactly one wave detection, got %d", detections)
	}
}

func TestAnalyzer_WaveIsEdgeTriggered(t *testing.T) {
	a := NewAnalyzer(1, DefaultSettings())

	samples := wave(30, 5, 40)
	for _, s := range samples[:17] {
		a.Update(s)
	}
	if !a.IsWaveGesture() {
		t.Fatal("expected wave after three inflections")
	}

	a.Update(samples[17])
	if a.IsWaveGesture() {
		t.Error("wave flag should only be raised for one frame")
	}
}

func TestAnalyzer_StraightMotion(t *testing.T) {
	a := NewAnalyzer(1, DefaultSettings())

	delta := r3.Vector{X: 40}
	for i := 0; i < 100; i++ {
		a.Update(Sample{Tracking: true, WorldDelta: delta})
		if a.IsWaveGesture() {
			t.Fatalf("straight motion detected as wave at frame %d", i)
		}
	}
}

func TestAnalyzer_SmallJitterIsIgnored(t *testing.T) {
	a := NewAnalyzer(1, DefaultSettings())

	for i, s := range wave(60, 2, 5) {
		a.Update(s)
		if a.IsWaveGesture() {
			t.Fatalf("jitter detected as wave at frame %d", i)
		}
	}
	if a.hasHeading {
		t.Error("jitter below the steady threshold should not set a heading")
	}
}

func TestAnalyzer_LostTrackingResets(t *testing.T) {
	a := NewAnalyzer(1, DefaultSettings())

	samples := wave(30, 5, 40)
	for _, s := range samples[:16] {
		a.Update(s)
	}
	if a.inflectionCount != 2 {
		t.Fatalf("expected 2 inflections before the gap, got %d", a.inflectionCount)
	}

	a.Update(Sample{Tracking: false})
	if a.inflectionCount != 0 || len(a.History()) != 0 {
		t.Errorf("expected reset analyzer, got %d inflections and %d samples", a.inflectionCount, len(a.History()))
	}

	a.Update(samples[16])
	if a.IsWaveGesture() {
		t.Error("wave should not complete after a reset")
	}
}

func TestAnalyzer_SlowWaveTimesOut(t *testing.T) {
	settings := DefaultSettings()
	settings.MaxFramesBetweenInflections = 8

	a := NewAnalyzer(1, settings)
	for i, s := range wave(120, 10, 40) {
		a.Update(s)
		if a.IsWaveGesture() {
			t.Fatalf("slow wave detected at frame %d", i)
		}
	}
}

func TestAnalyzer_HistoryIsBounded(t *testing.T) {
	settings := DefaultSettings()
	settings.MaxHistory = 4

	a := NewAnalyzer(7, settings)
	for _, s := range wave(10, 5, 40) {
		a.Update(s)
	}

	h := a.History()
	if len(h) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(h))
	}
	if a.TrackingID() != 7 {
		t.Errorf("expected tracking id 7, got %d", a.TrackingID())
	}

	h[0].WorldPosition = r3.Vector{}
	if a.History()[0].WorldPosition == (r3.Vector{}) {
		t.Error("History should return a copy")
	}
}

func TestHeadingDiff(t *testing.T) {
	tests := []struct {
		a, b, want float64
	}{
		{0, 0, 0},
		{0, 180, 180},
		{170, -170, 20},
		{-90, 90, 180},
		{45, 90, 45},
	}
	for _, tt := range tests {
		if got := headingDiff(tt.a, tt.b); got != tt.want {
			t.Errorf("headingDiff(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
