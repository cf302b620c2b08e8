package capture

import (
	"image"
	"testing"

	"github.com/ayusman/handpoint/testdata"
	"gocv.io/x/gocv"
)

const testScale = 2

func depthFrame(boxes ...testdata.Box) gocv.Mat {
	full := testdata.NewScene(boxes...).DepthMat()
	defer full.Close()
	return testdata.Downsample(full, testScale)
}

func handBox(center image.Point, depth float32) testdata.Box {
	return testdata.HandBox(center, 16, 24, testScale, depth)
}

func TestSeedDetector_FirstFrameIsBaseline(t *testing.T) {
	d := NewSeedDetector(DefaultSeedDetectorConfig())
	defer d.Close()

	frame := depthFrame(handBox(image.Pt(80, 60), 1000))
	defer frame.Close()

	seeds, mask := d.Detect(frame)
	defer mask.Close()

	if len(seeds) != 0 {
		t.Errorf("expected no seeds on the first frame, got %v", seeds)
	}
	if mask.Empty() || gocv.CountNonZero(mask) != 0 {
		t.Error("expected an empty velocity mask on the first frame")
	}
}

func TestSeedDetector_MovingHand(t *testing.T) {
	d := NewSeedDetector(DefaultSeedDetectorConfig())
	defer d.Close()

	empty := depthFrame()
	defer empty.Close()
	hand := depthFrame(handBox(image.Pt(80, 60), 1000))
	defer hand.Close()

	_, baseline := d.Detect(empty)
	baseline.Close()

	seeds, mask := d.Detect(hand)
	defer mask.Close()

	if len(seeds) != 1 {
		t.Fatalf("expected 1 seed, got %v", seeds)
	}
	// equal depths: the first pixel of the bounding box wins
	if seeds[0] != image.Pt(72, 48) {
		t.Errorf("seed = %v, want (72,48)", seeds[0])
	}
	if got := mask.GetUCharAt(60, 80); got == 0 {
		t.Error("expected the hand to be marked in the velocity mask")
	}
	if got := mask.GetUCharAt(5, 5); got != 0 {
		t.Error("expected background to be clear in the velocity mask")
	}
}

func TestSeedDetector_ClosestFirst(t *testing.T) {
	tests := []struct {
		name     string
		maxSeeds int
		want     []image.Point
	}{
		{"all seeds", 0, []image.Point{{X: 112, Y: 48}, {X: 32, Y: 48}}},
		{"capped", 1, []image.Point{{X: 112, Y: 48}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSeedDetectorConfig()
			cfg.MaxSeeds = tt.maxSeeds
			d := NewSeedDetector(cfg)
			defer d.Close()

			empty := depthFrame()
			defer empty.Close()
			hands := depthFrame(handBox(image.Pt(40, 60), 1500), handBox(image.Pt(120, 60), 900))
			defer hands.Close()

			_, baseline := d.Detect(empty)
			baseline.Close()
			seeds, mask := d.Detect(hands)
			mask.Close()

			if len(seeds) != len(tt.want) {
				t.Fatalf("seeds = %v, want %v", seeds, tt.want)
			}
			for i := range seeds {
				if seeds[i] != tt.want[i] {
					t.Errorf("seed %d = %v, want %v", i, seeds[i], tt.want[i])
				}
			}
		})
	}
}

func TestSeedDetector_IgnoresOutOfRangeAndStatic(t *testing.T) {
	tests := []struct {
		name   string
		first  []testdata.Box
		second []testdata.Box
	}{
		{
			name:   "static scene",
			first:  []testdata.Box{handBox(image.Pt(80, 60), 1000)},
			second: []testdata.Box{handBox(image.Pt(80, 60), 1000)},
		},
		{
			name:   "too close",
			second: []testdata.Box{handBox(image.Pt(80, 60), 300)},
		},
		{
			name:   "too far",
			second: []testdata.Box{handBox(image.Pt(80, 60), 4500)},
		},
		{
			name:   "too small",
			second: []testdata.Box{testdata.HandBox(image.Pt(80, 60), 4, 4, testScale, 1000)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewSeedDetector(DefaultSeedDetectorConfig())
			defer d.Close()

			first := depthFrame(tt.first...)
			defer first.Close()
			second := depthFrame(tt.second...)
			defer second.Close()

			_, baseline := d.Detect(first)
			baseline.Close()
			seeds, mask := d.Detect(second)
			mask.Close()

			if len(seeds) != 0 {
				t.Errorf("expected no seeds, got %v", seeds)
			}
		})
	}
}

func TestSeedDetector_Reset(t *testing.T) {
	d := NewSeedDetector(DefaultSeedDetectorConfig())
	defer d.Close()

	empty := depthFrame()
	defer empty.Close()
	hand := depthFrame(handBox(image.Pt(80, 60), 1000))
	defer hand.Close()

	_, baseline := d.Detect(empty)
	baseline.Close()

	d.Reset()
	if d.initialized {
		t.Fatal("expected detector to need a new baseline after Reset")
	}

	// the hand frame becomes the new baseline
	seeds, mask := d.Detect(hand)
	mask.Close()
	if len(seeds) != 0 {
		t.Errorf("expected no seeds after reset, got %v", seeds)
	}
}
