package capture

import (
	"image"
	"sort"
	"sync"

	"gocv.io/x/gocv"
)

// SeedDetectorConfig tunes seed detection. Depths are in millimetres, the
// contour area in processing pixels.
type SeedDetectorConfig struct {
	// MotionThreshold is the depth change that marks a pixel as moving.
	MotionThreshold float64
	MinDepth        float64
	MaxDepth        float64
	MinContourArea  float64
	// MaxSeeds caps the seeds per frame, closest first. 0 means no cap.
	MaxSeeds int
}

// DefaultSeedDetectorConfig returns the defaults used by the hand stream.
func DefaultSeedDetectorConfig() SeedDetectorConfig {
	return SeedDetectorConfig{
		MotionThreshold: 25,
		MinDepth:        500,
		MaxDepth:        4000,
		MinContourArea:  40,
		MaxSeeds:        4,
	}
}

// SeedDetector finds moving blobs between consecutive depth frames and
// proposes the closest pixel of each blob as a seed for the tracker.
//
// Algorithm:
// 1. If first frame, store it as baseline and return no seeds
// 2. Absolute depth difference with the previous frame
// 3. Threshold the difference at MotionThreshold
// 4. Keep moving pixels whose depth is within [MinDepth, MaxDepth]
// 5. External contours of the mask, dropping those below MinContourArea
// 6. One seed per contour at its closest masked pixel
type SeedDetector struct {
	cfg         SeedDetectorConfig
	prev        gocv.Mat
	initialized bool
	mu          sync.Mutex
}

// NewSeedDetector creates a SeedDetector.
func NewSeedDetector(cfg SeedDetectorConfig) *SeedDetector {
	return &SeedDetector{
		cfg:  cfg,
		prev: gocv.NewMat(),
	}
}

// Detect analyzes a processing resolution CV_32F depth frame. It returns
// the seeds, closest first, and the CV_8U foreground mask that serves as
// the frame's velocity signal. The caller owns the mask.
func (d *SeedDetector) Detect(depth gocv.Mat) ([]image.Point, gocv.Mat) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if depth.Empty() {
		return nil, gocv.NewMat()
	}

	sizeChanged := d.prev.Rows() != depth.Rows() || d.prev.Cols() != depth.Cols()
	if !d.initialized || sizeChanged {
		depth.CopyTo(&d.prev)
		d.initialized = true
		return nil, gocv.Zeros(depth.Rows(), depth.Cols(), gocv.MatTypeCV8U)
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(depth, d.prev, &diff)

	moving := gocv.NewMat()
	defer moving.Close()
	gocv.Threshold(diff, &moving, float32(d.cfg.MotionThreshold), 255, gocv.ThresholdBinary)

	moving8 := gocv.NewMat()
	defer moving8.Close()
	moving.ConvertTo(&moving8, gocv.MatTypeCV8U)

	band := gocv.NewMat()
	defer band.Close()
	gocv.InRangeWithScalar(depth, gocv.NewScalar(d.cfg.MinDepth, 0, 0, 0), gocv.NewScalar(d.cfg.MaxDepth, 0, 0, 0), &band)

	mask := gocv.NewMat()
	gocv.BitwiseAnd(moving8, band, &mask)

	depth.CopyTo(&d.prev)

	return d.seedsFromMask(depth, mask), mask
}

type seed struct {
	p     image.Point
	depth float32
}

func (d *SeedDetector) seedsFromMask(depth, mask gocv.Mat) []image.Point {
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var found []seed
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		if gocv.ContourArea(contour) < d.cfg.MinContourArea {
			continue
		}

		rect := gocv.BoundingRect(contour)
		if s, ok := closestMasked(depth, mask, rect); ok {
			found = append(found, s)
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].depth < found[j].depth
	})
	if d.cfg.MaxSeeds > 0 && len(found) > d.cfg.MaxSeeds {
		found = found[:d.cfg.MaxSeeds]
	}

	seeds := make([]image.Point, len(found))
	for i, s := range found {
		seeds[i] = s.p
	}
	return seeds
}

func closestMasked(depth, mask gocv.Mat, rect image.Rectangle) (seed, bool) {
	best := seed{}
	found := false
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if mask.GetUCharAt(y, x) == 0 {
				continue
			}
			z := depth.GetFloatAt(y, x)
			if !found || z < best.depth {
				best = seed{p: image.Pt(x, y), depth: z}
				found = true
			}
		}
	}
	return best, found
}

// Reset clears the baseline frame.
func (d *SeedDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.prev.Close()
	d.prev = gocv.NewMat()
	d.initialized = false
}

// Close releases resources used by the detector.
func (d *SeedDetector) Close() {
	d.Reset()
}
