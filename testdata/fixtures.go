// Package testdata builds synthetic depth scenes shared by package tests.
package testdata

import (
	"image"
	"math"

	"github.com/ayusman/handpoint/internal/frame"
	"github.com/ayusman/handpoint/internal/mapper"
	"gocv.io/x/gocv"
)

const (
	// FullWidth and FullHeight are the synthetic sensor resolution.
	FullWidth  = 320
	FullHeight = 240
)

// Field of view of the synthetic sensor, in radians.
var (
	HorizontalFOV = 58 * math.Pi / 180
	VerticalFOV   = 45 * math.Pi / 180
)

// Cache returns the conversion cache of the synthetic sensor.
func Cache() mapper.ConversionCache {
	return mapper.NewConversionCache(FullWidth, FullHeight, HorizontalFOV, VerticalFOV)
}

// Box is a flat rectangle of constant depth. Rect is in full-resolution
// pixels.
type Box struct {
	Rect  image.Rectangle
	Depth float32
}

// Scene is a depth image made of boxes drawn in order over a background.
// A zero background means no depth.
type Scene struct {
	Background float32
	Boxes      []Box
}

// NewScene returns a scene with the given boxes and no background.
func NewScene(boxes ...Box) Scene {
	return Scene{Boxes: boxes}
}

// HandBox returns a box centred on a processing-resolution pixel, sized in
// processing pixels, for a context downsampled by scale.
func HandBox(center image.Point, width, height, scale int, depth float32) Box {
	origin := image.Pt((center.X-width/2)*scale, (center.Y-height/2)*scale)
	return Box{
		Rect:  image.Rectangle{Min: origin, Max: origin.Add(image.Pt(width*scale, height*scale))},
		Depth: depth,
	}
}

// DepthMat renders the scene at full resolution as a CV_32F Mat.
func (s Scene) DepthMat() gocv.Mat {
	mat := gocv.NewMatWithSize(FullHeight, FullWidth, gocv.MatTypeCV32F)
	mat.SetTo(gocv.NewScalar(float64(s.Background), 0, 0, 0))
	bounds := image.Rect(0, 0, FullWidth, FullHeight)
	for _, b := range s.Boxes {
		r := b.Rect.Intersect(bounds)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				mat.SetFloatAt(y, x, b.Depth)
			}
		}
	}
	return mat
}

// Downsample picks every scale-th pixel of full. Unlike gocv.Resize the
// sampled positions are exact, which keeps expected positions in tests
// simple.
func Downsample(full gocv.Mat, scale int) gocv.Mat {
	rows, cols := full.Rows()/scale, full.Cols()/scale
	out := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32F)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			out.SetFloatAt(y, x, full.GetFloatAt(y*scale, x*scale))
		}
	}
	return out
}

// Matrices builds the tracking context for the scene at 1/scale processing
// resolution. The caller must Close it.
func (s Scene) Matrices(scale int) *frame.Matrices {
	full := s.DepthMat()
	return frame.New(Downsample(full, scale), full, Cache())
}
