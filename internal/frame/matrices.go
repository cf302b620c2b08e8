// Package frame holds the per-frame tracking context shared by the
// segmentation primitive and the point processor.
package frame

import (
	"image"

	"github.com/ayusman/handpoint/internal/mapper"
	"github.com/golang/geo/r3"
	"gocv.io/x/gocv"
)

// Matrices is the per-frame tracking context. All depth and area buffers are
// single channel CV_32F Mats in sensor depth units. A Matrices value is built
// for one frame, handed to the processor by reference and closed when the
// frame is done; nothing in it survives to the next frame.
type Matrices struct {
	// Depth is the processing-resolution depth buffer.
	Depth gocv.Mat
	// DepthFullSize is the full sensor resolution depth buffer.
	DepthFullSize gocv.Mat
	// Area and AreaSqrt hold the per-pixel footprint area at processing
	// resolution. They are filled by the point processor each frame.
	Area     gocv.Mat
	AreaSqrt gocv.Mat
	// LayerSegmentation is a CV_8U scratch map used by region growth.
	LayerSegmentation gocv.Mat
	// VelocitySignal is an optional CV_8U foreground-motion mask at
	// processing resolution. Empty when the source provides none.
	VelocitySignal gocv.Mat

	WorldPoints         []r3.Vector
	FullSizeWorldPoints []r3.Vector

	DepthToWorld mapper.ConversionCache
	// Mapper maps pixels of Depth to the full sensor image.
	Mapper mapper.Scaling

	parent *Matrices
}

// New builds the tracking context for a frame. It takes ownership of both
// Mats; they are released by Close. Non CV_32F inputs are converted.
func New(depth, depthFullSize gocv.Mat, cache mapper.ConversionCache) *Matrices {
	depth = ensureFloat(depth)
	depthFullSize = ensureFloat(depthFullSize)

	rows, cols := depth.Rows(), depth.Cols()
	m := &Matrices{
		Depth:             depth,
		DepthFullSize:     depthFullSize,
		Area:              gocv.Zeros(rows, cols, gocv.MatTypeCV32F),
		AreaSqrt:          gocv.Zeros(rows, cols, gocv.MatTypeCV32F),
		LayerSegmentation: gocv.Zeros(rows, cols, gocv.MatTypeCV8U),
		VelocitySignal:    gocv.NewMat(),
		WorldPoints:       make([]r3.Vector, rows*cols),
		DepthToWorld:      cache,
	}

	scale := 1.0
	if cols > 0 {
		scale = float64(depthFullSize.Cols()) / float64(cols)
	}
	m.Mapper = mapper.NewScaling(cache, scale, 0, 0)
	m.FullSizeWorldPoints = fullSizeWorldPoints(depthFullSize, cache)
	return m
}

func ensureFloat(mat gocv.Mat) gocv.Mat {
	if mat.Empty() || mat.Type() == gocv.MatTypeCV32F {
		return mat
	}
	converted := gocv.NewMat()
	mat.ConvertTo(&converted, gocv.MatTypeCV32F)
	mat.Close()
	return converted
}

func fullSizeWorldPoints(depth gocv.Mat, cache mapper.ConversionCache) []r3.Vector {
	rows, cols := depth.Rows(), depth.Cols()
	points := make([]r3.Vector, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			d := float64(depth.GetFloatAt(y, x))
			if d == 0 {
				continue
			}
			points[y*cols+x] = mapper.DepthToWorld(cache, float64(x), float64(y), d)
		}
	}
	return points
}

// Window builds a child context whose processing buffer is a copy of rect
// inside the full-resolution depth. The child shares DepthFullSize and the
// full-size world points with its parent; closing it leaves both intact.
func (m *Matrices) Window(rect image.Rectangle) *Matrices {
	region := m.DepthFullSize.Region(rect)
	depth := region.Clone()
	region.Close()

	rows, cols := depth.Rows(), depth.Cols()
	return &Matrices{
		Depth:               depth,
		DepthFullSize:       m.DepthFullSize,
		Area:                gocv.Zeros(rows, cols, gocv.MatTypeCV32F),
		AreaSqrt:            gocv.Zeros(rows, cols, gocv.MatTypeCV32F),
		LayerSegmentation:   gocv.Zeros(rows, cols, gocv.MatTypeCV8U),
		VelocitySignal:      gocv.NewMat(),
		WorldPoints:         make([]r3.Vector, rows*cols),
		FullSizeWorldPoints: m.FullSizeWorldPoints,
		DepthToWorld:        m.DepthToWorld,
		Mapper:              mapper.NewScaling(m.DepthToWorld, 1, float64(rect.Min.X), float64(rect.Min.Y)),
		parent:              m,
	}
}

// SetVelocitySignal replaces the velocity signal, taking ownership of mask.
func (m *Matrices) SetVelocitySignal(mask gocv.Mat) {
	m.VelocitySignal.Close()
	m.VelocitySignal = mask
}

// Close releases the Mats owned by this context.
func (m *Matrices) Close() {
	m.Depth.Close()
	m.Area.Close()
	m.AreaSqrt.Close()
	m.LayerSegmentation.Close()
	m.VelocitySignal.Close()
	if m.parent == nil {
		m.DepthFullSize.Close()
	}
}

// Width is the processing-resolution width.
func (m *Matrices) Width() int { return m.Depth.Cols() }

// Height is the processing-resolution height.
func (m *Matrices) Height() int { return m.Depth.Rows() }

// FullSizeWidth is the sensor width.
func (m *Matrices) FullSizeWidth() int { return m.DepthFullSize.Cols() }

// FullSizeHeight is the sensor height.
func (m *Matrices) FullSizeHeight() int { return m.DepthFullSize.Rows() }

// Contains reports whether p lies inside the processing buffer.
func (m *Matrices) Contains(p image.Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < m.Width() && p.Y < m.Height()
}

// DepthAt returns the processing-resolution depth at p.
func (m *Matrices) DepthAt(p image.Point) float32 {
	return m.Depth.GetFloatAt(p.Y, p.X)
}

// FullSizeDepthAt returns the sensor depth at p.
func (m *Matrices) FullSizeDepthAt(p image.Point) float32 {
	return m.DepthFullSize.GetFloatAt(p.Y, p.X)
}

// AreaAt returns the footprint area at p.
func (m *Matrices) AreaAt(p image.Point) float32 {
	return m.Area.GetFloatAt(p.Y, p.X)
}

// AreaSqrtAt returns the square root of the footprint area at p.
func (m *Matrices) AreaSqrtAt(p image.Point) float32 {
	return m.AreaSqrt.GetFloatAt(p.Y, p.X)
}

// WorldPointAt returns the world point of processing pixel p.
func (m *Matrices) WorldPointAt(p image.Point) r3.Vector {
	return m.WorldPoints[p.Y*m.Width()+p.X]
}

// HasVelocitySignal reports whether a velocity mask is attached.
func (m *Matrices) HasVelocitySignal() bool {
	return !m.VelocitySignal.Empty()
}

// ResizeFactor is the ratio of full to processing resolution.
func (m *Matrices) ResizeFactor() float64 {
	if m.Width() == 0 {
		return 1
	}
	return float64(m.FullSizeWidth()) / float64(m.Width())
}

// ResizeNeeded reports whether processing and sensor resolution differ.
func (m *Matrices) ResizeNeeded() bool {
	return m.FullSizeWidth() != m.Width()
}
