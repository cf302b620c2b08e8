// Package mapper converts between depth-pixel space and 3-D world space.
//
// World coordinates are in the same unit as the depth values (millimetres
// for the sensors we support). X grows to the right, Y grows upward and Z is
// the distance from the sensor.
package mapper

import (
	"math"

	"github.com/golang/geo/r3"
)

// ConversionCache holds the depth-to-world constants of one sensor mode.
type ConversionCache struct {
	ResolutionX float64
	ResolutionY float64
	XZFactor    float64
	YZFactor    float64
	HalfResX    float64
	HalfResY    float64
	CoeffX      float64
	CoeffY      float64
}

// NewConversionCache derives the conversion constants from a resolution and
// the horizontal and vertical field of view in radians.
func NewConversionCache(width, height int, hFOV, vFOV float64) ConversionCache {
	xz := 2 * math.Tan(hFOV/2)
	yz := 2 * math.Tan(vFOV/2)
	return ConversionCache{
		ResolutionX: float64(width),
		ResolutionY: float64(height),
		XZFactor:    xz,
		YZFactor:    yz,
		HalfResX:    float64(width) / 2,
		HalfResY:    float64(height) / 2,
		CoeffX:      float64(width) / xz,
		CoeffY:      float64(height) / yz,
	}
}

// Valid reports whether the cache describes a usable sensor mode.
func (c ConversionCache) Valid() bool {
	return c.ResolutionX > 0 && c.ResolutionY > 0 && c.XZFactor > 0 && c.YZFactor > 0
}

// DepthToWorld converts a full-resolution depth pixel to a world point.
func DepthToWorld(c ConversionCache, x, y, depth float64) r3.Vector {
	normalizedX := x/c.ResolutionX - .5
	normalizedY := .5 - y/c.ResolutionY

	return r3.Vector{
		X: normalizedX * depth * c.XZFactor,
		Y: normalizedY * depth * c.YZFactor,
		Z: depth,
	}
}

// WorldToDepth projects a world point onto the full-resolution depth image.
// The returned Z is the depth. A point at zero depth maps to the origin.
func WorldToDepth(c ConversionCache, world r3.Vector) r3.Vector {
	if world.Z == 0 {
		return r3.Vector{}
	}
	return r3.Vector{
		X: c.CoeffX*world.X/world.Z + c.HalfResX,
		Y: c.HalfResY - c.CoeffY*world.Y/world.Z,
		Z: world.Z,
	}
}

// Scaling maps pixels of a processing window onto the full-resolution
// sensor image. A pixel (x, y) of the window corresponds to the
// full-resolution pixel ((x+OffsetX)*Scale, (y+OffsetY)*Scale).
type Scaling struct {
	Cache   ConversionCache
	Scale   float64
	OffsetX float64
	OffsetY float64
}

// NewScaling creates a scaling mapper.
func NewScaling(cache ConversionCache, scale, offsetX, offsetY float64) Scaling {
	return Scaling{
		Cache:   cache,
		Scale:   scale,
		OffsetX: offsetX,
		OffsetY: offsetY,
	}
}

// DepthToWorld converts a processing-window pixel to a world point.
func (s Scaling) DepthToWorld(x, y, depth float64) r3.Vector {
	return DepthToWorld(s.Cache, (x+s.OffsetX)*s.Scale, (y+s.OffsetY)*s.Scale, depth)
}

// WorldToDepth projects a world point into processing-window pixel space.
func (s Scaling) WorldToDepth(world r3.Vector) r3.Vector {
	p := WorldToDepth(s.Cache, world)
	if p.Z == 0 {
		return p
	}
	return r3.Vector{
		X: p.X/s.Scale - s.OffsetX,
		Y: p.Y/s.Scale - s.OffsetY,
		Z: p.Z,
	}
}
