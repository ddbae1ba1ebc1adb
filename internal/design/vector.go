// Package design holds the design vector, its bounds, and the codec that maps
// vectors to the structural specification consumed by the flight simulator.
package design

import (
	"fmt"

	"github.com/airshape/optimizer-core/pkg/config"
	"github.com/airshape/optimizer-core/pkg/utils"
)

// Vector is an ordered sequence of bounded real parameters. Vectors are
// treated as immutable once evaluated; transformations always produce a new
// Vector.
type Vector []float64

// Clone returns an independent copy of the vector.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Equal reports exact componentwise equality.
func (v Vector) Equal(o Vector) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}
	return true
}

// Dimension is one bounded axis of the search space.
type Dimension struct {
	Name string
	Min  float64
	Max  float64
}

// Span returns the width of the bound interval.
func (d Dimension) Span() float64 {
	return d.Max - d.Min
}

// Bounds is the ordered set of dimensions of the search space.
type Bounds []Dimension

// BoundsFromConfig converts configured dimensions into search-space bounds.
func BoundsFromConfig(dims []config.Dimension) Bounds {
	b := make(Bounds, len(dims))
	for i, d := range dims {
		b[i] = Dimension{Name: d.Name, Min: d.Min, Max: d.Max}
	}
	return b
}

// Contains reports whether the vector satisfies every componentwise bound.
func (b Bounds) Contains(v Vector) bool {
	if len(v) != len(b) {
		return false
	}
	for i := range v {
		if v[i] < b[i].Min || v[i] > b[i].Max {
			return false
		}
	}
	return true
}

// Clamp returns a new vector with every component clamped into its bound
// interval.
func (b Bounds) Clamp(v Vector) Vector {
	out := make(Vector, len(v))
	for i := range v {
		out[i] = utils.ClampFloat64(v[i], b[i].Min, b[i].Max)
	}
	return out
}

// Validate checks the bounds are non-degenerate.
func (b Bounds) Validate() error {
	if len(b) == 0 {
		return fmt.Errorf("bounds are empty")
	}
	for i, d := range b {
		if d.Min >= d.Max {
			return fmt.Errorf("dimension %d (%s): min %f >= max %f", i, d.Name, d.Min, d.Max)
		}
	}
	return nil
}

// Index returns the position of the named dimension, or -1.
func (b Bounds) Index(name string) int {
	for i, d := range b {
		if d.Name == name {
			return i
		}
	}
	return -1
}
