// Package layout computes 2D positions, edge routes and hit tests for a
// concept forest. It never draws anything: callers receive coordinates,
// Bézier paths and label anchors and render them however they like.
//
// Three layouts are available:
//
//   - [Radial] fans children out around their parent on concentric rings.
//   - [Force] relaxes a particle system along containment and relation edges.
//   - [Layered] assigns one rank per depth and orders each rank by
//     barycenter sweeps to reduce edge crossings.
package layout

import (
	"fmt"
	"math"
)

// Kind names a layout algorithm.
type Kind string

const (
	KindRadial  Kind = "radial"
	KindForce   Kind = "force"
	KindLayered Kind = "layered"
)

// ParseKind validates s as a layout kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindRadial, KindForce, KindLayered:
		return k, nil
	}
	return "", fmt.Errorf("layout: unknown kind %q", s)
}

// Point is a position in layout space. The y axis points down.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func dist(ax, ay, bx, by float64) float64 {
	return math.Hypot(ax-bx, ay-by)
}
