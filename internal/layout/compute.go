package layout

import (
	"math"

	"github.com/MrWong99/thoughtmap/pkg/concept"
)

// Settings holds the parameters shared by every layout kind. Zero values
// take each algorithm's defaults.
type Settings struct {
	Width, Height float64

	// Radial.
	InnerRadius     float64
	RadiusIncrement float64
	NodeRadius      float64

	// Force.
	Iterations int
	Seed       uint64

	// Layered.
	Direction Direction
}

// Placement is a positioned node in a [Result], independent of the
// algorithm that produced it.
type Placement struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Depth    int     `json:"depth"`
	Mentions int     `json:"mentions"`
}

// Result is a computed layout of any kind.
type Result struct {
	Kind   Kind        `json:"kind"`
	Width  float64     `json:"width"`
	Height float64     `json:"height"`
	Nodes  []Placement `json:"nodes"`
	Edges  []Edge      `json:"edges"`

	hitRadius float64
}

// Compute lays forest out with the algorithm named by kind.
func Compute(kind Kind, forest []*concept.Node, s Settings) *Result {
	res := &Result{Kind: kind, Width: s.Width, Height: s.Height}
	switch kind {
	case KindForce:
		g := Force(forest, ForceOptions{
			Width: s.Width, Height: s.Height,
			Iterations: s.Iterations,
			Seed:       s.Seed,
		})
		o := ForceOptions{}.withDefaults()
		res.fromGraph(g, math.Min(o.NodeWidth, o.NodeHeight)/2)
	case KindLayered:
		g := Layered(forest, LayeredOptions{Width: s.Width, Height: s.Height, Direction: s.Direction})
		o := LayeredOptions{}.withDefaults()
		res.fromGraph(g, math.Min(o.NodeWidth, o.NodeHeight)/2)
	default:
		res.Kind = KindRadial
		o := DefaultRadialOptions(s.Width, s.Height)
		if s.InnerRadius > 0 {
			o.InnerRadius = s.InnerRadius
		}
		if s.RadiusIncrement > 0 {
			o.RadiusIncrement = s.RadiusIncrement
		}
		if s.NodeRadius > 0 {
			o.NodeRadius = s.NodeRadius
		}
		nodes := Radial(forest, o)
		res.Nodes = make([]Placement, len(nodes))
		for i, n := range nodes {
			res.Nodes[i] = Placement{
				ID: n.ID, Text: n.Text, X: n.X, Y: n.Y,
				Width: 2 * o.NodeRadius, Height: 2 * o.NodeRadius,
				Depth: n.Depth, Mentions: n.Mentions,
			}
		}
		res.Edges = RadialEdges(nodes)
		res.hitRadius = o.NodeRadius
	}
	return res
}

// fromGraph copies g into r. The hit radius follows the drawn node size,
// which Layered scales down to fit the viewport; hit is used for an empty
// graph.
func (r *Result) fromGraph(g Graph, hit float64) {
	if len(g.Nodes) > 0 {
		hit = math.Min(g.Nodes[0].Width, g.Nodes[0].Height) / 2
	}
	r.Nodes = make([]Placement, len(g.Nodes))
	for i, n := range g.Nodes {
		r.Nodes[i] = Placement{
			ID: n.ID, Text: n.Text, X: n.X, Y: n.Y,
			Width: n.Width, Height: n.Height,
			Depth: n.Depth, Mentions: n.Mentions,
		}
	}
	r.Edges = g.Edges
	r.hitRadius = hit
}

// HitRadius is the radius [Result.HitTest] uses when none is given.
func (r *Result) HitRadius() float64 { return r.hitRadius }

// HitTest returns the first node, in layout order, whose center is within
// radius of (x, y). radius <= 0 uses [Result.HitRadius].
func (r *Result) HitTest(x, y, radius float64) (*Placement, bool) {
	if radius <= 0 {
		radius = r.hitRadius
	}
	for i := range r.Nodes {
		if dist(r.Nodes[i].X, r.Nodes[i].Y, x, y) <= radius {
			return &r.Nodes[i], true
		}
	}
	return nil, false
}
