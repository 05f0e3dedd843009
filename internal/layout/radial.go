package layout

import (
	"math"

	"github.com/MrWong99/thoughtmap/pkg/concept"
)

// RadialOptions configures [Radial].
type RadialOptions struct {
	CenterX, CenterY float64

	// InnerRadius is the radius of the first ring.
	InnerRadius float64

	// RadiusIncrement is the distance between consecutive rings.
	RadiusIncrement float64

	// NodeRadius is the drawn node radius. It is also the default hit radius.
	NodeRadius float64
}

// DefaultRadialOptions centers the layout in a width×height viewport.
func DefaultRadialOptions(width, height float64) RadialOptions {
	return RadialOptions{
		CenterX:         width / 2,
		CenterY:         height / 2,
		InnerRadius:     120,
		RadiusIncrement: 100,
		NodeRadius:      40,
	}
}

// childSpread is the angular wedge children share around their parent's angle.
const childSpread = math.Pi / 3

// LayoutNode is a positioned concept in a radial layout.
type LayoutNode struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Radius   float64 `json:"radius"`
	Angle    float64 `json:"angle"`
	Depth    int     `json:"depth"`
	Mentions int     `json:"mentions"`
	ParentID string  `json:"parent_id,omitempty"`

	Parent   *LayoutNode   `json:"-"`
	Children []*LayoutNode `json:"-"`

	// Node is the source concept. It belongs to the forest, not the layout.
	Node *concept.Node `json:"-"`
}

// Radial places forest on concentric rings and returns the nodes in
// pre-order.
//
// A single root sits at the center with depth 0. Several roots are spread
// evenly around the inner ring at depth 1. A node at depth d > 0 lies on the
// ring of radius InnerRadius + (d-1)*RadiusIncrement. Children share a 60°
// wedge centered on their parent's angle; an only child sits exactly on its
// parent's angle.
func Radial(forest []*concept.Node, opts RadialOptions) []*LayoutNode {
	out := make([]*LayoutNode, 0, concept.Count(forest))

	place := func(n *concept.Node, parent *LayoutNode, radius, angle float64, depth int) *LayoutNode {
		ln := &LayoutNode{
			ID:       n.ID,
			Text:     n.Text,
			X:        opts.CenterX + radius*math.Cos(angle),
			Y:        opts.CenterY + radius*math.Sin(angle),
			Radius:   radius,
			Angle:    angle,
			Depth:    depth,
			Mentions: n.Mentions(),
			Parent:   parent,
			Children: []*LayoutNode{},
			Node:     n,
		}
		if parent != nil {
			ln.ParentID = parent.ID
			parent.Children = append(parent.Children, ln)
		}
		out = append(out, ln)
		return ln
	}

	var children func(n *concept.Node, parent *LayoutNode)
	children = func(n *concept.Node, parent *LayoutNode) {
		depth := parent.Depth + 1
		radius := opts.InnerRadius + float64(depth-1)*opts.RadiusIncrement
		start := parent.Angle - childSpread/2
		for i, c := range n.Children {
			angle := parent.Angle
			if len(n.Children) > 1 {
				angle = start + float64(i)/float64(len(n.Children)-1)*childSpread
			}
			children(c, place(c, parent, radius, angle, depth))
		}
	}

	switch len(forest) {
	case 0:
	case 1:
		children(forest[0], place(forest[0], nil, 0, 0, 0))
	default:
		for i, root := range forest {
			angle := float64(i) / float64(len(forest)) * 2 * math.Pi
			children(root, place(root, nil, opts.InnerRadius, angle, 1))
		}
	}
	return out
}

// bezierCurvature scales the perpendicular offset of radial edge controls.
const bezierCurvature = 0.2

// BezierControlPoints returns the two control points of the curve from
// parent to child. Both sit at the midpoint pushed sideways by 20% of the
// segment length.
func BezierControlPoints(parent, child *LayoutNode) (Point, Point) {
	dx := child.X - parent.X
	dy := child.Y - parent.Y
	mid := Point{
		X: (parent.X+child.X)/2 - dy*bezierCurvature,
		Y: (parent.Y+child.Y)/2 + dx*bezierCurvature,
	}
	return mid, mid
}

// RadialEdges returns one containment edge per parent/child pair in nodes,
// routed with [BezierControlPoints]. Relation labels recorded on the parent
// are carried on the matching edge.
func RadialEdges(nodes []*LayoutNode) []Edge {
	edges := make([]Edge, 0, len(nodes))
	for _, n := range nodes {
		if n.Parent == nil {
			continue
		}
		c1, c2 := BezierControlPoints(n.Parent, n)
		e := Edge{
			ID:     edgeID(EdgeContainment, n.Parent.ID, n.ID),
			Kind:   EdgeContainment,
			Source: n.Parent.ID,
			Target: n.ID,
			Label:  relationLabel(n.Parent.Node, n.ID),
			Path: Path{
				Start: Point{n.Parent.X, n.Parent.Y},
				C1:    c1,
				C2:    c2,
				End:   Point{n.X, n.Y},
			},
		}
		e.LabelX, e.LabelY = e.Path.At(0.5)
		edges = append(edges, e)
	}
	return edges
}

// HitTest returns the first node in nodes whose center is within r of
// (x, y). ok is false when nothing is hit.
func HitTest(nodes []*LayoutNode, x, y, r float64) (*LayoutNode, bool) {
	for _, n := range nodes {
		if dist(n.X, n.Y, x, y) <= r {
			return n, true
		}
	}
	return nil, false
}
