package layout

import (
	"math"

	"github.com/MrWong99/thoughtmap/internal/tree"
	"github.com/MrWong99/thoughtmap/pkg/concept"
)

// EdgeKind distinguishes tree edges from cross links.
type EdgeKind string

const (
	// EdgeContainment connects a parent to one of its children.
	EdgeContainment EdgeKind = "containment"

	// EdgeRelation is a labeled cross link that is not a parent/child pair.
	EdgeRelation EdgeKind = "relation"
)

// Path is a cubic Bézier curve.
type Path struct {
	Start Point `json:"start"`
	C1    Point `json:"c1"`
	C2    Point `json:"c2"`
	End   Point `json:"end"`
}

// At evaluates the curve at t in [0, 1].
func (p Path) At(t float64) (float64, float64) {
	u := 1 - t
	a, b, c, d := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
	return a*p.Start.X + b*p.C1.X + c*p.C2.X + d*p.End.X,
		a*p.Start.Y + b*p.C1.Y + c*p.C2.Y + d*p.End.Y
}

// Edge is a routed connection between two graph nodes.
type Edge struct {
	ID     string   `json:"id"`
	Kind   EdgeKind `json:"kind"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Label  string   `json:"label,omitempty"`
	Path   Path     `json:"path"`
	LabelX float64  `json:"label_x"`
	LabelY float64  `json:"label_y"`
}

// GraphNode is a positioned concept in a force or layered layout. X and Y
// are the node center.
type GraphNode struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Depth    int     `json:"depth"`
	Mentions int     `json:"mentions"`

	Node *concept.Node `json:"-"`
}

// Graph is the result of [Force] and [Layered].
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []Edge      `json:"edges"`
}

// HitTest returns the first node whose center is within r of (x, y).
func (g *Graph) HitTest(x, y, r float64) (*GraphNode, bool) {
	for i := range g.Nodes {
		if dist(g.Nodes[i].X, g.Nodes[i].Y, x, y) <= r {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*GraphNode, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

func edgeID(kind EdgeKind, source, target string) string {
	if kind == EdgeRelation {
		return "rel-" + source + "-" + target
	}
	return "edge-" + source + "-" + target
}

func relationLabel(parent *concept.Node, childID string) string {
	label, _ := tree.RelationLabel(parent, childID)
	return label
}

// link is an unrouted edge between node indices.
type link struct {
	kind     EdgeKind
	src, dst int
	label    string
}

// collect flattens forest in pre-order and derives its links: one
// containment link per parent/child pair, labeled when the parent records a
// relation to that child, plus one relation link for every other relation
// whose target exists. Self edges are not drawn.
func collect(forest []*concept.Node) ([]GraphNode, []link) {
	nodes := make([]GraphNode, 0, concept.Count(forest))
	index := make(map[string]int)
	parentOf := make(map[int]int)

	var visit func(ns []*concept.Node, parent, depth int)
	visit = func(ns []*concept.Node, parent, depth int) {
		for _, n := range ns {
			i := len(nodes)
			nodes = append(nodes, GraphNode{ID: n.ID, Text: n.Text, Depth: depth, Mentions: n.Mentions(), Node: n})
			if _, dup := index[n.ID]; !dup {
				index[n.ID] = i
			}
			if parent >= 0 {
				parentOf[i] = parent
			}
			visit(n.Children, i, depth+1)
		}
	}
	visit(forest, -1, 0)

	var links []link
	for i := range nodes {
		if p, ok := parentOf[i]; ok {
			links = append(links, link{
				kind:  EdgeContainment,
				src:   p,
				dst:   i,
				label: relationLabel(nodes[p].Node, nodes[i].ID),
			})
		}
	}
	for i := range nodes {
		n := nodes[i].Node
		for _, r := range n.Relations {
			j, ok := index[r.TargetID]
			if !ok || j == i {
				continue
			}
			if p, isChild := parentOf[j]; isChild && p == i {
				continue
			}
			links = append(links, link{kind: EdgeRelation, src: i, dst: j, label: r.Label})
		}
	}
	return nodes, links
}

// route turns links into edges between the laid-out nodes. Endpoints are
// clipped to each node's ellipse and the curve bows slightly to the left of
// the travel direction.
func route(nodes []GraphNode, links []link, rx, ry float64) []Edge {
	edges := make([]Edge, 0, len(links))
	for _, l := range links {
		s, t := nodes[l.src], nodes[l.dst]
		start, end := clip(s.X, s.Y, t.X, t.Y, rx, ry)
		dx, dy := end.X-start.X, end.Y-start.Y
		e := Edge{
			ID:     edgeID(l.kind, s.ID, t.ID),
			Kind:   l.kind,
			Source: s.ID,
			Target: t.ID,
			Label:  l.label,
			Path: Path{
				Start: start,
				C1:    Point{start.X + dx*0.25 + dy*0.1, start.Y + dy*0.25 - dx*0.1},
				C2:    Point{end.X - dx*0.25 + dy*0.1, end.Y - dy*0.25 - dx*0.1},
				End:   end,
			},
			LabelX: (start.X + end.X) / 2,
			LabelY: (start.Y + end.Y) / 2,
		}
		edges = append(edges, e)
	}
	return edges
}

// clip moves both endpoints of the segment from (sx, sy) to (tx, ty) onto the
// boundary of an ellipse with radii rx, ry centered on each endpoint.
func clip(sx, sy, tx, ty, rx, ry float64) (Point, Point) {
	dx, dy := tx-sx, ty-sy
	d := math.Hypot(dx, dy)
	if d == 0 || rx <= 0 || ry <= 0 {
		return Point{sx, sy}, Point{tx, ty}
	}
	ux, uy := dx/d, dy/d
	// Distance from an ellipse center to its boundary along (ux, uy).
	r := rx * ry / math.Sqrt(ry*ry*ux*ux+rx*rx*uy*uy)
	if 2*r >= d {
		// Overlapping ellipses: fall back to the centers.
		return Point{sx, sy}, Point{tx, ty}
	}
	return Point{sx + ux*r, sy + uy*r}, Point{tx - ux*r, ty - uy*r}
}
