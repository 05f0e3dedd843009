package layout

import (
	"math"
	"slices"

	"github.com/MrWong99/thoughtmap/pkg/concept"
)

// Direction is the rank axis of a layered layout.
type Direction string

const (
	// TopBottom stacks ranks vertically, roots at the top.
	TopBottom Direction = "TB"
	// LeftRight stacks ranks horizontally, roots on the left.
	LeftRight Direction = "LR"
)

// LayeredOptions configures [Layered]. Zero fields take the defaults from
// [DefaultLayeredOptions].
type LayeredOptions struct {
	Width, Height         float64
	NodeWidth, NodeHeight float64

	// NodeSep is the gap between neighbours within a rank.
	NodeSep float64

	// RankSep is the gap between consecutive ranks.
	RankSep float64

	Direction Direction

	// Sweeps is the number of down/up barycenter passes.
	Sweeps int
}

// DefaultLayeredOptions returns the standard spacing for a width×height
// viewport.
func DefaultLayeredOptions(width, height float64) LayeredOptions {
	return LayeredOptions{
		Width:      width,
		Height:     height,
		NodeWidth:  150,
		NodeHeight: 50,
		NodeSep:    100,
		RankSep:    100,
		Direction:  TopBottom,
		Sweeps:     4,
	}
}

func (o LayeredOptions) withDefaults() LayeredOptions {
	d := DefaultLayeredOptions(o.Width, o.Height)
	if o.NodeWidth <= 0 {
		o.NodeWidth = d.NodeWidth
	}
	if o.NodeHeight <= 0 {
		o.NodeHeight = d.NodeHeight
	}
	if o.NodeSep <= 0 {
		o.NodeSep = d.NodeSep
	}
	if o.RankSep <= 0 {
		o.RankSep = d.RankSep
	}
	if o.Direction != LeftRight {
		o.Direction = TopBottom
	}
	if o.Sweeps <= 0 {
		o.Sweeps = d.Sweeps
	}
	return o
}

// Layered assigns each node the rank of its depth, orders every rank with
// alternating barycenter sweeps (downward by the mean position of neighbours
// in the rank above, upward by the rank below) and spaces ranks and nodes by
// the configured separations. The drawing is then scaled down uniformly if
// needed and centered in the viewport. Deterministic.
func Layered(forest []*concept.Node, opts LayeredOptions) Graph {
	opts = opts.withDefaults()
	nodes, links := collect(forest)
	if len(nodes) == 0 {
		return Graph{Nodes: nodes, Edges: []Edge{}}
	}

	maxDepth := 0
	for _, n := range nodes {
		maxDepth = max(maxDepth, n.Depth)
	}
	ranks := make([][]int, maxDepth+1)
	for i, n := range nodes {
		ranks[n.Depth] = append(ranks[n.Depth], i)
	}

	up := make([][]int, len(nodes))
	down := make([][]int, len(nodes))
	for _, l := range links {
		a, b := l.src, l.dst
		switch nodes[b].Depth - nodes[a].Depth {
		case 1:
		case -1:
			a, b = b, a
		default:
			// Only edges between adjacent ranks influence ordering.
			continue
		}
		down[a] = append(down[a], b)
		up[b] = append(up[b], a)
	}

	pos := make([]float64, len(nodes))
	index := func() {
		for _, r := range ranks {
			for k, i := range r {
				pos[i] = float64(k)
			}
		}
	}
	index()
	for range opts.Sweeps {
		for r := 1; r < len(ranks); r++ {
			orderBy(ranks[r], up, pos)
			index()
		}
		for r := len(ranks) - 2; r >= 0; r-- {
			orderBy(ranks[r], down, pos)
			index()
		}
	}

	// Layout space: u runs along a rank, v across ranks.
	along, across := opts.NodeWidth, opts.NodeHeight
	if opts.Direction == LeftRight {
		along, across = across, along
	}
	widest := 0
	for _, r := range ranks {
		widest = max(widest, len(r))
	}
	span := float64(widest)*along + float64(widest-1)*opts.NodeSep
	u := make([]float64, len(nodes))
	v := make([]float64, len(nodes))
	for ri, r := range ranks {
		w := float64(len(r))*along + float64(len(r)-1)*opts.NodeSep
		offset := (span - w) / 2
		for k, i := range r {
			u[i] = offset + float64(k)*(along+opts.NodeSep) + along/2
			v[i] = float64(ri)*(across+opts.RankSep) + across/2
		}
	}
	depth := float64(len(ranks))*across + float64(len(ranks)-1)*opts.RankSep

	extentX, extentY := span, depth
	if opts.Direction == LeftRight {
		extentX, extentY = depth, span
	}
	scale := 1.0
	if opts.Width > 0 && opts.Height > 0 {
		scale = math.Min(1, math.Min(opts.Width/extentX, opts.Height/extentY))
	}
	offX := (opts.Width - extentX*scale) / 2
	offY := (opts.Height - extentY*scale) / 2
	if opts.Width <= 0 || opts.Height <= 0 {
		offX, offY = 0, 0
	}

	for i := range nodes {
		x, y := u[i], v[i]
		if opts.Direction == LeftRight {
			x, y = v[i], u[i]
		}
		nodes[i].X = offX + x*scale
		nodes[i].Y = offY + y*scale
		nodes[i].Width = opts.NodeWidth * scale
		nodes[i].Height = opts.NodeHeight * scale
	}
	return Graph{
		Nodes: nodes,
		Edges: route(nodes, links, opts.NodeWidth*scale/2, opts.NodeHeight*scale/2),
	}
}

// orderBy stably sorts rank by the mean position of each node's neighbours.
// Nodes without neighbours keep their current position as key.
func orderBy(rank []int, neighbours [][]int, pos []float64) {
	key := make(map[int]float64, len(rank))
	for _, i := range rank {
		ns := neighbours[i]
		if len(ns) == 0 {
			key[i] = pos[i]
			continue
		}
		sum := 0.0
		for _, n := range ns {
			sum += pos[n]
		}
		key[i] = sum / float64(len(ns))
	}
	slices.SortStableFunc(rank, func(a, b int) int {
		switch ka, kb := key[a], key[b]; {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		}
		return 0
	})
}
