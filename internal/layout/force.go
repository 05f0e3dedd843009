package layout

import (
	"math"
	"math/rand/v2"

	"github.com/MrWong99/thoughtmap/pkg/concept"
)

// ForceOptions configures [Force]. Zero fields take the defaults from
// [DefaultForceOptions].
type ForceOptions struct {
	Width, Height float64

	Iterations        int
	LinkDistance      float64
	LinkStrength      float64
	Charge            float64
	ChargeDistanceMax float64
	CollideRadius     float64

	// NodeWidth and NodeHeight size the ellipse edges are clipped to.
	NodeWidth, NodeHeight float64

	// Seed makes the initial placement reproducible.
	Seed uint64
}

// DefaultForceOptions returns the standard simulation parameters for a
// width×height viewport.
func DefaultForceOptions(width, height float64) ForceOptions {
	return ForceOptions{
		Width:             width,
		Height:            height,
		Iterations:        300,
		LinkDistance:      150,
		LinkStrength:      0.5,
		Charge:            -300,
		ChargeDistanceMax: 400,
		CollideRadius:     80,
		NodeWidth:         140,
		NodeHeight:        60,
		Seed:              1,
	}
}

func (o ForceOptions) withDefaults() ForceOptions {
	d := DefaultForceOptions(o.Width, o.Height)
	if o.Iterations <= 0 {
		o.Iterations = d.Iterations
	}
	if o.LinkDistance <= 0 {
		o.LinkDistance = d.LinkDistance
	}
	if o.LinkStrength <= 0 {
		o.LinkStrength = d.LinkStrength
	}
	if o.Charge == 0 {
		o.Charge = d.Charge
	}
	if o.ChargeDistanceMax <= 0 {
		o.ChargeDistanceMax = d.ChargeDistanceMax
	}
	if o.CollideRadius <= 0 {
		o.CollideRadius = d.CollideRadius
	}
	if o.NodeWidth <= 0 {
		o.NodeWidth = d.NodeWidth
	}
	if o.NodeHeight <= 0 {
		o.NodeHeight = d.NodeHeight
	}
	return o
}

const (
	alphaMin      = 0.001
	velocityDecay = 0.4
	// Squared distance below which the many-body force is capped.
	chargeDistanceMin2 = 1.0
)

type particle struct {
	x, y, vx, vy float64
}

type sim struct {
	opts  ForceOptions
	ps    []particle
	links []link
	deg   []int
	rng   *rand.Rand
	alpha float64
}

// Force lays forest out with a particle simulation: links along containment
// and relation edges pull connected nodes toward LinkDistance, every pair
// repels within ChargeDistanceMax, overlapping nodes are pushed apart, and
// the system is recentered every tick. Alpha cools from 1 to alphaMin over
// Iterations ticks. Final positions are clamped to the viewport.
//
// The result depends on Seed and nothing else besides the input.
func Force(forest []*concept.Node, opts ForceOptions) Graph {
	opts = opts.withDefaults()
	nodes, links := collect(forest)

	s := &sim{
		opts:  opts,
		ps:    make([]particle, len(nodes)),
		links: links,
		deg:   make([]int, len(nodes)),
		rng:   rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		alpha: 1,
	}
	for _, l := range links {
		s.deg[l.src]++
		s.deg[l.dst]++
	}
	s.seed()

	decay := 1 - math.Pow(alphaMin, 1/float64(opts.Iterations))
	for range opts.Iterations {
		s.alpha += -s.alpha * decay
		s.link()
		s.charge()
		s.center()
		s.collide()
		for i := range s.ps {
			p := &s.ps[i]
			p.vx *= 1 - velocityDecay
			p.vy *= 1 - velocityDecay
			p.x += p.vx
			p.y += p.vy
		}
	}

	for i := range nodes {
		nodes[i].X = clamp(s.ps[i].x, opts.NodeWidth/2, opts.Width-opts.NodeWidth/2)
		nodes[i].Y = clamp(s.ps[i].y, opts.NodeHeight/2, opts.Height-opts.NodeHeight/2)
		nodes[i].Width = opts.NodeWidth
		nodes[i].Height = opts.NodeHeight
	}
	return Graph{Nodes: nodes, Edges: route(nodes, links, opts.NodeWidth/2, opts.NodeHeight/2)}
}

// seed places particles on a phyllotaxis spiral around the viewport center,
// rotated by a seed-dependent angle.
func (s *sim) seed() {
	const initialRadius = 10
	golden := math.Pi * (3 - math.Sqrt(5))
	rot := s.rng.Float64() * 2 * math.Pi
	cx, cy := s.opts.Width/2, s.opts.Height/2
	for i := range s.ps {
		r := initialRadius * math.Sqrt(0.5+float64(i))
		a := rot + float64(i)*golden
		s.ps[i] = particle{x: cx + r*math.Cos(a), y: cy + r*math.Sin(a)}
	}
}

func (s *sim) jiggle() float64 {
	return (s.rng.Float64() - 0.5) * 1e-6
}

func (s *sim) link() {
	for _, l := range s.links {
		src, dst := &s.ps[l.src], &s.ps[l.dst]
		x := dst.x + dst.vx - src.x - src.vx
		y := dst.y + dst.vy - src.y - src.vy
		if x == 0 {
			x = s.jiggle()
		}
		if y == 0 {
			y = s.jiggle()
		}
		d := math.Hypot(x, y)
		f := (d - s.opts.LinkDistance) / d * s.alpha * s.opts.LinkStrength
		x, y = x*f, y*f
		bias := float64(s.deg[l.src]) / float64(s.deg[l.src]+s.deg[l.dst])
		dst.vx -= x * bias
		dst.vy -= y * bias
		src.vx += x * (1 - bias)
		src.vy += y * (1 - bias)
	}
}

// charge applies pairwise repulsion over all pairs, without a quadtree.
func (s *sim) charge() {
	max2 := s.opts.ChargeDistanceMax * s.opts.ChargeDistanceMax
	for i := range s.ps {
		a := &s.ps[i]
		for j := range s.ps {
			if i == j {
				continue
			}
			b := &s.ps[j]
			x, y := b.x-a.x, b.y-a.y
			l := x*x + y*y
			if l >= max2 {
				continue
			}
			if x == 0 {
				x = s.jiggle()
				l += x * x
			}
			if y == 0 {
				y = s.jiggle()
				l += y * y
			}
			if l < chargeDistanceMin2 {
				l = math.Sqrt(chargeDistanceMin2 * l)
			}
			w := s.opts.Charge * s.alpha / l
			a.vx += x * w
			a.vy += y * w
		}
	}
}

func (s *sim) center() {
	if len(s.ps) == 0 {
		return
	}
	var sx, sy float64
	for _, p := range s.ps {
		sx += p.x
		sy += p.y
	}
	sx = sx/float64(len(s.ps)) - s.opts.Width/2
	sy = sy/float64(len(s.ps)) - s.opts.Height/2
	for i := range s.ps {
		s.ps[i].x -= sx
		s.ps[i].y -= sy
	}
}

func (s *sim) collide() {
	r := 2 * s.opts.CollideRadius
	for i := range s.ps {
		a := &s.ps[i]
		for j := i + 1; j < len(s.ps); j++ {
			b := &s.ps[j]
			x := a.x + a.vx - b.x - b.vx
			y := a.y + a.vy - b.y - b.vy
			l := x*x + y*y
			if l >= r*r {
				continue
			}
			if x == 0 {
				x = s.jiggle()
				l += x * x
			}
			if y == 0 {
				y = s.jiggle()
				l += y * y
			}
			d := math.Sqrt(l)
			f := (r - d) / d
			x, y = x*f*0.5, y*f*0.5
			a.vx += x
			a.vy += y
			b.vx -= x
			b.vy -= y
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return (lo + hi) / 2
	}
	return math.Max(lo, math.Min(hi, v))
}
