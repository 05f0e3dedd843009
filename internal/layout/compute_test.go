package layout

import "testing"

func TestCompute_Kinds(t *testing.T) {
	t.Parallel()
	f := forest(rec("a", 0), rec("b", 1), rec("c", 1), rec("d", 2))

	tests := []struct {
		kind      Kind
		wantEdges int
		wantHit   float64
	}{
		{KindRadial, 3, 40},
		{KindForce, 3, 30},
		{KindLayered, 3, 25},
	}
	for _, tc := range tests {
		t.Run(string(tc.kind), func(t *testing.T) {
			t.Parallel()
			res := Compute(tc.kind, f, Settings{Width: 800, Height: 600})
			if res.Kind != tc.kind {
				t.Errorf("kind = %q", res.Kind)
			}
			if len(res.Nodes) != 4 {
				t.Fatalf("nodes = %d, want 4", len(res.Nodes))
			}
			if len(res.Edges) != tc.wantEdges {
				t.Errorf("edges = %d, want %d", len(res.Edges), tc.wantEdges)
			}
			if res.HitRadius() != tc.wantHit {
				t.Errorf("hit radius = %v, want %v", res.HitRadius(), tc.wantHit)
			}

			n := res.Nodes[2]
			got, ok := res.HitTest(n.X+1, n.Y, 0)
			if !ok {
				t.Fatalf("expected a hit near %s", n.ID)
			}
			if got.ID != n.ID {
				t.Errorf("hit %s, want %s", got.ID, n.ID)
			}
			if _, ok := res.HitTest(-1000, -1000, 0); ok {
				t.Error("expected no hit far outside the layout")
			}
		})
	}
}

func TestCompute_LayeredHitRadiusFollowsScale(t *testing.T) {
	t.Parallel()
	res := Compute(KindLayered, sampleForest(), Settings{Width: 300, Height: 200})

	n := res.Nodes[0]
	want := min(n.Width, n.Height) / 2
	if !(want < 25) {
		t.Fatalf("layout not scaled down: node %vx%v", n.Width, n.Height)
	}
	if !near(res.HitRadius(), want) {
		t.Errorf("hit radius = %v, want %v", res.HitRadius(), want)
	}
	if _, ok := res.HitTest(n.X, n.Y+want+1, 0); ok {
		t.Error("a click just outside the scaled node still hits it")
	}
}

func TestCompute_RadialSettings(t *testing.T) {
	t.Parallel()
	f := forest(rec("a", 0), rec("b", 1))
	res := Compute(KindRadial, f, Settings{Width: 400, Height: 400, InnerRadius: 50, NodeRadius: 10})

	root, child := res.Nodes[0], res.Nodes[1]
	if root.X != 200 || root.Y != 200 {
		t.Errorf("root at (%v,%v), want center", root.X, root.Y)
	}
	if !near(dist(root.X, root.Y, child.X, child.Y), 50) {
		t.Errorf("child distance = %v, want 50", dist(root.X, root.Y, child.X, child.Y))
	}
	if child.Width != 20 || res.HitRadius() != 10 {
		t.Errorf("node radius not applied: width=%v hit=%v", child.Width, res.HitRadius())
	}
}

func TestCompute_UnknownKindFallsBackToRadial(t *testing.T) {
	t.Parallel()
	res := Compute(Kind("spiral"), forest(rec("a", 0)), Settings{Width: 100, Height: 100})
	if res.Kind != KindRadial {
		t.Errorf("kind = %q, want radial", res.Kind)
	}
}

func TestCompute_EmptyForest(t *testing.T) {
	t.Parallel()
	for _, k := range []Kind{KindRadial, KindForce, KindLayered} {
		res := Compute(k, nil, Settings{Width: 100, Height: 100})
		if len(res.Nodes) != 0 || len(res.Edges) != 0 {
			t.Errorf("%s: expected empty result, got %d nodes %d edges", k, len(res.Nodes), len(res.Edges))
		}
	}
}
