package tree

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/MrWong99/thoughtmap/pkg/concept"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func parsed(levels ...int) []concept.Parsed {
	out := make([]concept.Parsed, len(levels))
	for i, l := range levels {
		out[i] = concept.Parsed{ID: fmt.Sprintf("n%d", i), Text: fmt.Sprintf("T%d", i), Level: l}
	}
	return out
}

// shape renders a forest as nested id lists for easy comparison.
func shape(forest []*concept.Node) []any {
	out := make([]any, 0, len(forest))
	for _, n := range forest {
		if len(n.Children) == 0 {
			out = append(out, n.ID)
			continue
		}
		out = append(out, map[string][]any{n.ID: shape(n.Children)})
	}
	return out
}

func TestBuild_Shapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		levels []int
		want   []any
	}{
		{"empty", nil, []any{}},
		{"siblings", []int{0, 0, 0}, []any{"n0", "n1", "n2"}},
		{"chain", []int{0, 1, 2}, []any{map[string][]any{"n0": {map[string][]any{"n1": {"n2"}}}}}},
		{"pop back to root", []int{0, 1, 0}, []any{map[string][]any{"n0": {"n1"}}, "n2"}},
		{"level jump attaches to nearest ancestor", []int{0, 3, 1}, []any{map[string][]any{"n0": {"n1", "n2"}}}},
		{"first record indented is a root", []int{2, 0}, []any{"n0", "n1"}},
		{"equal level pops", []int{1, 1}, []any{"n0", "n1"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := shape(Build(parsed(tc.levels...), t0))
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("shape = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBuild_Metadata(t *testing.T) {
	t.Parallel()
	forest := Build(parsed(0, 1), t0)
	concept.Walk(forest, func(n *concept.Node, _ int) bool {
		if n.Metadata == nil || !n.Metadata.CreatedAt.Equal(t0) || n.Metadata.Mentions != 1 {
			t.Errorf("node %s metadata = %+v", n.ID, n.Metadata)
		}
		if n.Children == nil {
			t.Errorf("node %s has nil children", n.ID)
		}
		return true
	})
}

// Re-indenting a forest by depth and rebuilding reproduces it.
func TestBuild_IndentRoundTrip(t *testing.T) {
	t.Parallel()
	forest := Build(parsed(0, 1, 2, 2, 1, 0, 1), t0)
	again := Build(concept.Flatten(forest), t0)
	if !reflect.DeepEqual(shape(forest), shape(again)) {
		t.Fatalf("round trip changed shape: %v vs %v", shape(forest), shape(again))
	}
}

// Flatten then Build is idempotent even when the input levels skipped steps.
func TestBuild_FlattenRebuildIdempotent(t *testing.T) {
	t.Parallel()
	first := Build(parsed(0, 3, 5, 1, 4), t0)
	second := Build(concept.Flatten(first), t0)
	third := Build(concept.Flatten(second), t0)
	if !reflect.DeepEqual(shape(second), shape(third)) {
		t.Fatalf("not idempotent: %v vs %v", shape(second), shape(third))
	}
	if !reflect.DeepEqual(shape(first), shape(second)) {
		t.Fatalf("flatten changed shape: %v vs %v", shape(first), shape(second))
	}
}

func TestBuild_RelationLabels(t *testing.T) {
	t.Parallel()
	in := []concept.Parsed{
		{ID: "root", Text: "思考", Level: 0, RelationLabel: "主題"},
		{ID: "child", Text: "学習", Level: 1, RelationLabel: "の詳細"},
		{ID: "plain", Text: "記憶", Level: 1},
	}
	forest := Build(in, t0)
	root := forest[0]

	if label, ok := RelationLabel(root, "child"); !ok || label != "の詳細" {
		t.Errorf("child relation = %q,%v", label, ok)
	}
	if label, ok := RelationLabel(root, "root"); !ok || label != "主題" {
		t.Errorf("root self relation = %q,%v", label, ok)
	}
	if _, ok := RelationLabel(root, "plain"); ok {
		t.Error("unlabeled child should have no relation")
	}
	if len(root.Children[0].Relations) != 0 {
		t.Error("label must be stored on the parent, not the child")
	}
	if _, ok := RelationLabel(nil, "x"); ok {
		t.Error("nil parent has no relations")
	}
}

func TestBuild_LargeInputIsLinear(t *testing.T) {
	t.Parallel()
	levels := make([]int, 5000)
	for i := range levels {
		levels[i] = i % 4
	}
	forest := Build(parsed(levels...), t0)
	if concept.Count(forest) != 5000 {
		t.Fatalf("count = %d, want 5000", concept.Count(forest))
	}
}
