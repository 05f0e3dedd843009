package tree

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/thoughtmap/internal/observe"
	"github.com/MrWong99/thoughtmap/pkg/concept"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	clk := t0
	opts = append([]Option{
		WithMetrics(m),
		WithClock(func() time.Time { clk = clk.Add(time.Second); return clk }),
	}, opts...)
	return NewStore(opts...)
}

func build(gen string, now time.Time, lines ...concept.Parsed) []*concept.Node {
	for i := range lines {
		lines[i].ID = gen + "-" + lines[i].ID
	}
	return Build(lines, now)
}

func p(id, text string, level int) concept.Parsed {
	return concept.Parsed{ID: id, Text: text, Level: level}
}

func TestStore_InitialSnapshot(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	snap := s.Snapshot()
	if snap.Version != 0 || len(snap.Forest) != 0 || snap.Selection == nil || snap.FollowUps == nil {
		t.Fatalf("unexpected initial snapshot %+v", snap)
	}
}

func TestStore_SelectionPruning(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, WithCarryOver(false))
	s.Replace(build("g1", t0, p("a", "A", 0), p("b", "B", 1), p("c", "C", 0)))

	for _, id := range []string{"g1-a", "g1-c"} {
		if _, _, err := s.Toggle(id); err != nil {
			t.Fatalf("Toggle(%s): %v", id, err)
		}
	}
	if _, ok := s.SetFollowUps("g1-c", []string{"q1"}); !ok {
		t.Fatal("follow-ups for a selected concept should be stored")
	}

	// Without carry-over every rebuild mints fresh ids: selection empties,
	// follow-ups stay.
	snap := s.Replace(build("g2", t0, p("a", "A", 0)))
	if len(snap.Selection) != 0 {
		t.Fatalf("selection = %v, want empty", snap.Selection)
	}
	if !slices.Equal(snap.FollowUps, []string{"q1"}) {
		t.Fatalf("follow-ups = %v, rebuild must not clear them", snap.FollowUps)
	}
}

func TestStore_SelectionIntersection(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, WithCarryOver(false))
	forest := build("g", t0, p("a", "A", 0), p("b", "B", 0), p("c", "C", 0))
	s.Replace(forest)
	for _, id := range []string{"g-a", "g-b", "g-c"} {
		_, _, _ = s.Toggle(id)
	}

	// Same ids minus g-b.
	snap := s.Replace([]*concept.Node{forest[2], forest[0]})
	if !slices.Equal(snap.Selection, []string{"g-a", "g-c"}) {
		t.Fatalf("selection = %v, want [g-a g-c]", snap.Selection)
	}
	for _, id := range snap.Selection {
		if _, ok := concept.Find(snap.Forest, id); !ok {
			t.Errorf("selected id %s not in forest", id)
		}
	}
}

func TestStore_CarryOver(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	created := t0.Add(-time.Hour)
	s.Replace(build("g1", created, p("a", "機械学習", 0), p("b", "データ", 1)))
	if _, _, err := s.Toggle("g1-a"); err != nil {
		t.Fatal(err)
	}

	later := t0.Add(time.Hour)
	next := build("g2", later,
		p("x", "機械学習", 0),
		concept.Parsed{ID: "y", Text: "ﾃﾞｰﾀ", Level: 1, RelationLabel: "入力"},
		p("z", "新しい概念", 1),
	)
	snap := s.Replace(next)

	root := snap.Forest[0]
	if root.ID != "g1-a" {
		t.Fatalf("root id = %s, want carried-over g1-a", root.ID)
	}
	if root.Mentions() != 2 || !root.Metadata.CreatedAt.Equal(created) {
		t.Errorf("root metadata = %+v, want mentions 2 and original CreatedAt", root.Metadata)
	}
	// Half-width kana normalises to the same text.
	if root.Children[0].ID != "g1-b" {
		t.Errorf("child id = %s, want g1-b", root.Children[0].ID)
	}
	if root.Children[1].ID != "g2-z" || root.Children[1].Mentions() != 1 {
		t.Errorf("new concept = %s/%d, want fresh id with 1 mention", root.Children[1].ID, root.Children[1].Mentions())
	}
	if label, ok := RelationLabel(root, "g1-b"); !ok || label != "入力" {
		t.Errorf("relation target not rewritten: %+v", root.Relations)
	}
	if !slices.Equal(snap.Selection, []string{"g1-a"}) {
		t.Errorf("selection = %v, carried-over id should stay selected", snap.Selection)
	}

	// The caller's forest is not modified.
	if next[0].ID != "g2-x" {
		t.Error("Replace must not mutate its argument")
	}
}

func TestStore_CarryOverFuzzy(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, WithSimilarityThreshold(0.9))
	s.Replace(build("g1", t0, p("a", "knowledge management", 0)))

	snap := s.Replace(build("g2", t0, p("a", "knowledge managment", 0)))
	if snap.Forest[0].ID != "g1-a" {
		t.Fatalf("id = %s, expected fuzzy match to reuse g1-a", snap.Forest[0].ID)
	}

	snap = s.Replace(build("g3", t0, p("a", "cooking", 0)))
	if snap.Forest[0].ID != "g3-a" {
		t.Fatalf("id = %s, dissimilar text must mint a fresh id", snap.Forest[0].ID)
	}
}

func TestStore_CarryOverUsesEachOldNodeOnce(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	s.Replace(build("g1", t0, p("a", "A", 0)))
	snap := s.Replace(build("g2", t0, p("a", "A", 0), p("b", "A", 0)))

	ids := concept.IDs(snap.Forest)
	if len(ids) != 2 {
		t.Fatalf("ids = %v, duplicate ids produced", ids)
	}
	if snap.Forest[0].ID != "g1-a" || snap.Forest[1].ID != "g2-b" {
		t.Errorf("ids = %s,%s", snap.Forest[0].ID, snap.Forest[1].ID)
	}
}

func TestStore_SetCarryOver(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	s.Replace(build("g1", t0, p("a", "A", 0)))
	s.SetCarryOver(false)
	if snap := s.Replace(build("g2", t0, p("a", "A", 0))); snap.Forest[0].ID != "g2-a" {
		t.Fatalf("carry-over disabled but id reused: %s", snap.Forest[0].ID)
	}
}

func TestStore_Toggle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	s.Replace(build("g", t0, p("a", "A", 0), p("b", "B", 0)))

	selected, snap, err := s.Toggle("g-a")
	if err != nil || !selected || !snap.IsSelected("g-a") {
		t.Fatalf("toggle on: selected=%v err=%v", selected, err)
	}
	_, _, _ = s.Toggle("g-b")
	s.SetFollowUps("g-b", []string{"q"})

	// Removing one of two selections keeps follow-ups.
	selected, snap, _ = s.Toggle("g-a")
	if selected || len(snap.FollowUps) != 1 {
		t.Fatalf("toggle off: selected=%v followups=%v", selected, snap.FollowUps)
	}
	// Emptying the selection clears them.
	_, snap, _ = s.Toggle("g-b")
	if len(snap.Selection) != 0 || len(snap.FollowUps) != 0 || snap.FollowUpsFor != "" {
		t.Fatalf("expected empty selection and follow-ups, got %+v", snap)
	}

	if _, _, err := s.Toggle("missing"); !errors.Is(err, ErrUnknownConcept) {
		t.Fatalf("err = %v, want ErrUnknownConcept", err)
	}
}

func TestStore_SetFollowUpsIgnoredWhenDeselected(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	s.Replace(build("g", t0, p("a", "A", 0)))
	before := s.Snapshot().Version
	if _, ok := s.SetFollowUps("g-a", []string{"q"}); ok {
		t.Fatal("follow-ups for an unselected concept must be dropped")
	}
	if s.Snapshot().Version != before {
		t.Fatal("dropped update must not publish")
	}

	_, _, _ = s.Toggle("g-a")
	snap, ok := s.SetFollowUps("g-a", nil)
	if !ok || snap.FollowUps == nil {
		t.Fatal("nil questions should publish an empty, non-nil list")
	}
	if snap = s.ClearFollowUps(); len(snap.FollowUps) != 0 || snap.FollowUpsFor != "" {
		t.Fatalf("ClearFollowUps left %+v", snap)
	}
}

func TestStore_SetFollowUpsAtLatestSelectionWins(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	s.Replace(build("g", t0, p("a", "A", 0), p("b", "B", 0)))

	_, first, _ := s.Toggle("g-a")
	_, second, _ := s.Toggle("g-b")
	if second.SelectSeq <= first.SelectSeq {
		t.Fatalf("SelectSeq %d then %d, want increasing", first.SelectSeq, second.SelectSeq)
	}

	if _, ok := s.SetFollowUpsAt("g-b", second.SelectSeq, []string{"about b"}); !ok {
		t.Fatal("follow-ups for the latest selection must apply")
	}
	if _, ok := s.SetFollowUpsAt("g-a", first.SelectSeq, []string{"about a"}); ok {
		t.Fatal("follow-ups for a superseded selection must be dropped")
	}
	if snap := s.Snapshot(); snap.FollowUpsFor != "g-b" || !slices.Equal(snap.FollowUps, []string{"about b"}) {
		t.Fatalf("follow-ups = %v for %q, want b's", snap.FollowUps, snap.FollowUpsFor)
	}

	// Deselecting does not advance the sequence.
	_, deselected, _ := s.Toggle("g-a")
	if deselected.SelectSeq != second.SelectSeq {
		t.Fatalf("SelectSeq = %d after deselect, want %d", deselected.SelectSeq, second.SelectSeq)
	}
}

func TestStore_VersionsIncrease(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	var last uint64
	for i := range 5 {
		snap := s.Replace(build("g", t0, p("a", "A", 0)))
		if snap.Version <= last {
			t.Fatalf("iteration %d: version %d not greater than %d", i, snap.Version, last)
		}
		if !snap.UpdatedAt.After(t0) {
			t.Fatal("UpdatedAt not stamped from clock")
		}
		last = snap.Version
	}
}

func TestStore_SubscribeLatestWins(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ch, cancel := s.Subscribe()

	for range 3 {
		s.Replace(build("g", t0, p("a", "A", 0)))
	}
	got := <-ch
	if got.Version != 3 {
		t.Fatalf("received version %d, want latest (3)", got.Version)
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}
	s.Replace(nil) // must not panic after cancel
}

// Readers racing with writers always observe a consistent snapshot.
func TestStore_ConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, WithCarryOver(false))
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 200 {
			gen := string(rune('a' + i%26))
			s.Replace(build(gen, t0, p("x", "X", 0), p("y", "Y", 1)))
			_, _, _ = s.Toggle(gen + "-x")
		}
		close(stop)
	}()

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := s.Snapshot()
				ids := concept.IDs(snap.Forest)
				for _, id := range snap.Selection {
					if _, ok := ids[id]; !ok {
						t.Errorf("snapshot %d selects %s which is not in its forest", snap.Version, id)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}
