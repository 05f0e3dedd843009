package tree

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/thoughtmap/internal/observe"
	"github.com/MrWong99/thoughtmap/pkg/concept"
)

// ErrUnknownConcept is returned when an operation names an id that is not in
// the current forest.
var ErrUnknownConcept = errors.New("tree: unknown concept")

// Snapshot is an immutable view of the live state. Callers must not modify
// any part of it, including the nodes reachable from Forest.
type Snapshot struct {
	// Version increases by one with every publish.
	Version uint64 `json:"version"`

	Forest []*concept.Node `json:"forest"`

	// Selection holds the selected ids in the order they were selected. Every
	// id is present in Forest.
	Selection []string `json:"selection"`

	// FollowUps are the questions generated for FollowUpsFor. A rebuild keeps
	// them, so FollowUpsFor may name a concept that is no longer in Forest.
	FollowUps    []string `json:"follow_ups"`
	FollowUpsFor string   `json:"follow_ups_for,omitempty"`

	// SelectSeq counts the toggles that selected a concept. It identifies the
	// latest selection for [Store.SetFollowUpsAt].
	SelectSeq uint64 `json:"-"`

	UpdatedAt time.Time `json:"updated_at"`
}

// IsSelected reports whether id is in the selection.
func (s *Snapshot) IsSelected(id string) bool {
	return slices.Contains(s.Selection, id)
}

// Option configures a [Store].
type Option func(*Store)

// WithCarryOver enables or disables metadata carry-over between rebuilds.
// Enabled by default.
func WithCarryOver(enabled bool) Option {
	return func(s *Store) { s.carryOver = enabled }
}

// WithSimilarityThreshold sets the minimum Jaro-Winkler similarity for two
// concept texts to count as the same concept. Default 0.92.
func WithSimilarityThreshold(t float64) Option {
	return func(s *Store) { s.threshold = t }
}

// WithClock overrides time.Now for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// DefaultSimilarityThreshold is used when no threshold is configured.
const DefaultSimilarityThreshold = 0.92

// Store owns the published [Snapshot]. Writers serialise on an internal mutex
// and publish a new snapshot atomically; readers never block.
type Store struct {
	now     func() time.Time
	metrics *observe.Metrics

	mu        sync.Mutex
	carryOver bool
	threshold float64
	subs      map[int]chan *Snapshot
	nextSub   int
	selectSeq uint64

	snap atomic.Pointer[Snapshot]
}

// NewStore creates a Store holding an empty forest.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:       time.Now,
		carryOver: true,
		threshold: DefaultSimilarityThreshold,
		subs:      make(map[int]chan *Snapshot),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.snap.Store(&Snapshot{
		Forest:    []*concept.Node{},
		Selection: []string{},
		FollowUps: []string{},
		UpdatedAt: s.now(),
	})
	return s
}

// Snapshot returns the current published state.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// SetCarryOver toggles carry-over for subsequent rebuilds.
func (s *Store) SetCarryOver(enabled bool) {
	s.mu.Lock()
	s.carryOver = enabled
	s.mu.Unlock()
}

// SetSimilarityThreshold changes the fuzzy match threshold for subsequent
// rebuilds.
func (s *Store) SetSimilarityThreshold(t float64) {
	s.mu.Lock()
	s.threshold = t
	s.mu.Unlock()
}

// Replace publishes forest as the new tree. The store takes a private copy of
// forest. When carry-over is enabled, nodes that represent a concept already
// present in the previous forest reuse its id and creation time and bump its
// mention count. The selection is pruned to ids still present. Follow-up
// questions are left untouched.
func (s *Store) Replace(forest []*concept.Node) *Snapshot {
	next := concept.Clone(forest)
	if next == nil {
		next = []*concept.Node{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.snap.Load()

	if s.carryOver {
		carryOver(prev.Forest, next, s.threshold)
	}

	ids := concept.IDs(next)
	selection := make([]string, 0, len(prev.Selection))
	for _, id := range prev.Selection {
		if _, ok := ids[id]; ok {
			selection = append(selection, id)
		}
	}

	snap := s.publish(prev, next, selection, prev.FollowUps, prev.FollowUpsFor)
	s.metrics.Concepts.Record(context.Background(), int64(len(ids)))
	return snap
}

// Toggle flips the selection state of id. It reports whether id is selected
// afterwards. Deselecting the last selected concept clears the follow-ups.
func (s *Store) Toggle(id string) (bool, *Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.snap.Load()

	if _, ok := concept.Find(prev.Forest, id); !ok {
		return false, prev, ErrUnknownConcept
	}

	followUps, followUpsFor := prev.FollowUps, prev.FollowUpsFor
	var selection []string
	selected := !prev.IsSelected(id)
	if selected {
		s.selectSeq++
		selection = append(slices.Clone(prev.Selection), id)
	} else {
		selection = slices.DeleteFunc(slices.Clone(prev.Selection), func(v string) bool { return v == id })
		if len(selection) == 0 {
			followUps, followUpsFor = []string{}, ""
		}
	}
	return selected, s.publish(prev, prev.Forest, selection, followUps, followUpsFor), nil
}

// SetFollowUps stores questions generated for the concept forID. The update
// is dropped (ok=false) when forID is no longer selected, so a slow
// generation cannot resurrect questions the user already dismissed.
func (s *Store) SetFollowUps(forID string, questions []string) (*Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setFollowUps(forID, questions)
}

// SetFollowUpsAt is SetFollowUps for questions requested by the selection
// published with SelectSeq seq. The update is also dropped once a later
// toggle selected another concept, so the newest selection wins regardless
// of which generation finishes first.
func (s *Store) SetFollowUpsAt(forID string, seq uint64, questions []string) (*Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.selectSeq {
		return s.snap.Load(), false
	}
	return s.setFollowUps(forID, questions)
}

// setFollowUps must be called with s.mu held.
func (s *Store) setFollowUps(forID string, questions []string) (*Snapshot, bool) {
	prev := s.snap.Load()
	if !prev.IsSelected(forID) {
		return prev, false
	}
	qs := slices.Clone(questions)
	if qs == nil {
		qs = []string{}
	}
	return s.publish(prev, prev.Forest, prev.Selection, qs, forID), true
}

// ClearFollowUps removes the follow-up questions.
func (s *Store) ClearFollowUps() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.snap.Load()
	return s.publish(prev, prev.Forest, prev.Selection, []string{}, "")
}

// Subscribe returns a channel that receives every published snapshot. Slow
// receivers only see the latest one. cancel closes the channel.
func (s *Store) Subscribe() (<-chan *Snapshot, func()) {
	ch := make(chan *Snapshot, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// publish must be called with s.mu held.
func (s *Store) publish(prev *Snapshot, forest []*concept.Node, selection, followUps []string, followUpsFor string) *Snapshot {
	snap := &Snapshot{
		Version:      prev.Version + 1,
		Forest:       forest,
		Selection:    selection,
		FollowUps:    followUps,
		FollowUpsFor: followUpsFor,
		SelectSeq:    s.selectSeq,
		UpdatedAt:    s.now(),
	}
	s.snap.Store(snap)

	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	return snap
}
