// Package selection handles user interaction with the published concept
// forest: toggling concepts in and out of the selection, generating follow-up
// questions for newly selected concepts and answering lookups.
package selection

import (
	"context"
	"strings"

	"github.com/MrWong99/thoughtmap/internal/extract"
	"github.com/MrWong99/thoughtmap/internal/observe"
	"github.com/MrWong99/thoughtmap/internal/tree"
	"github.com/MrWong99/thoughtmap/pkg/concept"
)

// Controller mediates between user actions, the [tree.Store] and the
// extraction backend.
type Controller struct {
	backend extract.Backend
	store   *tree.Store
}

// New creates a Controller.
func New(backend extract.Backend, store *tree.Store) *Controller {
	return &Controller{backend: backend, store: store}
}

// Toggle flips the selection state of id and returns the resulting snapshot.
//
// Deselecting the last concept clears the follow-up questions. Selecting a
// concept asks the backend for follow-up questions when it is initialised;
// the questions replace the current ones unless the concept was deselected
// or another concept was selected while they were generated. A generation failure is logged and leaves the
// existing questions untouched. Toggle only fails with
// [tree.ErrUnknownConcept].
func (c *Controller) Toggle(ctx context.Context, id string) (*tree.Snapshot, error) {
	selected, snap, err := c.store.Toggle(id)
	if err != nil {
		return snap, err
	}
	log := observe.Logger(ctx).With("concept_id", id)
	if !selected {
		log.Debug("selection: concept deselected", "selected", len(snap.Selection))
		return snap, nil
	}
	if !c.backend.IsInitialized() {
		log.Debug("selection: backend not initialized, no follow-ups")
		return snap, nil
	}

	path := Path(snap.Forest, id)
	if len(path) == 0 {
		return snap, nil
	}
	node := path[len(path)-1]

	questions, err := c.backend.GenerateFollowups(ctx, node.Text, Surrounding(path))
	if err != nil {
		log.Warn("selection: follow-up generation failed", "err", err)
		return c.store.Snapshot(), nil
	}
	if next, ok := c.store.SetFollowUpsAt(id, snap.SelectSeq, questions); ok {
		log.Info("selection: follow-ups updated", "questions", len(questions))
		return next, nil
	}
	log.Debug("selection: selection changed during generation, follow-ups dropped")
	return c.store.Snapshot(), nil
}

// Lookup returns the concept with the given id from the live forest.
func (c *Controller) Lookup(id string) (*concept.Node, bool) {
	return concept.Find(c.store.Snapshot().Forest, id)
}

// Selected returns the selected concepts in forest pre-order.
func (c *Controller) Selected() []*concept.Node {
	snap := c.store.Snapshot()
	out := make([]*concept.Node, 0, len(snap.Selection))
	if len(snap.Selection) == 0 {
		return out
	}
	concept.Walk(snap.Forest, func(n *concept.Node, _ int) bool {
		if snap.IsSelected(n.ID) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Path returns the chain of nodes from a root down to id, or nil if id is
// not in forest.
func Path(forest []*concept.Node, id string) []*concept.Node {
	for _, n := range forest {
		if n.ID == id {
			return []*concept.Node{n}
		}
		if sub := Path(n.Children, id); sub != nil {
			return append([]*concept.Node{n}, sub...)
		}
	}
	return nil
}

// Surrounding renders the ancestors of the last node in path as context for
// follow-up generation, e.g. "AI > 機械学習". Roots have no context.
func Surrounding(path []*concept.Node) string {
	if len(path) < 2 {
		return ""
	}
	parts := make([]string, 0, len(path)-1)
	for _, n := range path[:len(path)-1] {
		parts = append(parts, n.Text)
	}
	return strings.Join(parts, " > ")
}
