// Package tree builds concept forests from parsed records and owns the live,
// published forest together with the user's selection and follow-up questions.
package tree

import (
	"time"

	"github.com/MrWong99/thoughtmap/pkg/concept"
)

// Build assembles parsed records into a forest using their indentation
// levels.
//
// A stack holds the current ancestor chain. For each record, entries whose
// level is greater than or equal to the record's level are popped; the record
// then becomes a root (empty stack) or the last child of the stack top, and is
// pushed. Level jumps deeper than one step attach to the nearest shallower
// ancestor. Runs in O(n).
//
// A record's relation label becomes a labeled edge from its parent to the
// record, stored on the parent as Relation{TargetID: record.ID}. A root has no
// parent, so its label is kept as a self edge.
//
// Every node gets Metadata{CreatedAt: now, Mentions: 1}.
func Build(parsed []concept.Parsed, now time.Time) []*concept.Node {
	forest := make([]*concept.Node, 0)
	stack := make([]*concept.Node, 0, 4)

	for _, p := range parsed {
		n := &concept.Node{
			ID:       p.ID,
			Text:     p.Text,
			Level:    p.Level,
			Children: []*concept.Node{},
			Metadata: &concept.Metadata{CreatedAt: now, Mentions: 1},
		}

		for len(stack) > 0 && stack[len(stack)-1].Level >= p.Level {
			stack = stack[:len(stack)-1]
		}

		if len(stack) == 0 {
			forest = append(forest, n)
			if p.RelationLabel != "" {
				n.Relations = append(n.Relations, concept.Relation{TargetID: n.ID, Label: p.RelationLabel})
			}
		} else {
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, n)
			if p.RelationLabel != "" {
				parent.Relations = append(parent.Relations, concept.Relation{TargetID: n.ID, Label: p.RelationLabel})
			}
		}
		stack = append(stack, n)
	}
	return forest
}

// RelationLabel returns the label of the relation recorded on parent for
// childID, if any. For a root's self edge pass the root as parent.
func RelationLabel(parent *concept.Node, childID string) (string, bool) {
	if parent == nil {
		return "", false
	}
	for _, r := range parent.Relations {
		if r.TargetID == childID {
			return r.Label, true
		}
	}
	return "", false
}
