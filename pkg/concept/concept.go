// Package concept defines the concept forest shared by every thoughtmap
// package: the parser produces [Parsed] records, the tree builder turns them
// into [Node] trees, and the reconciler, layout engine and selection
// controller all read the resulting forest.
//
// A forest is an ordered slice of root nodes. Nodes own their children
// exclusively. [Relation] values are non-owning cross references and are never
// followed by the traversal helpers in this package.
package concept

import "time"

// Relation is a labeled, non-hierarchical edge from the node that holds it to
// the node identified by TargetID.
type Relation struct {
	// TargetID is the id of the related node anywhere in the forest.
	TargetID string `json:"target_id"`

	// Label describes the relation (e.g. "の詳細", "example of").
	Label string `json:"label"`
}

// Metadata carries bookkeeping that survives rebuilds through carry-over.
type Metadata struct {
	// CreatedAt is when the concept was first extracted.
	CreatedAt time.Time `json:"created_at"`

	// Mentions counts how many extractions produced this concept. Always >= 1.
	Mentions int `json:"mentions"`
}

// Node is a single concept in the hierarchy.
type Node struct {
	// ID is assigned at creation and never changes.
	ID string `json:"id"`

	// Text is the concept label. It is never edited in place; re-extraction
	// produces a new node instead.
	Text string `json:"text"`

	// Level is the indentation depth reported by the parser. It is a hint and
	// may differ from the node's actual depth in the tree.
	Level int `json:"level"`

	// Children are owned by this node, in source order.
	Children []*Node `json:"children"`

	// Relations are outgoing labeled cross edges. May be nil.
	Relations []Relation `json:"relations,omitempty"`

	// Metadata is nil only for nodes constructed outside the tree builder.
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Mentions returns the mention count, treating missing metadata as 1.
func (n *Node) Mentions() int {
	if n.Metadata == nil || n.Metadata.Mentions < 1 {
		return 1
	}
	return n.Metadata.Mentions
}

// Parsed is the transient record emitted by the response parser and consumed
// by the tree builder.
type Parsed struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	Level         int    `json:"level"`
	RelationLabel string `json:"relation_label,omitempty"`
}
