package tree

import (
	"strings"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/unicode/norm"

	"github.com/MrWong99/thoughtmap/pkg/concept"
)

// normalize folds width variants (full-width ASCII, half-width kana), case and
// whitespace so that "ＡＩ 学習" and "ai学習" compare equal.
func normalize(text string) string {
	folded := strings.ToLower(norm.NFKC.String(text))
	return strings.Join(strings.Fields(folded), "")
}

type candidate struct {
	node *concept.Node
	key  string
	used bool
}

// carryOver matches nodes of next against nodes of prev and, for every match,
// rewrites the next node to reuse the previous id and creation time with one
// more mention. Exact normalized matches are assigned first in pre-order;
// remaining nodes take the most similar unused previous node whose
// Jaro-Winkler similarity is at least threshold. Every previous node is used
// at most once. Relation targets in next are rewritten to the reused ids.
func carryOver(prev, next []*concept.Node, threshold float64) {
	if len(prev) == 0 || len(next) == 0 {
		return
	}

	var olds []*candidate
	byKey := make(map[string][]*candidate)
	concept.Walk(prev, func(n *concept.Node, _ int) bool {
		c := &candidate{node: n, key: normalize(n.Text)}
		olds = append(olds, c)
		byKey[c.key] = append(byKey[c.key], c)
		return true
	})

	type pending struct {
		node *concept.Node
		key  string
	}
	var unmatched []pending
	idMap := make(map[string]string)

	assign := func(n *concept.Node, old *candidate) {
		old.used = true
		idMap[n.ID] = old.node.ID
		md := concept.Metadata{Mentions: old.node.Mentions() + 1}
		if old.node.Metadata != nil {
			md.CreatedAt = old.node.Metadata.CreatedAt
		} else if n.Metadata != nil {
			md.CreatedAt = n.Metadata.CreatedAt
		}
		n.ID = old.node.ID
		n.Metadata = &md
	}

	concept.Walk(next, func(n *concept.Node, _ int) bool {
		key := normalize(n.Text)
		if key == "" {
			return true
		}
		for _, c := range byKey[key] {
			if !c.used {
				assign(n, c)
				return true
			}
		}
		unmatched = append(unmatched, pending{node: n, key: key})
		return true
	})

	if threshold > 0 && threshold <= 1 {
		for _, p := range unmatched {
			var best *candidate
			bestScore := threshold
			for _, c := range olds {
				if c.used || c.key == "" {
					continue
				}
				if score := matchr.JaroWinkler(p.key, c.key, false); score >= bestScore {
					best, bestScore = c, score
				}
			}
			if best != nil {
				assign(p.node, best)
			}
		}
	}

	if len(idMap) == 0 {
		return
	}
	concept.Walk(next, func(n *concept.Node, _ int) bool {
		for i, r := range n.Relations {
			if id, ok := idMap[r.TargetID]; ok {
				n.Relations[i].TargetID = id
			}
		}
		return true
	})
}
