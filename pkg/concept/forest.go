package concept

// Find performs a depth-first pre-order search over forest and returns the
// first node whose ID equals id.
func Find(forest []*Node, id string) (*Node, bool) {
	for _, n := range forest {
		if n.ID == id {
			return n, true
		}
		if found, ok := Find(n.Children, id); ok {
			return found, true
		}
	}
	return nil, false
}

// IDs returns the set of every node id in forest.
func IDs(forest []*Node) map[string]struct{} {
	ids := make(map[string]struct{})
	Walk(forest, func(n *Node, _ int) bool {
		ids[n.ID] = struct{}{}
		return true
	})
	return ids
}

// Walk visits every node in depth-first pre-order together with its depth
// (roots have depth 0). Returning false from fn skips the node's subtree.
func Walk(forest []*Node, fn func(n *Node, depth int) bool) {
	var visit func(nodes []*Node, depth int)
	visit = func(nodes []*Node, depth int) {
		for _, n := range nodes {
			if fn(n, depth) {
				visit(n.Children, depth+1)
			}
		}
	}
	visit(forest, 0)
}

// Count returns the number of nodes in forest.
func Count(forest []*Node) int {
	total := 0
	Walk(forest, func(*Node, int) bool {
		total++
		return true
	})
	return total
}

// Flatten serialises forest into pre-order [Parsed] records whose Level is the
// node's actual depth. Feeding the result back into the tree builder yields a
// forest with the same shape.
func Flatten(forest []*Node) []Parsed {
	out := make([]Parsed, 0, Count(forest))
	Walk(forest, func(n *Node, depth int) bool {
		out = append(out, Parsed{ID: n.ID, Text: n.Text, Level: depth})
		return true
	})
	return out
}

// Clone returns a deep copy of forest. Relations and metadata are copied, so
// the result shares no mutable state with the input.
func Clone(forest []*Node) []*Node {
	if forest == nil {
		return nil
	}
	out := make([]*Node, len(forest))
	for i, n := range forest {
		c := &Node{
			ID:       n.ID,
			Text:     n.Text,
			Level:    n.Level,
			Children: Clone(n.Children),
		}
		if c.Children == nil {
			c.Children = []*Node{}
		}
		if n.Relations != nil {
			c.Relations = append([]Relation(nil), n.Relations...)
		}
		if n.Metadata != nil {
			md := *n.Metadata
			c.Metadata = &md
		}
		out[i] = c
	}
	return out
}
