package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/thoughtmap/internal/selection"
	"github.com/MrWong99/thoughtmap/internal/tree"
	"github.com/MrWong99/thoughtmap/pkg/concept"
)

// conceptEntry is one node of the forest in pre-order. The forest is sent
// flat because tool schemas cannot describe recursive types.
type conceptEntry struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Depth    int    `json:"depth"`
	ParentID string `json:"parent_id,omitempty"`
	Mentions int    `json:"mentions"`
	Selected bool   `json:"selected"`
}

type emptyInput struct{}

type treeOutput struct {
	Version   uint64         `json:"version"`
	Concepts  []conceptEntry `json:"concepts"`
	Selection []string       `json:"selection"`
}

type idInput struct {
	ID string `json:"id" jsonschema:"The concept id"`
}

type lookupOutput struct {
	Concept  conceptEntry `json:"concept"`
	Path     []string `json:"path"`
	Children []string `json:"children"`
}

type toggleOutput struct {
	Selected  bool     `json:"selected"`
	Selection []string `json:"selection"`
	FollowUps []string `json:"follow_ups"`
}

type followupsOutput struct {
	ConceptID string   `json:"concept_id"`
	Questions []string `json:"questions"`
}

type transcriptInput struct {
	Text string `json:"text" jsonschema:"Transcript text to append"`
}

type transcriptOutput struct {
	TranscriptLength int  `json:"transcript_length"`
	Pending          bool `json:"pending"`
}

// flatten lists forest in pre-order with parent ids and selection flags.
func flatten(snap *tree.Snapshot) []conceptEntry {
	out := make([]conceptEntry, 0, concept.Count(snap.Forest))
	var visit func(ns []*concept.Node, parent string, depth int)
	visit = func(ns []*concept.Node, parent string, depth int) {
		for _, n := range ns {
			out = append(out, conceptEntry{
				ID:       n.ID,
				Text:     n.Text,
				Depth:    depth,
				ParentID: parent,
				Mentions: n.Mentions(),
				Selected: snap.IsSelected(n.ID),
			})
			visit(n.Children, n.ID, depth+1)
		}
	}
	visit(snap.Forest, "", 0)
	return out
}

func (s *Server) registerTreeTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_concept_tree",
		Description: "Return the current concept forest in pre-order with depth and parent ids",
	}, func(context.Context, *mcp.CallToolRequest, emptyInput) (*mcp.CallToolResult, treeOutput, error) {
		snap := s.app.Store().Snapshot()
		return nil, treeOutput{
			Version:   snap.Version,
			Concepts:  flatten(snap),
			Selection: nonNil(snap.Selection),
		}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "lookup_concept",
		Description: "Look up a single concept by id, including its ancestor path and children",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in idInput) (*mcp.CallToolResult, lookupOutput, error) {
		if in.ID == "" {
			return nil, lookupOutput{}, errors.New("id is required")
		}
		snap := s.app.Store().Snapshot()
		path := selection.Path(snap.Forest, in.ID)
		if path == nil {
			return nil, lookupOutput{}, fmt.Errorf("concept %q not found", in.ID)
		}
		n := path[len(path)-1]
		out := lookupOutput{
			Concept: conceptEntry{
				ID:       n.ID,
				Text:     n.Text,
				Depth:    len(path) - 1,
				Mentions: n.Mentions(),
				Selected: snap.IsSelected(n.ID),
			},
			Path:     make([]string, 0, len(path)),
			Children: make([]string, 0, len(n.Children)),
		}
		if len(path) > 1 {
			out.Concept.ParentID = path[len(path)-2].ID
		}
		for _, p := range path {
			out.Path = append(out.Path, p.Text)
		}
		for _, c := range n.Children {
			out.Children = append(out.Children, c.ID)
		}
		return nil, out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "toggle_concept",
		Description: "Select or deselect a concept. Selecting generates follow-up questions when a key is configured",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in idInput) (*mcp.CallToolResult, toggleOutput, error) {
		if in.ID == "" {
			return nil, toggleOutput{}, errors.New("id is required")
		}
		snap, err := s.app.Selection().Toggle(ctx, in.ID)
		if errors.Is(err, tree.ErrUnknownConcept) {
			return nil, toggleOutput{}, fmt.Errorf("concept %q not found", in.ID)
		}
		if err != nil {
			return nil, toggleOutput{}, fmt.Errorf("toggle: %w", err)
		}
		out := toggleOutput{
			Selected:  snap.IsSelected(in.ID),
			Selection: nonNil(snap.Selection),
			FollowUps: []string{},
		}
		if snap.FollowUpsFor == in.ID {
			out.FollowUps = nonNil(snap.FollowUps)
		}
		return nil, out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_followups",
		Description: "Return the follow-up questions generated for the most recently selected concept",
	}, func(context.Context, *mcp.CallToolRequest, emptyInput) (*mcp.CallToolResult, followupsOutput, error) {
		snap := s.app.Store().Snapshot()
		return nil, followupsOutput{ConceptID: snap.FollowUpsFor, Questions: nonNil(snap.FollowUps)}, nil
	})
}

func (s *Server) registerTranscriptTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "append_transcript",
		Description: "Append finalized transcript text. Extraction runs after the configured debounce",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in transcriptInput) (*mcp.CallToolResult, transcriptOutput, error) {
		text := strings.TrimSpace(in.Text)
		if text == "" {
			return nil, transcriptOutput{}, errors.New("text is required")
		}
		sched := s.app.Scheduler()
		sched.Append(text)
		return nil, transcriptOutput{
			TranscriptLength: utf8.RuneCountInString(sched.Buffer()),
			Pending:          sched.Pending(),
		}, nil
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
