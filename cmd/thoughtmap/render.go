package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/MrWong99/thoughtmap/internal/config"
	conceptree "github.com/MrWong99/thoughtmap/internal/tree"
	"github.com/MrWong99/thoughtmap/pkg/concept"
)

var (
	enumeratorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).MarginRight(1)
	itemStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	labelStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	mentionStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	summaryStyle    = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
	summaryKeyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Width(14)
)

// renderForest draws forest as an indented tree. Relation labels and
// mention counts above one are appended to each line.
func renderForest(forest []*concept.Node) string {
	if len(forest) == 0 {
		return labelStyle.Render("(no concepts)")
	}
	t := styled(tree.New())
	for _, root := range forest {
		t.Child(subtree(root, root))
	}
	return t.String()
}

func styled(t *tree.Tree) *tree.Tree {
	return t.Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(enumeratorStyle).
		ItemStyle(itemStyle)
}

// subtree renders n. For roots parent is n itself so that a root's own
// relation tag is shown.
func subtree(parent, n *concept.Node) any {
	line := n.Text
	if label, ok := conceptree.RelationLabel(parent, n.ID); ok {
		line += " " + labelStyle.Render("("+label+")")
	}
	if m := n.Mentions(); m > 1 {
		line += " " + mentionStyle.Render("×"+strconv.Itoa(m))
	}
	if len(n.Children) == 0 {
		return line
	}
	t := styled(tree.Root(line))
	for _, c := range n.Children {
		t.Child(subtree(n, c))
	}
	return t
}

// followupsMarkdown formats questions about topic as a numbered list.
func followupsMarkdown(topic, context string, questions []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", topic)
	if context != "" {
		fmt.Fprintf(&b, "*%s*\n\n", context)
	}
	if len(questions) == 0 {
		b.WriteString("No follow-up questions were generated.\n")
	}
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	return b.String()
}

// renderMarkdown renders md for the terminal, falling back to the raw text
// when no renderer can be built.
func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// startupSummary describes the effective configuration of the server.
func startupSummary(cfg *config.Config, configFound bool, mcp bool) string {
	rows := [][2]string{
		{"LLM", providerLabel(cfg.Providers.LLM, "(none)")},
		{"Fallbacks", strconv.Itoa(len(cfg.Providers.LLMFallbacks))},
		{"STT", providerLabel(cfg.Providers.STT, "(browser)")},
		{"Language", cfg.Extraction.Language},
		{"Debounce", cfg.Extraction.Debounce.String()},
		{"Credentials", string(cfg.Credentials.Store)},
		{"Listen addr", cfg.Server.ListenAddr},
	}
	if !configFound {
		rows = append(rows, [2]string{"Config", "(defaults)"})
	}
	if mcp {
		rows = append(rows, [2]string{"MCP", "/mcp"})
	} else {
		rows = append(rows, [2]string{"MCP", "(disabled)"})
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, lipgloss.NewStyle().Bold(true).Render("thoughtmap "+version))
	for _, r := range rows {
		lines = append(lines, summaryKeyStyle.Render(r[0])+r[1])
	}
	return summaryStyle.Render(strings.Join(lines, "\n"))
}

func providerLabel(e config.ProviderEntry, unset string) string {
	switch {
	case e.Name == "":
		return unset
	case e.Model != "":
		return e.Name + " / " + e.Model
	default:
		return e.Name
	}
}
