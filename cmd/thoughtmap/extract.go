package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/thoughtmap/internal/app"
	"github.com/MrWong99/thoughtmap/internal/config"
	"github.com/MrWong99/thoughtmap/internal/credential"
	"github.com/MrWong99/thoughtmap/internal/extract"
	"github.com/MrWong99/thoughtmap/internal/selection"
	"github.com/MrWong99/thoughtmap/internal/tree"
	"github.com/MrWong99/thoughtmap/pkg/concept"
)

type extractFlags struct {
	file         string
	followupsFor string
	key          string
	asJSON       bool
}

func newExtractCmd(g *globalFlags) *cobra.Command {
	f := &extractFlags{}
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract a concept tree from a transcript file",
		Long: `Runs one extraction against the configured LLM and prints the resulting
concept tree. With --followups-for, follow-up questions are generated for the
concept whose text or id matches.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExtract(cmd, g, f)
		},
	}
	cmd.Flags().StringVarP(&f.file, "file", "f", "-", "transcript file, - for stdin")
	cmd.Flags().StringVar(&f.followupsFor, "followups-for", "", "generate follow-up questions for this concept (text or id)")
	cmd.Flags().StringVar(&f.key, "key", "", "API key (default: $"+envAPIKey+", then the credential store)")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print the forest as JSON")
	return cmd
}

func runExtract(cmd *cobra.Command, g *globalFlags, f *extractFlags) error {
	cfg, _, err := loadConfig(cmd, g.configPath)
	if err != nil {
		return err
	}
	setupLogging(cmd.ErrOrStderr(), cfg.Server.LogLevel)

	text, err := readInput(cmd, f.file)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("transcript is empty")
	}

	ctx := cmd.Context()
	key, err := resolveKey(ctx, cfg, f.key)
	if err != nil {
		return err
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Extraction.Timeout)
	providers := buildProviders(cfg, reg)
	opts := []extract.Option{extract.WithSettings(app.ExtractionSettings(cfg.Extraction))}
	for _, fb := range providers.Fallbacks {
		opts = append(opts, extract.WithFallback(fb.Name, fb.Provider))
	}
	backend := extract.NewLLMBackend(providers.LLM, opts...)
	if err := backend.Initialize(key); err != nil {
		return err
	}

	parsed, err := backend.ExtractConcepts(ctx, text, nil)
	if err != nil {
		return fmt.Errorf("extract concepts: %w", err)
	}
	forest := tree.Build(parsed, time.Now())

	out := cmd.OutOrStdout()
	if err := printForest(out, forest, f.asJSON); err != nil {
		return err
	}
	if f.followupsFor == "" {
		return nil
	}

	path := findPath(forest, f.followupsFor)
	if path == nil {
		return fmt.Errorf("no concept matches %q", f.followupsFor)
	}
	node := path[len(path)-1]
	surrounding := selection.Surrounding(path)
	questions, err := backend.GenerateFollowups(ctx, node.Text, surrounding)
	if err != nil {
		return fmt.Errorf("generate follow-ups: %w", err)
	}
	if f.asJSON {
		return json.NewEncoder(out).Encode(map[string]any{"concept": node.ID, "follow_ups": questions})
	}
	fmt.Fprint(out, renderMarkdown(followupsMarkdown(node.Text, surrounding, questions)))
	return nil
}

// resolveKey picks the API key for one-shot commands: the flag, then the
// environment, then the credential store.
func resolveKey(ctx context.Context, cfg *config.Config, flag string) (string, error) {
	for _, k := range []string{flag, os.Getenv(envAPIKey)} {
		if k == "" {
			continue
		}
		if !credential.Validate(k) {
			return "", fmt.Errorf("API key %s is not valid", credential.Mask(k))
		}
		return k, nil
	}
	store, closer, err := app.OpenCredentialStore(ctx, cfg.Credentials)
	if err != nil {
		return "", fmt.Errorf("open credential store: %w", err)
	}
	if closer != nil {
		defer closer()
	}
	key, err := store.Get(ctx)
	if errors.Is(err, credential.ErrNotFound) {
		return "", fmt.Errorf("no API key configured, pass --key, set $%s or run 'thoughtmap key save'", envAPIKey)
	}
	return key, err
}

// findPath locates a concept by id, or by text when no id matches, and
// returns its root path.
func findPath(forest []*concept.Node, query string) []*concept.Node {
	if p := selection.Path(forest, query); p != nil {
		return p
	}
	var id string
	concept.Walk(forest, func(n *concept.Node, _ int) bool {
		if id == "" && strings.EqualFold(n.Text, query) {
			id = n.ID
		}
		return id == ""
	})
	if id == "" {
		return nil
	}
	return selection.Path(forest, id)
}

func printForest(w io.Writer, forest []*concept.Node, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(forest)
	}
	_, err := fmt.Fprintln(w, renderForest(forest))
	return err
}
