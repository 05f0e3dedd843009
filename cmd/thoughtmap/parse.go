package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/thoughtmap/internal/extract"
	"github.com/MrWong99/thoughtmap/internal/tree"
)

func newParseCmd() *cobra.Command {
	var (
		file   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Build a concept tree from a saved LLM response",
		Long:  "Runs the outline parser and tree builder on a saved extraction response without any network access.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := readInput(cmd, file)
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			forest := tree.Build(extract.ParseConcepts(resp, "parse"), time.Now())
			return printForest(cmd.OutOrStdout(), forest, asJSON)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "response file, - for stdin")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the forest as JSON")
	return cmd
}
