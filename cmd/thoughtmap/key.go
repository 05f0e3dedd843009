package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/thoughtmap/internal/app"
	"github.com/MrWong99/thoughtmap/internal/credential"
)

func newKeyCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the stored API key",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "validate KEY",
			Short: "Check whether KEY looks like a valid API key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				key := strings.TrimSpace(args[0])
				if !credential.Validate(key) {
					return fmt.Errorf("%s: %w", credential.Mask(key), credential.ErrInvalid)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid\n", credential.Mask(key))
				return nil
			},
		},
		&cobra.Command{
			Use:   "save KEY",
			Short: "Validate KEY and store it in the configured credential store",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, g, func(s credential.Store) error {
					key := strings.TrimSpace(args[0])
					if !credential.Validate(key) {
						return fmt.Errorf("%s: %w", credential.Mask(key), credential.ErrInvalid)
					}
					if err := s.Save(cmd.Context(), key); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "✓ saved %s\n", credential.Mask(key))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "remove",
			Short: "Delete the stored API key",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStore(cmd, g, func(s credential.Store) error {
					if err := s.Remove(cmd.Context()); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "✓ API key removed")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Report whether an API key is stored",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStore(cmd, g, func(s credential.Store) error {
					key, err := s.Get(cmd.Context())
					if errors.Is(err, credential.ErrNotFound) {
						fmt.Fprintln(cmd.OutOrStdout(), "✗ no API key stored")
						return nil
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", credential.Mask(key))
					return nil
				})
			},
		},
	)
	return cmd
}

func withStore(cmd *cobra.Command, g *globalFlags, fn func(credential.Store) error) error {
	cfg, _, err := loadConfig(cmd, g.configPath)
	if err != nil {
		return err
	}
	store, closer, err := app.OpenCredentialStore(cmd.Context(), cfg.Credentials)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	if closer != nil {
		defer closer()
	}
	return fn(store)
}
