package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MrWong99/thoughtmap/internal/app"
	"github.com/MrWong99/thoughtmap/internal/config"
)

// envAPIKey seeds an empty credential store and overrides it for one-shot
// commands.
const envAPIKey = "THOUGHTMAP_API_KEY"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "thoughtmap",
		Short:         "Live concept maps from speech",
		Long:          "thoughtmap listens to a conversation, extracts a hierarchy of concepts with an LLM and serves it as an interactive map.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnv(g.envFile, cmd.Flags().Changed("env-file"))
		},
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "config.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before the command runs")

	root.AddCommand(
		newServeCmd(g),
		newExtractCmd(g),
		newParseCmd(),
		newKeyCmd(g),
	)
	return root
}

// loadEnv reads path into the process environment without overriding
// variables that are already set. A missing default file is not an error.
func loadEnv(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil {
		slog.Debug("environment loaded", "file", path)
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	return fmt.Errorf("load env file %q: %w", path, err)
}

// loadConfig reads the configuration file. When the file is missing and the
// path was not given explicitly the defaults are used; the second return is
// false in that case.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, bool, error) {
	cfg, err := config.Load(path)
	switch {
	case err == nil:
		return cfg, true, nil
	case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg, err = config.LoadFromReader(strings.NewReader(""))
		return cfg, false, err
	case errors.Is(err, fs.ErrNotExist):
		return nil, false, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", path)
	default:
		return nil, false, err
	}
}

// setupLogging installs the default logger: text on w, mirrored into a debug
// log ring. The returned level var follows config reloads.
func setupLogging(w io.Writer, level config.LogLevel) (*slog.LevelVar, *app.DebugLog) {
	lv := new(slog.LevelVar)
	lv.Set(app.ParseLevel(level))
	dl := app.NewDebugLog(app.DefaultDebugEntries)
	h := dl.Handler(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv}), lv)
	slog.SetDefault(slog.New(h))
	return lv, dl
}

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		return string(b), err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
