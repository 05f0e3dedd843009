package config_test

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/thoughtmap/internal/config"
)

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  cors_origins: ["http://localhost:5173"]

providers:
  llm:
    name: openai
    model: gpt-4o-mini
  llm_fallbacks:
    - name: ollama
      model: llama3.2
      base_url: http://localhost:11434
  stt:
    name: deepgram
    api_key: dg-test
    model: nova-3
    options:
      language: ja

extraction:
  debounce: 5s
  language: en
  concept_temperature: 0.2
  carry_over: false
  similarity_threshold: 0.8

credentials:
  store: memory

layout:
  inner_radius: 150
  seed: 7
`

func TestLoadFromReader_Sample(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q", cfg.Server.LogLevel)
	}
	if cfg.Providers.LLM.Model != "gpt-4o-mini" {
		t.Errorf("llm model: got %q", cfg.Providers.LLM.Model)
	}
	if len(cfg.Providers.LLMFallbacks) != 1 || cfg.Providers.LLMFallbacks[0].Name != "ollama" {
		t.Errorf("llm_fallbacks: got %+v", cfg.Providers.LLMFallbacks)
	}
	if cfg.Providers.STT.Options["language"] != "ja" {
		t.Errorf("stt options: got %v", cfg.Providers.STT.Options)
	}
	if cfg.Extraction.Debounce != 5*time.Second {
		t.Errorf("debounce: got %s", cfg.Extraction.Debounce)
	}
	if cfg.Extraction.CarryOverEnabled() {
		t.Error("carry_over: expected disabled")
	}
	if cfg.Extraction.SimilarityThreshold != 0.8 {
		t.Errorf("similarity_threshold: got %v", cfg.Extraction.SimilarityThreshold)
	}
	if cfg.Credentials.Store != config.CredentialStoreMemory {
		t.Errorf("credentials.store: got %q", cfg.Credentials.Store)
	}
	if cfg.Layout.InnerRadius != 150 || cfg.Layout.Seed != 7 {
		t.Errorf("layout: got %+v", cfg.Layout)
	}
	// Unset values still receive defaults.
	if cfg.Extraction.ConceptMaxTokens != 500 || cfg.Extraction.FollowupTemperature != 0.7 {
		t.Errorf("extraction defaults not applied: %+v", cfg.Extraction)
	}
	if cfg.Layout.RadiusIncrement != 100 || cfg.Layout.Iterations != 300 {
		t.Errorf("layout defaults not applied: %+v", cfg.Layout)
	}
}

func TestLoadFromReader_EmptyYieldsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q", cfg.Server.LogLevel)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "*" {
		t.Errorf("cors_origins: got %v", cfg.Server.CORSOrigins)
	}
	if cfg.Providers.LLM.Name != "openai" || cfg.Providers.LLM.Model != config.DefaultLLMModel {
		t.Errorf("llm: got %+v", cfg.Providers.LLM)
	}
	if cfg.Extraction.Debounce != config.DefaultDebounce {
		t.Errorf("debounce: got %s", cfg.Extraction.Debounce)
	}
	if cfg.Extraction.Language != "ja" {
		t.Errorf("language: got %q", cfg.Extraction.Language)
	}
	if cfg.Extraction.ConceptTemperature != 0.3 {
		t.Errorf("concept_temperature: got %v", cfg.Extraction.ConceptTemperature)
	}
	if !cfg.Extraction.CarryOverEnabled() {
		t.Error("carry_over should default to true")
	}
	if cfg.Credentials.Store != config.CredentialStoreFile || cfg.Credentials.Path != config.DefaultCredentialPath {
		t.Errorf("credentials: got %+v", cfg.Credentials)
	}
	if cfg.MCP.Disabled {
		t.Error("mcp should be enabled by default")
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adr: \":1\"\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "bad log level",
			yaml: "server:\n  log_level: bananas\n",
			want: []string{"log_level"},
		},
		{
			name: "tls missing key",
			yaml: "server:\n  tls:\n    cert_file: c.pem\n",
			want: []string{"tls"},
		},
		{
			name: "negative debounce",
			yaml: "extraction:\n  debounce: -1s\n",
			want: []string{"debounce"},
		},
		{
			name: "unknown language",
			yaml: "extraction:\n  language: fr\n",
			want: []string{"language"},
		},
		{
			name: "temperature out of range",
			yaml: "extraction:\n  concept_temperature: 3\n",
			want: []string{"concept_temperature"},
		},
		{
			name: "threshold out of range",
			yaml: "extraction:\n  similarity_threshold: 1.5\n",
			want: []string{"similarity_threshold"},
		},
		{
			name: "postgres without dsn",
			yaml: "credentials:\n  store: postgres\n",
			want: []string{"postgres_dsn"},
		},
		{
			name: "bad store",
			yaml: "credentials:\n  store: vault\n",
			want: []string{"credentials.store"},
		},
		{
			name: "fallback without name",
			yaml: "providers:\n  llm_fallbacks:\n    - model: x\n",
			want: []string{"llm_fallbacks[0]"},
		},
		{
			name: "multiple errors joined",
			yaml: "server:\n  log_level: loud\nextraction:\n  language: de\nlayout:\n  iterations: -5\n",
			want: []string{"log_level", "language", "iterations"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, w := range tc.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error should mention %q, got: %v", w, err)
				}
			}
		})
	}
}

func TestValidate_UnknownProviderOnlyWarns(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("providers:\n  llm:\n    name: my-custom-llm\n"))
	if err != nil {
		t.Fatalf("unknown provider names should only warn, got: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, sampleYAML)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if cfg.Providers.LLM.Name != "openai" || cfg.Extraction.Debounce != 10*time.Second {
		t.Errorf("unexpected example values: llm=%q debounce=%v", cfg.Providers.LLM.Name, cfg.Extraction.Debounce)
	}
	if cfg.Providers.STT.Name != "" {
		t.Errorf("example enables STT: %q", cfg.Providers.STT.Name)
	}
}
