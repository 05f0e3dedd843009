package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("llm", fb.Name)
	}

	// Extraction
	e := cfg.Extraction
	if e.Debounce < 0 {
		errs = append(errs, fmt.Errorf("extraction.debounce %s must not be negative", e.Debounce))
	}
	if e.Timeout < 0 {
		errs = append(errs, fmt.Errorf("extraction.timeout %s must not be negative", e.Timeout))
	}
	if e.Language != "" && e.Language != "ja" && e.Language != "en" {
		errs = append(errs, fmt.Errorf("extraction.language %q is invalid; valid values: ja, en", e.Language))
	}
	if e.ConceptTemperature < 0 || e.ConceptTemperature > 2 {
		errs = append(errs, fmt.Errorf("extraction.concept_temperature %.2f is out of range [0, 2]", e.ConceptTemperature))
	}
	if e.FollowupTemperature < 0 || e.FollowupTemperature > 2 {
		errs = append(errs, fmt.Errorf("extraction.followup_temperature %.2f is out of range [0, 2]", e.FollowupTemperature))
	}
	if e.ConceptMaxTokens < 0 || e.FollowupMaxTokens < 0 {
		errs = append(errs, errors.New("extraction max tokens must not be negative"))
	}
	if e.SimilarityThreshold < 0 || e.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("extraction.similarity_threshold %.2f is out of range [0, 1]", e.SimilarityThreshold))
	}

	// Credentials
	c := cfg.Credentials
	if c.Store != "" && !c.Store.IsValid() {
		errs = append(errs, fmt.Errorf("credentials.store %q is invalid; valid values: file, memory, postgres", c.Store))
	}
	if c.Store == CredentialStorePostgres && c.PostgresDSN == "" {
		errs = append(errs, errors.New("credentials.postgres_dsn is required when store is postgres"))
	}
	if c.Store == CredentialStoreFile && c.Path == "" {
		errs = append(errs, errors.New("credentials.path is required when store is file"))
	}
	if c.Store == CredentialStoreMemory {
		slog.Warn("credentials.store is memory; the API key is lost on restart")
	}

	// Layout
	l := cfg.Layout
	if l.InnerRadius < 0 || l.RadiusIncrement < 0 || l.NodeRadius < 0 {
		errs = append(errs, errors.New("layout radii must not be negative"))
	}
	if l.Iterations < 0 {
		errs = append(errs, fmt.Errorf("layout.iterations %d must not be negative", l.Iterations))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
