// Package config provides the configuration schema, loader, provider registry
// and hot-reload watcher for the thoughtmap server.
package config

import "time"

// LogLevel controls log verbosity for the thoughtmap server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// CredentialStoreKind selects where the API key is persisted.
type CredentialStoreKind string

const (
	CredentialStoreFile     CredentialStoreKind = "file"
	CredentialStoreMemory   CredentialStoreKind = "memory"
	CredentialStorePostgres CredentialStoreKind = "postgres"
)

// IsValid reports whether k is a recognised store kind.
func (k CredentialStoreKind) IsValid() bool {
	switch k {
	case CredentialStoreFile, CredentialStoreMemory, CredentialStorePostgres:
		return true
	}
	return false
}

// Config is the root configuration structure for thoughtmap.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Extraction  ExtractionConfig  `yaml:"extraction"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Layout      LayoutConfig      `yaml:"layout"`
	MCP         MCPConfig         `yaml:"mcp"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// CORSOrigins lists allowed browser origins. Defaults to ["*"].
	CORSOrigins []string `yaml:"cors_origins"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares the LLM used for extraction, optional fallbacks
// tried in order when it fails, and an optional server-side STT provider.
type ProvidersConfig struct {
	LLM          ProviderEntry   `yaml:"llm"`
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
	STT          ProviderEntry   `yaml:"stt"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider. For the primary LLM the key
	// from the credential store takes precedence.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-3.5-turbo", "nova-3").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// ExtractionConfig tunes the scheduling and LLM calls of the concept
// pipeline.
type ExtractionConfig struct {
	// Debounce is the quiet period after the last final transcript fragment
	// before an extraction runs. Hot-reloadable. Default 10s.
	Debounce time.Duration `yaml:"debounce"`

	// Language selects the prompt set: "ja" or "en". Hot-reloadable.
	Language string `yaml:"language"`

	ConceptTemperature  float64 `yaml:"concept_temperature"`
	ConceptMaxTokens    int     `yaml:"concept_max_tokens"`
	FollowupTemperature float64 `yaml:"followup_temperature"`
	FollowupMaxTokens   int     `yaml:"followup_max_tokens"`

	// Timeout bounds a single LLM HTTP request. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`

	// CarryOver keeps ids, creation times and mention counts of concepts that
	// survive a rebuild. Hot-reloadable. Default true.
	CarryOver *bool `yaml:"carry_over"`

	// SimilarityThreshold is the minimum Jaro-Winkler similarity for fuzzy
	// carry-over matches, in (0, 1].
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// CarryOverEnabled resolves the CarryOver default.
func (e ExtractionConfig) CarryOverEnabled() bool {
	return e.CarryOver == nil || *e.CarryOver
}

// CredentialsConfig selects the API key store.
type CredentialsConfig struct {
	Store       CredentialStoreKind `yaml:"store"`
	Path        string              `yaml:"path"`
	PostgresDSN string              `yaml:"postgres_dsn"`
}

// LayoutConfig holds the layout engine defaults.
type LayoutConfig struct {
	InnerRadius     float64 `yaml:"inner_radius"`
	RadiusIncrement float64 `yaml:"radius_increment"`
	NodeRadius      float64 `yaml:"node_radius"`
	Iterations      int     `yaml:"iterations"`
	Seed            uint64  `yaml:"seed"`
}

// MCPConfig controls the Model Context Protocol endpoint.
type MCPConfig struct {
	// Disabled turns off the /mcp endpoint.
	Disabled bool `yaml:"disabled"`
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr          = ":8080"
	DefaultDebounce            = 10 * time.Second
	DefaultLanguage            = "ja"
	DefaultLLMModel            = "gpt-3.5-turbo"
	DefaultCredentialPath      = "~/.config/thoughtmap/credential.yaml"
	DefaultSimilarityThreshold = 0.92
)

// ApplyDefaults fills every unset field with its default value.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Providers.LLM.Name == "" {
		cfg.Providers.LLM.Name = "openai"
	}
	if cfg.Providers.LLM.Model == "" && cfg.Providers.LLM.Name == "openai" {
		cfg.Providers.LLM.Model = DefaultLLMModel
	}

	e := &cfg.Extraction
	if e.Debounce == 0 {
		e.Debounce = DefaultDebounce
	}
	if e.Language == "" {
		e.Language = DefaultLanguage
	}
	if e.ConceptTemperature == 0 {
		e.ConceptTemperature = 0.3
	}
	if e.ConceptMaxTokens == 0 {
		e.ConceptMaxTokens = 500
	}
	if e.FollowupTemperature == 0 {
		e.FollowupTemperature = 0.7
	}
	if e.FollowupMaxTokens == 0 {
		e.FollowupMaxTokens = 300
	}
	if e.SimilarityThreshold == 0 {
		e.SimilarityThreshold = DefaultSimilarityThreshold
	}

	if cfg.Credentials.Store == "" {
		cfg.Credentials.Store = CredentialStoreFile
	}
	if cfg.Credentials.Store == CredentialStoreFile && cfg.Credentials.Path == "" {
		cfg.Credentials.Path = DefaultCredentialPath
	}

	l := &cfg.Layout
	if l.InnerRadius == 0 {
		l.InnerRadius = 120
	}
	if l.RadiusIncrement == 0 {
		l.RadiusIncrement = 100
	}
	if l.NodeRadius == 0 {
		l.NodeRadius = 40
	}
	if l.Iterations == 0 {
		l.Iterations = 300
	}
	if l.Seed == 0 {
		l.Seed = 1
	}
}
