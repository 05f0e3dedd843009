package config

import "slices"

// ConfigDiff describes what changed between two configs. The Hot fields can
// be applied to a running server; RestartRequired names changed sections that
// only take effect after a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	DebounceChanged bool
	LanguageChanged bool

	// CarryOverChanged also covers the similarity threshold.
	CarryOverChanged bool

	RestartRequired []string
}

// HasHotChanges reports whether any hot-reloadable field changed.
func (d ConfigDiff) HasHotChanges() bool {
	return d.LogLevelChanged || d.DebounceChanged || d.LanguageChanged || d.CarryOverChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	oe, ne := old.Extraction, new.Extraction
	d.DebounceChanged = oe.Debounce != ne.Debounce
	d.LanguageChanged = oe.Language != ne.Language
	d.CarryOverChanged = oe.CarryOverEnabled() != ne.CarryOverEnabled() ||
		oe.SimilarityThreshold != ne.SimilarityThreshold

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		!slices.Equal(old.Server.CORSOrigins, new.Server.CORSOrigins) ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if oe.ConceptTemperature != ne.ConceptTemperature || oe.ConceptMaxTokens != ne.ConceptMaxTokens ||
		oe.FollowupTemperature != ne.FollowupTemperature || oe.FollowupMaxTokens != ne.FollowupMaxTokens ||
		oe.Timeout != ne.Timeout {
		d.RestartRequired = append(d.RestartRequired, "extraction")
	}
	if old.Credentials != new.Credentials {
		d.RestartRequired = append(d.RestartRequired, "credentials")
	}
	if old.Layout != new.Layout {
		d.RestartRequired = append(d.RestartRequired, "layout")
	}
	if old.MCP != new.MCP {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}
	return d
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.LLM, b.LLM) && entryEqual(a.STT, b.STT) &&
		slices.EqualFunc(a.LLMFallbacks, b.LLMFallbacks, entryEqual)
}

// entryEqual ignores Options, which cannot be compared cheaply.
func entryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}
