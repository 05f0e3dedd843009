package main

import (
	"errors"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/thoughtmap/internal/app"
	"github.com/MrWong99/thoughtmap/internal/config"
	"github.com/MrWong99/thoughtmap/internal/extract"
	"github.com/MrWong99/thoughtmap/pkg/provider/llm"
	"github.com/MrWong99/thoughtmap/pkg/provider/llm/anyllm"
	"github.com/MrWong99/thoughtmap/pkg/provider/llm/openai"
	"github.com/MrWong99/thoughtmap/pkg/provider/stt"
	"github.com/MrWong99/thoughtmap/pkg/provider/stt/deepgram"
)

// registerBuiltinProviders wires every provider implementation that ships
// with thoughtmap into reg. timeout bounds each LLM HTTP request; zero leaves
// requests bounded by their context only.
func registerBuiltinProviders(reg *config.Registry, timeout time.Duration) {
	// ── LLM ──────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if timeout > 0 {
			opts = append(opts, openai.WithTimeout(timeout))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// Every other any-llm backend shares one shape: optional APIKey and
	// optional BaseURL. openai keeps the native SDK and ollama takes no key.
	for _, name := range anyllm.Backends() {
		if name == "openai" || name == "ollama" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ollama is a local server addressed by BaseURL; it takes no key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	// ── STT ──────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if rate, ok := entry.Options["sample_rate"].(int); ok && rate > 0 {
			opts = append(opts, deepgram.WithSampleRate(rate))
		}
		if ms, ok := entry.Options["endpointing_ms"].(int); ok && ms > 0 {
			opts = append(opts, deepgram.WithEndpointing(time.Duration(ms)*time.Millisecond))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	slog.Debug("registered providers", "llm", reg.LLMNames())
}

// llmFactory builds the primary extraction provider. The stored API key
// replaces the key from the config file when one is given.
func llmFactory(reg *config.Registry, entry config.ProviderEntry) extract.Factory {
	return func(key string) (llm.Provider, error) {
		e := entry
		if key != "" {
			e.APIKey = key
		}
		return reg.CreateLLM(e)
	}
}

// buildProviders instantiates the providers named in cfg. Fallback and STT
// providers that fail to build are logged and skipped: extraction still
// works without them.
func buildProviders(cfg *config.Config, reg *config.Registry) *app.Providers {
	ps := &app.Providers{LLM: llmFactory(reg, cfg.Providers.LLM)}

	for _, entry := range cfg.Providers.LLMFallbacks {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			slog.Warn("skipping fallback LLM provider", "name", entry.Name, "err", err)
			continue
		}
		ps.Fallbacks = append(ps.Fallbacks, app.NamedLLM{Name: entry.Name, Provider: p})
		slog.Info("provider created", "kind", "llm_fallback", "name", entry.Name)
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		switch {
		case errors.Is(err, config.ErrProviderNotRegistered):
			slog.Warn("unknown STT provider, server-side recognition disabled", "name", name)
		case err != nil:
			slog.Warn("failed to create STT provider, server-side recognition disabled", "name", name, "err", err)
		default:
			ps.STT = p
			slog.Info("provider created", "kind", "stt", "name", name)
		}
	}
	return ps
}

// optString extracts a string value from a provider Options map. Returns ""
// if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
