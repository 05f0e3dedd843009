package app

import (
	"log/slog"

	"github.com/MrWong99/thoughtmap/internal/config"
	"github.com/MrWong99/thoughtmap/internal/extract"
)

// languageSetter is implemented by [extract.LLMBackend].
type languageSetter interface {
	SetLanguage(extract.Language)
}

// ParseLevel maps a config log level to an slog level.
func ParseLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ApplyConfig applies the hot-reloadable differences between old and new and
// logs the sections that need a restart. It is the config watcher callback.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(ParseLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.DebounceChanged {
		a.scheduler.SetDelay(new.Extraction.Debounce)
		slog.Info("debounce changed", "delay", new.Extraction.Debounce)
	}
	if d.LanguageChanged {
		if ls, ok := a.backend.(languageSetter); ok {
			ls.SetLanguage(extract.Language(new.Extraction.Language))
			slog.Info("prompt language changed", "language", new.Extraction.Language)
		}
	}
	if d.CarryOverChanged {
		a.store.SetCarryOver(new.Extraction.CarryOverEnabled())
		a.store.SetSimilarityThreshold(new.Extraction.SimilarityThreshold)
		slog.Info("carry-over changed",
			"enabled", new.Extraction.CarryOverEnabled(),
			"threshold", new.Extraction.SimilarityThreshold)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
	a.mu.Lock()
	a.cfg = new
	a.mu.Unlock()
}
