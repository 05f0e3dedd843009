// Package app wires the thoughtmap subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects the
// credential store, extraction backend, concept store, scheduler, selection
// controller and speech recognizer; Run executes background loops until the
// context is cancelled; Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithBackend,
// WithCredentialStore, WithClock, ...). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/thoughtmap/internal/config"
	"github.com/MrWong99/thoughtmap/internal/credential"
	"github.com/MrWong99/thoughtmap/internal/extract"
	"github.com/MrWong99/thoughtmap/internal/observe"
	"github.com/MrWong99/thoughtmap/internal/schedule"
	"github.com/MrWong99/thoughtmap/internal/selection"
	"github.com/MrWong99/thoughtmap/internal/speech"
	"github.com/MrWong99/thoughtmap/internal/tree"
	"github.com/MrWong99/thoughtmap/pkg/concept"
	"github.com/MrWong99/thoughtmap/pkg/provider/llm"
	"github.com/MrWong99/thoughtmap/pkg/provider/stt"
)

// NamedLLM is a fallback provider with the name used in status reports.
type NamedLLM struct {
	Name     string
	Provider llm.Provider
}

// Providers holds the provider constructors and instances built by main.go
// via the config registry.
type Providers struct {
	// LLM builds the primary extraction provider from the stored API key.
	LLM extract.Factory

	// Fallbacks are tried in order when the primary fails.
	Fallbacks []NamedLLM

	// STT is nil when no server-side recognizer is configured or it could
	// not be created.
	STT stt.Provider
}

// Status is the processing state shown next to the concept map.
type Status struct {
	Recording          bool   `json:"recording"`
	RecordingAvailable bool   `json:"recording_available"`
	RecordingMode      string `json:"recording_mode"`
	Processing         bool   `json:"processing"`
	Pending            bool   `json:"pending"`
	AwaitingSetup      bool   `json:"awaiting_setup"`
	TranscriptLength   int    `json:"transcript_length"`
	Interim            string `json:"interim"`
	Concepts           int    `json:"concepts"`
	LastError          string `json:"last_error,omitempty"`
}

// App owns all subsystem lifetimes.
type App struct {
	cfg        *config.Config
	providers  *Providers
	metrics    *observe.Metrics
	level      *slog.LevelVar
	debugLog   *DebugLog
	clock      schedule.Clock
	seedKey    string
	configPath string

	// Subsystems, initialised in New and torn down in Shutdown.
	credentials credential.Store
	backend     extract.Backend
	store       *tree.Store
	scheduler   *schedule.Controller
	selection   *selection.Controller
	recognizer  speech.Recognizer
	recording   *Recording

	// mu guards lastErr and cfg after hot reloads.
	mu      sync.Mutex
	lastErr error

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCredentialStore injects a credential store instead of creating one
// from config.
func WithCredentialStore(s credential.Store) Option {
	return func(a *App) { a.credentials = s }
}

// WithBackend injects an extraction backend instead of building an
// [extract.LLMBackend] from the providers.
func WithBackend(b extract.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithRecognizer injects a speech recognizer.
func WithRecognizer(r speech.Recognizer) Option {
	return func(a *App) { a.recognizer = r }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithClock sets the scheduler clock.
func WithClock(c schedule.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithLevelVar lets hot reload change the log level of the handler built by
// main.go.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithDebugLog exposes the ring buffer that main.go installed as a logging
// tee.
func WithDebugLog(d *DebugLog) Option {
	return func(a *App) { a.debugLog = d }
}

// WithSeedCredential stores key when the credential store is empty, e.g. from
// the THOUGHTMAP_API_KEY environment variable.
func WithSeedCredential(key string) Option {
	return func(a *App) { a.seedKey = key }
}

// WithConfigWatch makes Run watch path and apply hot-reloadable changes.
func WithConfigWatch(path string) Option {
	return func(a *App) { a.configPath = path }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.debugLog == nil {
		a.debugLog = NewDebugLog(DefaultDebugEntries)
	}

	// ── 1. Credential store ──────────────────────────────────────────────
	if err := a.initCredentials(ctx); err != nil {
		return nil, fmt.Errorf("app: init credentials: %w", err)
	}

	// ── 2. Extraction backend ────────────────────────────────────────────
	if err := a.initBackend(); err != nil {
		return nil, fmt.Errorf("app: init backend: %w", err)
	}

	// ── 3. Concept pipeline ──────────────────────────────────────────────
	a.initPipeline()

	// ── 4. Speech input ──────────────────────────────────────────────────
	a.initSpeech()

	// ── 5. Stored API key ────────────────────────────────────────────────
	a.loadCredential(ctx)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initCredentials(ctx context.Context) error {
	if a.credentials != nil {
		return nil
	}
	store, closer, err := OpenCredentialStore(ctx, a.cfg.Credentials)
	if err != nil {
		return err
	}
	a.credentials = store
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	slog.Info("credential store ready", "store", a.cfg.Credentials.Store)
	return nil
}

// OpenCredentialStore creates the store selected by c. The returned closer
// is nil unless the store holds a connection pool.
func OpenCredentialStore(ctx context.Context, c config.CredentialsConfig) (credential.Store, func() error, error) {
	switch c.Store {
	case config.CredentialStoreMemory:
		return credential.NewMemoryStore(), nil, nil
	case config.CredentialStorePostgres:
		pool, err := pgxpool.New(ctx, c.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		store := credential.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, func() error {
			pool.Close()
			return nil
		}, nil
	default:
		store, err := credential.NewFileStore(c.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
}

func (a *App) initBackend() error {
	if a.backend != nil {
		return nil
	}
	if a.providers.LLM == nil {
		return errors.New("no LLM provider factory configured")
	}
	opts := []extract.Option{
		extract.WithSettings(ExtractionSettings(a.cfg.Extraction)),
		extract.WithMetrics(a.metrics),
	}
	for _, fb := range a.providers.Fallbacks {
		opts = append(opts, extract.WithFallback(fb.Name, fb.Provider))
	}
	a.backend = extract.NewLLMBackend(a.providers.LLM, opts...)
	return nil
}

// ExtractionSettings maps the extraction config onto backend settings.
func ExtractionSettings(e config.ExtractionConfig) extract.Settings {
	return extract.Settings{
		Language:            extract.Language(e.Language),
		ConceptTemperature:  e.ConceptTemperature,
		ConceptMaxTokens:    e.ConceptMaxTokens,
		FollowupTemperature: e.FollowupTemperature,
		FollowupMaxTokens:   e.FollowupMaxTokens,
	}
}

func (a *App) initPipeline() {
	e := a.cfg.Extraction
	a.store = tree.NewStore(
		tree.WithCarryOver(e.CarryOverEnabled()),
		tree.WithSimilarityThreshold(e.SimilarityThreshold),
		tree.WithMetrics(a.metrics),
	)

	schedOpts := []schedule.Option{
		schedule.WithDelay(e.Debounce),
		schedule.WithMetrics(a.metrics),
		schedule.WithObserver(schedule.ObserverFunc(a.onExtractionError)),
	}
	if a.clock != nil {
		schedOpts = append(schedOpts, schedule.WithClock(a.clock))
	}
	a.scheduler = schedule.New(a.backend, a.store, schedOpts...)
	a.selection = selection.New(a.backend, a.store)
}

// initSpeech picks the recognizer: browser relay when no STT provider is
// configured, otherwise a server-side STT session. A configured provider
// that could not be created leaves recording unavailable.
func (a *App) initSpeech() {
	rec := a.recognizer
	if rec == nil {
		entry := a.cfg.Providers.STT
		if entry.Name == "" {
			rec = speech.NewRelay()
		} else {
			lang, _ := entry.Options["language"].(string)
			if lang == "" {
				lang = a.cfg.Extraction.Language
			}
			sttRec, err := speech.NewSTTRecognizer(a.providers.STT,
				stt.StreamConfig{Language: lang},
				speech.WithKeywordSource(a.conceptTexts))
			if err != nil {
				slog.Warn("speech recognition unavailable", "provider", entry.Name, "err", err)
			} else {
				rec = sttRec
			}
		}
	}
	a.recording = newRecording(rec, a.scheduler)
}

// loadCredential initialises the backend from the stored key, seeding the
// store first when it is empty.
func (a *App) loadCredential(ctx context.Context) {
	key, err := a.credentials.Get(ctx)
	switch {
	case errors.Is(err, credential.ErrNotFound) && a.seedKey != "":
		if !credential.Validate(a.seedKey) {
			slog.Warn("ignoring invalid seed API key", "key", credential.Mask(a.seedKey))
			return
		}
		if err := a.credentials.Save(ctx, a.seedKey); err != nil {
			slog.Warn("failed to seed credential store", "err", err)
		}
		key = a.seedKey
	case errors.Is(err, credential.ErrNotFound):
		slog.Info("no API key configured, awaiting setup")
		return
	case err != nil:
		slog.Warn("failed to read credential store", "err", err)
		return
	}
	if err := a.backend.Initialize(key); err != nil {
		slog.Warn("failed to initialise extraction backend", "key", credential.Mask(key), "err", err)
		return
	}
	slog.Info("extraction backend initialised", "key", credential.Mask(key))
}

// conceptTexts feeds the current concept labels to the STT provider as
// vocabulary hints.
func (a *App) conceptTexts() []string {
	var out []string
	concept.Walk(a.store.Snapshot().Forest, func(n *concept.Node, _ int) bool {
		if n.Text != "" {
			out = append(out, n.Text)
		}
		return true
	})
	return out
}

func (a *App) onExtractionError(err error) {
	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()
	slog.Error("concept extraction failed", "err", err)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Config returns the active configuration.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Store returns the concept store.
func (a *App) Store() *tree.Store { return a.store }

// Scheduler returns the extraction scheduler.
func (a *App) Scheduler() *schedule.Controller { return a.scheduler }

// Selection returns the selection controller.
func (a *App) Selection() *selection.Controller { return a.selection }

// Recording returns the speech recording manager.
func (a *App) Recording() *Recording { return a.recording }

// Backend returns the extraction backend.
func (a *App) Backend() extract.Backend { return a.backend }

// Credentials returns the credential store.
func (a *App) Credentials() credential.Store { return a.credentials }

// Metrics returns the metrics sink.
func (a *App) Metrics() *observe.Metrics { return a.metrics }

// DebugLog returns the recent log ring.
func (a *App) DebugLog() *DebugLog { return a.debugLog }

// ─── Operations ──────────────────────────────────────────────────────────────

// SaveCredential validates and stores key, then initialises the backend with
// it. Returns [credential.ErrInvalid] for malformed keys.
func (a *App) SaveCredential(ctx context.Context, key string) error {
	if !credential.Validate(key) {
		return credential.ErrInvalid
	}
	if err := a.credentials.Save(ctx, key); err != nil {
		return fmt.Errorf("app: save credential: %w", err)
	}
	if err := a.backend.Initialize(key); err != nil {
		return fmt.Errorf("app: initialise backend: %w", err)
	}
	slog.Info("API key saved", "key", credential.Mask(key))
	return nil
}

// RemoveCredential deletes the stored key and returns the backend to the
// awaiting-setup state.
func (a *App) RemoveCredential(ctx context.Context) error {
	if err := a.credentials.Remove(ctx); err != nil {
		return fmt.Errorf("app: remove credential: %w", err)
	}
	a.backend.Reset()
	slog.Info("API key removed")
	return nil
}

// HasCredential reports whether a key is stored.
func (a *App) HasCredential(ctx context.Context) (bool, error) {
	_, err := a.credentials.Get(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, credential.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Status returns the current processing state.
func (a *App) Status() Status {
	info := a.recording.Info()
	st := Status{
		Recording:          info.Active,
		RecordingAvailable: info.Available,
		RecordingMode:      info.Mode,
		Processing:         a.scheduler.Processing(),
		Pending:            a.scheduler.Pending(),
		AwaitingSetup:      !a.backend.IsInitialized(),
		TranscriptLength:   utf8.RuneCountInString(a.scheduler.Buffer()),
		Interim:            info.Interim,
		Concepts:           concept.Count(a.store.Snapshot().Forest),
	}
	a.mu.Lock()
	if a.lastErr != nil {
		st.LastError = a.lastErr.Error()
	}
	a.mu.Unlock()
	return st
}

// Trigger runs an extraction now, subject to the scheduler's guards.
func (a *App) Trigger(ctx context.Context) (schedule.Outcome, error) {
	out, err := a.scheduler.Trigger(ctx)
	if err == nil && out.Ran {
		a.mu.Lock()
		a.lastErr = nil
		a.mu.Unlock()
	}
	return out, err
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the background loops and blocks until ctx is cancelled: a
// snapshot logger feeding the debug log and, when configured, the config
// file watcher.
func (a *App) Run(ctx context.Context) error {
	var watcher *config.Watcher
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.ApplyConfig)
		if err != nil {
			return fmt.Errorf("app: watch config: %w", err)
		}
		watcher = w
	}

	g, gctx := errgroup.WithContext(ctx)
	snaps, cancel := a.store.Subscribe()
	g.Go(func() error {
		<-gctx.Done()
		cancel()
		if watcher != nil {
			watcher.Stop()
		}
		return nil
	})
	g.Go(func() error {
		for snap := range snaps {
			slog.Info("concept tree updated",
				"version", snap.Version,
				"concepts", concept.Count(snap.Forest),
				"selected", len(snap.Selection))
		}
		return nil
	})

	slog.Info("app running", "recording_mode", a.recording.Info().Mode, "watch_config", watcher != nil)
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops recording and the scheduler, then runs the closers. It
// respects the context deadline: if ctx expires before all closers finish,
// the remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.recording.Stop()
		a.scheduler.Stop()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
