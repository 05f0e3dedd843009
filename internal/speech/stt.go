package speech

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/thoughtmap/pkg/provider/stt"
)

// STTOption configures an [STTRecognizer].
type STTOption func(*STTRecognizer)

// WithKeywordSource supplies vocabulary hints read at every Start, typically
// the texts of the concepts currently on screen.
func WithKeywordSource(fn func() []string) STTOption {
	return func(r *STTRecognizer) { r.keywords = fn }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) STTOption {
	return func(r *STTRecognizer) { r.log = l }
}

// keywordBoost is applied to every hint from the keyword source.
const keywordBoost = 1.5

// STTRecognizer streams audio frames to an [stt.Provider] session and maps
// its partial and final transcripts onto [ResultFunc] calls.
type STTRecognizer struct {
	provider stt.Provider
	cfg      stt.StreamConfig
	keywords func() []string
	log      *slog.Logger

	mu      sync.Mutex
	session stt.SessionHandle
	cancel  context.CancelFunc
	done    chan struct{}
}

var (
	_ Recognizer = (*STTRecognizer)(nil)
	_ AudioSink  = (*STTRecognizer)(nil)
)

// NewSTTRecognizer wraps provider. A nil provider yields [ErrUnsupported].
func NewSTTRecognizer(provider stt.Provider, cfg stt.StreamConfig, opts ...STTOption) (*STTRecognizer, error) {
	if provider == nil {
		return nil, ErrUnsupported
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	r := &STTRecognizer{provider: provider, cfg: cfg, log: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Start opens a provider session. Starting an active recognizer is a no-op.
func (r *STTRecognizer) Start(onResult ResultFunc, onError ErrorFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		return nil
	}

	cfg := r.cfg
	if r.keywords != nil {
		for _, k := range r.keywords() {
			cfg.Keywords = append(cfg.Keywords, stt.KeywordBoost{Keyword: k, Boost: keywordBoost})
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	session, err := r.provider.StartStream(ctx, cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("speech: start stream: %w", err)
	}
	done := make(chan struct{})
	r.session, r.cancel, r.done = session, cancel, done

	var wg sync.WaitGroup
	wg.Add(2)
	go r.forward(&wg, session.Partials(), onResult)
	go r.forward(&wg, session.Finals(), onResult)
	go func() {
		wg.Wait()
		close(done)

		// Both streams closed without Stop: the provider ended the session.
		r.mu.Lock()
		ended := r.session == session
		if ended {
			r.session, r.cancel, r.done = nil, nil, nil
		}
		r.mu.Unlock()
		if ended {
			cancel()
			r.log.Warn("speech: stt session ended by provider")
			if onError != nil {
				onError(ErrSessionEnded)
			}
		}
	}()

	r.log.Info("speech: stt session started", "language", cfg.Language, "keywords", len(cfg.Keywords))
	return nil
}

func (r *STTRecognizer) forward(wg *sync.WaitGroup, ch <-chan stt.Transcript, onResult ResultFunc) {
	defer wg.Done()
	for t := range ch {
		if t.Text == "" || onResult == nil {
			continue
		}
		onResult(t.Text, t.IsFinal)
	}
}

// Stop closes the session and waits until every pending result has been
// delivered.
func (r *STTRecognizer) Stop() {
	r.mu.Lock()
	session, cancel, done := r.session, r.cancel, r.done
	r.session, r.cancel, r.done = nil, nil, nil
	r.mu.Unlock()
	if session == nil {
		return
	}
	if err := session.Close(); err != nil {
		r.log.Warn("speech: close stt session", "err", err)
	}
	<-done
	cancel()
	r.log.Info("speech: stt session stopped")
}

// Active reports whether a session is open.
func (r *STTRecognizer) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

// SendAudio forwards one PCM frame to the open session.
func (r *STTRecognizer) SendAudio(chunk []byte) error {
	r.mu.Lock()
	session := r.session
	r.mu.Unlock()
	if session == nil {
		return ErrNotActive
	}
	if err := session.SendAudio(chunk); err != nil {
		return fmt.Errorf("speech: send audio: %w", err)
	}
	return nil
}
