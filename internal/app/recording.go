package app

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/thoughtmap/internal/schedule"
	"github.com/MrWong99/thoughtmap/internal/speech"
)

// ErrRelayOnly is returned by [Recording.Push] when recognition runs on the
// server and pushed transcript text is not accepted.
var ErrRelayOnly = errors.New("app: transcript push requires browser recognition")

// RecordingInfo describes the recording state.
type RecordingInfo struct {
	Active    bool      `json:"active"`
	Available bool      `json:"available"`
	Mode      string    `json:"mode"`
	Interim   string    `json:"interim"`
	StartedAt time.Time `json:"started_at,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// Recording owns the speech recognizer lifecycle. Final fragments are
// appended to the scheduler; interim text is only kept for display.
// All exported methods are safe for concurrent use.
type Recording struct {
	recognizer speech.Recognizer
	relay      *speech.Relay
	sink       speech.AudioSink
	mode       string
	scheduler  *schedule.Controller

	mu        sync.Mutex
	interim   string
	startedAt time.Time
	lastErr   error
}

// newRecording wraps rec. A nil rec means recognition is unavailable.
func newRecording(rec speech.Recognizer, scheduler *schedule.Controller) *Recording {
	r := &Recording{recognizer: rec, scheduler: scheduler, mode: "none"}
	switch v := rec.(type) {
	case *speech.Relay:
		r.relay, r.mode = v, "browser"
	case nil:
	default:
		r.mode = "server"
	}
	if sink, ok := rec.(speech.AudioSink); ok {
		r.sink = sink
	}
	return r
}

// Available reports whether a recognizer is configured.
func (r *Recording) Available() bool { return r.recognizer != nil }

// Active reports whether recognition is running.
func (r *Recording) Active() bool {
	return r.recognizer != nil && r.recognizer.Active()
}

// Start begins recognition. Returns [speech.ErrUnsupported] when no
// recognizer is available. Starting an active recording is a no-op.
func (r *Recording) Start() error {
	if r.recognizer == nil {
		return speech.ErrUnsupported
	}
	if r.recognizer.Active() {
		return nil
	}
	if err := r.recognizer.Start(r.onResult, r.onError); err != nil {
		r.mu.Lock()
		r.lastErr = err
		r.mu.Unlock()
		return err
	}
	r.mu.Lock()
	r.startedAt = time.Now()
	r.lastErr = nil
	r.mu.Unlock()
	slog.Info("recording started", "mode", r.mode)
	return nil
}

// Stop ends recognition and clears the interim text. The scheduler keeps its
// buffer and any pending firing.
func (r *Recording) Stop() {
	if r.recognizer == nil {
		return
	}
	r.recognizer.Stop()
	r.mu.Lock()
	r.interim = ""
	r.startedAt = time.Time{}
	r.mu.Unlock()
	slog.Info("recording stopped", "mode", r.mode)
}

// Push feeds a browser recognition result. It fails with [ErrRelayOnly] in
// server mode and with [speech.ErrNotActive] while stopped.
func (r *Recording) Push(text string, final bool) error {
	if r.relay == nil {
		if r.recognizer == nil {
			return speech.ErrUnsupported
		}
		return ErrRelayOnly
	}
	if !r.relay.Push(text, final) {
		return speech.ErrNotActive
	}
	return nil
}

// SendAudio forwards a PCM frame to a server-side recognizer.
func (r *Recording) SendAudio(chunk []byte) error {
	if r.sink == nil {
		return speech.ErrUnsupported
	}
	return r.sink.SendAudio(chunk)
}

// Interim returns the latest non-final hypothesis.
func (r *Recording) Interim() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interim
}

// Info returns the current recording state.
func (r *Recording) Info() RecordingInfo {
	r.mu.Lock()
	info := RecordingInfo{
		Available: r.recognizer != nil,
		Mode:      r.mode,
		Interim:   r.interim,
		StartedAt: r.startedAt,
	}
	if r.lastErr != nil {
		info.LastError = r.lastErr.Error()
	}
	r.mu.Unlock()
	info.Active = r.Active()
	return info
}

func (r *Recording) onResult(text string, final bool) {
	text = strings.TrimSpace(text)
	r.mu.Lock()
	if final {
		r.interim = ""
	} else {
		r.interim = text
	}
	r.mu.Unlock()
	if final {
		r.scheduler.Append(text)
	}
}

func (r *Recording) onError(err error) {
	slog.Warn("speech recognition error", "mode", r.mode, "err", err)
	r.mu.Lock()
	r.lastErr = err
	if errors.Is(err, speech.ErrSessionEnded) {
		r.interim = ""
		r.startedAt = time.Time{}
	}
	r.mu.Unlock()
}
