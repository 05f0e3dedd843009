// Package speech defines the speech input boundary of the service and its two
// implementations: [Relay], fed by a browser running its own recogniser, and
// [STTRecognizer], which streams raw audio to a server-side STT provider.
package speech

import "errors"

var (
	// ErrUnsupported is returned when speech recognition cannot be provided,
	// e.g. no STT provider is configured.
	ErrUnsupported = errors.New("speech: recognition not supported")

	// ErrNotActive is returned when audio arrives while the recognizer is
	// stopped.
	ErrNotActive = errors.New("speech: recognizer not active")

	// ErrSessionEnded is reported through [ErrorFunc] when the provider
	// closes a session that was not stopped.
	ErrSessionEnded = errors.New("speech: session ended by provider")
)

// ResultFunc receives recognised text. final distinguishes committed
// fragments from interim hypotheses.
type ResultFunc func(text string, final bool)

// ErrorFunc receives asynchronous recognition errors.
type ErrorFunc func(err error)

// Recognizer is a start/stop source of recognition results.
type Recognizer interface {
	// Start begins delivering results to onResult. onError may be nil.
	Start(onResult ResultFunc, onError ErrorFunc) error

	// Stop ends recognition. Stopping a recognizer that is not started is a
	// no-op.
	Stop()

	// Active reports whether the recognizer is started.
	Active() bool
}

// AudioSink is implemented by recognizers that consume raw PCM audio.
type AudioSink interface {
	SendAudio(chunk []byte) error
}
