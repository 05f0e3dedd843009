// Package stt defines the Provider interface for streaming Speech-to-Text
// backends.
//
// A session accepts raw PCM audio frames and emits two streams of [Transcript]
// values: low-latency partials (shown as interim text) and authoritative finals
// (appended to the transcript buffer).
package stt

import "context"

// Transcript is a single recognition result.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal reports whether the provider committed to this result.
	IsFinal bool

	// Confidence is the overall confidence score (0.0-1.0). Zero if unreported.
	Confidence float64
}

// KeywordBoost raises the recognition probability of a term.
type KeywordBoost struct {
	Keyword string
	Boost   float64
}

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz (browsers usually capture 16000
	// or 48000).
	SampleRate int

	// Channels is the number of interleaved channels. 1 = mono.
	Channels int

	// Language is the BCP-47 tag, e.g. "ja" or "en-US". Empty lets the provider
	// use its default.
	Language string

	// Keywords are vocabulary hints, typically the texts of existing concepts.
	Keywords []KeywordBoost
}

// SessionHandle represents an open streaming session. Callers must call Close
// when done. All methods are safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw 16-bit little-endian PCM. Calling it
	// after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials emits interim results. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals emits committed results. Closed when the session ends.
	Finals() <-chan Transcript

	// Close terminates the session and releases its resources. Safe to call
	// more than once.
	Close() error
}

// Provider is the abstraction over any streaming STT backend.
type Provider interface {
	// StartStream opens a new session. The caller owns the handle.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
