// Package mock provides test doubles for the stt package interfaces.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.StartStream(ctx, cfg)
//	sess.FinalsCh <- stt.Transcript{Text: "学習", IsFinal: true}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/thoughtmap/pkg/provider/stt"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	Ctx context.Context
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by StartStream. If nil, a fresh [NewSession] is
	// returned.
	Session *Session

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall
}

// StartStream records the call and returns Session, StartStreamErr.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session == nil {
		p.Session = NewSession()
	}
	return p.Session, nil
}

// Calls returns a copy of the recorded StartStream calls.
func (p *Provider) Calls() []StartStreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]StartStreamCall(nil), p.StartStreamCalls...)
}

var _ stt.Provider = (*Provider)(nil)

// Session is a mock implementation of stt.SessionHandle. Tests send on
// PartialsCh and FinalsCh; Close closes both channels exactly once.
type Session struct {
	mu sync.Mutex

	PartialsCh chan stt.Transcript
	FinalsCh   chan stt.Transcript

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// SendAudioCalls holds copies of every chunk passed to SendAudio.
	SendAudioCalls [][]byte

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// NewSession returns a Session with buffered channels.
func NewSession() *Session {
	return &Session{
		PartialsCh: make(chan stt.Transcript, 16),
		FinalsCh:   make(chan stt.Transcript, 16),
	}
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioCalls = append(s.SendAudioCalls, append([]byte(nil), chunk...))
	return s.SendAudioErr
}

// Partials returns PartialsCh.
func (s *Session) Partials() <-chan stt.Transcript { return s.PartialsCh }

// Finals returns FinalsCh.
func (s *Session) Finals() <-chan stt.Transcript { return s.FinalsCh }

// SendAudioCallCount returns the number of SendAudio calls.
func (s *Session) SendAudioCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendAudioCalls)
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount > 0
}

// Close records the call. The first call closes both channels.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if s.CloseCallCount == 1 {
		close(s.PartialsCh)
		close(s.FinalsCh)
	}
	return nil
}

var _ stt.SessionHandle = (*Session)(nil)
