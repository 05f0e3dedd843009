// Package deepgram provides an STT provider using the Deepgram streaming
// WebSocket API.
//
// Sessions keep the socket alive across silence with KeepAlive messages and
// remove the spaces Deepgram inserts between Japanese and Chinese words.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/coder/websocket"

	"github.com/MrWong99/thoughtmap/pkg/provider/stt"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "ja"
	defaultSampleRate = 16000

	// Deepgram drops a stream after roughly ten seconds without data.
	keepAliveInterval = 5 * time.Second
)

var errClosed = errors.New("deepgram: session is closed")

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model (e.g. "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default language code (e.g. "ja", "en-US").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithSampleRate sets the default audio sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithEndpointing sets how much trailing silence finalises an utterance.
// Zero keeps Deepgram's default.
func WithEndpointing(d time.Duration) Option {
	return func(p *Provider) {
		p.endpointing = d
	}
}

// WithEndpoint overrides the streaming endpoint. Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	language    string
	sampleRate  int
	endpointing time.Duration
	keepAlive   time.Duration
}

var _ stt.Provider = (*Provider)(nil)

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   deepgramEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		keepAlive:  keepAliveInterval,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming transcription session with Deepgram.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	sess := &session{
		conn:      conn,
		keepAlive: p.keepAlive,
		partials:  make(chan stt.Transcript, 64),
		finals:    make(chan stt.Transcript, 64),
		audio:     make(chan []byte, 256),
		done:      make(chan struct{}),
	}
	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)
	return sess, nil
}

func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	if p.endpointing > 0 {
		q.Set("endpointing", strconv.FormatInt(p.endpointing.Milliseconds(), 10))
	}
	// Nova-3 replaced boosted keywords with unweighted key terms.
	keyterms := strings.HasPrefix(p.model, "nova-3")
	for _, kw := range cfg.Keywords {
		if keyterms {
			q.Add("keyterm", kw.Keyword)
		} else {
			q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
		}
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ── session ─────────────────────────────────────────────────────────────────

type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type session struct {
	conn      *websocket.Conn
	keepAlive time.Duration
	partials chan stt.Transcript
	finals   chan stt.Transcript
	audio    chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errClosed
	}
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }

func (s *session) Finals() <-chan stt.Transcript { return s.finals }

func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		// CloseStream asks Deepgram to flush pending results before closing.
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.wg.Wait()
	})
	return nil
}

func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	idle := time.NewTicker(s.keepAlive)
	defer idle.Stop()
	sent := false
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
			sent = true
		case <-idle.C:
			if !sent {
				if err := s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"KeepAlive"}`)); err != nil {
					return
				}
			}
			sent = false
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		t, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}
		out := s.partials
		if t.IsFinal {
			out = s.finals
		}
		select {
		case out <- t:
		case <-s.done:
			return
		}
	}
}

// parseDeepgramResponse returns (zero, false) for messages that carry no
// transcript: metadata events, empty alternatives and malformed JSON.
func parseDeepgramResponse(data []byte) (stt.Transcript, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false
	}
	alt := resp.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return stt.Transcript{}, false
	}
	return stt.Transcript{
		Text:       joinCJK(alt.Transcript),
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
	}, true
}

// joinCJK removes spaces that sit between two CJK characters or between a CJK
// character and CJK punctuation. Spaces next to Latin words are kept.
func joinCJK(s string) string {
	if !strings.Contains(s, " ") {
		return s
	}
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range runes {
		if r == ' ' && i > 0 && i < len(runes)-1 && isCJK(runes[i-1]) && isCJK(runes[i+1]) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) ||
		(r >= 0x3000 && r <= 0x303F) || // CJK punctuation
		(r >= 0xFF00 && r <= 0xFFEF) // full-width forms
}
