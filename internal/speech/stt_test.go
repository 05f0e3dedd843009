package speech

import (
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/thoughtmap/pkg/provider/stt"
	"github.com/MrWong99/thoughtmap/pkg/provider/stt/mock"
)

func TestNewSTTRecognizer_NilProvider(t *testing.T) {
	t.Parallel()
	if _, err := NewSTTRecognizer(nil, stt.StreamConfig{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}

func TestSTTRecognizer_ForwardsResults(t *testing.T) {
	t.Parallel()
	sess := mock.NewSession()
	p := &mock.Provider{Session: sess}
	r, err := NewSTTRecognizer(p, stt.StreamConfig{Language: "ja"},
		WithKeywordSource(func() []string { return []string{"機械学習"} }))
	if err != nil {
		t.Fatal(err)
	}

	var c collector
	if err := r.Start(c.add, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(c.add, nil); err != nil || len(p.Calls()) != 1 {
		t.Fatal("second Start should be a no-op")
	}

	cfg := p.Calls()[0].Cfg
	if cfg.SampleRate != 16000 || cfg.Channels != 1 || cfg.Language != "ja" {
		t.Errorf("stream config = %+v", cfg)
	}
	if len(cfg.Keywords) != 1 || cfg.Keywords[0].Keyword != "機械学習" {
		t.Errorf("keywords = %+v", cfg.Keywords)
	}

	if err := r.SendAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if sess.SendAudioCallCount() != 1 {
		t.Fatal("audio not forwarded")
	}

	sess.PartialsCh <- stt.Transcript{Text: "機械"}
	sess.FinalsCh <- stt.Transcript{Text: "機械学習", IsFinal: true}
	sess.FinalsCh <- stt.Transcript{Text: "", IsFinal: true}

	r.Stop()
	if r.Active() || !sess.Closed() {
		t.Fatal("Stop should close the session")
	}

	got := c.all()
	if len(got) != 2 {
		t.Fatalf("results = %v", got)
	}
	var sawFinal bool
	for _, res := range got {
		if res.final && res.text == "機械学習" {
			sawFinal = true
		}
	}
	if !sawFinal {
		t.Errorf("final result missing from %v", got)
	}

	if err := r.SendAudio([]byte{0}); !errors.Is(err, ErrNotActive) {
		t.Fatalf("SendAudio after Stop = %v, want ErrNotActive", err)
	}
	r.Stop() // idempotent
}

func TestSTTRecognizer_StartError(t *testing.T) {
	t.Parallel()
	boom := errors.New("dial failed")
	r, _ := NewSTTRecognizer(&mock.Provider{StartStreamErr: boom}, stt.StreamConfig{})
	if err := r.Start(func(string, bool) {}, nil); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if r.Active() {
		t.Fatal("failed start must leave the recognizer inactive")
	}
}

func TestSTTRecognizer_ProviderEndsSession(t *testing.T) {
	t.Parallel()
	sess := mock.NewSession()
	r, _ := NewSTTRecognizer(&mock.Provider{Session: sess}, stt.StreamConfig{})

	errs := make(chan error, 1)
	if err := r.Start(func(string, bool) {}, func(err error) { errs <- err }); err != nil {
		t.Fatal(err)
	}
	_ = sess.Close()

	select {
	case err := <-errs:
		if !errors.Is(err, ErrSessionEnded) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onError not called")
	}
	if r.Active() {
		t.Fatal("recognizer should be inactive after the provider ended the session")
	}
}
