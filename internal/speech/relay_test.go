package speech

import (
	"sync"
	"testing"
)

type result struct {
	text  string
	final bool
}

type collector struct {
	mu      sync.Mutex
	results []result
}

func (c *collector) add(text string, final bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result{text, final})
}

func (c *collector) all() []result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]result(nil), c.results...)
}

func TestRelay_PushWhileStoppedIsDropped(t *testing.T) {
	t.Parallel()
	r := NewRelay()
	if r.Push("ignored", true) {
		t.Fatal("Push on a stopped relay should report false")
	}
	r.Stop() // no-op when not started
	if r.Active() {
		t.Fatal("relay should be inactive")
	}
}

func TestRelay_Lifecycle(t *testing.T) {
	t.Parallel()
	r := NewRelay()
	var c collector
	if err := r.Start(c.add, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !r.Active() {
		t.Fatal("relay should be active after Start")
	}
	r.Push("こんにちは", false)
	r.Push("こんにちは世界", true)
	r.Stop()
	r.Push("after stop", true)

	got := c.all()
	want := []result{{"こんにちは", false}, {"こんにちは世界", true}}
	if len(got) != len(want) {
		t.Fatalf("results = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
