package speech

import "sync"

// Relay is a [Recognizer] whose results are pushed in from outside, typically
// by a browser running the Web Speech API and posting its results to the
// HTTP or websocket API.
type Relay struct {
	mu       sync.Mutex
	active   bool
	onResult ResultFunc
}

var _ Recognizer = (*Relay)(nil)

// NewRelay creates a stopped Relay.
func NewRelay() *Relay {
	return &Relay{}
}

// Start activates the relay. Calling Start on an active relay replaces the
// callback.
func (r *Relay) Start(onResult ResultFunc, _ ErrorFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = true
	r.onResult = onResult
	return nil
}

// Stop deactivates the relay.
func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	r.onResult = nil
}

// Active reports whether the relay is started.
func (r *Relay) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Push delivers a result. It reports false and drops the result when the
// relay is stopped.
func (r *Relay) Push(text string, final bool) bool {
	r.mu.Lock()
	fn := r.onResult
	active := r.active
	r.mu.Unlock()
	if !active || fn == nil {
		return false
	}
	fn(text, final)
	return true
}
