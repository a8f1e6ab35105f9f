package fetch

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is published on the fetch telemetry channel per spec.md §4.2/§6:
// {v, type, requestId, url(redacted), method, status?, duration?, code?,
// error?}.
type Event struct {
	V         int           `json:"v"`
	Type      string        `json:"type"` // start|end|error
	RequestID string        `json:"requestId"`
	URL       string        `json:"url"`
	Method    string        `json:"method"`
	Status    int           `json:"status,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Code      string        `json:"code,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Telemetry is a minimal synchronous pub/sub used for the
// "superfetch.fetch" diagnostics channel. Subscriber panics/errors must
// never propagate to the publisher (spec.md §4.2, §7).
type Telemetry struct {
	mu   sync.RWMutex
	subs []func(Event)
}

func NewTelemetry() *Telemetry {
	return &Telemetry{}
}

func (t *Telemetry) Subscribe(fn func(Event)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := len(t.subs)
	t.subs = append(t.subs, fn)
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if idx < len(t.subs) {
			t.subs[idx] = nil
		}
	}
}

func (t *Telemetry) publish(ev Event) {
	t.mu.RLock()
	subs := append([]func(Event){}, t.subs...)
	t.mu.RUnlock()

	for _, fn := range subs {
		if fn == nil {
			continue
		}
		safeCall(fn, ev)
	}
}

func safeCall(fn func(Event), ev Event) {
	defer func() { _ = recover() }()
	fn(ev)
}

// RedactURL strips userinfo, query, and fragment before publication.
func RedactURL(rawURL string) string {
	return redactURL(rawURL)
}

func newRequestID() string {
	return uuid.NewString()
}
