// Package session implements the Session Manager & Slot Admission layer
// (spec.md §4.5): per-session state tracking with LRU order, TTL eviction,
// an idle cleanup loop, and a slot reservation protocol that bounds
// pre-initialization concurrency.
package session

import (
	"container/list"
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gomcpgo/superfetch/pkg/logging"
)

// State is a session's position in the Reserved→Connecting→Initialized→
// Active→Closed state machine.
type State int

const (
	StateReserved State = iota
	StateConnecting
	StateInitialized
	StateActive
	StateClosed
)

// Entry tracks a live, initialized session.
type Entry struct {
	ID        string
	Transport io.Closer
	CreatedAt time.Time
	LastSeen  time.Time
	State     State
}

// SlotTracker is the ephemeral handle for a reserved-but-not-yet-initialized
// session slot. Release is idempotent: whichever of success, timeout, or
// connect error calls it first is the one that actually frees the slot.
type SlotTracker struct {
	mu          sync.Mutex
	released    bool
	initialized bool
	manager     *Manager
}

// Release frees the reserved slot exactly once.
func (t *SlotTracker) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return
	}
	t.released = true
	if !t.initialized {
		t.manager.decrementInFlight()
	}
}

func (t *SlotTracker) markInitialized() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.initialized = true
}

// Manager tracks active sessions with insertion/LRU order and enforces
// capacity via the slot protocol.
type Manager struct {
	mu    sync.Mutex
	elems map[string]*list.Element
	order *list.List // front = oldest (LRU), back = most recently touched

	maxSessions  int
	ttl          time.Duration
	initTimeout  time.Duration
	inFlight     int
	stop         chan struct{}
	stopOnce     sync.Once
}

// New constructs a Manager. maxSessions <= 0 means unbounded.
func New(maxSessions int, ttl, initTimeout time.Duration) *Manager {
	m := &Manager{
		elems:       make(map[string]*list.Element),
		order:       list.New(),
		maxSessions: maxSessions,
		ttl:         ttl,
		initTimeout: initTimeout,
		stop:        make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

func (m *Manager) decrementInFlight() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight > 0 {
		m.inFlight--
	}
}

// ReserveSlot implements reserveSessionSlot/ensureSessionCapacity: it admits
// a new session iff size+inFlight < max, attempting one LRU eviction first
// to make room. Returns (tracker, true) on success, (nil, false) if the
// manager is at capacity even after eviction.
func (m *Manager) ReserveSlot() (*SlotTracker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSessions > 0 && m.order.Len()+m.inFlight >= m.maxSessions {
		if !m.evictOldestLocked() {
			return nil, false
		}
		if m.order.Len()+m.inFlight >= m.maxSessions {
			return nil, false
		}
	}

	m.inFlight++
	tracker := &SlotTracker{manager: m}

	if m.initTimeout > 0 {
		timer := time.AfterFunc(m.initTimeout, func() {
			tracker.mu.Lock()
			alreadyDone := tracker.released || tracker.initialized
			tracker.mu.Unlock()
			if !alreadyDone {
				tracker.Release()
			}
		})
		_ = timer // init timeout is process-local; no unref needed in Go
	}

	return tracker, true
}

// evictOldestLocked removes the least-recently-touched session, closing its
// transport best-effort. Caller must hold m.mu. Returns true if an entry
// was evicted.
func (m *Manager) evictOldestLocked() bool {
	front := m.order.Front()
	if front == nil {
		return false
	}
	entry := front.Value.(*Entry)
	m.removeLocked(entry.ID)
	closeBestEffort(entry.Transport)
	return true
}

func (m *Manager) removeLocked(id string) {
	if el, ok := m.elems[id]; ok {
		delete(m.elems, id)
		m.order.Remove(el)
	}
}

// Insert promotes a reserved slot to an active SessionEntry, only valid
// once the transport has a session ID and the MCP initialize handshake has
// completed.
func (m *Manager) Insert(tracker *SlotTracker, id string, transport io.Closer) *Entry {
	tracker.Release()
	tracker.markInitialized()

	now := time.Now()
	entry := &Entry{ID: id, Transport: transport, CreatedAt: now, LastSeen: now, State: StateActive}

	m.mu.Lock()
	el := m.order.PushBack(entry)
	m.elems[id] = el
	m.mu.Unlock()

	return entry
}

// Touch moves a session to the most-recently-used position and updates
// LastSeen.
func (m *Manager) Touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.elems[id]
	if !ok {
		return
	}
	entry := el.Value.(*Entry)
	entry.LastSeen = time.Now()
	m.order.MoveToBack(el)
}

// Get returns the session entry, if present.
func (m *Manager) Get(id string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.elems[id]
	if !ok {
		return nil, false
	}
	return el.Value.(*Entry), true
}

// Close removes a session and closes its transport best-effort.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	el, ok := m.elems[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	entry := el.Value.(*Entry)
	m.removeLocked(id)
	m.mu.Unlock()

	closeBestEffort(entry.Transport)
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// InFlight returns the number of reserved-but-not-yet-initialized slots.
func (m *Manager) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight
}

// cleanupPeriod implements spec.md §4.5: max(10s, min(60s, ttl/2)).
func cleanupPeriod(ttl time.Duration) time.Duration {
	const minPeriod = 10 * time.Second
	const maxPeriod = 60 * time.Second
	half := ttl / 2
	if half > maxPeriod {
		half = maxPeriod
	}
	if half < minPeriod {
		half = minPeriod
	}
	return half
}

func (m *Manager) cleanupLoop() {
	period := cleanupPeriod(m.ttl)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	log := logging.FromContext(context.Background())
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.evictIdle(log)
		}
	}
}

func (m *Manager) evictIdle(log *zap.SugaredLogger) {
	now := time.Now()

	m.mu.Lock()
	var expired []*Entry
	var next *list.Element
	for el := m.order.Front(); el != nil; el = next {
		next = el.Next()
		entry := el.Value.(*Entry)
		if now.Sub(entry.LastSeen) > m.ttl {
			expired = append(expired, entry)
			m.removeLocked(entry.ID)
		}
	}
	m.mu.Unlock()

	for _, entry := range expired {
		if err := entry.Transport.Close(); err != nil {
			log.Warnw("error closing idle session transport", "sessionId", entry.ID, "error", err)
		}
	}
}

func closeBestEffort(c io.Closer) {
	if c == nil {
		return
	}
	_ = c.Close()
}

// Shutdown stops the idle cleanup loop and closes every session's
// transport, best-effort and in parallel.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	var entries []*Entry
	for el := m.order.Front(); el != nil; el = el.Next() {
		entries = append(entries, el.Value.(*Entry))
	}
	m.elems = make(map[string]*list.Element)
	m.order = list.New()
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, entry := range entries {
		wg.Add(1)
		go func(e *Entry) {
			defer wg.Done()
			closeBestEffort(e.Transport)
		}(entry)
	}
	wg.Wait()
}
