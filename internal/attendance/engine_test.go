package attendance

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a settable clock for driving expiry deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// classStart is the test class's official start, 09:00 UTC.
var classStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type engine struct {
	store *MemoryStore
	clock *fakeClock
	mgr   *Manager
	proc  *Processor
	rec   *Reconciler
}

// newTestEngine wires the components over the in-memory store with a
// class starting at 09:00 and three enrolled students.
func newTestEngine(t *testing.T) *engine {
	t.Helper()
	st := NewMemoryStore()
	st.AddClass(Class{ID: "cs101", Name: "Algorithms", StartOfDay: 9 * time.Hour}, "alice", "bob", "carol")

	clk := &fakeClock{now: classStart}
	rec := NewReconciler(st, st, clk)
	mgr := NewManager(st, rec, clk, RandomTokenSource{}, nil, 15*time.Minute, 15*time.Minute)
	proc := NewProcessor(st, st, clk)

	return &engine{store: st, clock: clk, mgr: mgr, proc: proc, rec: rec}
}
