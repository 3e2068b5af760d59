package schedule

import (
	"context"
	"sync"
	"time"
)

// FakeClock is a settable clock for tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock starts a fake clock at the given instant.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

// Now implements Clock.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set jumps the clock to a specific instant.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Manual is a Scheduler that never fires on its own; tests trigger tasks by
// name with Fire.
type Manual struct {
	mu    sync.Mutex
	tasks map[string]Task
}

// NewManual creates a manually-driven scheduler.
func NewManual() *Manual {
	return &Manual{tasks: make(map[string]Task)}
}

// Every implements Scheduler.
func (m *Manual) Every(name string, _ time.Duration, task Task) func() {
	return m.register(name, task)
}

// DailyAt implements Scheduler.
func (m *Manual) DailyAt(name string, _ time.Duration, task Task) func() {
	return m.register(name, task)
}

// Stop implements Scheduler.
func (m *Manual) Stop() {
	m.mu.Lock()
	m.tasks = make(map[string]Task)
	m.mu.Unlock()
}

// Fire runs the named task synchronously. Returns false if no such task is
// registered.
func (m *Manual) Fire(name string) bool {
	m.mu.Lock()
	task, ok := m.tasks[name]
	m.mu.Unlock()
	if !ok {
		return false
	}
	task(context.Background())
	return true
}

// Registered reports whether a task with the given name is scheduled.
func (m *Manual) Registered(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[name]
	return ok
}

func (m *Manual) register(name string, task Task) func() {
	m.mu.Lock()
	m.tasks[name] = task
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.tasks, name)
		m.mu.Unlock()
	}
}
