package engine

import (
	"context"
	"sync"
	"time"
)

// mockTask records every invocation and fails or panics for chosen locations.
type mockTask struct {
	mu     sync.Mutex
	name   string
	calls  []string
	counts map[string]Counts
	fail   map[string]error
	panics map[string]bool
	delay  time.Duration
}

func newMockTask(name string) *mockTask {
	return &mockTask{
		name:   name,
		counts: make(map[string]Counts),
		fail:   make(map[string]error),
		panics: make(map[string]bool),
	}
}

func (m *mockTask) Name() string { return m.name }

func (m *mockTask) Run(ctx context.Context, loc LocationConfig, window Window) (Counts, error) {
	m.mu.Lock()
	m.calls = append(m.calls, loc.LocationID)
	err := m.fail[loc.LocationID]
	shouldPanic := m.panics[loc.LocationID]
	counts := m.counts[loc.LocationID]
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return Counts{}, ctx.Err()
		}
	}
	if shouldPanic {
		panic("boom")
	}
	if err != nil {
		return Counts{Processed: 99}, err
	}
	return counts, nil
}

func (m *mockTask) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// tickingClock returns a strictly increasing time on every call.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTickingClock() *tickingClock {
	return &tickingClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func locs(ids ...string) []LocationConfig {
	out := make([]LocationConfig, 0, len(ids))
	for _, id := range ids {
		out = append(out, LocationConfig{LocationID: id, Name: "Store " + id})
	}
	return out
}
