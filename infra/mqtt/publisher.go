package mqtt

import (
	"context"
	"fmt"
	"sync"

	coremqtt "github.com/kilianp07/dspfactory/core/mqtt"
)

// NopAnnouncer discards announcements.
type NopAnnouncer struct{}

func (NopAnnouncer) Announce(context.Context, coremqtt.Announcement) error { return nil }
func (NopAnnouncer) Close()                                                {}

// MockAnnouncer records announcements; used in tests.
type MockAnnouncer struct {
	mu       sync.Mutex
	Messages []coremqtt.Announcement
	FailSHA  map[string]bool
	Closed   bool
}

// NewMockAnnouncer creates a new MockAnnouncer.
func NewMockAnnouncer() *MockAnnouncer {
	return &MockAnnouncer{FailSHA: make(map[string]bool)}
}

// Announce records a or fails if its SHA key is configured to fail.
func (m *MockAnnouncer) Announce(_ context.Context, a coremqtt.Announcement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSHA[a.SHAKey] {
		return fmt.Errorf("publish failed")
	}
	m.Messages = append(m.Messages, a)
	return nil
}

// Sent returns a copy of the recorded announcements.
func (m *MockAnnouncer) Sent() []coremqtt.Announcement {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]coremqtt.Announcement, len(m.Messages))
	copy(out, m.Messages)
	return out
}

func (m *MockAnnouncer) Close() {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
}

// New returns a connected PahoAnnouncer when cfg is enabled, a NopAnnouncer
// otherwise.
func New(cfg Config) (coremqtt.Announcer, error) {
	if !cfg.Enabled {
		return NopAnnouncer{}, nil
	}
	return NewPahoAnnouncer(cfg)
}
