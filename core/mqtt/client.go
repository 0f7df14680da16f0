// Package mqtt defines how repository changes are announced to other
// services over MQTT.
package mqtt

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/dspfactory/core/repository"
)

// ErrClosed is returned when announcing on a closed announcer.
var ErrClosed = errors.New("mqtt: announcer closed")

// Announcement is the JSON payload published for each repository event.
type Announcement struct {
	EventID   string    `json:"event_id"`
	Op        string    `json:"op"`
	SHAKey    string    `json:"sha_key"`
	Name      string    `json:"name"`
	Backend   string    `json:"backend"`
	Libraries []string  `json:"libraries"`
	Time      time.Time `json:"time"`
	// Origin is the client id of the publishing instance.
	Origin string `json:"origin,omitempty"`
}

// NewAnnouncement converts a repository event.
func NewAnnouncement(ev repository.Event) Announcement {
	libs := ev.Entry.Libraries
	if libs == nil {
		libs = []string{}
	}
	return Announcement{
		EventID:   ev.ID,
		Op:        string(ev.Op),
		SHAKey:    ev.Entry.SHAKey,
		Name:      ev.Entry.Name,
		Backend:   ev.Entry.Backend,
		Libraries: libs,
		Time:      ev.Time,
	}
}

// Announcer publishes announcements.
type Announcer interface {
	Announce(ctx context.Context, a Announcement) error
	Close()
}
