package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned when a remote-profile upsert carries a
// version that is not exactly one past the stored version. It is the
// distinguishable conflict error the sync protocol's optimistic concurrency
// depends on.
var ErrVersionConflict = errors.New("version conflict")

// RemoteProfile is one row of the store service's profile table.
type RemoteProfile struct {
	ID      string
	Payload []byte
	Version int
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
