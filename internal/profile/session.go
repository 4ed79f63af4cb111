package profile

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// CacheStore is the local persistence the session needs. Implemented by
// storage.Store. Load returns (nil, nil) when no cached profile exists.
type CacheStore interface {
	LoadProfile(userID string) ([]byte, error)
	SaveProfile(userID string, data []byte) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return realClock{} }

// Session exclusively owns the active user's profile for the lifetime of a
// login. Interaction events are applied under a single lock in arrival order;
// consumers get deep-copied snapshots, never the live tree.
type Session struct {
	userID string
	cache  CacheStore
	clock  Clock

	mu sync.Mutex
	p  *Profile
}

// NewSession loads the cached profile for userID, or starts an empty one.
func NewSession(userID string, cache CacheStore, clock Clock) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if clock == nil {
		clock = realClock{}
	}
	s := &Session{userID: userID, cache: cache, clock: clock}

	data, err := cache.LoadProfile(userID)
	if err != nil {
		return nil, fmt.Errorf("loading cached profile: %w", err)
	}
	if data == nil {
		s.p = New()
		return s, nil
	}
	p := New()
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decoding cached profile: %w", err)
	}
	s.p = p
	return s, nil
}

// UserID returns the session owner.
func (s *Session) UserID() string { return s.userID }

// Apply records an answer or skip event. Events are serialized; each one
// completes (including the local cache write) before the next is processed.
func (s *Session) Apply(itemID, topic, subtopic, branch string, outcome Outcome, timeSpentMs int64) error {
	if itemID == "" {
		return fmt.Errorf("item id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.p.ApplyOutcome(itemID, topic, subtopic, branch, outcome, timeSpentMs, s.clock.Now())
	return s.persistLocked()
}

// Snapshot returns a deep copy of the current profile.
func (s *Session) Snapshot() *Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Clone()
}

// Adopt replaces the session's profile wholesale (initial-load reconciliation
// or a post-conflict merge result) and persists it locally.
func (s *Session) Adopt(p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p = p.Clone()
	return s.persistLocked()
}

// SetVersion records the version the remote store accepted for the state
// that was pushed.
func (s *Session) SetVersion(v int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v > s.p.Version {
		s.p.Version = v
		return s.persistLocked()
	}
	return nil
}

// MarkColdStartComplete flips the one-way cold-start flag.
func (s *Session) MarkColdStartComplete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.p.ColdStartComplete {
		return nil
	}
	s.p.ColdStartComplete = true
	return s.persistLocked()
}

func (s *Session) persistLocked() error {
	if s.cache == nil {
		return nil
	}
	data, err := json.Marshal(s.p)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	if err := s.cache.SaveProfile(s.userID, data); err != nil {
		return fmt.Errorf("caching profile: %w", err)
	}
	return nil
}
