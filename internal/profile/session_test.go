package profile

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type mockCache struct {
	mu        sync.Mutex
	data      map[string][]byte
	saveCalls int
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte)}
}

func (m *mockCache) LoadProfile(userID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[userID], nil
}

func (m *mockCache) SaveProfile(userID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	m.data[userID] = data
	return nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestNewSession_EmptyCache(t *testing.T) {
	s, err := NewSession("u1", newMockCache(), fixedClock{testNow})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	p := s.Snapshot()
	if len(p.Topics) != 0 || p.TotalAnswered != 0 {
		t.Error("expected a fresh default profile")
	}
}

func TestNewSession_RequiresUserID(t *testing.T) {
	if _, err := NewSession("", newMockCache(), fixedClock{testNow}); err == nil {
		t.Fatal("expected error for missing user id")
	}
}

func TestSession_ApplyPersists(t *testing.T) {
	cache := newMockCache()
	s, err := NewSession("u1", cache, fixedClock{testNow})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if err := s.Apply("q1", "Science", "Physics", "Mechanics", OutcomeCorrect, 1200); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	cache.mu.Lock()
	data := cache.data["u1"]
	cache.mu.Unlock()
	if data == nil {
		t.Fatal("profile not written to local cache")
	}
	var stored Profile
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("decoding cached profile: %v", err)
	}
	if !almostEqual(stored.TopicWeight("Science"), 0.6) {
		t.Errorf("cached Science weight = %v, want 0.6", stored.TopicWeight("Science"))
	}
}

func TestSession_ReloadsFromCache(t *testing.T) {
	cache := newMockCache()
	s1, _ := NewSession("u1", cache, fixedClock{testNow})
	s1.Apply("q1", "Science", "Physics", "Mechanics", OutcomeCorrect, 1200)

	s2, err := NewSession("u1", cache, fixedClock{testNow})
	if err != nil {
		t.Fatalf("NewSession reload: %v", err)
	}
	if got := s2.Snapshot().TotalAnswered; got != 1 {
		t.Errorf("reloaded TotalAnswered = %d, want 1", got)
	}
}

func TestSession_SnapshotDoesNotAlias(t *testing.T) {
	s, _ := NewSession("u1", newMockCache(), fixedClock{testNow})
	s.Apply("q1", "Science", "Physics", "Mechanics", OutcomeCorrect, 1200)

	snap := s.Snapshot()
	snap.Topics["Science"].Weight = 0.11

	if almostEqual(s.Snapshot().TopicWeight("Science"), 0.11) {
		t.Error("snapshot mutation leaked into the session profile")
	}
}

func TestSession_AdoptReplacesWholesale(t *testing.T) {
	s, _ := NewSession("u1", newMockCache(), fixedClock{testNow})
	s.Apply("q1", "Science", "Physics", "Mechanics", OutcomeCorrect, 1200)

	remote := New()
	remote.ApplyOutcome("q9", "History", "Rome", "Empire", OutcomeCorrect, 2000, testNow)
	remote.Version = 7
	if err := s.Adopt(remote); err != nil {
		t.Fatalf("Adopt: %v", err)
	}

	p := s.Snapshot()
	if p.HasTopic("Science") {
		t.Error("adoption should replace, not merge")
	}
	if p.Version != 7 {
		t.Errorf("Version = %d, want 7", p.Version)
	}
}

func TestSession_SetVersionNeverRegresses(t *testing.T) {
	s, _ := NewSession("u1", newMockCache(), fixedClock{testNow})
	s.SetVersion(5)
	s.SetVersion(3)
	if v := s.Snapshot().Version; v != 5 {
		t.Errorf("Version = %d, want 5", v)
	}
}
