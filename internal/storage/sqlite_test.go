package storage

import (
	"errors"
	"testing"

	"github.com/kalambet/quizfeed/internal/generator"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProfileCache_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	if data, err := s.LoadProfile("u1"); err != nil || data != nil {
		t.Fatalf("empty cache should return (nil, nil), got (%v, %v)", data, err)
	}

	payload := []byte(`{"topics":{},"version":3}`)
	if err := s.SaveProfile("u1", payload); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	got, err := s.LoadProfile("u1")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("got %s, want %s", got, payload)
	}

	// Upsert replaces in place.
	payload2 := []byte(`{"topics":{},"version":4}`)
	if err := s.SaveProfile("u1", payload2); err != nil {
		t.Fatalf("SaveProfile update: %v", err)
	}
	got, _ = s.LoadProfile("u1")
	if string(got) != string(payload2) {
		t.Errorf("got %s after update, want %s", got, payload2)
	}
}

func TestRemoteProfile_NotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetRemoteProfile("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoteProfile_VersionChain(t *testing.T) {
	s := openTestStore(t)

	// First write must be version 1.
	if err := s.UpsertRemoteProfile("u1", []byte(`{"v":1}`), 2); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("version 2 against empty row: got %v, want conflict", err)
	}
	if err := s.UpsertRemoteProfile("u1", []byte(`{"v":1}`), 1); err != nil {
		t.Fatalf("version 1 insert: %v", err)
	}

	// Stale and repeated versions are rejected.
	if err := s.UpsertRemoteProfile("u1", []byte(`{"v":1b}`), 1); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("repeated version should conflict, got %v", err)
	}
	if err := s.UpsertRemoteProfile("u1", []byte(`{"v":3}`), 3); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("skipped version should conflict, got %v", err)
	}

	if err := s.UpsertRemoteProfile("u1", []byte(`{"v":2}`), 2); err != nil {
		t.Fatalf("version 2 update: %v", err)
	}
	rp, err := s.GetRemoteProfile("u1")
	if err != nil {
		t.Fatalf("GetRemoteProfile: %v", err)
	}
	if rp.Version != 2 {
		t.Errorf("stored version = %d, want 2", rp.Version)
	}
}

func TestCandidates_DedupByFingerprint(t *testing.T) {
	s := openTestStore(t)

	items := []generator.Item{
		{ID: "a", Text: "What is the speed of light?", Topic: "Science", Subtopic: "Physics", Branch: "Constants", Tags: []string{"physics"}},
		{ID: "b", Text: "what IS the speed of light", Topic: "Science", Subtopic: "Physics", Branch: "Constants", Tags: []string{"Physics"}},
		{ID: "c", Text: "Who painted the Mona Lisa?", Topic: "Arts", Subtopic: "Painting", Branch: "Renaissance"},
	}
	stored, err := s.SaveCandidates(items)
	if err != nil {
		t.Fatalf("SaveCandidates: %v", err)
	}
	if stored != 2 {
		t.Errorf("stored %d candidates, want 2 (b is a fingerprint duplicate)", stored)
	}

	listed, err := s.ListCandidates(10)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(listed) != 2 {
		t.Errorf("listed %d candidates, want 2", len(listed))
	}
}

func TestRecentQuestionTexts(t *testing.T) {
	s := openTestStore(t)
	s.SaveCandidates([]generator.Item{
		{ID: "a", Text: "Q one", Topic: "T", Subtopic: "S", Branch: "B"},
		{ID: "b", Text: "Q two", Topic: "T", Subtopic: "S", Branch: "B2"},
	})

	texts, err := s.RecentQuestionTexts(10)
	if err != nil {
		t.Fatalf("RecentQuestionTexts: %v", err)
	}
	if len(texts) != 2 {
		t.Errorf("got %d texts, want 2", len(texts))
	}
}

func TestJobs_ClaimCompleteFlow(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j1", Type: "feed_refill", PayloadJSON: "{}"}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	n, err := s.PendingJobs("feed_refill")
	if err != nil || n != 1 {
		t.Fatalf("PendingJobs = (%d, %v), want (1, nil)", n, err)
	}

	job, err := s.ClaimNextJob([]string{"feed_refill"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil || job.ID != "j1" {
		t.Fatalf("claimed %v, want j1", job)
	}

	// Claimed jobs are invisible to further claims.
	if again, _ := s.ClaimNextJob([]string{"feed_refill"}); again != nil {
		t.Errorf("claimed a running job: %v", again)
	}

	if err := s.CompleteJob("j1"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	if n, _ := s.PendingJobs("feed_refill"); n != 0 {
		t.Errorf("PendingJobs after completion = %d, want 0", n)
	}
}

func TestJobs_FailSchedulesRetryThenGivesUp(t *testing.T) {
	s := openTestStore(t)
	s.EnqueueJob(Job{ID: "j1", Type: "feed_refill", PayloadJSON: "{}", MaxAttempts: 2})

	job, _ := s.ClaimNextJob([]string{"feed_refill"})
	if job == nil {
		t.Fatal("expected to claim j1")
	}
	if err := s.FailJob("j1", "generator unreachable"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	// First failure reschedules with backoff — not immediately claimable.
	if again, _ := s.ClaimNextJob([]string{"feed_refill"}); again != nil {
		t.Errorf("backoff job claimable immediately: %v", again)
	}

	// Second failure exhausts attempts.
	if err := s.FailJob("j1", "still unreachable"); err != nil {
		t.Fatalf("FailJob final: %v", err)
	}
	if n, _ := s.PendingJobs("feed_refill"); n != 0 {
		t.Errorf("failed job still counted as pending: %d", n)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s1.SaveProfile("u1", []byte("{}"))
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()
	if data, err := s2.LoadProfile("u1"); err != nil || data == nil {
		t.Errorf("data lost across reopen: (%v, %v)", data, err)
	}
}
