package coldstart

import (
	"math/rand"
	"testing"
	"time"

	"github.com/kalambet/quizfeed/internal/generator"
	"github.com/kalambet/quizfeed/internal/profile"
)

var testNow = time.UnixMilli(1_700_000_000_000)

func TestPhaseFor_Boundaries(t *testing.T) {
	cases := []struct {
		answered int
		want     Phase
	}{
		{0, PhaseExploration},
		{4, PhaseExploration},
		{5, PhaseBranching},
		{11, PhaseBranching},
		{12, PhaseAdaptive},
		{19, PhaseAdaptive},
		{20, PhaseSteadyState},
		{100, PhaseSteadyState},
	}
	for _, c := range cases {
		if got := PhaseFor(c.answered); got != c.want {
			t.Errorf("PhaseFor(%d) = %v, want %v", c.answered, got, c.want)
		}
	}
}

func TestPhaseFor_Monotonic(t *testing.T) {
	prev := PhaseFor(0)
	for answered := 1; answered <= 50; answered++ {
		cur := PhaseFor(answered)
		if cur < prev {
			t.Fatalf("phase regressed at answered=%d: %v -> %v", answered, prev, cur)
		}
		prev = cur
	}
}

func TestIsCheckpoint(t *testing.T) {
	for _, pos := range []int{4, 8, 12, 16, 20} {
		if !IsCheckpoint(pos) {
			t.Errorf("position %d should be a checkpoint", pos)
		}
	}
	for _, pos := range []int{0, 1, 5, 13, 21, 24} {
		if IsCheckpoint(pos) {
			t.Errorf("position %d should not be a checkpoint", pos)
		}
	}
}

func item(id, topic string, diff generator.Difficulty) generator.Item {
	return generator.Item{ID: id, Text: "q " + id, Topic: topic, Subtopic: "Sub", Branch: "Branch", Difficulty: diff}
}

func TestEligible_ExplorationFiltersByDifficulty(t *testing.T) {
	c := New(rand.New(rand.NewSource(1)))
	p := profile.New() // answered 0 → exploration

	if !c.Eligible(p, item("a", "Science", generator.DifficultyEasy)) {
		t.Error("easy item should be eligible in exploration")
	}
	if !c.Eligible(p, item("b", "Science", generator.DifficultyMedium)) {
		t.Error("medium item should be eligible in exploration")
	}
	if c.Eligible(p, item("c", "Science", generator.DifficultyHard)) {
		t.Error("hard item should be filtered in exploration")
	}
}

// profileWithAnswered builds a profile with the given answered count and a
// deliberately weak Boredom topic.
func profileWithAnswered(t *testing.T, answered int) *profile.Profile {
	t.Helper()
	p := profile.New()
	for i := 0; i < answered; i++ {
		p.ApplyOutcome("warm", "Science", "Physics", "Mechanics", profile.OutcomeCorrect, 1000, testNow)
	}
	p.TotalAnswered = answered
	// Repeated skips push Boredom to the floor.
	for i := 0; i < 8; i++ {
		p.ApplyOutcome("bored", "Boredom", "Dull", "Duller", profile.OutcomeSkipped, 100, testNow)
	}
	return p
}

func TestEligible_BranchingExcludesWeakTopics(t *testing.T) {
	c := New(rand.New(rand.NewSource(1)))
	p := profileWithAnswered(t, 6) // branching

	if c.Eligible(p, item("a", "Boredom", generator.DifficultyEasy)) {
		t.Error("topic at the 0.1 floor should be excluded in branching")
	}
	if !c.Eligible(p, item("b", "Science", generator.DifficultyHard)) {
		t.Error("strong topic should be eligible regardless of difficulty in branching")
	}
	if !c.Eligible(p, item("c", "NeverSeen", generator.DifficultyEasy)) {
		t.Error("unseen topic defaults to 0.5 and passes the 0.2 floor")
	}
}

func TestEligible_AdaptiveUsesHigherFloor(t *testing.T) {
	c := New(rand.New(rand.NewSource(1)))
	p := profileWithAnswered(t, 15) // adaptive
	// Nudge History to 0.25: above the branching floor, below the adaptive one.
	p.Topics["History"] = &profile.Topic{Weight: 0.25}

	if c.Eligible(p, item("a", "History", generator.DifficultyEasy)) {
		t.Error("0.25-weight topic should be excluded at the adaptive 0.3 floor")
	}
}

func TestSelectBatch_ExplorationIgnoresWeights(t *testing.T) {
	c := New(rand.New(rand.NewSource(42)))
	p := profile.New()

	candidates := []generator.Item{
		item("a", "Science", generator.DifficultyEasy),
		item("b", "History", generator.DifficultyMedium),
		item("c", "Arts", generator.DifficultyHard), // filtered
		item("d", "Geography", generator.DifficultyEasy),
	}
	batch := c.SelectBatch(p, candidates, 10)
	if len(batch) != 3 {
		t.Fatalf("got %d items, want 3 (hard filtered out)", len(batch))
	}
	for _, it := range batch {
		if it.ID == "c" {
			t.Error("hard item leaked into exploration batch")
		}
	}
}

func TestSelectBatch_BranchingPrefersStrongTopics(t *testing.T) {
	c := New(rand.New(rand.NewSource(7)))
	p := profileWithAnswered(t, 6)

	candidates := make([]generator.Item, 0, 10)
	candidates = append(candidates, generator.Item{ID: "strong", Topic: "Science", Subtopic: "Physics", Branch: "Mechanics", Difficulty: generator.DifficultyEasy})
	for _, id := range []string{"n1", "n2", "n3", "n4", "n5", "n6", "n7", "n8", "n9"} {
		candidates = append(candidates, item(id, "Neutral", generator.DifficultyEasy))
	}

	batch := c.SelectBatch(p, candidates, 4)
	if len(batch) != 4 {
		t.Fatalf("got %d items, want 4", len(batch))
	}
	// 70% of 4 → 3 preferred picks; the strong-topic item must lead.
	if batch[0].ID != "strong" {
		t.Errorf("first preferred pick = %q, want the strong-topic item", batch[0].ID)
	}
}

func TestSelectBatch_AdaptiveSurfacesNewSubtopics(t *testing.T) {
	c := New(rand.New(rand.NewSource(3)))
	p := profileWithAnswered(t, 15)

	candidates := []generator.Item{
		{ID: "known", Topic: "Science", Subtopic: "Physics", Branch: "Mechanics", Difficulty: generator.DifficultyEasy},
		{ID: "fresh", Topic: "Science", Subtopic: "Astronomy", Branch: "Stars", Difficulty: generator.DifficultyEasy},
	}

	// n=2 at 80/20 → 1–2 preferred + explore remainder; the unseen-subtopic
	// item must appear in the batch via the exploration slot.
	batch := c.SelectBatch(p, candidates, 2)
	foundFresh := false
	for _, it := range batch {
		if it.ID == "fresh" {
			foundFresh = true
		}
	}
	if !foundFresh {
		t.Error("adaptive batch should surface the new subtopic")
	}
}

func TestSelectBatch_EmptyAndOversizedRequests(t *testing.T) {
	c := New(rand.New(rand.NewSource(1)))
	p := profile.New()

	if got := c.SelectBatch(p, nil, 5); got != nil {
		t.Errorf("no candidates should yield nil, got %v", got)
	}
	if got := c.SelectBatch(p, []generator.Item{item("a", "Science", generator.DifficultyEasy)}, 0); got != nil {
		t.Errorf("n=0 should yield nil, got %v", got)
	}
}
