package generator

import (
	"testing"
	"time"

	"github.com/kalambet/quizfeed/internal/profile"
)

func TestBuildRequest_OrdersTopicsByWeight(t *testing.T) {
	p := profile.New()
	now := time.UnixMilli(1_700_000_000_000)
	// Science ends up strongest, then Arts, then History (skipped down).
	p.ApplyOutcome("q1", "Science", "Physics", "Mechanics", profile.OutcomeCorrect, 1000, now)
	p.ApplyOutcome("q2", "Science", "Physics", "Optics", profile.OutcomeCorrect, 1000, now)
	p.ApplyOutcome("q3", "Arts", "Painting", "Cubism", profile.OutcomeCorrect, 1000, now)
	p.ApplyOutcome("q4", "History", "Rome", "Republic", profile.OutcomeSkipped, 200, now)
	p.ApplyOutcome("q5", "Geography", "Europe", "Alps", profile.OutcomeIncorrect, 8000, now)

	req := BuildRequest(p, nil, nil, 10)

	if len(req.PrimaryTopics) != 3 {
		t.Fatalf("got %d primary topics, want 3", len(req.PrimaryTopics))
	}
	if req.PrimaryTopics[0] != "Science" {
		t.Errorf("strongest topic = %q, want Science", req.PrimaryTopics[0])
	}
	if len(req.AdjacentTopics) != 1 || req.AdjacentTopics[0] != "History" {
		t.Errorf("adjacent topics = %v, want [History]", req.AdjacentTopics)
	}
}

func TestBuildRequest_Deterministic(t *testing.T) {
	p := profile.New()
	now := time.UnixMilli(1_700_000_000_000)
	for _, topic := range []string{"Alpha", "Beta", "Gamma", "Delta"} {
		p.ApplyOutcome("q-"+topic, topic, "Sub", "Branch", profile.OutcomeCorrect, 1000, now)
	}

	a := BuildRequest(p, nil, nil, 10)
	b := BuildRequest(p, nil, nil, 10)
	for i := range a.PrimaryTopics {
		if a.PrimaryTopics[i] != b.PrimaryTopics[i] {
			t.Fatalf("primary topics not deterministic: %v vs %v", a.PrimaryTopics, b.PrimaryTopics)
		}
	}
}

func TestBuildRequest_PreferredSubtopicsAboveCutoff(t *testing.T) {
	p := profile.New()
	now := time.UnixMilli(1_700_000_000_000)
	p.ApplyOutcome("q1", "Science", "Physics", "Mechanics", profile.OutcomeCorrect, 1000, now) // Physics 0.65
	p.ApplyOutcome("q2", "Science", "Chemistry", "Acids", profile.OutcomeSkipped, 200, now)    // Chemistry 0.43

	req := BuildRequest(p, nil, nil, 10)

	found := false
	for _, s := range req.PreferredSubtopics {
		if s == "Science/Physics" {
			found = true
		}
		if s == "Science/Chemistry" {
			t.Error("below-cutoff subtopic listed as preferred")
		}
	}
	if !found {
		t.Errorf("Science/Physics missing from preferred subtopics: %v", req.PreferredSubtopics)
	}
	wantBranch := "Science/Physics/Mechanics"
	if len(req.PreferredBranches) != 1 || req.PreferredBranches[0] != wantBranch {
		t.Errorf("preferred branches = %v, want [%s]", req.PreferredBranches, wantBranch)
	}
}

func TestBuildRequest_CarriesAvoidTexts(t *testing.T) {
	p := profile.New()
	avoid := []string{"What is the speed of light?"}
	req := BuildRequest(p, []string{"physics"}, avoid, 5)

	if len(req.AvoidTexts) != 1 || req.AvoidTexts[0] != avoid[0] {
		t.Errorf("avoid texts not carried: %v", req.AvoidTexts)
	}
	if req.Count != 5 {
		t.Errorf("count = %d, want 5", req.Count)
	}
}
