// Package coldstart drives feed selection for a user's first answered items,
// before there is enough signal for the scoring engine: a four-phase state
// machine keyed by the profile's answered count, with per-phase eligibility
// filters and a shrinking exploration share.
package coldstart

import (
	"math/rand"
	"sort"

	"github.com/kalambet/quizfeed/internal/generator"
	"github.com/kalambet/quizfeed/internal/profile"
)

// Phase identifies a cold-start stage. Phases only ever advance: the phase is
// a monotonic function of TotalAnswered, which never decreases.
type Phase int

const (
	PhaseExploration Phase = iota + 1 // answered 0–4: any item up to medium difficulty
	PhaseBranching                    // answered 5–11: drop topics below 0.2, 70/30 preferred/explore
	PhaseAdaptive                     // answered 12–19: drop below 0.3, 80/20, surface new subtopics
	PhaseSteadyState                  // answered ≥20: selection belongs to the scoring engine
)

// Phase boundaries on TotalAnswered.
const (
	branchingAt   = 5
	adaptiveAt    = 12
	steadyStateAt = 20
)

func (p Phase) String() string {
	switch p {
	case PhaseExploration:
		return "exploration"
	case PhaseBranching:
		return "branching"
	case PhaseAdaptive:
		return "adaptive"
	case PhaseSteadyState:
		return "steady-state"
	}
	return "unknown"
}

// PhaseFor maps an answered count to its phase.
func PhaseFor(totalAnswered int) Phase {
	switch {
	case totalAnswered < branchingAt:
		return PhaseExploration
	case totalAnswered < adaptiveAt:
		return PhaseBranching
	case totalAnswered < steadyStateAt:
		return PhaseAdaptive
	}
	return PhaseSteadyState
}

// Complete reports whether cold start is over for the given answered count.
func Complete(totalAnswered int) bool {
	return totalAnswered >= steadyStateAt
}

// checkpoints are the feed positions at which a fresh candidate batch is
// appended during cold start.
var checkpoints = map[int]bool{4: true, 8: true, 12: true, 16: true, 20: true}

// IsCheckpoint reports whether a feed position triggers a batch append.
func IsCheckpoint(position int) bool {
	return checkpoints[position]
}

// Controller selects cold-start batches. The random source only influences
// exploration picks; inject a seeded one in tests for determinism.
type Controller struct {
	rng *rand.Rand
}

// New creates a Controller with the given random source. A nil rng gets a
// time-independent default seed, which is fine: exploration order need not be
// cryptographically unpredictable, just varied.
func New(rng *rand.Rand) *Controller {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Controller{rng: rng}
}

// Eligible applies the current phase's item filter.
func (c *Controller) Eligible(p *profile.Profile, it generator.Item) bool {
	switch PhaseFor(p.TotalAnswered) {
	case PhaseExploration:
		return it.Difficulty.Rank() <= generator.DifficultyMedium.Rank()
	case PhaseAdaptive:
		return p.TopicWeight(it.Topic) >= 0.3
	default: // branching and steady state share the 0.2 floor
		return p.TopicWeight(it.Topic) >= 0.2
	}
}

// SelectBatch picks up to n eligible items for the current phase, mixing
// weight-preferred picks with exploration picks per the phase policy. In
// steady state the scoring engine owns selection; callers should not route
// batches through here once cold start completes.
func (c *Controller) SelectBatch(p *profile.Profile, candidates []generator.Item, n int) []generator.Item {
	if n <= 0 {
		return nil
	}

	eligible := make([]generator.Item, 0, len(candidates))
	for _, it := range candidates {
		if c.Eligible(p, it) {
			eligible = append(eligible, it)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	if n > len(eligible) {
		n = len(eligible)
	}

	phase := PhaseFor(p.TotalAnswered)
	if phase == PhaseExploration {
		// Pure exploration: weights are ignored entirely.
		shuffled := append([]generator.Item(nil), eligible...)
		c.rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		return shuffled[:n]
	}

	exploreShare := 0.3
	if phase >= PhaseAdaptive {
		exploreShare = 0.2
	}
	nExplore := int(float64(n)*exploreShare + 0.5)
	nPreferred := n - nExplore

	byAffinity := append([]generator.Item(nil), eligible...)
	sort.SliceStable(byAffinity, func(i, j int) bool {
		ai, aj := affinity(p, byAffinity[i]), affinity(p, byAffinity[j])
		if ai != aj {
			return ai > aj
		}
		return byAffinity[i].ID < byAffinity[j].ID
	})

	picked := make([]generator.Item, 0, n)
	taken := make(map[string]bool, n)
	for _, it := range byAffinity {
		if len(picked) >= nPreferred {
			break
		}
		picked = append(picked, it)
		taken[it.ID] = true
	}

	// Exploration pool: everything not already picked. The adaptive phase
	// prefers unseen subtopics within topics the user already likes, so new
	// branches open inside established interests.
	pool := make([]generator.Item, 0, len(eligible))
	for _, it := range eligible {
		if !taken[it.ID] {
			pool = append(pool, it)
		}
	}
	c.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if phase == PhaseAdaptive {
		sort.SliceStable(pool, func(i, j int) bool {
			return newSubtopic(p, pool[i]) && !newSubtopic(p, pool[j])
		})
	}
	for _, it := range pool {
		if len(picked) >= n {
			break
		}
		picked = append(picked, it)
	}
	return picked
}

func affinity(p *profile.Profile, it generator.Item) float64 {
	return (p.TopicWeight(it.Topic) +
		p.SubtopicWeight(it.Topic, it.Subtopic) +
		p.BranchWeight(it.Topic, it.Subtopic, it.Branch)) / 3
}

func newSubtopic(p *profile.Profile, it generator.Item) bool {
	return p.HasTopic(it.Topic) && !p.HasSubtopic(it.Topic, it.Subtopic)
}
