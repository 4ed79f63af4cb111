// Package scoring ranks candidate items against a profile once cold start is
// over. Score is a pure function of (item, profile, now); selection layers a
// repeated-topic penalty and exploration quotas on top of the raw ranking.
package scoring

import (
	"sort"
	"time"

	"github.com/kalambet/quizfeed/internal/generator"
	"github.com/kalambet/quizfeed/internal/profile"
)

const (
	topicAffinityWeight = 0.30

	accuracyBonus   = 0.25
	fastAnswerMs    = 3000
	slowAnswerMs    = 15000
	timeBonus       = 0.15
	skipPenalty     = 0.20
	cooldownPerDay  = 0.10
	cooldownCap     = 0.5
	noveltyBonus    = 0.15
	repeatedPenalty = 0.12 // applied when a pick would make a third consecutive same-topic item

	// Exploration reservation shares of the final selection.
	newTopicShare    = 0.05
	newSubtopicShare = 0.10
	newBranchShare   = 0.15
)

// Score computes the steady-state rank score for an item. Deterministic:
// identical inputs always produce the same value.
func Score(it generator.Item, p *profile.Profile, now time.Time) float64 {
	affinity := (p.TopicWeight(it.Topic) +
		p.SubtopicWeight(it.Topic, it.Subtopic) +
		p.BranchWeight(it.Topic, it.Subtopic, it.Branch)) / 3

	score := topicAffinityWeight * affinity

	in, seen := p.Interactions[it.ID]
	if !seen {
		return score + noveltyBonus
	}

	if in.WasCorrect != nil {
		if *in.WasCorrect {
			score += accuracyBonus
		} else {
			score -= accuracyBonus
		}
	}
	if in.TimeSpentMs < fastAnswerMs {
		score += timeBonus
	} else if in.TimeSpentMs > slowAnswerMs {
		score -= timeBonus
	}
	if in.WasSkipped {
		score -= skipPenalty
	}

	if in.ViewedAt > 0 {
		days := now.Sub(time.UnixMilli(in.ViewedAt)).Hours() / 24
		if days > 0 {
			bonus := cooldownPerDay * days
			if bonus > cooldownCap {
				bonus = cooldownCap
			}
			score += bonus
		}
	}
	return score
}

type scored struct {
	item  generator.Item
	score float64
}

// lastViewedMs returns when the user last saw the item, 0 for never.
func lastViewedMs(p *profile.Profile, it generator.Item) int64 {
	if in, ok := p.Interactions[it.ID]; ok {
		return in.ViewedAt
	}
	return 0
}

// Select returns the top n candidates for the profile: scored descending,
// ties broken by older last-viewed, with at most two consecutive same-topic
// picks and exploration slots reserved for unseen topics, subtopics, and
// branches.
func Select(p *profile.Profile, candidates []generator.Item, now time.Time, n int) []generator.Item {
	if n <= 0 || len(candidates) == 0 {
		return nil
	}
	if n > len(candidates) {
		n = len(candidates)
	}

	pool := make([]scored, len(candidates))
	for i, it := range candidates {
		pool[i] = scored{item: it, score: Score(it, p, now)}
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].score != pool[j].score {
			return pool[i].score > pool[j].score
		}
		li, lj := lastViewedMs(p, pool[i].item), lastViewedMs(p, pool[j].item)
		if li != lj {
			return li < lj
		}
		return pool[i].item.ID < pool[j].item.ID
	})

	picks, leftovers := pickWithDiversity(pool, n)
	picks = applyReservations(p, picks, leftovers, n)
	out := make([]generator.Item, len(picks))
	for i, s := range picks {
		out[i] = s.item
	}
	return out
}

// pickWithDiversity greedily fills n slots from the sorted pool. A candidate
// that would be the third consecutive item from the same topic is scored with
// the repeated-topic penalty for that slot; if a differently-topiced
// candidate then outranks it, the repeat is deferred, not dropped.
func pickWithDiversity(pool []scored, n int) (picks, leftovers []scored) {
	remaining := append([]scored(nil), pool...)
	picks = make([]scored, 0, n)

	for len(picks) < n && len(remaining) > 0 {
		streakTopic := ""
		if len(picks) >= 2 {
			a, b := picks[len(picks)-1].item.Topic, picks[len(picks)-2].item.Topic
			if a == b {
				streakTopic = a
			}
		}

		best := 0
		bestScore := effectiveScore(remaining[0], streakTopic)
		for i := 1; i < len(remaining); i++ {
			if s := effectiveScore(remaining[i], streakTopic); s > bestScore {
				best, bestScore = i, s
			}
		}
		picks = append(picks, remaining[best])
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return picks, remaining
}

func effectiveScore(s scored, streakTopic string) float64 {
	if streakTopic != "" && s.item.Topic == streakTopic {
		return s.score - repeatedPenalty
	}
	return s.score
}

type quota struct {
	share     float64
	qualifies func(generator.Item) bool
}

// applyReservations enforces the exploration quotas by substituting the
// lowest-ranked non-qualifying picks with the best qualifying leftovers.
func applyReservations(p *profile.Profile, picks, leftovers []scored, n int) []scored {
	quotas := []quota{
		{newTopicShare, func(it generator.Item) bool {
			return !p.HasTopic(it.Topic)
		}},
		{newSubtopicShare, func(it generator.Item) bool {
			return p.HasTopic(it.Topic) && !p.HasSubtopic(it.Topic, it.Subtopic)
		}},
		{newBranchShare, func(it generator.Item) bool {
			return p.HasSubtopic(it.Topic, it.Subtopic) && !p.HasBranch(it.Topic, it.Subtopic, it.Branch)
		}},
	}

	for _, q := range quotas {
		want := int(float64(n)*q.share + 0.5)
		if want == 0 {
			continue
		}
		have := 0
		for _, s := range picks {
			if q.qualifies(s.item) {
				have++
			}
		}

		for have < want {
			// Best unpicked qualifier (leftovers are score-sorted already).
			src := -1
			for i, s := range leftovers {
				if q.qualifies(s.item) {
					src = i
					break
				}
			}
			if src == -1 {
				break
			}
			// Lowest-ranked pick that does not satisfy any quota.
			dst := -1
			for i := len(picks) - 1; i >= 0; i-- {
				if !anyQualifies(quotas, picks[i].item) {
					dst = i
					break
				}
			}
			if dst == -1 {
				break
			}
			picks[dst] = leftovers[src]
			leftovers = append(leftovers[:src], leftovers[src+1:]...)
			have++
		}
	}
	return picks
}

func anyQualifies(quotas []quota, it generator.Item) bool {
	for _, q := range quotas {
		if q.qualifies(it) {
			return true
		}
	}
	return false
}
