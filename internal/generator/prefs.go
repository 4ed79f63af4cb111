package generator

import (
	"sort"

	"github.com/kalambet/quizfeed/internal/profile"
)

// Request is what the engine hands the generation service: ordered topic
// preferences plus recent question texts the service must not repeat.
type Request struct {
	PrimaryTopics      []string `json:"primary_topics"`      // strongest interests, weight descending
	AdjacentTopics     []string `json:"adjacent_topics"`     // next tier, candidates for broadening
	PreferredSubtopics []string `json:"preferred_subtopics"` // "Topic/Subtopic"
	PreferredBranches  []string `json:"preferred_branches"`  // "Topic/Subtopic/Branch"
	Tags               []string `json:"tags,omitempty"`
	AvoidTexts         []string `json:"avoid_texts,omitempty"`
	Count              int      `json:"count"`
}

const (
	maxPrimaryTopics  = 3
	maxAdjacentTopics = 3
	preferredCutoff   = 0.6 // subtopics/branches at or above this are called out explicitly
)

// BuildRequest extracts generation preferences from a profile. Topics are
// ordered by weight descending with name as the tiebreak, so identical
// profiles always produce identical requests.
func BuildRequest(p *profile.Profile, tags, avoidTexts []string, count int) Request {
	type weighted struct {
		name   string
		weight float64
	}

	topics := make([]weighted, 0, len(p.Topics))
	for name, t := range p.Topics {
		topics = append(topics, weighted{name, t.Weight})
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].weight != topics[j].weight {
			return topics[i].weight > topics[j].weight
		}
		return topics[i].name < topics[j].name
	})

	req := Request{
		Tags:       tags,
		AvoidTexts: avoidTexts,
		Count:      count,
	}
	for i, t := range topics {
		switch {
		case i < maxPrimaryTopics:
			req.PrimaryTopics = append(req.PrimaryTopics, t.name)
		case i < maxPrimaryTopics+maxAdjacentTopics:
			req.AdjacentTopics = append(req.AdjacentTopics, t.name)
		}
	}

	var subs, branches []weighted
	for tname, t := range p.Topics {
		for sname, s := range t.Subtopics {
			if s.Weight >= preferredCutoff {
				subs = append(subs, weighted{tname + "/" + sname, s.Weight})
			}
			for bname, b := range s.Branches {
				if b.Weight >= preferredCutoff {
					branches = append(branches, weighted{tname + "/" + sname + "/" + bname, b.Weight})
				}
			}
		}
	}
	for _, list := range []*[]weighted{&subs, &branches} {
		l := *list
		sort.Slice(l, func(i, j int) bool {
			if l[i].weight != l[j].weight {
				return l[i].weight > l[j].weight
			}
			return l[i].name < l[j].name
		})
	}
	for _, s := range subs {
		req.PreferredSubtopics = append(req.PreferredSubtopics, s.name)
	}
	for _, b := range branches {
		req.PreferredBranches = append(req.PreferredBranches, b.name)
	}
	return req
}
