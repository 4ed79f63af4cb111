// Package profile holds the per-user interest model: a three-level
// topic→subtopic→branch weight tree plus a flat interaction log, and the
// mutation and merge operations the rest of the engine is built on.
package profile

// Weight bounds and the sentinel every node starts at. Weights are always
// clamped to [MinWeight, MaxWeight]; no caller ever observes a value outside
// that interval.
const (
	MinWeight     = 0.1
	MaxWeight     = 1.0
	DefaultWeight = 0.5
)

// Outcome classifies a user's response to a feed item.
type Outcome int

const (
	OutcomeCorrect Outcome = iota
	OutcomeIncorrect
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCorrect:
		return "correct"
	case OutcomeIncorrect:
		return "incorrect"
	case OutcomeSkipped:
		return "skipped"
	}
	return "unknown"
}

// Profile is the per-user aggregate. JSON field names match the remote
// profile record layout, so the same codec serves the local cache and the
// sync wire format.
type Profile struct {
	Topics            map[string]*Topic       `json:"topics"`
	Interactions      map[string]*Interaction `json:"interactions"`
	LastRefreshed     int64                   `json:"last_refreshed"` // unix millis, locally assigned
	TotalAnswered     int                     `json:"total_questions_answered"`
	ColdStartComplete bool                    `json:"cold_start_complete"`
	Version           int                     `json:"version"` // incremented only by an accepted remote write
}

// Topic is a root node of the interest tree. Ownership is strict containment:
// a Subtopic belongs to exactly one Topic, a Branch to exactly one Subtopic.
type Topic struct {
	Weight     float64             `json:"weight"`
	LastViewed int64               `json:"last_viewed,omitempty"`
	Subtopics  map[string]*Subtopic `json:"subtopics"`
}

type Subtopic struct {
	Weight     float64            `json:"weight"`
	LastViewed int64              `json:"last_viewed,omitempty"`
	Branches   map[string]*Branch `json:"branches"`
}

type Branch struct {
	Weight     float64 `json:"weight"`
	LastViewed int64   `json:"last_viewed,omitempty"`
}

// Interaction records the user's engagement with a single item. At most one
// Interaction exists per item id; later events update it in place.
type Interaction struct {
	WasCorrect  *bool `json:"was_correct"` // nil until answered
	WasSkipped  bool  `json:"was_skipped"`
	TimeSpentMs int64 `json:"time_spent_ms"`
	ViewedAt    int64 `json:"viewed_at"` // unix millis
}

// New returns an empty profile with no personalization signal.
func New() *Profile {
	return &Profile{
		Topics:       make(map[string]*Topic),
		Interactions: make(map[string]*Interaction),
	}
}

// Clone returns a deep copy. Snapshots handed to the sync coordinator must
// not alias the live tree.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Topics = make(map[string]*Topic, len(p.Topics))
	for name, t := range p.Topics {
		tc := *t
		tc.Subtopics = make(map[string]*Subtopic, len(t.Subtopics))
		for sname, s := range t.Subtopics {
			sc := *s
			sc.Branches = make(map[string]*Branch, len(s.Branches))
			for bname, b := range s.Branches {
				bc := *b
				sc.Branches[bname] = &bc
			}
			tc.Subtopics[sname] = &sc
		}
		cp.Topics[name] = &tc
	}
	cp.Interactions = make(map[string]*Interaction, len(p.Interactions))
	for id, i := range p.Interactions {
		ic := *i
		if i.WasCorrect != nil {
			v := *i.WasCorrect
			ic.WasCorrect = &v
		}
		cp.Interactions[id] = &ic
	}
	return &cp
}

// TopicWeight returns the weight for a topic, or DefaultWeight if unseen.
func (p *Profile) TopicWeight(topic string) float64 {
	if t, ok := p.Topics[topic]; ok {
		return t.Weight
	}
	return DefaultWeight
}

// SubtopicWeight returns the weight for a subtopic, or DefaultWeight if unseen.
func (p *Profile) SubtopicWeight(topic, subtopic string) float64 {
	if t, ok := p.Topics[topic]; ok {
		if s, ok := t.Subtopics[subtopic]; ok {
			return s.Weight
		}
	}
	return DefaultWeight
}

// BranchWeight returns the weight for a branch, or DefaultWeight if unseen.
func (p *Profile) BranchWeight(topic, subtopic, branch string) float64 {
	if t, ok := p.Topics[topic]; ok {
		if s, ok := t.Subtopics[subtopic]; ok {
			if b, ok := s.Branches[branch]; ok {
				return b.Weight
			}
		}
	}
	return DefaultWeight
}

// HasTopic reports whether the topic exists in the tree.
func (p *Profile) HasTopic(topic string) bool {
	_, ok := p.Topics[topic]
	return ok
}

// HasSubtopic reports whether the subtopic exists under topic.
func (p *Profile) HasSubtopic(topic, subtopic string) bool {
	t, ok := p.Topics[topic]
	if !ok {
		return false
	}
	_, ok = t.Subtopics[subtopic]
	return ok
}

// HasBranch reports whether the branch exists under topic/subtopic.
func (p *Profile) HasBranch(topic, subtopic, branch string) bool {
	t, ok := p.Topics[topic]
	if !ok {
		return false
	}
	s, ok := t.Subtopics[subtopic]
	if !ok {
		return false
	}
	_, ok = s.Branches[branch]
	return ok
}

// AllDefault reports whether every topic weight sits at DefaultWeight.
//
// The sync coordinator uses this as the "no personalization signal yet"
// sentinel. Note the ambiguity: a user whose preferences genuinely settled
// back to flat weights is indistinguishable from an empty profile. Callers
// that rely on this should say so in their logs.
func (p *Profile) AllDefault() bool {
	for _, t := range p.Topics {
		if t.Weight != DefaultWeight {
			return false
		}
	}
	return true
}
