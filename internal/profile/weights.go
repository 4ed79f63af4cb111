package profile

import "time"

// delta is one row of an outcome delta table, ordered topic/subtopic/branch.
// Branch deltas are the largest: the deeper the node, the stronger the signal.
type delta struct {
	topic    float64
	subtopic float64
	branch   float64
}

var outcomeDeltas = map[Outcome]delta{
	OutcomeCorrect:   {topic: 0.10, subtopic: 0.15, branch: 0.20},
	OutcomeIncorrect: {topic: 0.05, subtopic: 0.07, branch: 0.10},
	OutcomeSkipped:   {topic: -0.05, subtopic: -0.07, branch: -0.10},
}

// compensationDeltas replace the normal deltas when the user answers an item
// they previously skipped, so the earlier skip penalty is not compounded with
// a full answer bonus on a topic the user ultimately engaged with.
var compensationDeltas = map[Outcome]delta{
	OutcomeCorrect:   {topic: 0.05, subtopic: 0.07, branch: 0.10},
	OutcomeIncorrect: {topic: 0.03, subtopic: 0.04, branch: 0.05},
}

// ApplyOutcome mutates the profile in response to an answer or skip event.
// The topic/subtopic/branch nodes named by the item are created at
// DefaultWeight on first touch. All weight mutation is read-clamp-write; the
// tree never holds an out-of-range intermediate value.
func (p *Profile) ApplyOutcome(itemID, topic, subtopic, branch string, outcome Outcome, timeSpentMs int64, now time.Time) {
	t, s, b := p.ensureNodes(topic, subtopic, branch)

	d, ok := outcomeDeltas[outcome]
	if !ok {
		return
	}
	if prev, exists := p.Interactions[itemID]; exists && prev.WasSkipped && outcome != OutcomeSkipped {
		d = compensationDeltas[outcome]
	}

	t.Weight = clamp(t.Weight + d.topic)
	s.Weight = clamp(s.Weight + d.subtopic)
	b.Weight = clamp(b.Weight + d.branch)

	nowMs := now.UnixMilli()
	t.LastViewed = nowMs
	s.LastViewed = nowMs
	b.LastViewed = nowMs

	in, exists := p.Interactions[itemID]
	if !exists {
		in = &Interaction{}
		p.Interactions[itemID] = in
	}
	switch outcome {
	case OutcomeSkipped:
		in.WasSkipped = true
	default:
		correct := outcome == OutcomeCorrect
		in.WasCorrect = &correct
		// Clearing the skip flag makes compensation single-shot: a second
		// answer to the same item takes the normal delta path.
		in.WasSkipped = false
	}
	in.TimeSpentMs = timeSpentMs
	in.ViewedAt = nowMs

	if outcome != OutcomeSkipped {
		p.TotalAnswered++
	}
	p.Touch(now)
}

// Touch advances LastRefreshed to now, never backwards.
func (p *Profile) Touch(now time.Time) {
	if ms := now.UnixMilli(); ms > p.LastRefreshed {
		p.LastRefreshed = ms
	}
}

func (p *Profile) ensureNodes(topic, subtopic, branch string) (*Topic, *Subtopic, *Branch) {
	if p.Topics == nil {
		p.Topics = make(map[string]*Topic)
	}
	t, ok := p.Topics[topic]
	if !ok {
		t = &Topic{Weight: DefaultWeight, Subtopics: make(map[string]*Subtopic)}
		p.Topics[topic] = t
	}
	if t.Subtopics == nil {
		t.Subtopics = make(map[string]*Subtopic)
	}
	s, ok := t.Subtopics[subtopic]
	if !ok {
		s = &Subtopic{Weight: DefaultWeight, Branches: make(map[string]*Branch)}
		t.Subtopics[subtopic] = s
	}
	if s.Branches == nil {
		s.Branches = make(map[string]*Branch)
	}
	b, ok := s.Branches[branch]
	if !ok {
		b = &Branch{Weight: DefaultWeight}
		s.Branches[branch] = b
	}
	return t, s, b
}

func clamp(w float64) float64 {
	if w < MinWeight {
		return MinWeight
	}
	if w > MaxWeight {
		return MaxWeight
	}
	return w
}
