package profile

// Merge combines two divergent copies of the same user's profile into a new
// one. Weights merge leaf-by-leaf taking the maximum, interactions union by
// item id keeping the later ViewedAt, counters take the maximum. The operation
// is idempotent and commutative on leaves, so cross-device conflict
// resolution converges regardless of merge order.
func Merge(a, b *Profile) *Profile {
	switch {
	case a == nil:
		return b.Clone()
	case b == nil:
		return a.Clone()
	}

	m := New()
	for name := range a.Topics {
		m.Topics[name] = mergeTopic(a.Topics[name], b.Topics[name])
	}
	for name := range b.Topics {
		if _, done := m.Topics[name]; !done {
			m.Topics[name] = mergeTopic(a.Topics[name], b.Topics[name])
		}
	}

	for id, in := range a.Interactions {
		m.Interactions[id] = cloneInteraction(in)
	}
	for id, in := range b.Interactions {
		if have, ok := m.Interactions[id]; !ok || in.ViewedAt > have.ViewedAt {
			m.Interactions[id] = cloneInteraction(in)
		}
	}

	m.TotalAnswered = maxInt(a.TotalAnswered, b.TotalAnswered)
	m.LastRefreshed = maxInt64(a.LastRefreshed, b.LastRefreshed)
	m.ColdStartComplete = a.ColdStartComplete || b.ColdStartComplete
	m.Version = maxInt(a.Version, b.Version)
	return m
}

func mergeTopic(a, b *Topic) *Topic {
	if a == nil {
		a = &Topic{Weight: DefaultWeight}
	}
	if b == nil {
		b = &Topic{Weight: DefaultWeight}
	}
	t := &Topic{
		Weight:     maxFloat(a.Weight, b.Weight),
		LastViewed: maxInt64(a.LastViewed, b.LastViewed),
		Subtopics:  make(map[string]*Subtopic),
	}
	for name := range a.Subtopics {
		t.Subtopics[name] = mergeSubtopic(a.Subtopics[name], b.Subtopics[name])
	}
	for name := range b.Subtopics {
		if _, done := t.Subtopics[name]; !done {
			t.Subtopics[name] = mergeSubtopic(a.Subtopics[name], b.Subtopics[name])
		}
	}
	return t
}

func mergeSubtopic(a, b *Subtopic) *Subtopic {
	if a == nil {
		a = &Subtopic{Weight: DefaultWeight}
	}
	if b == nil {
		b = &Subtopic{Weight: DefaultWeight}
	}
	s := &Subtopic{
		Weight:     maxFloat(a.Weight, b.Weight),
		LastViewed: maxInt64(a.LastViewed, b.LastViewed),
		Branches:   make(map[string]*Branch),
	}
	for name := range a.Branches {
		s.Branches[name] = mergeBranch(a.Branches[name], b.Branches[name])
	}
	for name := range b.Branches {
		if _, done := s.Branches[name]; !done {
			s.Branches[name] = mergeBranch(a.Branches[name], b.Branches[name])
		}
	}
	return s
}

func mergeBranch(a, b *Branch) *Branch {
	if a == nil {
		a = &Branch{Weight: DefaultWeight}
	}
	if b == nil {
		b = &Branch{Weight: DefaultWeight}
	}
	return &Branch{
		Weight:     maxFloat(a.Weight, b.Weight),
		LastViewed: maxInt64(a.LastViewed, b.LastViewed),
	}
}

func cloneInteraction(in *Interaction) *Interaction {
	cp := *in
	if in.WasCorrect != nil {
		v := *in.WasCorrect
		cp.WasCorrect = &v
	}
	return &cp
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
