// Package feed assembles the per-session item feed: cold-start batches at
// checkpoints, scored selection afterwards, topic-diversity ordering, and
// fingerprint dedup against everything already served.
package feed

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/kalambet/quizfeed/internal/coldstart"
	"github.com/kalambet/quizfeed/internal/generator"
	"github.com/kalambet/quizfeed/internal/profile"
	"github.com/kalambet/quizfeed/internal/scoring"
)

const (
	batchSize       = 8   // items appended per checkpoint or extension
	candidatePull   = 100 // candidates fetched from storage per extension
	lowWaterMark    = 20  // fresh candidates below this trigger a refill request
	maxConsecutive  = 2   // same-topic items allowed in a row
)

// CandidateSource lists stored candidate items, newest first. Implemented by
// storage.Store.
type CandidateSource interface {
	ListCandidates(limit int) ([]generator.Item, error)
}

// Refiller asks for a fresh generation batch in the background. Implemented
// by the refill job queue; a nil Refiller disables refill requests.
type Refiller interface {
	RequestRefill(reason string) error
}

// Builder owns the feed for one session.
type Builder struct {
	session    *profile.Session
	controller *coldstart.Controller
	candidates CandidateSource
	refiller   Refiller
	clock      profile.Clock
	logger     *slog.Logger

	mu     sync.Mutex
	items  []generator.Item          // assembled feed, in serve order
	byID   map[string]generator.Item // feed items by id, for outcome lookups
	fps    map[string]bool           // fingerprints of everything ever in the feed
	served int                       // feed position: items handed out so far
}

// NewBuilder creates a feed builder for the session.
func NewBuilder(session *profile.Session, controller *coldstart.Controller, candidates CandidateSource, refiller Refiller, clock profile.Clock) *Builder {
	if clock == nil {
		clock = profile.SystemClock()
	}
	return &Builder{
		session:    session,
		controller: controller,
		candidates: candidates,
		refiller:   refiller,
		clock:      clock,
		logger:     slog.Default(),
		byID:       make(map[string]generator.Item),
		fps:        make(map[string]bool),
	}
}

// Next returns the next n feed items, extending the feed as needed. Crossing
// a checkpoint position during cold start appends a fresh batch filtered by
// the phase current at that position.
func (b *Builder) Next(n int) ([]generator.Item, error) {
	if n <= 0 {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]generator.Item, 0, n)
	for len(out) < n {
		if b.served >= len(b.items) {
			if err := b.extendLocked(); err != nil {
				return out, err
			}
			if b.served >= len(b.items) {
				break // no candidates available right now
			}
		}
		out = append(out, b.items[b.served])
		b.served++

		if coldstart.IsCheckpoint(b.served) && !b.session.Snapshot().ColdStartComplete {
			if err := b.extendLocked(); err != nil {
				b.logger.Warn("checkpoint extension failed", "position", b.served, "error", err)
			}
		}
	}
	return out, nil
}

// RecordOutcome applies an answer or skip for a previously served item,
// resolving its topic labels from the feed.
func (b *Builder) RecordOutcome(itemID string, outcome profile.Outcome, timeSpentMs int64) error {
	b.mu.Lock()
	it, ok := b.byID[itemID]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("item %s is not part of the feed", itemID)
	}

	if err := b.session.Apply(itemID, it.Topic, it.Subtopic, it.Branch, outcome, timeSpentMs); err != nil {
		return err
	}
	if snap := b.session.Snapshot(); !snap.ColdStartComplete && coldstart.Complete(snap.TotalAnswered) {
		if err := b.session.MarkColdStartComplete(); err != nil {
			return err
		}
		b.logger.Info("cold start complete", "user", b.session.UserID(), "answered", snap.TotalAnswered)
	}
	return nil
}

// extendLocked appends a batch of fresh, eligible, not-already-present items.
func (b *Builder) extendLocked() error {
	p := b.session.Snapshot()

	stored, err := b.candidates.ListCandidates(candidatePull)
	if err != nil {
		return fmt.Errorf("listing candidates: %w", err)
	}

	fresh := make([]generator.Item, 0, len(stored))
	for _, it := range stored {
		if fp := it.Fingerprint(); !b.fps[fp] {
			fresh = append(fresh, it)
		}
	}

	if len(fresh) < lowWaterMark && b.refiller != nil {
		if err := b.refiller.RequestRefill(fmt.Sprintf("fresh candidates low (%d)", len(fresh))); err != nil {
			b.logger.Warn("refill request failed", "error", err)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	var batch []generator.Item
	if coldstart.Complete(p.TotalAnswered) {
		// The steady-state weight floor still applies; scoring only ranks
		// what the eligibility filter lets through.
		eligible := make([]generator.Item, 0, len(fresh))
		for _, it := range fresh {
			if b.controller.Eligible(p, it) {
				eligible = append(eligible, it)
			}
		}
		batch = scoring.Select(p, eligible, b.clock.Now(), batchSize)
	} else {
		batch = b.controller.SelectBatch(p, fresh, batchSize)
	}
	if len(batch) == 0 {
		return nil
	}

	batch = reorderForDiversity(b.feedTailTopics(), batch)
	for _, it := range batch {
		b.items = append(b.items, it)
		b.byID[it.ID] = it
		b.fps[it.Fingerprint()] = true
	}
	return nil
}

// feedTailTopics returns the topics of the last items already in the feed,
// newest last, enough to evaluate the consecutive-topic constraint.
func (b *Builder) feedTailTopics() []string {
	start := len(b.items) - maxConsecutive
	if start < 0 {
		start = 0
	}
	topics := make([]string, 0, maxConsecutive)
	for _, it := range b.items[start:] {
		topics = append(topics, it.Topic)
	}
	return topics
}

// reorderForDiversity arranges the batch so no topic appears more than
// maxConsecutive times in a row, given the feed tail that precedes it.
// Violating items are deferred to a later slot, never dropped; if every
// remaining item violates, the constraint yields.
func reorderForDiversity(tail []string, batch []generator.Item) []generator.Item {
	remaining := append([]generator.Item(nil), batch...)
	out := make([]generator.Item, 0, len(batch))
	recent := append([]string(nil), tail...)

	streakOf := func(topic string) int {
		n := 0
		for i := len(recent) - 1; i >= 0 && recent[i] == topic; i-- {
			n++
		}
		return n
	}

	for len(remaining) > 0 {
		idx := -1
		for i, it := range remaining {
			if streakOf(it.Topic) < maxConsecutive {
				idx = i
				break
			}
		}
		if idx == -1 {
			idx = 0 // everything violates; take the head rather than stall
		}
		it := remaining[idx]
		remaining = append(remaining[:idx], remaining[idx+1:]...)
		out = append(out, it)
		recent = append(recent, it.Topic)
	}
	return out
}
