// Package refill keeps the candidate pool topped up. Refill requests are
// queued as jobs in SQLite; a background worker claims them, asks the
// generation service for fresh items matching the user's current
// preferences, and stores the deduplicated results.
package refill

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/quizfeed/internal/generator"
	"github.com/kalambet/quizfeed/internal/profile"
	"github.com/kalambet/quizfeed/internal/storage"
)

// JobTypeRefill is the queue type for candidate refill jobs.
const JobTypeRefill = "feed_refill"

const (
	defaultPoll     = 500 * time.Millisecond
	targetBatch     = 50
	fanOutParts     = 2
	avoidTextsLimit = 200
)

// JobStore abstracts the queue and candidate operations the worker needs.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	SaveCandidates(items []generator.Item) (int, error)
	RecentQuestionTexts(limit int) ([]string, error)
}

// ProfileSource provides the preference snapshot a generation request is
// built from. Implemented by profile.Session.
type ProfileSource interface {
	Snapshot() *profile.Profile
}

// Queue is the enqueue side, used by the Requester.
type Queue interface {
	EnqueueJob(job storage.Job) error
	PendingJobs(jobType string) (int, error)
}

// Requester enqueues refill jobs. Requests arriving while one is already
// pending are dropped: a single job refills the whole pool, so queueing
// more only burns generation calls.
type Requester struct {
	queue  Queue
	logger *slog.Logger
}

// NewRequester creates a Requester over the given queue.
func NewRequester(queue Queue) *Requester {
	return &Requester{queue: queue, logger: slog.Default()}
}

type refillPayload struct {
	Reason string `json:"reason"`
}

// RequestRefill queues a refill unless one is already pending.
func (r *Requester) RequestRefill(reason string) error {
	pending, err := r.queue.PendingJobs(JobTypeRefill)
	if err != nil {
		return fmt.Errorf("checking pending refills: %w", err)
	}
	if pending > 0 {
		return nil
	}

	payload, err := json.Marshal(refillPayload{Reason: reason})
	if err != nil {
		return fmt.Errorf("marshaling refill payload: %w", err)
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        JobTypeRefill,
		PayloadJSON: string(payload),
		MaxAttempts: 3,
	}
	if err := r.queue.EnqueueJob(job); err != nil {
		return fmt.Errorf("enqueueing refill: %w", err)
	}
	r.logger.Debug("refill queued", "job_id", job.ID, "reason", reason)
	return nil
}

// Worker processes feed_refill jobs from the SQLite job queue.
type Worker struct {
	store   JobStore
	source  generator.Source
	profile ProfileSource
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, source generator.Source, prof ProfileSource, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = defaultPoll
	}
	return &Worker{
		store:   store,
		source:  source,
		profile: prof,
		poll:    pollInterval,
		logger:  slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single refill job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeRefill})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("refill failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload refillPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	avoid, err := w.store.RecentQuestionTexts(avoidTextsLimit)
	if err != nil {
		return fmt.Errorf("loading recent texts: %w", err)
	}

	snap := w.profile.Snapshot()
	req := generator.BuildRequest(snap, nil, avoid, targetBatch)

	items, err := w.generate(ctx, req)
	if err != nil {
		return fmt.Errorf("generating candidates: %w", err)
	}
	if len(items) == 0 {
		return fmt.Errorf("generation returned no items")
	}

	stored, err := w.store.SaveCandidates(items)
	if err != nil {
		return fmt.Errorf("storing candidates: %w", err)
	}
	w.logger.Info("candidates refilled",
		"job_id", job.ID, "reason", payload.Reason,
		"generated", len(items), "stored", stored)
	return nil
}

// generate splits the request into parallel parts so one slow generation
// call does not serialize the whole refill. Partial failure is tolerated as
// long as at least one part succeeds.
func (w *Worker) generate(ctx context.Context, req generator.Request) ([]generator.Item, error) {
	per := req.Count / fanOutParts
	if per == 0 {
		per = req.Count
	}

	var (
		mu    sync.Mutex
		items []generator.Item
	)
	g, gctx := errgroup.WithContext(ctx)
	parts := 0
	for remaining := req.Count; remaining > 0; remaining -= per {
		part := req
		part.Count = per
		if remaining < per {
			part.Count = remaining
		}
		parts++
		g.Go(func() error {
			batch, err := w.source.Generate(gctx, part)
			if err != nil {
				w.logger.Warn("generation part failed", "error", err)
				return nil
			}
			mu.Lock()
			items = append(items, batch...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(items) == 0 && parts > 0 {
		return nil, fmt.Errorf("all %d generation parts failed", parts)
	}
	return items, nil
}
