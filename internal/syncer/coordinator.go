// Package syncer keeps the local profile and the remote profile store
// converged. A Coordinator owns the sync lifecycle for one user: the initial
// load decides whose copy wins, then periodic and event-driven pushes move
// local changes up, with conflicts resolved by merge-and-retry.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kalambet/quizfeed/internal/profile"
	"github.com/kalambet/quizfeed/internal/remote"
)

// State is the coordinator's lifecycle position. The initial load lands in
// one of two terminal modes, chosen by inspecting the profile it produced:
// StateReadEnabled while the weights are still all-default (later cycles may
// reconcile against the store again), StateWriteOnly once personalization
// signal exists — from then on the profile is only pushed, never re-read.
type State int

const (
	StateUninitialized State = iota
	StateInitialLoad
	StateReadEnabled
	StateWriteOnly
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialLoad:
		return "initial_load"
	case StateReadEnabled:
		return "read_enabled"
	case StateWriteOnly:
		return "write_only"
	}
	return "unknown"
}

// ErrValidation is returned when a profile fails the pre-push sanity checks.
// A profile that fails validation is never sent to the store.
var ErrValidation = errors.New("profile failed validation")

const (
	defaultInterval     = 5 * time.Minute
	defaultFlushTimeout = 5 * time.Second
)

// Coordinator drives sync for a single user session.
type Coordinator struct {
	userID  string
	session *profile.Session
	store   remote.Store

	interval     time.Duration
	flushTimeout time.Duration
	logger       *slog.Logger

	// group coalesces concurrent pushes for the user: a background event
	// landing while the periodic sync is in flight joins that flight
	// instead of racing it.
	group singleflight.Group

	state *stateBox
	dirty *dirtyFlag
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithInterval overrides the periodic sync interval.
func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.interval = d }
}

// WithFlushTimeout bounds how long Close waits for the final push.
func WithFlushTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.flushTimeout = d }
}

// WithLogger substitutes the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// New creates a Coordinator for the given user session and store client.
func New(userID string, session *profile.Session, store remote.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		userID:       userID,
		session:      session,
		store:        store,
		interval:     defaultInterval,
		flushTimeout: defaultFlushTimeout,
		logger:       slog.Default(),
		state:        &stateBox{},
		dirty:        &dirtyFlag{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State { return c.state.get() }

// MarkDirty records that local state has diverged from the last pushed
// version. Callers invoke it after every applied feed event.
func (c *Coordinator) MarkDirty() { c.dirty.set(true) }

// InitialLoad performs the one-time reconciliation between the local cache
// and the store. The mode it lands in depends on the profile that results:
// all-default weights keep reads enabled, any personalization signal flips
// the session to write-only. A store that cannot be reached leaves local
// state untouched and the push pending for the next trigger.
func (c *Coordinator) InitialLoad(ctx context.Context) error {
	c.state.set(StateInitialLoad)

	rp, err := c.store.Fetch(ctx, c.userID)
	switch {
	case errors.Is(err, remote.ErrNotFound):
		// New user from the store's point of view. Local state is
		// authoritative; seed the store with it.
		c.dirty.set(true)
		c.enterPostLoadState()
		if pushErr := c.Sync(ctx, "initial_seed"); pushErr != nil {
			c.logger.Warn("seeding remote profile failed", "user_id", c.userID, "error", pushErr)
		}
		return nil
	case err != nil:
		// Store unreachable. Keep running on local state; the dirty flag
		// makes the next trigger retry, and a conflict there routes
		// through the resolver's refetch.
		c.logger.Warn("initial load fetch failed, deferring reconciliation",
			"user_id", c.userID, "error", err)
		c.dirty.set(true)
		c.enterPostLoadState()
		return nil
	}

	local := c.session.Snapshot()
	switch {
	case rp.LastRefreshed > local.LastRefreshed:
		// Remote saw activity more recently than this device.
		c.session.Adopt(rp)
		c.logger.Info("adopted remote profile",
			"user_id", c.userID, "remote_version", rp.Version, "local_version", local.Version)
	case local.AllDefault() && !rp.AllDefault():
		// Local carries no signal but remote does. AllDefault cannot tell
		// a fresh profile from one that settled back to flat weights, so
		// this adoption is logged explicitly.
		c.session.Adopt(rp)
		c.logger.Info("adopted remote profile over all-default local",
			"user_id", c.userID, "remote_version", rp.Version)
	default:
		// Local wins; make sure the store catches up.
		c.dirty.set(true)
	}

	c.enterPostLoadState()
	if c.dirty.get() {
		if pushErr := c.Sync(ctx, "initial_reconcile"); pushErr != nil {
			c.logger.Warn("post-load push failed", "user_id", c.userID, "error", pushErr)
		}
	}
	return nil
}

// enterPostLoadState picks the terminal mode from the reconciled profile:
// all-default weights mean there is no personalization to protect yet, so
// reads stay enabled; any real signal moves the session to blind upserts.
func (c *Coordinator) enterPostLoadState() {
	if c.session.Snapshot().AllDefault() {
		c.state.set(StateReadEnabled)
	} else {
		c.state.set(StateWriteOnly)
	}
}

// Run executes the initial load and then pushes on the periodic interval
// until ctx is cancelled. On cancellation a final flush is attempted under
// the configured timeout.
func (c *Coordinator) Run(ctx context.Context) {
	if err := c.InitialLoad(ctx); err != nil {
		c.logger.Error("initial load", "user_id", c.userID, "error", err)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.flush()
			return
		case <-ticker.C:
			if !c.dirty.get() {
				continue
			}
			if err := c.Sync(ctx, "periodic"); err != nil {
				c.logger.Warn("periodic sync failed", "user_id", c.userID, "error", err)
			}
		}
	}
}

// NotifyBackground pushes immediately in response to the app moving to the
// background, when the process may be killed before the next tick.
func (c *Coordinator) NotifyBackground(ctx context.Context) error {
	if !c.dirty.get() {
		return nil
	}
	return c.Sync(ctx, "background")
}

// Logout pushes the final state before the session ends. The caller's ctx
// bounds the attempt; a logout abandoned mid-flight leaves local state
// intact for the next login's initial load to reconcile.
func (c *Coordinator) Logout(ctx context.Context) error {
	if !c.dirty.get() {
		return nil
	}
	return c.Sync(ctx, "logout")
}

// flush is the teardown push, bounded by flushTimeout so shutdown cannot
// hang on a dead store.
func (c *Coordinator) flush() {
	if !c.dirty.get() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.flushTimeout)
	defer cancel()
	if err := c.Sync(ctx, "teardown"); err != nil {
		c.logger.Warn("teardown flush failed", "user_id", c.userID, "error", err)
	}
}

// Sync validates and pushes the current snapshot. Concurrent calls for the
// same user coalesce into one flight. On version conflict the resolver
// merges and retries up to maxResolveAttempts times; local state is always
// retained when resolution fails.
func (c *Coordinator) Sync(ctx context.Context, reason string) error {
	_, err, _ := c.group.Do(c.userID, func() (interface{}, error) {
		return nil, c.syncOnce(ctx, reason)
	})
	return err
}

func (c *Coordinator) syncOnce(ctx context.Context, reason string) error {
	snap := c.session.Snapshot()
	if err := validate(snap); err != nil {
		return fmt.Errorf("refusing to push: %w", err)
	}

	push := snap.Clone()
	push.Version = snap.Version + 1
	err := c.store.Push(ctx, c.userID, push)
	if err == nil {
		c.session.SetVersion(push.Version)
		c.dirty.set(false)
		c.logger.Debug("profile pushed",
			"user_id", c.userID, "version", push.Version, "reason", reason)
		return nil
	}
	if !errors.Is(err, remote.ErrConflict) {
		return fmt.Errorf("pushing profile (%s): %w", reason, err)
	}

	merged, err := c.resolve(ctx, snap)
	if err != nil {
		return fmt.Errorf("resolving conflict (%s): %w", reason, err)
	}
	c.session.Adopt(merged)
	c.dirty.set(false)
	c.logger.Info("conflict resolved",
		"user_id", c.userID, "version", merged.Version, "reason", reason)
	return nil
}

// validate runs the pre-push sanity checks: every weight inside its bounds
// and counters non-negative. A corrupt local profile must never overwrite
// the store's copy.
func validate(p *profile.Profile) error {
	if p.TotalAnswered < 0 {
		return fmt.Errorf("%w: negative total answered", ErrValidation)
	}
	if p.Version < 0 {
		return fmt.Errorf("%w: negative version", ErrValidation)
	}
	for tname, t := range p.Topics {
		if !inBounds(t.Weight) {
			return fmt.Errorf("%w: topic %q weight %v out of bounds", ErrValidation, tname, t.Weight)
		}
		for sname, s := range t.Subtopics {
			if !inBounds(s.Weight) {
				return fmt.Errorf("%w: subtopic %q weight %v out of bounds", ErrValidation, sname, s.Weight)
			}
			for bname, b := range s.Branches {
				if !inBounds(b.Weight) {
					return fmt.Errorf("%w: branch %q weight %v out of bounds", ErrValidation, bname, b.Weight)
				}
			}
		}
	}
	return nil
}

func inBounds(w float64) bool {
	return w >= profile.MinWeight && w <= profile.MaxWeight
}

// stateBox and dirtyFlag are tiny mutex-guarded cells so the coordinator's
// public accessors stay race-free without threading a lock through every
// method.
type stateBox struct {
	mu sync.Mutex
	s  State
}

func (b *stateBox) get() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.s
}

func (b *stateBox) set(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.s = s
}

type dirtyFlag struct {
	mu sync.Mutex
	v  bool
}

func (f *dirtyFlag) get() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v
}

func (f *dirtyFlag) set(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.v = v
}
