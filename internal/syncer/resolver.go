package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/quizfeed/internal/profile"
	"github.com/kalambet/quizfeed/internal/remote"
)

const maxResolveAttempts = 3

// resolve handles a rejected push: refetch the store's copy, merge the local
// snapshot into it, and push the merge claiming the next version. The store
// can race us again between refetch and push, so the loop runs up to
// maxResolveAttempts times. The returned profile is the merged state the
// session should adopt; on failure the caller keeps local state untouched.
func (c *Coordinator) resolve(ctx context.Context, local *profile.Profile) (*profile.Profile, error) {
	var lastErr error
	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		theirs, err := c.store.Fetch(ctx, c.userID)
		if err != nil {
			if errors.Is(err, remote.ErrNotFound) {
				// The conflicting row vanished between push and refetch.
				// Treat the store as empty and claim version 1.
				theirs = profile.New()
			} else {
				lastErr = fmt.Errorf("refetching during conflict: %w", err)
				continue
			}
		}

		merged := profile.Merge(local, theirs)
		merged.Version = theirs.Version + 1

		if err := c.store.Push(ctx, c.userID, merged); err != nil {
			if errors.Is(err, remote.ErrConflict) {
				c.logger.Debug("merge push lost another race",
					"user_id", c.userID, "attempt", attempt, "claimed_version", merged.Version)
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("pushing merged profile: %w", err)
		}
		return merged, nil
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", maxResolveAttempts, lastErr)
}
