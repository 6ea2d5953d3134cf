// Package runlock guards the sync loop against overlapping runs. A tick that
// fires while a previous run is still going acquires nothing and is skipped;
// manual triggers go through the same guard. The guard also stashes the most
// recent run summary for the operator surface.
package runlock

import "context"

// Guard is the run-in-progress gate. TryAcquire returns false when another
// run holds the lock.
type Guard interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error

	// SaveLastRun / LastRun stash the most recent sync summary as JSON.
	// LastRun reports false when no run has completed yet.
	SaveLastRun(ctx context.Context, v any) error
	LastRun(ctx context.Context, dest any) (bool, error)
}
