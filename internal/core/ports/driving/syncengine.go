package driving

import (
	"context"
	"time"
)

// CycleResult summarises one per-connection sync cycle.
type CycleResult struct {
	RepoKey        string
	Deleted        bool // connection removed because the remote document is gone
	PRsProcessed   []int
	CommitSHAs     []string
	CommitsScanned int
	Significant    bool
}

// EngineStatus is the scheduler's public state snapshot.
type EngineStatus struct {
	Running        bool
	ConnectedRepos int
	SyncInterval   time.Duration
	LastSyncTimes  map[string]time.Time
}

// SyncEngine is the long-running scheduler that keeps every connection's
// engineering brain in step with its repository.
type SyncEngine interface {
	// Start runs the scheduler loop until the context is cancelled or Stop
	// is called. The first cycle runs immediately.
	Start(ctx context.Context) error

	// Stop cancels the loop and waits for in-flight cycles to reach a safe
	// point.
	Stop() error

	// TriggerOne forces a cycle for one connection out of schedule. If a
	// cycle for the key is in flight the call waits for it to finish first.
	TriggerOne(ctx context.Context, repoKey string) (*CycleResult, error)

	// Status returns a snapshot of the engine state.
	Status() EngineStatus
}
