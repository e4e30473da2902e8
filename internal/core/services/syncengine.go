package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/repobrain/repobrain/internal/core/domain"
	"github.com/repobrain/repobrain/internal/core/ports/driven"
	"github.com/repobrain/repobrain/internal/core/ports/driving"
	"github.com/repobrain/repobrain/internal/logger"
)

// Ensure Engine implements the driving port.
var _ driving.SyncEngine = (*Engine)(nil)

// Engine defaults.
const (
	DefaultSyncInterval    = 5 * time.Minute
	DefaultMinRepoInterval = 2 * time.Minute
	DefaultWorkers         = 4
)

// EngineConfig tunes the scheduler.
type EngineConfig struct {
	// SyncInterval is the period between cycles (default 5 minutes).
	SyncInterval time.Duration

	// MinRepoInterval skips a connection whose last cycle started more
	// recently than this (default 2 minutes).
	MinRepoInterval time.Duration

	// Workers bounds how many connections sync in parallel (default 4).
	Workers int
}

// Engine is the long-running scheduler. One cycle per connection:
// reconcile, PR sweep, commit sweep, cursor advance.
type Engine struct {
	connections driven.ConnectionStore
	providers   driven.ProviderFactory
	workspaces  driven.WorkspaceFactory
	processor   driving.ChangeProcessor

	interval    time.Duration
	minInterval time.Duration
	workers     int

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	keyLocks   map[string]*sync.Mutex
	lastStart  map[string]time.Time
	lastSynced map[string]time.Time
}

// NewEngine creates a sync engine.
func NewEngine(
	connections driven.ConnectionStore,
	providers driven.ProviderFactory,
	workspaces driven.WorkspaceFactory,
	processor driving.ChangeProcessor,
	cfg EngineConfig,
) *Engine {
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	if cfg.MinRepoInterval <= 0 {
		cfg.MinRepoInterval = DefaultMinRepoInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Engine{
		connections: connections,
		providers:   providers,
		workspaces:  workspaces,
		processor:   processor,
		interval:    cfg.SyncInterval,
		minInterval: cfg.MinRepoInterval,
		workers:     cfg.Workers,
		keyLocks:    make(map[string]*sync.Mutex),
		lastStart:   make(map[string]time.Time),
		lastSynced:  make(map[string]time.Time),
	}
}

// Start runs the scheduler loop until the context is cancelled or Stop is
// called. The first cycle runs immediately.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("%w: engine already running", domain.ErrAlreadyExists)
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		close(e.done)
	}()

	logger.Info("sync engine started (interval %s, %d workers)", e.interval, e.workers)

	e.runCycle(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("sync engine stopping")
			return nil
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

// Stop cancels the loop and waits for in-flight cycles to finish.
func (e *Engine) Stop() error {
	e.mu.Lock()
	cancel, done, running := e.cancel, e.done, e.running
	e.mu.Unlock()

	if !running {
		return nil
	}
	cancel()
	<-done
	return nil
}

// runCycle sweeps every auto-sync connection through a bounded worker pool.
func (e *Engine) runCycle(ctx context.Context) {
	records, err := e.connections.All(ctx)
	if err != nil {
		logger.Error("listing connections: %v", err)
		return
	}

	work := make(chan domain.ConnectionRecord)
	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for conn := range work {
				if _, err := e.syncOne(ctx, conn.RepoKey, false); err != nil {
					logger.Warn("sync cycle for %s: %v", conn.RepoKey, err)
				}
			}
		}()
	}

	for _, conn := range records {
		if !conn.AutoSyncEnabled {
			continue
		}
		select {
		case <-ctx.Done():
			// Stop feeding; in-flight cycles drain to a safe point.
			close(work)
			wg.Wait()
			return
		case work <- conn:
		}
	}
	close(work)
	wg.Wait()
}

// TriggerOne forces a cycle for one connection out of schedule, ignoring the
// min-interval. It serialises behind any in-flight cycle for the same key.
func (e *Engine) TriggerOne(ctx context.Context, repoKey string) (*driving.CycleResult, error) {
	if _, err := e.connections.Get(ctx, repoKey); err != nil {
		return nil, err
	}
	return e.syncOne(ctx, repoKey, true)
}

// keyLock returns the per-key cycle lock.
func (e *Engine) keyLock(normKey string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.keyLocks[normKey]
	if !ok {
		lock = &sync.Mutex{}
		e.keyLocks[normKey] = lock
	}
	return lock
}

// syncOne runs one per-connection cycle. Cycles for the same key never
// overlap; a scheduled cycle inside the min-interval is skipped.
func (e *Engine) syncOne(ctx context.Context, repoKey string, force bool) (*driving.CycleResult, error) {
	normKey := domain.NormaliseRepoKey(repoKey)

	lock := e.keyLock(normKey)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	last, seen := e.lastStart[normKey]
	if !force && seen && time.Since(last) < e.minInterval {
		e.mu.Unlock()
		return &driving.CycleResult{RepoKey: repoKey}, nil
	}
	e.lastStart[normKey] = time.Now()
	e.mu.Unlock()

	// The record is re-read under the lock so a concurrent disconnect wins.
	conn, err := e.connections.Get(ctx, repoKey)
	if err != nil {
		return nil, err
	}

	result := &driving.CycleResult{RepoKey: conn.RepoKey}

	workspace, err := e.workspaces.New(ctx, conn.WorkspaceEndpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting workspace: %w", err)
	}

	// Reconciliation: a vanished remote document retires the connection
	// before any provider call is made.
	_, found, err := workspace.DocumentExists(ctx, conn.DocumentTitle)
	if err != nil {
		return nil, fmt.Errorf("probing workspace: %w", err)
	}
	if !found {
		logger.Info("remote document for %s is gone, removing connection", conn.RepoKey)
		if err := e.connections.Delete(ctx, conn.RepoKey); err != nil {
			return nil, fmt.Errorf("removing connection: %w", err)
		}
		result.Deleted = true
		return result, nil
	}

	owner, name, err := domain.SplitRepoKey(conn.RepoKey)
	if err != nil {
		return nil, err
	}
	provider := e.providers.New(ctx, conn.Credential)

	highest, prFailed := e.sweepPRs(ctx, provider, conn, owner, name, result)
	commitFailed := e.sweepCommits(ctx, provider, conn, owner, name, result)

	// lastProcessedPR advances to the last fully-processed PR even on a
	// partial sweep. lastSyncedAt is the commit cursor: it only advances
	// when every unit succeeded and the cycle was not cancelled, so a
	// failed or interrupted batch stays above the next sweep's lower
	// bound and is retried.
	update := domain.CursorUpdate{}
	if highest > 0 {
		update.LastProcessedPR = &highest
	}
	if ctx.Err() == nil && !prFailed && !commitFailed {
		now := time.Now().UTC()
		update.LastSyncedAt = &now
		e.mu.Lock()
		e.lastSynced[normKey] = now
		e.mu.Unlock()
	}
	if update.LastProcessedPR != nil || update.LastSyncedAt != nil {
		// The write must land even when the cycle was cancelled mid-sweep.
		if err := e.connections.UpdateCursor(context.WithoutCancel(ctx), conn.RepoKey, update); err != nil {
			return result, fmt.Errorf("advancing cursor: %w", err)
		}
	}

	return result, nil
}

// sweepPRs processes merged PRs in ascending order. It returns the highest
// number fully processed (or 0) and whether any unit failed.
func (e *Engine) sweepPRs(ctx context.Context, provider driven.Provider, conn *domain.ConnectionRecord, owner, name string, result *driving.CycleResult) (highest int, failed bool) {
	since := 0
	if conn.LastProcessedPR != nil {
		since = *conn.LastProcessedPR
	}

	prs, err := provider.ListMergedPRsSince(ctx, owner, name, since)
	if err != nil {
		logger.Warn("listing merged PRs for %s: %v", conn.RepoKey, err)
		return 0, true
	}

	for _, pr := range prs {
		if ctx.Err() != nil {
			break
		}
		if err := e.processor.OnPullRequest(ctx, conn, pr.Number); err != nil {
			logger.Warn("processing PR #%d in %s: %v", pr.Number, conn.RepoKey, err)
			return highest, true
		}
		highest = pr.Number
		result.PRsProcessed = append(result.PRsProcessed, pr.Number)
	}
	return highest, false
}

// sweepCommits judges recent direct commits, reporting whether the sweep
// failed. The first-ever sweep is skipped so a fresh connection does not
// replay its whole history.
func (e *Engine) sweepCommits(ctx context.Context, provider driven.Provider, conn *domain.ConnectionRecord, owner, name string, result *driving.CycleResult) (failed bool) {
	if conn.LastSyncedAt == nil {
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	commits, err := provider.ListCommits(ctx, owner, name, "main", *conn.LastSyncedAt)
	if err != nil {
		logger.Warn("listing commits for %s: %v", conn.RepoKey, err)
		return true
	}

	// Merge commits are covered by the PR sweep.
	direct := make([]domain.Commit, 0, len(commits))
	for _, commit := range commits {
		if strings.HasPrefix(commit.Message, "Merge ") {
			continue
		}
		direct = append(direct, commit)
	}
	if len(direct) > maxCommitBatch {
		direct = direct[:maxCommitBatch]
	}
	if len(direct) == 0 {
		return false
	}

	// ListCommits returns newest first; the processor wants newest last.
	for i, j := 0, len(direct)-1; i < j; i, j = i+1, j-1 {
		direct[i], direct[j] = direct[j], direct[i]
	}

	result.CommitsScanned = len(direct)
	for _, commit := range direct {
		result.CommitSHAs = append(result.CommitSHAs, commit.SHA)
	}
	if err := e.processor.OnCommits(ctx, conn, direct); err != nil {
		logger.Warn("processing commits in %s: %v", conn.RepoKey, err)
		return true
	}
	result.Significant = true
	return false
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() driving.EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	times := make(map[string]time.Time, len(e.lastSynced))
	for key, t := range e.lastSynced {
		times[key] = t
	}

	connected := 0
	if records, err := e.connections.All(context.Background()); err == nil {
		connected = len(records)
	}

	return driving.EngineStatus{
		Running:        e.running,
		ConnectedRepos: connected,
		SyncInterval:   e.interval,
		LastSyncTimes:  times,
	}
}
