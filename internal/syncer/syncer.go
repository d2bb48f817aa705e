package syncer

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/karuta-app/karuta/internal/remote"
	"golang.org/x/sync/errgroup"
)

// MetaLastSynced is the sync_meta key recording the last successful run.
const MetaLastSynced = "last_synced_at"

// defaultPushConcurrency bounds the concurrent per-record pushes in step 3.
const defaultPushConcurrency = 8

// Options configures a Syncer.
type Options struct {
	// Logger for run activity. Nil means a default stderr logger.
	Logger *log.Logger

	// PushConcurrency bounds concurrent per-record pushes (default 8).
	PushConcurrency int

	// Notify, when non-nil, receives run lifecycle events for an optional
	// observer such as the websocket event sink. Must not block.
	Notify func(event string, payload any)
}

// syncer implements the Syncer interface.
type syncer struct {
	local   LocalStore
	remote  RemoteStore
	logger  *log.Logger
	notify  func(event string, payload any)
	pushers int

	syncing atomic.Bool

	mu         sync.Mutex
	lastSynced time.Time
	lastErr    error
}

// New creates a Syncer over the given stores.
//
// The local store must be initialized (schema created) before the first run.
//
// Example:
//
//	s := syncer.New(localStore, remoteClient, syncer.Options{})
//	if _, err := s.Sync(ctx); err != nil {
//	    // configuration-class failure, worth telling the user about
//	}
func New(local LocalStore, rs RemoteStore, opts Options) Syncer {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if opts.PushConcurrency <= 0 {
		opts.PushConcurrency = defaultPushConcurrency
	}
	return &syncer{
		local:   local,
		remote:  rs,
		logger:  opts.Logger,
		notify:  opts.Notify,
		pushers: opts.PushConcurrency,
	}
}

// Sync implements Syncer.Sync.
func (s *syncer) Sync(ctx context.Context) (*Result, error) {
	// At most one run at a time. A rejected concurrent call is dropped,
	// not deferred.
	if !s.syncing.CompareAndSwap(false, true) {
		s.logger.Printf("sync already in progress, dropping request")
		return nil, nil
	}
	defer s.syncing.Store(false)

	// Step 1: resolve the active account. No account is not a failure.
	account, ok := s.remote.CurrentUser()
	if !ok {
		return nil, nil
	}

	start := time.Now()
	s.logger.Printf("sync started for account %s", account)
	s.event("sync_started", map[string]string{"account": account})

	result, err := s.run(ctx, account, start)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()

		s.logger.Printf("sync failed: %v", err)
		s.event("sync_failed", map[string]string{"account": account, "error": err.Error()})

		// Only configuration-class failures are worth interrupting the user
		// for; transient network trouble self-heals on the next trigger.
		if remote.IsConfigurationError(err) {
			return nil, fmt.Errorf("backend configuration problem: %w", err)
		}
		return nil, nil
	}

	s.mu.Lock()
	s.lastSynced = result.SyncedAt
	s.lastErr = nil
	s.mu.Unlock()

	s.logger.Printf("sync complete in %v: pushed %d/%d, pulled %d/%d",
		result.Duration.Round(time.Millisecond),
		result.VocabPushed, result.GrammarPushed,
		result.VocabPulled, result.GrammarPulled)
	s.event("sync_completed", result)

	return result, nil
}

// run executes steps 2-6 of a reconciliation run. Any failure aborts the
// remaining steps and leaves the local store as it was at the start of the
// failed step.
func (s *syncer) run(ctx context.Context, account string, start time.Time) (*Result, error) {
	// Step 2: snapshot the local store.
	vocab, err := s.local.AllVocab(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot local vocabulary: %w", err)
	}
	grammar, err := s.local.AllGrammar(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot local grammar: %w", err)
	}

	// Step 3: push every local record, concurrently, jointly awaited.
	// A pure push: whatever was created offline or right before login must
	// survive the pull that follows.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.pushers)
	for _, e := range vocab {
		g.Go(func() error {
			return s.remote.UpsertVocab(gctx, e)
		})
	}
	for _, e := range grammar {
		g.Go(func() error {
			return s.remote.UpsertGrammar(gctx, e)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("push failed: %w", err)
	}

	// Step 4: pull the full remote snapshot, post-push.
	pulledVocab, err := s.remote.FetchAllVocab(ctx)
	if err != nil {
		return nil, fmt.Errorf("pull failed: %w", err)
	}
	pulledGrammar, err := s.remote.FetchAllGrammar(ctx)
	if err != nil {
		return nil, fmt.Errorf("pull failed: %w", err)
	}

	// Step 5: merge the pulled snapshot into the local store. Additive by
	// ID - records present locally but absent remotely are kept.
	if err := s.local.UpsertVocab(ctx, pulledVocab); err != nil {
		return nil, fmt.Errorf("failed to merge vocabulary: %w", err)
	}
	if err := s.local.UpsertGrammar(ctx, pulledGrammar); err != nil {
		return nil, fmt.Errorf("failed to merge grammar: %w", err)
	}

	// Step 6: record the run.
	syncedAt := time.Now().UTC()
	if err := s.local.SetMeta(ctx, MetaLastSynced, syncedAt.Format(time.RFC3339)); err != nil {
		// Bookkeeping only; the merge already committed.
		s.logger.Printf("WARNING: failed to record last-synced timestamp: %v", err)
	}

	return &Result{
		Account:       account,
		VocabPushed:   len(vocab),
		GrammarPushed: len(grammar),
		VocabPulled:   len(pulledVocab),
		GrammarPulled: len(pulledGrammar),
		Duration:      time.Since(start),
		SyncedAt:      syncedAt,
	}, nil
}

// State implements Syncer.State.
func (s *syncer) State() State {
	if s.syncing.Load() {
		return StateSyncing
	}
	return StateIdle
}

// LastSynced implements Syncer.LastSynced.
func (s *syncer) LastSynced() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSynced, !s.lastSynced.IsZero()
}

// LastError implements Syncer.LastError.
func (s *syncer) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *syncer) event(name string, payload any) {
	if s.notify != nil {
		s.notify(name, payload)
	}
}
