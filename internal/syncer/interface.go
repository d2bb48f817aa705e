// Package syncer reconciles the on-device store with the per-account hosted
// mirror so that, after a successful run, both contain the union of what
// either held before.
package syncer

import (
	"context"
	"time"

	"github.com/karuta-app/karuta/internal/deck"
)

// LocalStore is the slice of the on-device store the coordinator needs.
//
// Implementations must treat BulkUpsert* as an additive merge by ID: records
// present locally but absent from the batch are left alone. The coordinator
// relies on that to guarantee the local store only ever grows or updates,
// never shrinks, as a side effect of sync.
type LocalStore interface {
	// AllVocab returns the full vocabulary collection, newest first.
	AllVocab(ctx context.Context) ([]*deck.VocabularyEntry, error)

	// AllGrammar returns the full grammar collection, newest first.
	AllGrammar(ctx context.Context) ([]*deck.GrammarEntry, error)

	// UpsertVocab inserts or fully overwrites vocabulary entries by ID.
	UpsertVocab(ctx context.Context, entries []*deck.VocabularyEntry) error

	// UpsertGrammar inserts or fully overwrites grammar entries by ID.
	UpsertGrammar(ctx context.Context, entries []*deck.GrammarEntry) error

	// SetMeta records sync bookkeeping such as the last-synced timestamp.
	SetMeta(ctx context.Context, key, value string) error
}

// RemoteStore is the slice of the hosted backend the coordinator needs.
//
// All operations are scoped to the current account. Upserts without an active
// session must be silent no-ops; fetches must fail with the adapter's
// no-session error.
type RemoteStore interface {
	// CurrentUser returns the active account identifier, or false when no
	// session is attached.
	CurrentUser() (string, bool)

	// FetchAllVocab returns every vocabulary row for the current account.
	FetchAllVocab(ctx context.Context) ([]*deck.VocabularyEntry, error)

	// FetchAllGrammar returns every grammar row for the current account.
	FetchAllGrammar(ctx context.Context) ([]*deck.GrammarEntry, error)

	// UpsertVocab writes one full vocabulary record for the current account.
	UpsertVocab(ctx context.Context, e *deck.VocabularyEntry) error

	// UpsertGrammar writes one full grammar record for the current account.
	UpsertGrammar(ctx context.Context, g *deck.GrammarEntry) error
}

// State is the coordinator's lifecycle state.
type State int32

const (
	// StateIdle means no sync is running.
	StateIdle State = iota
	// StateSyncing means a run is in progress. At most one run may be in
	// this state at a time.
	StateSyncing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	default:
		return "unknown"
	}
}

// Result summarizes one successful reconciliation run.
type Result struct {
	Account       string        `json:"account"`
	VocabPushed   int           `json:"vocab_pushed"`
	GrammarPushed int           `json:"grammar_pushed"`
	VocabPulled   int           `json:"vocab_pulled"`
	GrammarPulled int           `json:"grammar_pulled"`
	Duration      time.Duration `json:"duration"`
	SyncedAt      time.Time     `json:"synced_at"`
}

// Syncer coordinates bidirectional reconciliation between the local store and
// the per-account hosted mirror.
//
// Each run pushes the full local snapshot first, then pulls the full remote
// snapshot and merges it into the local store additively. Push-before-pull is
// the key ordering decision: it closes the race where a record created while
// offline would otherwise be overwritten by a pull that doesn't yet know
// about it.
type Syncer interface {
	// Sync performs one reconciliation run.
	//
	// With no active account the call is a silent no-op: no store is touched,
	// no error is returned. A call while another run is in progress is
	// likewise dropped (not queued) and issues no network calls.
	//
	// On success the Result describes the run. A nil Result with a nil error
	// means the run was skipped (no account, or already syncing).
	//
	// Failures are logged; only configuration-class backend failures (missing
	// tables, access policy) are returned to the caller, since those are
	// terminal until the external setup is fixed. Transient network failures
	// return (nil, nil) and are retried on the next trigger.
	Sync(ctx context.Context) (*Result, error)

	// State returns the current lifecycle state.
	State() State

	// LastSynced returns when the last successful run finished, or false if
	// no run has succeeded in this process.
	LastSynced() (time.Time, bool)

	// LastError returns the most recent run failure, if any. Cleared by the
	// next successful run.
	LastError() error
}
