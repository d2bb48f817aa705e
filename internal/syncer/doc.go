// Package syncer implements the reconciliation core between the on-device
// store and the per-account hosted mirror.
//
// Overview
//
// The local store is the system of record while offline. Once an account
// session exists, the coordinator mirrors both collections to the hosted
// backend and merges the backend's view back, so that a study session on one
// device shows up on the next.
//
// Architecture
//
// Each run is a strict push-then-pull sequence over full snapshots:
//
//	Local store (sqlite)                     Hosted mirror (libsql)
//	     │  2. snapshot                               │
//	     ├──────────── 3. push (concurrent) ─────────▶│
//	     │◀─────────── 4. pull full snapshot ─────────┤
//	     │  5. additive merge by id                   │
//	     │  6. record last_synced_at                  │
//
// The merge never deletes: a record present locally but absent remotely
// (for example after a partially failed push) survives the run and is pushed
// again next time. Deletion happens only through explicit user action, never
// as a side effect of sync.
//
// Concurrency
//
// At most one run may be in flight; a second Sync call while syncing is
// dropped via an atomic check-and-set, not queued. Within a run, the
// per-record pushes of step 3 are issued through a bounded errgroup and
// jointly awaited, which is the only overlapped I/O in the package. Shared
// state (last-synced, last-error) changes only after all I/O for a step has
// completed.
//
// Failure semantics
//
// A failure in steps 3-5 aborts the rest of the run and leaves the local
// store as it was at the start of the failed step. Network failures are
// logged and retried on the next trigger; configuration-class backend
// failures (missing tables, access policy) are returned to the caller, since
// they are terminal until the external setup is fixed. A crash mid-run can
// leave the mirror ahead of the local store, which is acceptable: push is
// idempotent and the next run heals it.
package syncer
