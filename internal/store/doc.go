// Package store provides SQLite-backed durable storage for the pipeline.
//
// Tables:
//   - events: canonical deduplicated items, unique by external_id
//   - workflow_templates: one immutable template per event type
//   - processes: at most one per event, cascades with its event
//   - status_history: append-only audit trail per process
//
// # Patterns
//
// Idempotent writes: templates are inserted with ON CONFLICT DO NOTHING and
// duplicate events surface as ErrDuplicate so callers can branch to resync.
//
// Guarded transitions: a node change is a compare-and-set on current_node,
// committed together with its history entry. A lost race is ErrConflict.
//
// Listings never return nil slices and always carry a deterministic
// tie-break in ORDER BY.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Timestamps are stored as fixed-width UTC text so lexical order equals
// chronological order.
package store
