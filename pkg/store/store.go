// Package store provides the repository layer: idempotent upserts keyed by
// each entity's natural unique constraint, lookup queries, and the sync
// checkpoint store. Two implementations exist: PostgreSQL (pgx) and an
// in-memory store used by tests and dry runs.
package store

import (
	"context"
	"time"
)

// Record is one normalized row bound for storage. Missing keys and nil
// values are equivalent: both mean "no incoming value" and never overwrite
// an existing non-null stored value.
type Record map[string]interface{}

// TableSpec declares how an entity's records are stored.
type TableSpec struct {
	// Table is the destination table name
	Table string
	// Columns is the stable, insertable column list
	Columns []string
	// ConflictKey is the natural unique key the upsert is idempotent on
	ConflictKey []string
	// Overwrite lists columns that take the incoming value unconditionally,
	// nulls included (daily metric snapshots). All other non-key columns
	// coalesce: an incoming null never clobbers a stored non-null.
	Overwrite []string
	// TrackSeen maintains first_seen_at / last_seen_at timestamps
	TrackSeen bool
}

// IsOverwrite reports whether col always takes the incoming value.
func (s TableSpec) IsOverwrite(col string) bool {
	for _, c := range s.Overwrite {
		if c == col {
			return true
		}
	}
	return false
}

// IsKey reports whether col is part of the conflict key.
func (s TableSpec) IsKey(col string) bool {
	for _, c := range s.ConflictKey {
		if c == col {
			return true
		}
	}
	return false
}

// Repository is the storage collaborator every sync writes through.
// Implementations must be safe for concurrent use from multiple workers;
// each upsert is its own atomic unit.
type Repository interface {
	// Upsert inserts or updates one record, idempotent on spec.ConflictKey.
	Upsert(ctx context.Context, spec TableSpec, rec Record) error

	// HasAny reports whether any row matches the equality filter.
	HasAny(ctx context.Context, table string, filter Record) (bool, error)

	// Int64Column returns the distinct int64 values of column for rows
	// matching the equality filter. Used for foreign-key existence checks.
	Int64Column(ctx context.Context, table, column string, filter Record) (map[int64]struct{}, error)
}

// CheckpointStore persists last-success timestamps keyed by
// (entity kind, scope). A checkpoint is written only after a sync completes
// without fatal error.
type CheckpointStore interface {
	GetLastSuccess(ctx context.Context, entity, scopeKey string) (*time.Time, error)
	SetLastSuccess(ctx context.Context, entity, scopeKey string) error
}

// AccountRef identifies one ad account scope to sync.
type AccountRef struct {
	AdAccountID   int64
	PortfolioCode string
}

// PageRef identifies one content page scope to sync. IGUserID is the linked
// Instagram business account, zero when the page has none.
type PageRef struct {
	PageID      int64
	IGUserID    int64
	AccessToken string // page-scoped token when present, else empty
}

// ScopeLister enumerates the scopes a run fans out over.
type ScopeLister interface {
	ListAdAccounts(ctx context.Context) ([]AccountRef, error)
	ListPages(ctx context.Context) ([]PageRef, error)
}
