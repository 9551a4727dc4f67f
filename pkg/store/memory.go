package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory implements Repository, CheckpointStore, and ScopeLister in process
// with the same coalesce-on-update semantics as Postgres. It backs tests and
// dry runs.
type Memory struct {
	mu          sync.Mutex
	tables      map[string]map[string]Record // table -> key -> row
	checkpoints map[string]time.Time         // entity|scope -> ts
	accounts    []AccountRef
	pages       []PageRef
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tables:      make(map[string]map[string]Record),
		checkpoints: make(map[string]time.Time),
	}
}

// SeedAccounts sets the ad account scopes ListAdAccounts returns.
func (m *Memory) SeedAccounts(refs []AccountRef) { m.accounts = refs }

// SeedPages sets the page scopes ListPages returns.
func (m *Memory) SeedPages(refs []PageRef) { m.pages = refs }

// rowKey renders the conflict key values of rec.
func rowKey(spec TableSpec, rec Record) string {
	parts := make([]string, 0, len(spec.ConflictKey))
	for _, k := range spec.ConflictKey {
		parts = append(parts, fmt.Sprintf("%v", rec[k]))
	}
	return strings.Join(parts, "|")
}

// Upsert mirrors the Postgres update policy: non-key columns keep the stored
// value when the incoming one is nil, Overwrite columns always take the
// incoming value.
func (m *Memory) Upsert(_ context.Context, spec TableSpec, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.tables[spec.Table]
	if !ok {
		rows = make(map[string]Record)
		m.tables[spec.Table] = rows
	}

	key := rowKey(spec, rec)
	existing, ok := rows[key]
	if !ok {
		row := make(Record, len(spec.Columns))
		for _, col := range spec.Columns {
			row[col] = rec[col]
		}
		if spec.TrackSeen {
			now := time.Now().UTC()
			row["first_seen_at"] = now
			row["last_seen_at"] = now
		}
		rows[key] = row
		return nil
	}

	for _, col := range spec.Columns {
		if spec.IsKey(col) {
			continue
		}
		if spec.IsOverwrite(col) {
			existing[col] = rec[col]
			continue
		}
		if v, ok := rec[col]; ok && v != nil {
			existing[col] = v
		}
	}
	if spec.TrackSeen {
		existing["last_seen_at"] = time.Now().UTC()
	}
	return nil
}

func matches(row Record, filter Record) bool {
	for k, want := range filter {
		if fmt.Sprintf("%v", row[k]) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

// HasAny reports whether any row matches the equality filter.
func (m *Memory) HasAny(_ context.Context, table string, filter Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.tables[table] {
		if matches(row, filter) {
			return true, nil
		}
	}
	return false, nil
}

// Int64Column returns the distinct int64 values of column for matching rows.
func (m *Memory) Int64Column(_ context.Context, table, column string, filter Record) (map[int64]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[int64]struct{})
	for _, row := range m.tables[table] {
		if !matches(row, filter) {
			continue
		}
		switch v := row[column].(type) {
		case int64:
			out[v] = struct{}{}
		case int:
			out[int64(v)] = struct{}{}
		}
	}
	return out, nil
}

// Rows returns a stable-ordered snapshot of a table, for assertions.
func (m *Memory) Rows(table string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.tables[table]))
	for k := range m.tables[table] {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		row := make(Record, len(m.tables[table][k]))
		for col, v := range m.tables[table][k] {
			row[col] = v
		}
		out = append(out, row)
	}
	return out
}

// GetLastSuccess reads a checkpoint, nil if absent.
func (m *Memory) GetLastSuccess(_ context.Context, entity, scopeKey string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ts, ok := m.checkpoints[entity+"|"+scopeKey]; ok {
		return &ts, nil
	}
	return nil, nil
}

// SetLastSuccess writes a checkpoint at UTC now.
func (m *Memory) SetLastSuccess(_ context.Context, entity, scopeKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkpoints[entity+"|"+scopeKey] = time.Now().UTC()
	return nil
}

// ListAdAccounts returns the seeded account scopes.
func (m *Memory) ListAdAccounts(_ context.Context) ([]AccountRef, error) {
	return m.accounts, nil
}

// ListPages returns the seeded page scopes, falling back to rows imported
// into the pages table so a dry run can chain import-pages into a posts sync.
func (m *Memory) ListPages(_ context.Context) ([]PageRef, error) {
	if len(m.pages) > 0 {
		return m.pages, nil
	}

	var refs []PageRef
	for _, row := range m.Rows("pages") {
		ref := PageRef{}
		if id, ok := row["page_id"].(int64); ok {
			ref.PageID = id
		}
		if ig, ok := row["ig_user_id"].(int64); ok {
			ref.IGUserID = ig
		}
		if tok, ok := row["page_access_token"].(string); ok {
			ref.AccessToken = tok
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
