package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ajitpratap0/adsync/pkg/errors"
	"github.com/ajitpratap0/adsync/pkg/logger"
)

// Postgres implements Repository, CheckpointStore, and ScopeLister on a pgx
// connection pool. The pool is the only process-wide shared resource; it is
// safe for concurrent checkout from multiple workers.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// PostgresConfig holds connection settings.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	ConnectTimeout time.Duration
}

// NewPostgres connects and pings the database.
func NewPostgres(ctx context.Context, cfg PostgresConfig, log *zap.Logger) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid database DSN")
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "database ping failed")
	}

	return &Postgres{pool: pool, logger: log}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Upsert inserts or updates one record, idempotent on spec.ConflictKey.
// Non-key columns coalesce on update so an incoming null never overwrites a
// stored non-null; columns listed in spec.Overwrite always take the incoming
// value.
func (p *Postgres) Upsert(ctx context.Context, spec TableSpec, rec Record) error {
	sql, args := buildUpsert(spec, rec)
	if _, err := p.pool.Exec(ctx, sql, args...); err != nil {
		// The context carries scope/entity/job keys set by the fan-out runner.
		logger.WithContext(ctx).Debug("upsert rejected",
			zap.String("table", spec.Table),
			zap.Error(err))
		return errors.Wrap(err, errors.ErrorTypeQuery,
			fmt.Sprintf("upsert into %s failed", spec.Table))
	}
	return nil
}

// buildUpsert renders the INSERT ... ON CONFLICT statement for one record.
// Argument order follows spec.Columns; absent record keys bind as NULL,
// which the coalesce update then ignores.
func buildUpsert(spec TableSpec, rec Record) (string, []interface{}) {
	cols := make([]string, 0, len(spec.Columns)+2)
	placeholders := make([]string, 0, len(spec.Columns)+2)
	args := make([]interface{}, 0, len(spec.Columns))

	for i, col := range spec.Columns {
		cols = append(cols, col)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, rec[col])
	}
	if spec.TrackSeen {
		cols = append(cols, "first_seen_at", "last_seen_at")
		placeholders = append(placeholders, "now()", "now()")
	}

	var sets []string
	for _, col := range spec.Columns {
		if spec.IsKey(col) {
			continue
		}
		if spec.IsOverwrite(col) {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		} else {
			sets = append(sets, fmt.Sprintf("%s = COALESCE(EXCLUDED.%s, %s.%s)", col, col, spec.Table, col))
		}
	}
	if spec.TrackSeen {
		sets = append(sets, "last_seen_at = now()")
	}

	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		spec.Table,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(spec.ConflictKey, ", "),
		strings.Join(sets, ", "),
	)
	return sql, args
}

// whereClause renders a deterministic equality filter. Keys are sorted so
// generated SQL is stable for logging and tests.
func whereClause(filter Record, argOffset int) (string, []interface{}) {
	if len(filter) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys))
	for i, k := range keys {
		conds = append(conds, fmt.Sprintf("%s = $%d", k, argOffset+i+1))
		args = append(args, filter[k])
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// HasAny reports whether any row matches the equality filter.
func (p *Postgres) HasAny(ctx context.Context, table string, filter Record) (bool, error) {
	where, args := whereClause(filter, 0)
	sql := fmt.Sprintf("SELECT 1 FROM %s%s LIMIT 1", table, where)

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeQuery, fmt.Sprintf("query on %s failed", table))
	}
	defer rows.Close()

	return rows.Next(), rows.Err()
}

// Int64Column returns the distinct int64 values of column for matching rows.
func (p *Postgres) Int64Column(ctx context.Context, table, column string, filter Record) (map[int64]struct{}, error) {
	where, args := whereClause(filter, 0)
	sql := fmt.Sprintf("SELECT DISTINCT %s FROM %s%s", column, table, where)

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, fmt.Sprintf("query on %s failed", table))
	}
	defer rows.Close()

	out := make(map[int64]struct{})
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "column scan failed")
		}
		out[v] = struct{}{}
	}
	return out, rows.Err()
}

// GetLastSuccess reads the checkpoint for (entity, scopeKey), nil if absent.
func (p *Postgres) GetLastSuccess(ctx context.Context, entity, scopeKey string) (*time.Time, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT last_success_at FROM sync_checkpoints WHERE entity = $1 AND scope_key = $2 LIMIT 1",
		entity, scopeKey)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "checkpoint read failed")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var ts *time.Time
	if err := rows.Scan(&ts); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "checkpoint scan failed")
	}
	return ts, nil
}

// SetLastSuccess writes the checkpoint for (entity, scopeKey) at UTC now.
func (p *Postgres) SetLastSuccess(ctx context.Context, entity, scopeKey string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO sync_checkpoints (entity, scope_key, last_success_at)
		 VALUES ($1, $2, now() AT TIME ZONE 'utc')
		 ON CONFLICT (entity, scope_key) DO UPDATE SET last_success_at = now() AT TIME ZONE 'utc'`,
		entity, scopeKey)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "checkpoint write failed")
	}
	return nil
}

// ListAdAccounts returns the ad account scopes a run fans out over, in
// stable portfolio/account order.
func (p *Postgres) ListAdAccounts(ctx context.Context) ([]AccountRef, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT a.ad_account_id, p.code
		 FROM ad_accounts a
		 JOIN portfolios p ON p.id = a.portfolio_id
		 ORDER BY p.code, a.ad_account_id`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "ad account listing failed")
	}
	defer rows.Close()

	var refs []AccountRef
	for rows.Next() {
		var ref AccountRef
		if err := rows.Scan(&ref.AdAccountID, &ref.PortfolioCode); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "ad account scan failed")
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// ListPages returns the content page scopes for posts syncs.
func (p *Postgres) ListPages(ctx context.Context) ([]PageRef, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT page_id, COALESCE(ig_user_id, 0), COALESCE(page_access_token, '')
		 FROM pages ORDER BY page_id`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "page listing failed")
	}
	defer rows.Close()

	var refs []PageRef
	for rows.Next() {
		var ref PageRef
		if err := rows.Scan(&ref.PageID, &ref.IGUserID, &ref.AccessToken); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "page scan failed")
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
