package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUpsertCoalescesNonKeyColumns(t *testing.T) {
	spec := TableSpec{
		Table:       "campaigns",
		Columns:     []string{"campaign_id", "name", "status"},
		ConflictKey: []string{"campaign_id"},
	}
	sql, args := buildUpsert(spec, Record{"campaign_id": int64(1), "name": "Launch"})

	assert.Equal(t,
		"INSERT INTO campaigns (campaign_id, name, status) VALUES ($1, $2, $3) "+
			"ON CONFLICT (campaign_id) DO UPDATE SET "+
			"name = COALESCE(EXCLUDED.name, campaigns.name), "+
			"status = COALESCE(EXCLUDED.status, campaigns.status)",
		sql)

	require.Len(t, args, 3)
	assert.Equal(t, int64(1), args[0])
	assert.Equal(t, "Launch", args[1])
	assert.Nil(t, args[2], "absent record keys bind as NULL")
}

func TestBuildUpsertOverwriteColumns(t *testing.T) {
	spec := TableSpec{
		Table:       "campaigns_daily_insights",
		Columns:     []string{"campaign_id", "date", "spend", "results"},
		ConflictKey: []string{"campaign_id", "date"},
		Overwrite:   []string{"spend", "results"},
	}
	sql, _ := buildUpsert(spec, Record{"campaign_id": int64(1), "date": "2026-02-01"})

	assert.Contains(t, sql, "ON CONFLICT (campaign_id, date)")
	assert.Contains(t, sql, "spend = EXCLUDED.spend")
	assert.Contains(t, sql, "results = EXCLUDED.results")
	assert.NotContains(t, sql, "COALESCE(EXCLUDED.spend")
}

func TestBuildUpsertTrackSeen(t *testing.T) {
	spec := TableSpec{
		Table:       "campaigns",
		Columns:     []string{"campaign_id", "name"},
		ConflictKey: []string{"campaign_id"},
		TrackSeen:   true,
	}
	sql, args := buildUpsert(spec, Record{"campaign_id": int64(1)})

	assert.Contains(t, sql, "first_seen_at, last_seen_at")
	assert.Contains(t, sql, "VALUES ($1, $2, now(), now())")
	assert.Contains(t, sql, "last_seen_at = now()")
	assert.NotContains(t, sql, "first_seen_at = now()", "first_seen_at is insert-only")
	assert.Len(t, args, 2)
}

func TestWhereClauseIsDeterministic(t *testing.T) {
	where, args := whereClause(Record{"b": 2, "a": 1, "c": 3}, 0)
	assert.Equal(t, " WHERE a = $1 AND b = $2 AND c = $3", where)
	assert.Equal(t, []interface{}{1, 2, 3}, args)

	where, args = whereClause(Record{}, 0)
	assert.Empty(t, where)
	assert.Nil(t, args)
}
