package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var campaignSpec = TableSpec{
	Table:       "campaigns",
	Columns:     []string{"campaign_id", "name", "status", "ad_account_id"},
	ConflictKey: []string{"campaign_id"},
}

func TestMemoryUpsertIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	rec := Record{"campaign_id": int64(1), "name": "Launch", "status": "ACTIVE", "ad_account_id": int64(9)}
	require.NoError(t, m.Upsert(ctx, campaignSpec, rec))
	require.NoError(t, m.Upsert(ctx, campaignSpec, rec))

	rows := m.Rows("campaigns")
	require.Len(t, rows, 1)
	assert.Equal(t, "Launch", rows[0]["name"])
}

func TestMemoryUpsertNilNeverClobbersStoredValue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, campaignSpec,
		Record{"campaign_id": int64(1), "name": "Launch", "status": "ACTIVE"}))
	require.NoError(t, m.Upsert(ctx, campaignSpec,
		Record{"campaign_id": int64(1), "name": nil, "status": "PAUSED"}))

	rows := m.Rows("campaigns")
	require.Len(t, rows, 1)
	assert.Equal(t, "Launch", rows[0]["name"], "nil keeps the stored value")
	assert.Equal(t, "PAUSED", rows[0]["status"], "present value replaces")
}

func TestMemoryUpsertOverwriteTakesNulls(t *testing.T) {
	spec := TableSpec{
		Table:       "campaigns_daily_insights",
		Columns:     []string{"campaign_id", "date", "spend"},
		ConflictKey: []string{"campaign_id", "date"},
		Overwrite:   []string{"spend"},
	}
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, spec,
		Record{"campaign_id": int64(1), "date": "2026-02-01", "spend": 12.5}))
	require.NoError(t, m.Upsert(ctx, spec,
		Record{"campaign_id": int64(1), "date": "2026-02-01", "spend": nil}))

	rows := m.Rows("campaigns_daily_insights")
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0]["spend"], "overwrite columns take the incoming value, nulls included")
}

func TestMemoryTrackSeen(t *testing.T) {
	spec := campaignSpec
	spec.TrackSeen = true

	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, spec, Record{"campaign_id": int64(1), "name": "A"}))
	rows := m.Rows("campaigns")
	require.Len(t, rows, 1)
	first := rows[0]["first_seen_at"]
	assert.NotNil(t, first)

	require.NoError(t, m.Upsert(ctx, spec, Record{"campaign_id": int64(1), "name": "B"}))
	rows = m.Rows("campaigns")
	assert.Equal(t, first, rows[0]["first_seen_at"], "first_seen_at is insert-only")
	assert.NotNil(t, rows[0]["last_seen_at"])
}

func TestMemoryHasAnyAndInt64Column(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, campaignSpec,
		Record{"campaign_id": int64(1), "ad_account_id": int64(9)}))
	require.NoError(t, m.Upsert(ctx, campaignSpec,
		Record{"campaign_id": int64(2), "ad_account_id": int64(9)}))
	require.NoError(t, m.Upsert(ctx, campaignSpec,
		Record{"campaign_id": int64(3), "ad_account_id": int64(7)}))

	has, err := m.HasAny(ctx, "campaigns", Record{"ad_account_id": int64(9)})
	require.NoError(t, err)
	assert.True(t, has)

	has, err = m.HasAny(ctx, "campaigns", Record{"ad_account_id": int64(42)})
	require.NoError(t, err)
	assert.False(t, has)

	keys, err := m.Int64Column(ctx, "campaigns", "campaign_id", Record{"ad_account_id": int64(9)})
	require.NoError(t, err)
	assert.Equal(t, map[int64]struct{}{1: {}, 2: {}}, keys)
}

func TestMemoryCheckpoints(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	ts, err := m.GetLastSuccess(ctx, "campaigns", "act_1")
	require.NoError(t, err)
	assert.Nil(t, ts, "no checkpoint before first success")

	require.NoError(t, m.SetLastSuccess(ctx, "campaigns", "act_1"))
	ts, err = m.GetLastSuccess(ctx, "campaigns", "act_1")
	require.NoError(t, err)
	require.NotNil(t, ts)

	other, err := m.GetLastSuccess(ctx, "campaigns", "act_2")
	require.NoError(t, err)
	assert.Nil(t, other, "checkpoints are scoped")
}
