package sync

import (
	"time"

	"github.com/ajitpratap0/adsync/pkg/graph"
	"github.com/ajitpratap0/adsync/pkg/store"
)

// insightFields is the shared field list for all insight levels; the API
// returns only the id fields matching the requested level.
var insightFields = []string{
	"campaign_id", "adset_id", "ad_id", "date_start",
	"impressions", "reach", "spend", "frequency",
	"results", "cost_per_result", "actions", "cost_per_action_type",
}

// insightMetrics are daily snapshot columns: the day's value replaces the
// stored value unconditionally, nulls included. Insights restate history.
var insightMetrics = []string{
	"results", "cost_per_result", "spend",
	"impressions", "reach", "frequency", "checked_at",
}

// CampaignInsights returns the daily campaign-level insight descriptor.
func CampaignInsights() Entity {
	ent := insightEntity("campaign_insights", "campaign", "campaigns_daily_insights", "campaign_id")
	ent.RefCheck = &RefCheck{
		Table: "campaigns", Column: "campaign_id",
		Filter: accountFilter, ItemField: "campaign_id",
	}
	return ent
}

// AdSetInsights returns the daily ad-set-level insight descriptor.
func AdSetInsights() Entity {
	ent := insightEntity("adset_insights", "adset", "adset_daily_insights", "adset_id")
	ent.RefCheck = &RefCheck{
		Table: "adsets", Column: "adset_id",
		Filter: accountFilter, ItemField: "adset_id",
	}
	return ent
}

// AdInsights returns the daily ad-level insight descriptor. The ads table is
// not account-keyed, so ad-level rows skip the reference check and rely on
// the insert's own constraint handling.
func AdInsights() Entity {
	return insightEntity("ad_insights", "ad", "ad_daily_insights", "ad_id")
}

// insightEntity builds one insight level. All three levels share the account
// insights endpoint; level and idField are the only variation. The window is
// expressed server-side as a date preset, so insights never use client-side
// cutoff filtering and never consult checkpoints.
func insightEntity(name, level, table, idField string) Entity {
	return Entity{
		Name:   name,
		Path:   func(s Scope) string { return ActPath(s.AccountID, "insights") },
		Fields: insightFields,
		Spec: store.TableSpec{
			Table:       table,
			Columns:     append([]string{idField, "date"}, insightMetrics...),
			ConflictKey: []string{idField, "date"},
			Overwrite:   insightMetrics,
		},
		FirstSyncTable:  "campaigns",
		FirstSyncFilter: accountFilter,
		ExtraParams: func(opts Options, p graph.Params) {
			p["level"] = level
			p["time_increment"] = "1"
			p["date_preset"] = DatePresetForDays(opts.WindowDays)
		},
		Transform: func(item map[string]interface{}, s Scope) (store.Record, error) {
			id, ok := ToInt64(item[idField])
			if !ok {
				return nil, nil
			}
			date, ok := ParseDate(Str(item, "date_start"))
			if !ok {
				return nil, nil
			}

			results, cpr := PickResults(item)

			return store.Record{
				idField:           id,
				"date":            date,
				"results":         results,
				"cost_per_result": cpr,
				"spend":           FloatOrNil(item["spend"]),
				"impressions":     FloatOrNil(item["impressions"]),
				"reach":           FloatOrNil(item["reach"]),
				"frequency":       FloatOrNil(item["frequency"]),
				"checked_at":      time.Now().UTC(),
			}, nil
		},
	}
}
