package sync

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/ajitpratap0/adsync/pkg/graph"
	"github.com/ajitpratap0/adsync/pkg/store"
)

// Campaigns returns the campaign entity descriptor. Campaigns are the
// top-of-hierarchy entity for an account, so they also drive first-sync
// detection for themselves and everything below them.
func Campaigns() Entity {
	return Entity{
		Name: "campaigns",
		Path: func(s Scope) string { return ActPath(s.AccountID, "campaigns") },
		Fields: []string{
			"id", "name", "objective", "start_time", "status", "effective_status", "updated_time",
		},
		Spec: store.TableSpec{
			Table: "campaigns",
			Columns: []string{
				"campaign_id", "name", "objective", "start_time",
				"ad_account_id", "status", "effective_status", "real_status",
			},
			ConflictKey: []string{"campaign_id"},
			TrackSeen:   true,
		},
		CutoffFields:    []string{"updated_time", "start_time"},
		FirstSyncTable:  "campaigns",
		FirstSyncFilter: accountFilter,
		Transform: func(item map[string]interface{}, s Scope) (store.Record, error) {
			id, ok := ToInt64(item["id"])
			if !ok {
				return nil, nil
			}

			rec := store.Record{
				"campaign_id":      id,
				"name":             StrOrNil(item, "name"),
				"objective":        StrOrNil(item, "objective"),
				"ad_account_id":    s.AccountID,
				"status":           StrOrNil(item, "status"),
				"effective_status": StrOrNil(item, "effective_status"),
				"real_status":      RealStatus(Str(item, "effective_status")),
			}
			if t, ok := ParseMetaTime(Str(item, "start_time")); ok {
				rec["start_time"] = t
			}
			return rec, nil
		},
	}
}

// AdSets returns the ad set entity descriptor. Ad sets are fetched directly
// under the account (fewer requests than per-campaign walks); the campaign
// foreign key is validated against stored campaigns so a partial campaign
// sync cannot produce constraint failures.
func AdSets() Entity {
	return Entity{
		Name: "adsets",
		Path: func(s Scope) string { return ActPath(s.AccountID, "adsets") },
		Fields: []string{
			"id", "name", "status", "effective_status", "daily_budget",
			"start_time", "updated_time", "billing_event", "optimization_goal", "campaign_id",
		},
		Spec: store.TableSpec{
			Table: "adsets",
			Columns: []string{
				"adset_id", "campaign_id", "ad_account_id", "name", "status",
				"effective_status", "daily_budget", "start_time",
				"billing_event", "optimization_goal",
			},
			ConflictKey: []string{"adset_id"},
			TrackSeen:   true,
		},
		CutoffFields:    []string{"updated_time", "start_time"},
		FirstSyncTable:  "campaigns",
		FirstSyncFilter: accountFilter,
		RefCheck: &RefCheck{
			Table:     "campaigns",
			Column:    "campaign_id",
			Filter:    accountFilter,
			ItemField: "campaign_id",
		},
		Transform: func(item map[string]interface{}, s Scope) (store.Record, error) {
			id, ok := ToInt64(item["id"])
			if !ok {
				return nil, nil
			}
			campaignID, ok := ToInt64(item["campaign_id"])
			if !ok {
				// FK is NOT NULL in the schema
				return nil, nil
			}

			rec := store.Record{
				"adset_id":          id,
				"campaign_id":       campaignID,
				"ad_account_id":     s.AccountID,
				"name":              StrOrNil(item, "name"),
				"status":            StrOrNil(item, "status"),
				"effective_status":  StrOrNil(item, "effective_status"),
				"daily_budget":      FloatOrNil(item["daily_budget"]),
				"billing_event":     StrOrNil(item, "billing_event"),
				"optimization_goal": StrOrNil(item, "optimization_goal"),
			}
			if t, ok := ParseMetaTime(Str(item, "start_time")); ok {
				rec["start_time"] = t
			}
			return rec, nil
		},
	}
}

// Ads returns the ad entity descriptor, with creative thumbnail/post fields
// embedded in the same request.
func Ads() Entity {
	return Entity{
		Name: "ads",
		Path: func(s Scope) string { return ActPath(s.AccountID, "ads") },
		Fields: []string{
			"id", "name", "status", "effective_status", "adset_id", "campaign_id", "updated_time",
			"creative{id,thumbnail_url,image_url,object_story_id}",
		},
		Spec: store.TableSpec{
			Table: "ads",
			Columns: []string{
				"ad_id", "adset_id", "campaign_id", "name", "status",
				"effective_status", "thumbnail_url", "image_url", "post_id", "post_link",
			},
			ConflictKey: []string{"ad_id"},
			TrackSeen:   true,
		},
		CutoffFields:    []string{"updated_time"},
		FirstSyncTable:  "campaigns",
		FirstSyncFilter: accountFilter,
		RefCheck: &RefCheck{
			Table:     "adsets",
			Column:    "adset_id",
			Filter:    accountFilter,
			ItemField: "adset_id",
		},
		Transform: func(item map[string]interface{}, s Scope) (store.Record, error) {
			id, ok := ToInt64(item["id"])
			if !ok {
				return nil, nil
			}
			adsetID, ok := ToInt64(item["adset_id"])
			if !ok {
				return nil, nil
			}

			creative, _ := item["creative"].(map[string]interface{})

			rec := store.Record{
				"ad_id":            id,
				"adset_id":         adsetID,
				"name":             StrOrNil(item, "name"),
				"status":           StrOrNil(item, "status"),
				"effective_status": StrOrNil(item, "effective_status"),
			}
			if campaignID, ok := ToInt64(item["campaign_id"]); ok {
				rec["campaign_id"] = campaignID
			}
			if creative != nil {
				rec["thumbnail_url"] = StrOrNil(creative, "thumbnail_url")
				rec["image_url"] = StrOrNil(creative, "image_url")
				if storyID := Str(creative, "object_story_id"); storyID != "" {
					rec["post_id"] = storyID
					rec["post_link"] = "https://www.facebook.com/" + storyID
				}
			}
			return rec, nil
		},
	}
}

// Creatives returns the creative entity descriptor. Creatives are pulled via
// the account's ads with the creative object embedded; the object_story_spec
// is kept verbatim as JSON.
func Creatives() Entity {
	return Entity{
		Name: "creatives",
		Path: func(s Scope) string { return ActPath(s.AccountID, "ads") },
		Fields: []string{
			"id", "name",
			"creative{id,name,body,effective_object_story_id,instagram_permalink_url,link_url,thumbnail_url,video_id,object_story_spec}",
		},
		Spec: store.TableSpec{
			Table: "creative_ads",
			Columns: []string{
				"creative_id", "name", "body", "effective_object_story_id",
				"instagram_permalink_url", "link_url", "page_id",
				"thumbnail_url", "video_id", "creative_sourcing_spec",
			},
			ConflictKey: []string{"creative_id"},
			TrackSeen:   true,
		},
		FirstSyncTable:  "campaigns",
		FirstSyncFilter: accountFilter,
		// act/ads supports a filtering expression on the ad's updated_time,
		// so incremental creative syncs narrow server-side.
		ServerFilter: func(since time.Time, p graph.Params) {
			p["filtering"] = fmt.Sprintf(
				`[{"field":"updated_time","operator":"GREATER_THAN","value":%d}]`,
				since.Unix())
		},
		Transform: func(item map[string]interface{}, s Scope) (store.Record, error) {
			creative, _ := item["creative"].(map[string]interface{})
			if creative == nil {
				return nil, nil
			}
			id, ok := ToInt64(creative["id"])
			if !ok {
				return nil, nil
			}

			rec := store.Record{
				"creative_id":               id,
				"name":                      StrOrNil(creative, "name"),
				"body":                      StrOrNil(creative, "body"),
				"effective_object_story_id": StrOrNil(creative, "effective_object_story_id"),
				"instagram_permalink_url":   StrOrNil(creative, "instagram_permalink_url"),
				"link_url":                  StrOrNil(creative, "link_url"),
				"thumbnail_url":             StrOrNil(creative, "thumbnail_url"),
				"video_id":                  StrOrNil(creative, "video_id"),
			}

			if spec, ok := creative["object_story_spec"].(map[string]interface{}); ok {
				if pageID, ok := ToInt64(spec["page_id"]); ok {
					rec["page_id"] = pageID
				}
				if raw, err := json.Marshal(spec); err == nil {
					rec["creative_sourcing_spec"] = string(raw)
				}
			}
			return rec, nil
		},
	}
}

func accountFilter(s Scope) store.Record {
	return store.Record{"ad_account_id": s.AccountID}
}
