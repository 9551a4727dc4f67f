package sync

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/adsync/pkg/graph"
	"github.com/ajitpratap0/adsync/pkg/metrics"
	"github.com/ajitpratap0/adsync/pkg/store"
)

// PagesSpec is the content page registry: one row per page the user token
// can manage, carrying the page-scoped token and the linked Instagram
// business account.
var PagesSpec = store.TableSpec{
	Table: "pages",
	Columns: []string{
		"page_id", "name", "ig_user_id", "ig_username", "page_access_token",
	},
	ConflictKey: []string{"page_id"},
	TrackSeen:   true,
}

var pageFields = []string{
	"id", "name", "access_token", "instagram_business_account{id,username}",
}

// ImportPages discovers the pages the token manages and registers them,
// page token and Instagram link included. Posts syncs fan out over this
// registry and prefer the stored page token over the user token.
func (e *Engine) ImportPages(ctx context.Context) Result {
	log := e.Logger.With(zap.String("entity", "pages"))

	var res Result
	params := graph.Params{"fields": strings.Join(pageFields, ",")}
	pager := e.Client.GetPaged("me/accounts", params)

	for pager.Next(ctx) {
		item := pager.Item()

		id, ok := ToInt64(item["id"])
		if !ok {
			res.Skipped++
			continue
		}

		rec := store.Record{
			"page_id":           id,
			"name":              StrOrNil(item, "name"),
			"page_access_token": StrOrNil(item, "access_token"),
		}
		if ig, ok := item["instagram_business_account"].(map[string]interface{}); ok {
			if igID, ok := ToInt64(ig["id"]); ok {
				rec["ig_user_id"] = igID
			}
			rec["ig_username"] = StrOrNil(ig, "username")
		}

		if err := e.Repo.Upsert(ctx, PagesSpec, rec); err != nil {
			res.Failed++
			log.Warn("page upsert failed", zap.Error(err))
			continue
		}
		res.Saved++
	}

	if err := pager.Err(); err != nil {
		log.Error("page listing failed", zap.Error(err))
		res.Error = err.Error()
	}

	metrics.Records.WithLabelValues("pages", "saved").Add(float64(res.Saved))
	metrics.Records.WithLabelValues("pages", "skipped").Add(float64(res.Skipped))
	metrics.Records.WithLabelValues("pages", "failed").Add(float64(res.Failed))

	if res.OK() {
		log.Info("page import done",
			zap.Int("saved", res.Saved),
			zap.Int("skipped", res.Skipped))
	}
	return res
}
