package sync

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/adsync/pkg/graph"
	"github.com/ajitpratap0/adsync/pkg/metrics"
	"github.com/ajitpratap0/adsync/pkg/store"
)

// AdAccountsSpec is the ad account registry table.
var AdAccountsSpec = store.TableSpec{
	Table: "ad_accounts",
	Columns: []string{
		"ad_account_id", "name", "currency", "account_creation_date",
		"timezone", "account_status", "portfolio_id",
	},
	ConflictKey: []string{"ad_account_id"},
	TrackSeen:   true,
}

var adAccountFields = []string{
	"account_id", "id", "name", "currency",
	"timezone_name", "created_time", "account_status",
}

// businessAccountEdges lists both ownership edges an account can appear on.
// The same account can show up on both; the seen set keeps one upsert each.
var businessAccountEdges = []string{"client_ad_accounts", "owned_ad_accounts"}

// ImportAdAccounts discovers the ad accounts reachable from a business and
// registers them under the given portfolio. Unlike entity syncs this is
// always a full walk; the account registry is small.
func (e *Engine) ImportAdAccounts(ctx context.Context, businessID, portfolioID int64) Result {
	log := e.Logger.With(
		zap.String("entity", "ad_accounts"),
		zap.Int64("business_id", businessID))

	var res Result
	seen := make(map[int64]struct{})

	for _, edge := range businessAccountEdges {
		params := graph.Params{"fields": strings.Join(adAccountFields, ",")}
		pager := e.Client.GetPaged(fmt.Sprintf("%d/%s", businessID, edge), params)

		for pager.Next(ctx) {
			item := pager.Item()

			id, ok := adAccountID(item)
			if !ok {
				res.Skipped++
				continue
			}
			if _, dup := seen[id]; dup {
				res.Skipped++
				continue
			}
			seen[id] = struct{}{}

			rec := store.Record{
				"ad_account_id":  id,
				"name":           StrOrNil(item, "name"),
				"currency":       StrOrNil(item, "currency"),
				"timezone":       StrOrNil(item, "timezone_name"),
				"account_status": FloatOrNil(item["account_status"]),
				"portfolio_id":   portfolioID,
			}
			if t, ok := ParseMetaTime(Str(item, "created_time")); ok {
				rec["account_creation_date"] = t
			}

			if err := e.Repo.Upsert(ctx, AdAccountsSpec, rec); err != nil {
				res.Failed++
				log.Warn("ad account upsert failed", zap.Error(err))
				continue
			}
			res.Saved++
		}

		if err := pager.Err(); err != nil {
			log.Error("ad account listing failed", zap.String("edge", edge), zap.Error(err))
			res.Error = err.Error()
			break
		}
	}

	metrics.Records.WithLabelValues("ad_accounts", "saved").Add(float64(res.Saved))
	metrics.Records.WithLabelValues("ad_accounts", "skipped").Add(float64(res.Skipped))
	metrics.Records.WithLabelValues("ad_accounts", "failed").Add(float64(res.Failed))

	if res.OK() {
		log.Info("ad account import done",
			zap.Int("saved", res.Saved),
			zap.Int("skipped", res.Skipped))
	}
	return res
}

// adAccountID resolves the numeric account id: account_id when present,
// otherwise the "act_" prefixed node id.
func adAccountID(item map[string]interface{}) (int64, bool) {
	if id, ok := ToInt64(item["account_id"]); ok {
		return id, true
	}
	raw := strings.TrimPrefix(Str(item, "id"), "act_")
	return ToInt64(raw)
}
