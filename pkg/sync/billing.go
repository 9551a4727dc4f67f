package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/adsync/pkg/errors"
	"github.com/ajitpratap0/adsync/pkg/graph"
	"github.com/ajitpratap0/adsync/pkg/metrics"
	"github.com/ajitpratap0/adsync/pkg/store"
)

// billingFields is the base billing field set every account supports.
var billingFields = []string{
	"name", "currency", "amount_spent", "spend_cap",
	"balance", "account_status", "disable_reason",
}

// BillingOptions declares per-integration billing capabilities. Whether an
// account tier exposes daily_spend_limit is configured here, never discovered
// by catching field errors.
type BillingOptions struct {
	IncludeDailySpendLimit bool
}

// BillingSpec is the billing snapshot table. Monetary snapshot columns
// overwrite unconditionally; the snapshot is the current truth.
var BillingSpec = store.TableSpec{
	Table: "billing",
	Columns: []string{
		"ad_account_id", "currency", "amount_spent", "balance",
		"spend_cap", "daily_spend_limit", "account_status",
		"disable_reason", "checked_at",
	},
	ConflictKey: []string{"ad_account_id"},
	Overwrite: []string{
		"amount_spent", "balance", "spend_cap", "daily_spend_limit",
		"account_status", "disable_reason", "checked_at",
	},
}

// SyncBilling fetches the account node itself (no pagination) and stores one
// billing snapshot row. Money fields arrive in minor units and are normalized
// to major units using the account currency.
func (e *Engine) SyncBilling(ctx context.Context, scope Scope, opts BillingOptions) Result {
	log := e.Logger.With(
		zap.String("entity", "billing"),
		zap.String("scope", scope.Key))

	fields := billingFields
	if opts.IncludeDailySpendLimit {
		fields = append(append([]string{}, billingFields...), "daily_spend_limit")
	}

	params := graph.Params{"fields": strings.Join(fields, ",")}
	body, err := e.Client.Get(ctx, fmt.Sprintf("act_%d", scope.AccountID), params)
	if err != nil {
		switch errors.TypeOf(err) {
		case errors.ErrorTypeObjectAccess, errors.ErrorTypePermission:
			log.Warn("scope skipped", zap.Error(err))
		default:
			log.Error("billing fetch failed", zap.Error(err))
		}
		return Result{Error: err.Error()}
	}

	currency := Str(body, "currency")

	rec := store.Record{
		"ad_account_id":  scope.AccountID,
		"currency":       StrOrNil(body, "currency"),
		"amount_spent":   NormalizeMoney(body["amount_spent"], currency),
		"balance":        NormalizeMoney(body["balance"], currency),
		"spend_cap":      NormalizeMoney(body["spend_cap"], currency),
		"account_status": FloatOrNil(body["account_status"]),
		"disable_reason": FloatOrNil(body["disable_reason"]),
		"checked_at":     time.Now().UTC(),
	}
	if opts.IncludeDailySpendLimit {
		rec["daily_spend_limit"] = NormalizeMoney(body["daily_spend_limit"], currency)
	}

	var res Result
	if err := e.Repo.Upsert(ctx, BillingSpec, rec); err != nil {
		res.Failed++
		log.Warn("billing upsert failed", zap.Error(err))
	} else {
		res.Saved++
	}

	metrics.Records.WithLabelValues("billing", "saved").Add(float64(res.Saved))
	metrics.Records.WithLabelValues("billing", "failed").Add(float64(res.Failed))

	log.Info("billing done", zap.Int("saved", res.Saved))
	return res
}
