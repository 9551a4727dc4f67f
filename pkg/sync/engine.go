package sync

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/adsync/pkg/errors"
	"github.com/ajitpratap0/adsync/pkg/graph"
	"github.com/ajitpratap0/adsync/pkg/metrics"
	"github.com/ajitpratap0/adsync/pkg/store"
)

// Engine runs the generic sync algorithm for any Entity. One engine instance
// serves one worker; the client is never shared across workers.
type Engine struct {
	Client      *graph.Client
	Repo        store.Repository
	Checkpoints store.CheckpointStore
	Logger      *zap.Logger

	// Now is injectable for window tests; defaults to time.Now
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// resolveMode applies first-sync detection: ModeAuto becomes ModeFull when
// the scope has no stored top-of-hierarchy rows, ModeIncremental otherwise.
// A caller-pinned mode is never overridden except by a first sync, which
// always forces full.
func (e *Engine) resolveMode(ctx context.Context, ent Entity, scope Scope, requested Mode) Mode {
	if ent.FirstSyncTable == "" {
		if requested == ModeAuto {
			return ModeFull
		}
		return requested
	}

	has, err := e.Repo.HasAny(ctx, ent.FirstSyncTable, ent.FirstSyncFilter(scope))
	if err != nil {
		e.Logger.Warn("first-sync check failed, assuming full",
			zap.String("entity", ent.Name),
			zap.String("scope", scope.Key),
			zap.Error(err))
		return ModeFull
	}
	if !has {
		return ModeFull
	}
	if requested == ModeAuto {
		return ModeIncremental
	}
	return requested
}

// Sync fetches, transforms, and stores every item of one entity kind for one
// scope. Expected failures become the Result's Error field; nothing escapes
// the sync boundary except context cancellation and programming errors.
func (e *Engine) Sync(ctx context.Context, ent Entity, scope Scope, opts Options) Result {
	log := e.Logger.With(
		zap.String("entity", ent.Name),
		zap.String("scope", scope.Key),
		zap.String("portfolio", scope.Portfolio))

	mode := e.resolveMode(ctx, ent, scope, opts.Mode)

	until := e.now()
	cutoff := until.AddDate(0, 0, -opts.WindowDays)
	if mode == ModeIncremental && e.Checkpoints != nil {
		if cp, err := e.Checkpoints.GetLastSuccess(ctx, ent.Name, scope.Key); err == nil && cp != nil && cp.After(cutoff) {
			// The checkpoint narrows the window; the lookback only bounds it
			cutoff = cp.UTC()
		}
	}

	params := graph.Params{
		"fields": strings.Join(ent.Fields, ","),
	}
	params.SetInt("limit", opts.PageLimit)
	if ent.ExtraParams != nil {
		ent.ExtraParams(opts, params)
	}

	serverFiltered := false
	if mode == ModeIncremental && ent.ServerFilter != nil {
		ent.ServerFilter(cutoff, params)
		serverFiltered = true
	}

	// Parent keys for foreign-key validation. A failed lookup degrades to an
	// empty set; per-row insert errors still get counted.
	var parentKeys map[int64]struct{}
	if ent.RefCheck != nil {
		keys, err := e.Repo.Int64Column(ctx, ent.RefCheck.Table, ent.RefCheck.Column, ent.RefCheck.Filter(scope))
		if err != nil {
			log.Warn("parent key lookup failed, skipping reference checks", zap.Error(err))
		} else {
			parentKeys = keys
		}
	}

	log.Info("sync start",
		zap.String("mode", string(mode)),
		zap.Int("window_days", opts.WindowDays))

	var res Result
	pager := e.Client.GetPaged(ent.Path(scope), params)

	for pager.Next(ctx) {
		item := pager.Item()

		if mode == ModeIncremental && !serverFiltered && len(ent.CutoffFields) > 0 {
			if !withinCutoff(item, ent.CutoffFields, cutoff) {
				res.Skipped++
				continue
			}
		}

		rec, err := ent.Transform(item, scope)
		if err != nil {
			res.Failed++
			log.Warn("item transform failed", zap.Error(err))
			continue
		}
		if rec == nil {
			// Missing identifying fields; one malformed item never fails the sync
			res.Skipped++
			continue
		}

		if ent.RefCheck != nil && len(parentKeys) > 0 {
			if ref, ok := ToInt64(rec[ent.RefCheck.ItemField]); ok {
				if _, found := parentKeys[ref]; !found {
					res.MissingRefs++
					res.Skipped++
					continue
				}
			}
		}

		if err := e.Repo.Upsert(ctx, ent.Spec, rec); err != nil {
			res.Failed++
			log.Warn("upsert failed", zap.Error(err))
			continue
		}
		res.Saved++
	}

	if err := pager.Err(); err != nil {
		switch errors.TypeOf(err) {
		case errors.ErrorTypeObjectAccess, errors.ErrorTypePermission:
			log.Warn("scope skipped", zap.Error(err))
		default:
			log.Error("sync failed", zap.Error(err))
		}
		res.Error = err.Error()
	}

	metrics.Records.WithLabelValues(ent.Name, "saved").Add(float64(res.Saved))
	metrics.Records.WithLabelValues(ent.Name, "skipped").Add(float64(res.Skipped))
	metrics.Records.WithLabelValues(ent.Name, "failed").Add(float64(res.Failed))

	if res.OK() {
		if e.Checkpoints != nil {
			if err := e.Checkpoints.SetLastSuccess(ctx, ent.Name, scope.Key); err != nil {
				log.Warn("checkpoint write failed", zap.Error(err))
			}
		}
		log.Info("sync done",
			zap.Int("saved", res.Saved),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed))
	}

	return res
}

// withinCutoff reports whether any of the item's timestamp fields is at or
// after the cutoff. Items with no parseable timestamp pass through; dropping
// them silently would lose records that merely omit the field.
func withinCutoff(item map[string]interface{}, fields []string, cutoff time.Time) bool {
	sawAny := false
	for _, f := range fields {
		t, ok := ParseMetaTime(Str(item, f))
		if !ok {
			continue
		}
		sawAny = true
		if !t.Before(cutoff) {
			return true
		}
	}
	return !sawAny
}
