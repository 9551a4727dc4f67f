package sync

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/adsync/pkg/logger"
	"github.com/ajitpratap0/adsync/pkg/metrics"
)

// Job runs one scope's sync work and returns its result. Implementations
// construct their own graph client; clients are never shared across workers.
type Job func(ctx context.Context, scope Scope) Result

// RunAll fans out one job per scope over a bounded worker pool and returns
// every scope's Result (indexed by submission order) plus a summary.
// Submission follows scope order; completion order is not guaranteed and
// does not need to be, since scopes are independent under the store's
// unique-key upserts.
//
// A panic or scope-level error in one job counts that scope as failed
// without disturbing sibling workers; the run always completes and reports.
func RunAll(ctx context.Context, log *zap.Logger, name string, scopes []Scope, workers int, job Job) ([]Result, Summary) {
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(scopes))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, scope := range scopes {
		wg.Add(1)
		go func(idx int, s Scope) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			metrics.ActiveWorkers.Inc()
			defer metrics.ActiveWorkers.Dec()

			defer func() {
				if r := recover(); r != nil {
					results[idx] = Result{Error: fmt.Sprintf("job crashed: %v", r)}
					log.Error("scope job crashed",
						zap.String("run", name),
						zap.String("scope", s.Key),
						zap.Any("panic", r))
				}
			}()

			// Downstream layers (storage, ad-hoc logging) read these keys
			// via logger.WithContext.
			jobCtx := context.WithValue(ctx, logger.ScopeKey, s.Key)
			jobCtx = context.WithValue(jobCtx, logger.EntityKey, name)
			jobCtx = context.WithValue(jobCtx, logger.JobIDKey, fmt.Sprintf("%s-%d", name, idx))

			results[idx] = job(jobCtx, s)
		}(i, scope)
	}

	wg.Wait()

	var summary Summary
	for i := range results {
		if results[i].OK() {
			summary.OK++
			metrics.Scopes.WithLabelValues(name, "ok").Inc()
		} else {
			summary.Failed++
			metrics.Scopes.WithLabelValues(name, "failed").Inc()
		}
	}

	log.Info("run finished",
		zap.String("run", name),
		zap.Int("ok", summary.OK),
		zap.Int("failed", summary.Failed))

	return results, summary
}
