package triage

import (
	"context"
	"log/slog"
	"time"

	"github.com/arlberg/triage/internal/model"
)

// ScheduleFunc is the batch scheduling entry point that middleware composes
// around.
type ScheduleFunc func(ctx context.Context, cases []model.TestCase, params model.RunParams) (string, error)

// Middleware wraps the scheduling entry point with cross-cutting behavior.
// It is passed in as configuration, there is no implicit instrumentation.
type Middleware func(next ScheduleFunc) ScheduleFunc

// chainMiddleware composes middleware so the first one passed is the
// outermost.
func chainMiddleware(base ScheduleFunc, mw ...Middleware) ScheduleFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		base = mw[i](base)
	}

	return base
}

// TimingMiddleware logs every batch submission with its ranking latency.
func TimingMiddleware(log *slog.Logger) Middleware {
	return func(next ScheduleFunc) ScheduleFunc {
		return func(ctx context.Context, cases []model.TestCase, params model.RunParams) (string, error) {
			start := time.Now()

			executionID, err := next(ctx, cases, params)
			if err != nil {
				log.Error("batch submission failed", "cases", len(cases), "error", err)
				return executionID, err
			}

			log.Info("batch submitted",
				"execution-id", executionID,
				"cases", len(cases),
				"strategy", params.Strategy,
				"duration", time.Since(start))

			return executionID, nil
		}
	}
}
