package triage

import (
	"log/slog"

	"github.com/arlberg/triage/internal/history"
	"github.com/arlberg/triage/internal/storage"
)

type Option func(s *Server)

func WithConfig(cfg Config) Option {
	return func(s *Server) {
		s.config = cfg
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithHook registers a hook. It must implement at least one of the listener
// interfaces or Start will fail.
func WithHook(h Hook) Option {
	return func(s *Server) {
		if s.hooks == nil {
			s.hooks = newHookManager(s.log)
		}
		s.hooks.all = append(s.hooks.all, h)
	}
}

// WithScheduledBatch submits the cases produced by a planner on a cron
// schedule.
func WithScheduledBatch(sb ScheduledBatch) Option {
	return func(s *Server) {
		s.schedules = append(s.schedules, sb)
	}
}

// WithHistory overrides the historical lookup used by the scoring engine and
// the adaptive ranking strategy. By default it is derived from previously
// stored outcomes.
func WithHistory(r history.Reader) Option {
	return func(s *Server) {
		s.history = r
	}
}

// WithExecutionStore passes in an externally owned execution record store,
// giving the caller control over record retention.
func WithExecutionStore(store *storage.ExecutionStore) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithMiddleware composes interceptors around the batch scheduling entry
// point, outermost first.
func WithMiddleware(mw ...Middleware) Option {
	return func(s *Server) {
		s.middleware = append(s.middleware, mw...)
	}
}
