// Package triage ranks batches of independently generated test cases by
// multi-criteria value, executes them against an external executor under a
// bounded concurrency ceiling and cross-validates the results into a
// confidence scored report.
package triage

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/arlberg/triage/internal/history"
	"github.com/arlberg/triage/internal/model"
	"github.com/arlberg/triage/internal/rank"
	"github.com/arlberg/triage/internal/storage"
	"github.com/arlberg/triage/internal/validate"
)

// Reexport to allow library users to reference these types.

type TestCase = model.TestCase
type Step = model.Step
type RankedCase = model.RankedCase
type Outcome = model.Outcome
type RunParams = model.RunParams
type Report = model.Report
type ValidationReport = model.ValidationReport

// Executor drives a single test case against the target application. It is
// an external collaborator: the core never inspects how a case is executed,
// it only consumes the returned outcome.
//
// Execute must return exactly one outcome or an error. A returned error (or
// a panic) is recorded as an errored outcome for that case without affecting
// sibling cases.
type Executor interface {
	Execute(ctx context.Context, tc model.TestCase) (model.Outcome, error)
}

// Planner yields batches of test cases, e.g. for scheduled recurring runs.
type Planner interface {
	Plan(ctx context.Context) ([]model.TestCase, error)
}

type Server struct {
	config Config
	log    *slog.Logger

	executor Executor

	// store holds the execution records. After the initial pending record is
	// saved on submission, only the event loop writes to it.
	store   *storage.ExecutionStore
	history history.Reader

	db *storage.Storage

	validator  *validate.Validator
	strategies map[string]rank.Strategy
	fallback   rank.Strategy

	hooks      *hookManager
	middleware []Middleware
	schedule   ScheduleFunc

	// slots is the process-wide admission control: at most MaxConcurrent
	// case executions hold a slot at any instant, across all batches.
	slots *semaphore.Weighted

	schedules []ScheduledBatch
	cron      *cron.Cron

	reports sync.Map

	events         chan event
	runningBatches sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc

	started      chan struct{}
	shutdownOnce sync.Once
	httpServer   *http.Server
	port         int
}

// New configures a new Server. The ranking weights are validated here:
// invalid weights are a configuration error and fail construction.
func New(executor Executor, opts ...Option) (*Server, error) {
	if executor == nil {
		return nil, fmt.Errorf("executor must not be nil")
	}

	s := &Server{
		config:   DefaultConfig(),
		executor: executor,
		events:   make(chan event, 100),
		started:  make(chan struct{}),
	}

	for _, o := range opts {
		o(s)
	}

	if s.log == nil {
		s.log = slog.Default()
	}

	if s.store == nil {
		s.store = storage.NewExecutionStore()
	}

	db, err := storage.New(s.config.DatabaseFile, s.log)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	s.db = db

	if s.history == nil {
		s.history = db.History()
	}

	scorer, err := rank.NewScorer(s.config.Weights, s.config.Limits, s.history)
	if err != nil {
		return nil, err
	}

	weighted := rank.NewWeighted(scorer)

	s.strategies = map[string]rank.Strategy{
		rank.StrategyWeighted:   weighted,
		rank.StrategyDependency: rank.NewDependency(scorer),
		rank.StrategyAdaptive:   rank.NewAdaptive(scorer, s.history, s.config.Adaptive),
	}
	s.fallback = weighted

	s.validator = validate.New(s.config.AnomalyThreshold, s.log)

	if s.config.MaxConcurrent < 1 {
		s.config.MaxConcurrent = 1
	}
	s.slots = semaphore.NewWeighted(s.config.MaxConcurrent)

	if s.hooks == nil {
		s.hooks = newHookManager(s.log)
	}

	s.schedule = chainMiddleware(s.scheduleBatch, s.middleware...)

	s.baseCtx, s.cancel = context.WithCancel(context.Background())

	return s, nil
}

// Start initializes hooks, starts the scheduled batches and the event loop.
// It does not serve HTTP; use Run for that.
func (s *Server) Start() error {
	if err := s.hooks.init(); err != nil {
		return err
	}

	if err := s.startSchedules(); err != nil {
		return err
	}

	go s.eventLoop()

	return nil
}

// Run starts the server and blocks serving the HTTP API until Shutdown is
// called.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	return s.runHTTP()
}

// Shutdown stops accepting new batches, cancels all in-flight ones (their
// remaining case executions are recorded as errored outcomes), drains async
// hooks and closes the database.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error

	s.shutdownOnce.Do(func() {
		if s.cron != nil {
			s.cron.Stop()
		}

		// Stop accepting work before cancelling anything: the HTTP listener
		// goes down first and late Schedule calls are rejected.
		err = s.stopHTTP(ctx)

		s.cancel()

		done := make(chan struct{})
		go func() {
			s.runningBatches.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			if err == nil {
				err = ctx.Err()
			}
			return
		}

		select {
		case <-s.hooks.shutdown().Done():
		case <-ctx.Done():
			if err == nil {
				err = ctx.Err()
			}
			return
		}

		if dbErr := s.db.Close(); dbErr != nil && err == nil {
			err = dbErr
		}
	})

	return err
}

// eventLoop applies all events to the execution store. It must be started as
// a goroutine once. Apart from the initial pending record written on
// submission, the store is only written to from here.
//
// The events channel is never closed: producers are stopped by cancelling
// the base context, so a Schedule call racing Shutdown can never hit a
// closed channel.
func (s *Server) eventLoop() {
	for e := range s.events {
		rec, err := s.store.Load(e.ExecutionID())
		if err != nil {
			s.log.Warn("could not handle event, execution not found",
				"execution-id", e.ExecutionID(), "event", fmt.Sprintf("%T", e))
			continue
		}

		rec = e.Apply(rec.Copy())

		s.store.Save(rec)

		switch e.(type) {
		case batchSubmittedEvent:
			s.runningBatches.Add(1)

			go func(rec model.ExecutionRecord) {
				defer s.runningBatches.Done()
				s.runBatch(rec)
			}(rec)
		}
	}
}
