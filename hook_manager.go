package triage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/arlberg/triage/internal/model"
)

type Hook interface {
	Name() string
	Init() error
}

type CaseFinishedListener interface {
	Hook
	CaseFinished(executionID string, outcome model.Outcome)
}

type BatchFinishedListener interface {
	Hook
	BatchFinished(report model.Report)
}

// AsyncBatchFinishedListener runs outside the batch's critical path; pending
// notifications are drained on shutdown.
type AsyncBatchFinishedListener interface {
	Hook
	BatchFinishedAsync(report model.Report)
}

type hookManager struct {
	all                []Hook
	caseFinished       []CaseFinishedListener
	batchFinished      []BatchFinishedListener
	batchFinishedAsync []AsyncBatchFinishedListener

	asyncHooksRunning sync.WaitGroup

	log *slog.Logger
}

func newHookManager(log *slog.Logger) *hookManager {
	return &hookManager{
		all:                []Hook{},
		caseFinished:       []CaseFinishedListener{},
		batchFinished:      []BatchFinishedListener{},
		batchFinishedAsync: []AsyncBatchFinishedListener{},
		log:                log,
	}
}

func (m *hookManager) init() error {
	for _, h := range m.all {
		if err := h.Init(); err != nil {
			return fmt.Errorf("initiating hook %q: %w", h.Name(), err)
		}

		registeredHook := false

		if l, ok := h.(CaseFinishedListener); ok {
			m.caseFinished = append(m.caseFinished, l)
			registeredHook = true
		}
		if l, ok := h.(BatchFinishedListener); ok {
			m.batchFinished = append(m.batchFinished, l)
			registeredHook = true
		}
		if l, ok := h.(AsyncBatchFinishedListener); ok {
			m.batchFinishedAsync = append(m.batchFinishedAsync, l)
			registeredHook = true
		}

		if !registeredHook {
			return fmt.Errorf("hook %q does not implement any listener", h.Name())
		}
	}

	return nil
}

func (m *hookManager) shutdown() context.Context {
	cancelCtx, cancel := context.WithCancel(context.Background())

	go func() {
		m.asyncHooksRunning.Wait()
		cancel()
	}()

	return cancelCtx
}

func (m *hookManager) notifyCaseFinished(executionID string, outcome model.Outcome) {
	for _, l := range m.caseFinished {
		l.CaseFinished(executionID, outcome)
	}
}

func (m *hookManager) notifyBatchFinished(report model.Report) {
	for _, l := range m.batchFinished {
		l.BatchFinished(report)
	}
}

func (m *hookManager) notifyBatchFinishedAsync(report model.Report) {
	for _, l := range m.batchFinishedAsync {
		m.asyncHooksRunning.Add(1)

		hook := l
		go func() {
			defer m.asyncHooksRunning.Done()

			defer func() {
				if r := recover(); r != nil {
					m.log.Error("async hook panicked", "hook", hook.Name(), "error", fmt.Sprintf("%v", r))
				}
			}()

			hook.BatchFinishedAsync(report)
		}()
	}
}
