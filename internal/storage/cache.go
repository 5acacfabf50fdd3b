package storage

import (
	"sync"

	"github.com/arlberg/triage/internal/model"
)

// ExecutionStore is the in-memory store of execution records, shared
// process-wide and passed into the scheduler at construction. There is no
// automatic eviction; callers decide when to Evict.
type ExecutionStore struct {
	m sync.Map
}

func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{}
}

func (s *ExecutionStore) Save(rec model.ExecutionRecord) {
	s.m.Store(rec.ID, rec)
}

func (s *ExecutionStore) Load(executionID string) (model.ExecutionRecord, error) {
	val, ok := s.m.Load(executionID)
	if !ok {
		return model.ExecutionRecord{}, model.NotFoundError{}
	}

	return val.(model.ExecutionRecord), nil
}

func (s *ExecutionStore) Evict(executionID string) {
	s.m.Delete(executionID)
}
