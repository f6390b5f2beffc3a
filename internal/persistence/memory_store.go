package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/petrijr/fluxnode/pkg/api"
)

// InMemoryStore is a RegistryStore and TraceStore backed by maps. Useful for
// tests and single-process deployments.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]api.OptimizationRecord
	traces  map[string][]api.TraceEntry
}

// Ensure InMemoryStore implements the interfaces.
var (
	_ RegistryStore = (*InMemoryStore)(nil)
	_ TraceStore    = (*InMemoryStore)(nil)
)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]api.OptimizationRecord),
		traces:  make(map[string][]api.TraceEntry),
	}
}

func (s *InMemoryStore) SaveRecord(_ context.Context, rec api.OptimizationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.TaskID] = copyRecord(rec)
	return nil
}

func (s *InMemoryStore) GetRecord(_ context.Context, taskID string) (api.OptimizationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[taskID]
	if !ok {
		return api.OptimizationRecord{}, ErrRecordNotFound
	}
	return copyRecord(rec), nil
}

// ListRecords returns matching records ordered by task id.
func (s *InMemoryStore) ListRecords(_ context.Context, filter RegistryFilter) ([]api.OptimizationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []api.OptimizationRecord
	for _, rec := range s.records {
		if filter.matches(rec) {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out, nil
}

func (s *InMemoryStore) DeleteRecord(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[taskID]; !ok {
		return ErrRecordNotFound
	}
	delete(s.records, taskID)
	return nil
}

func (s *InMemoryStore) AppendTraces(_ context.Context, entries []api.TraceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.traces[e.TaskID] = append(s.traces[e.TaskID], e)
	}
	return nil
}

func (s *InMemoryStore) ListTraces(_ context.Context, taskID string) ([]api.TraceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]api.TraceEntry(nil), s.traces[taskID]...), nil
}

func copyRecord(rec api.OptimizationRecord) api.OptimizationRecord {
	if rec.FitnessScore != nil {
		f := *rec.FitnessScore
		rec.FitnessScore = &f
	}
	return rec
}
