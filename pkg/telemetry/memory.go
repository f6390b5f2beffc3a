// Package telemetry provides sinks for the trace entries sealed units
// record while a flow runs.
package telemetry

import (
	"sync"

	"github.com/petrijr/fluxnode/pkg/api"
)

// MemorySink keeps every trace entry in memory, in recording order.
type MemorySink struct {
	mu     sync.Mutex
	traces []api.TraceEntry
}

var _ api.Telemetry = (*MemorySink)(nil)

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(entry api.TraceEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces = append(s.traces, entry)
}

// Flush is a no-op; entries are visible as soon as they are recorded.
func (s *MemorySink) Flush() {}

// Traces returns a copy of the recorded entries.
func (s *MemorySink) Traces() []api.TraceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.TraceEntry, len(s.traces))
	copy(out, s.traces)
	return out
}

// ByTaskID returns the entries recorded for one task.
func (s *MemorySink) ByTaskID(taskID string) []api.TraceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []api.TraceEntry
	for _, e := range s.traces {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops all recorded entries.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces = nil
}

// NopSink discards every entry.
type NopSink struct{}

func (NopSink) Record(api.TraceEntry) {}
func (NopSink) Flush()                {}

// FanoutSink forwards every entry to each of its sinks.
type FanoutSink struct {
	sinks []api.Telemetry
}

// NewFanout creates a sink forwarding to each non-nil sink. With no sinks it
// returns NopSink, with one it returns that sink.
func NewFanout(sinks ...api.Telemetry) api.Telemetry {
	filtered := make([]api.Telemetry, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	switch len(filtered) {
	case 0:
		return NopSink{}
	case 1:
		return filtered[0]
	}
	return &FanoutSink{sinks: filtered}
}

func (f *FanoutSink) Record(entry api.TraceEntry) {
	for _, s := range f.sinks {
		s.Record(entry)
	}
}

func (f *FanoutSink) Flush() {
	for _, s := range f.sinks {
		s.Flush()
	}
}
