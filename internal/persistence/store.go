package persistence

import (
	"context"
	"errors"

	"github.com/petrijr/fluxnode/pkg/api"
)

var (
	// ErrRecordNotFound is returned when no optimization record exists for a
	// task id.
	ErrRecordNotFound = errors.New("optimization record not found")
)

// RegistryFilter selects optimization records. Empty fields mean "no filter"
// for that field.
type RegistryFilter struct {
	SignatureHash   string
	InstructionHash string
}

func (f RegistryFilter) matches(rec api.OptimizationRecord) bool {
	if f.SignatureHash != "" && rec.SignatureHash != f.SignatureHash {
		return false
	}
	if f.InstructionHash != "" && rec.InstructionHash != f.InstructionHash {
		return false
	}
	return true
}

// RegistryStore handles storage of optimization records, keyed by task id.
type RegistryStore interface {
	// SaveRecord inserts or replaces the record for rec.TaskID.
	SaveRecord(ctx context.Context, rec api.OptimizationRecord) error
	GetRecord(ctx context.Context, taskID string) (api.OptimizationRecord, error)
	ListRecords(ctx context.Context, filter RegistryFilter) ([]api.OptimizationRecord, error)
	DeleteRecord(ctx context.Context, taskID string) error
}

// TraceStore is an append-only log of trace entries.
type TraceStore interface {
	AppendTraces(ctx context.Context, entries []api.TraceEntry) error
	// ListTraces returns the entries of one task in append order.
	ListTraces(ctx context.Context, taskID string) ([]api.TraceEntry, error)
}
