// Package registry keeps optimization records for sealed units and applies
// the best known optimization to a unit with a matching contract.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/petrijr/fluxnode/internal/persistence"
	"github.com/petrijr/fluxnode/pkg/api"
	"github.com/petrijr/fluxnode/pkg/flow"
)

// Store is the persistence backend of a Registry.
type Store = persistence.RegistryStore

// Filter selects records in a Store.
type Filter = persistence.RegistryFilter

// ErrNotFound is returned when no record exists for a task id, or no record
// matches a contract.
var ErrNotFound = persistence.ErrRecordNotFound

// Registry stores optimization records keyed by task id.
type Registry struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Registry)

func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// New returns a Registry on store.
func New(store Store, opts ...Option) *Registry {
	r := &Registry{store: store, logger: zap.L(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewInMemory returns a Registry backed by process memory.
func NewInMemory(opts ...Option) *Registry {
	return New(persistence.NewInMemoryStore(), opts...)
}

// Register stores rec, replacing any record with the same task id. UpdatedAt
// is set to now; CreatedAt is kept from the existing record, or set to now.
func (r *Registry) Register(ctx context.Context, rec api.OptimizationRecord) error {
	if rec.TaskID == "" {
		return errors.New("register optimization record: empty task id")
	}
	now := r.now()
	prev, err := r.store.GetRecord(ctx, rec.TaskID)
	switch {
	case err == nil:
		rec.CreatedAt = prev.CreatedAt
	case errors.Is(err, persistence.ErrRecordNotFound):
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
	default:
		return fmt.Errorf("register %q: %w", rec.TaskID, err)
	}
	rec.UpdatedAt = now

	if err := r.store.SaveRecord(ctx, rec); err != nil {
		return fmt.Errorf("register %q: %w", rec.TaskID, err)
	}
	r.logger.Debug("optimization record registered",
		zap.String("task_id", rec.TaskID),
		zap.String("signature_hash", rec.SignatureHash),
	)
	return nil
}

func (r *Registry) Get(ctx context.Context, taskID string) (api.OptimizationRecord, error) {
	return r.store.GetRecord(ctx, taskID)
}

func (r *Registry) List(ctx context.Context, filter Filter) ([]api.OptimizationRecord, error) {
	return r.store.ListRecords(ctx, filter)
}

func (r *Registry) Delete(ctx context.Context, taskID string) error {
	return r.store.DeleteRecord(ctx, taskID)
}

// FindBestMatch returns the record with the highest fitness among those whose
// signature and instruction hashes both match. Records without a fitness
// score rank below any scored record; ties go to the lowest task id.
func (r *Registry) FindBestMatch(ctx context.Context, signatureHash, instructionHash string) (api.OptimizationRecord, error) {
	recs, err := r.store.ListRecords(ctx, Filter{SignatureHash: signatureHash, InstructionHash: instructionHash})
	if err != nil {
		return api.OptimizationRecord{}, err
	}
	var (
		best  api.OptimizationRecord
		found bool
	)
	for _, rec := range recs {
		// Stores filter on non-empty fields only.
		if rec.SignatureHash != signatureHash || rec.InstructionHash != instructionHash {
			continue
		}
		if !found || better(rec, best) {
			best, found = rec, true
		}
	}
	if !found {
		return api.OptimizationRecord{}, ErrNotFound
	}
	return best, nil
}

func better(a, b api.OptimizationRecord) bool {
	fa, okA := a.Fitness()
	fb, okB := b.Fitness()
	switch {
	case okA && !okB:
		return true
	case !okA:
		return false
	case fa != fb:
		return fa > fb
	}
	return a.TaskID < b.TaskID
}

// Apply copies the optimization metadata of the best matching record into
// sealed. It reports whether a match was found.
func (r *Registry) Apply(ctx context.Context, sealed *flow.SealedNode) (bool, error) {
	rec, err := r.FindBestMatch(ctx, sealed.SignatureHash(), sealed.InstructionHash())
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	sealed.SetOptimization(flow.Optimization{
		TrainingHash:           rec.TrainingHash,
		OptimizationConfigHash: rec.OptimizationConfigHash,
		FitnessScore:           rec.FitnessScore,
		WeightsPath:            rec.WeightsPath,
	})
	r.logger.Info("applied optimization",
		zap.String("task_id", sealed.TaskID()),
		zap.String("source_task_id", rec.TaskID),
		zap.String("weights_path", rec.WeightsPath),
	)
	return true, nil
}

// RecordFor describes sealed as an optimization record. Timestamps are left
// for Register to stamp.
func RecordFor(sealed *flow.SealedNode) api.OptimizationRecord {
	opt := sealed.Optimization()
	return api.OptimizationRecord{
		TaskID:                 sealed.TaskID(),
		SignatureHash:          sealed.SignatureHash(),
		InstructionHash:        sealed.InstructionHash(),
		TrainingHash:           opt.TrainingHash,
		OptimizationConfigHash: opt.OptimizationConfigHash,
		FitnessScore:           opt.FitnessScore,
		WeightsPath:            opt.WeightsPath,
	}
}
