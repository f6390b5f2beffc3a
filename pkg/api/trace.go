package api

import (
	"context"
	"time"
)

// TraceEntry is one execution record of a sealed unit.
type TraceEntry struct {
	Timestamp       time.Time         `json:"timestamp" bson:"timestamp"`
	TaskID          string            `json:"task_id" bson:"task_id"`
	SignatureHash   string            `json:"signature_hash" bson:"signature_hash"`
	InstructionHash string            `json:"instruction_hash" bson:"instruction_hash"`
	Inputs          Value             `json:"inputs" bson:"-"`
	Outputs         Value             `json:"outputs" bson:"-"`
	ModelName       string            `json:"model_name" bson:"model_name"`
	TrainingHash    *string           `json:"training_hash,omitempty" bson:"training_hash,omitempty"`
	FitnessScore    *float64          `json:"fitness_score,omitempty" bson:"fitness_score,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// Telemetry receives trace entries from sealed units.
//
// Record must not block indefinitely and must never fail the run; sinks that
// persist remotely should buffer and report their own errors.
type Telemetry interface {
	Record(entry TraceEntry)
	// Flush pushes buffered entries to their destination.
	Flush()
}

// Completer is the remote text-completion capability used by semantic nodes.
type Completer interface {
	Complete(ctx context.Context, prompt string, model string) (string, error)
	// DefaultModel is used when a caller passes an empty model.
	DefaultModel() string
}
