package api

import "time"

// OptimizationRecord describes an optimized variant of a sealed unit, keyed by
// task id and matched on signature and instruction hashes.
type OptimizationRecord struct {
	TaskID                 string    `json:"task_id" bson:"_id"`
	SignatureHash          string    `json:"signature_hash" bson:"signature_hash"`
	InstructionHash        string    `json:"instruction_hash" bson:"instruction_hash"`
	TrainingHash           string    `json:"training_hash,omitempty" bson:"training_hash,omitempty"`
	OptimizationConfigHash string    `json:"optimization_config_hash,omitempty" bson:"optimization_config_hash,omitempty"`
	FitnessScore           *float64  `json:"fitness_score,omitempty" bson:"fitness_score,omitempty"`
	WeightsPath            string    `json:"weights_path,omitempty" bson:"weights_path,omitempty"`
	CreatedAt              time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt              time.Time `json:"updated_at" bson:"updated_at"`
}

// Fitness returns the fitness score, or ok=false when none was recorded.
func (r OptimizationRecord) Fitness() (score float64, ok bool) {
	if r.FitnessScore == nil {
		return 0, false
	}
	return *r.FitnessScore, true
}
