package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/fluxnode/pkg/api"
)

func fitness(f float64) *float64 { return &f }

func sampleRecord(taskID, sig string, score *float64) api.OptimizationRecord {
	now := time.Now().Truncate(time.Millisecond)
	return api.OptimizationRecord{
		TaskID:          taskID,
		SignatureHash:   sig,
		InstructionHash: "instr-" + taskID,
		TrainingHash:    "train",
		FitnessScore:    score,
		WeightsPath:     "/weights/" + taskID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// testRegistryStore exercises the RegistryStore contract against any backend.
func testRegistryStore(t *testing.T, store RegistryStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.GetRecord(ctx, "missing")
	require.ErrorIs(t, err, ErrRecordNotFound)
	require.ErrorIs(t, store.DeleteRecord(ctx, "missing"), ErrRecordNotFound)

	a := sampleRecord("summarize", "sig-1", fitness(0.8))
	b := sampleRecord("classify", "sig-1", nil)
	c := sampleRecord("translate", "sig-2", fitness(0.4))
	for _, rec := range []api.OptimizationRecord{a, b, c} {
		require.NoError(t, store.SaveRecord(ctx, rec))
	}

	got, err := store.GetRecord(ctx, "summarize")
	require.NoError(t, err)
	assert.Equal(t, a.SignatureHash, got.SignatureHash)
	assert.Equal(t, a.WeightsPath, got.WeightsPath)
	require.NotNil(t, got.FitnessScore)
	assert.InDelta(t, 0.8, *got.FitnessScore, 1e-9)
	assert.True(t, a.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", a.CreatedAt, got.CreatedAt)

	got, err = store.GetRecord(ctx, "classify")
	require.NoError(t, err)
	assert.Nil(t, got.FitnessScore)

	all, err := store.ListRecords(ctx, RegistryFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"classify", "summarize", "translate"}, taskIDs(all))

	bySig, err := store.ListRecords(ctx, RegistryFilter{SignatureHash: "sig-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"classify", "summarize"}, taskIDs(bySig))

	byBoth, err := store.ListRecords(ctx, RegistryFilter{SignatureHash: "sig-1", InstructionHash: "instr-summarize"})
	require.NoError(t, err)
	assert.Equal(t, []string{"summarize"}, taskIDs(byBoth))

	// Saving again replaces the record.
	a.FitnessScore = fitness(0.95)
	a.SignatureHash = "sig-2"
	require.NoError(t, store.SaveRecord(ctx, a))
	got, err = store.GetRecord(ctx, "summarize")
	require.NoError(t, err)
	assert.InDelta(t, 0.95, *got.FitnessScore, 1e-9)

	bySig, err = store.ListRecords(ctx, RegistryFilter{SignatureHash: "sig-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"classify"}, taskIDs(bySig))

	require.NoError(t, store.DeleteRecord(ctx, "classify"))
	_, err = store.GetRecord(ctx, "classify")
	require.ErrorIs(t, err, ErrRecordNotFound)
}

// testTraceStore exercises the TraceStore contract against any backend.
func testTraceStore(t *testing.T, store TraceStore) {
	t.Helper()
	ctx := context.Background()

	empty, err := store.ListTraces(ctx, "nothing")
	require.NoError(t, err)
	assert.Empty(t, empty)

	training := "train-1"
	base := time.Now().Truncate(time.Millisecond)
	entries := []api.TraceEntry{
		{
			Timestamp:       base,
			TaskID:          "summarize",
			SignatureHash:   "sig",
			InstructionHash: "instr",
			Inputs:          map[string]any{"text": "long", "n": float64(3)},
			Outputs:         map[string]any{"summary": "short"},
			ModelName:       "gpt-4o-mini",
			TrainingHash:    &training,
			FitnessScore:    fitness(0.5),
			Metadata:        map[string]string{"weights_path": "/w"},
		},
		{Timestamp: base.Add(time.Millisecond), TaskID: "other", ModelName: "native"},
		{Timestamp: base.Add(2 * time.Millisecond), TaskID: "summarize", ModelName: "native", Inputs: []any{"x"}},
	}
	require.NoError(t, store.AppendTraces(ctx, entries))
	require.NoError(t, store.AppendTraces(ctx, nil))

	got, err := store.ListTraces(ctx, "summarize")
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "sig", first.SignatureHash)
	assert.Equal(t, "gpt-4o-mini", first.ModelName)
	assert.Equal(t, map[string]any{"text": "long", "n": float64(3)}, first.Inputs)
	assert.Equal(t, map[string]any{"summary": "short"}, first.Outputs)
	require.NotNil(t, first.TrainingHash)
	assert.Equal(t, "train-1", *first.TrainingHash)
	require.NotNil(t, first.FitnessScore)
	assert.InDelta(t, 0.5, *first.FitnessScore, 1e-9)
	assert.Equal(t, "/w", first.Metadata["weights_path"])
	assert.WithinDuration(t, base, first.Timestamp, time.Millisecond)

	assert.Equal(t, []any{"x"}, got[1].Inputs)
	assert.Nil(t, got[1].FitnessScore)
}

func taskIDs(recs []api.OptimizationRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.TaskID)
	}
	return out
}
