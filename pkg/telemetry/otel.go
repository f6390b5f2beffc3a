package telemetry

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/petrijr/fluxnode/pkg/api"
)

const instrumentationName = "github.com/petrijr/fluxnode/pkg/telemetry"

// Span attribute keys.
const (
	AttrTaskID          = attribute.Key("fluxnode.task_id")
	AttrSignatureHash   = attribute.Key("fluxnode.signature_hash")
	AttrInstructionHash = attribute.Key("fluxnode.instruction_hash")
	AttrModelName       = attribute.Key("fluxnode.model_name")
	AttrTrainingHash    = attribute.Key("fluxnode.training_hash")
	AttrFitnessScore    = attribute.Key("fluxnode.fitness_score")
	AttrInputs          = attribute.Key("fluxnode.inputs")
	AttrOutputs         = attribute.Key("fluxnode.outputs")
)

// OTelSink turns each trace entry into a span.
type OTelSink struct {
	provider trace.TracerProvider
	tracer   trace.Tracer
	logger   *zap.Logger
}

var _ api.Telemetry = (*OTelSink)(nil)

// NewOTelSink creates a sink on provider, or on the global provider when nil.
func NewOTelSink(provider trace.TracerProvider, logger *zap.Logger) *OTelSink {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	if logger == nil {
		logger = zap.L()
	}
	return &OTelSink{
		provider: provider,
		tracer:   provider.Tracer(instrumentationName),
		logger:   logger,
	}
}

func (s *OTelSink) Record(entry api.TraceEntry) {
	attrs := []attribute.KeyValue{
		AttrTaskID.String(entry.TaskID),
		AttrSignatureHash.String(entry.SignatureHash),
		AttrInstructionHash.String(entry.InstructionHash),
		AttrModelName.String(entry.ModelName),
		AttrInputs.String(s.encode(entry.Inputs)),
		AttrOutputs.String(s.encode(entry.Outputs)),
	}
	if entry.TrainingHash != nil {
		attrs = append(attrs, AttrTrainingHash.String(*entry.TrainingHash))
	}
	if entry.FitnessScore != nil {
		attrs = append(attrs, AttrFitnessScore.Float64(*entry.FitnessScore))
	}
	for k, v := range entry.Metadata {
		attrs = append(attrs, attribute.String("fluxnode.metadata."+k, v))
	}

	_, span := s.tracer.Start(context.Background(), "sealed "+entry.TaskID,
		trace.WithTimestamp(entry.Timestamp),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.End()
}

// Flush forces export when the provider supports it.
func (s *OTelSink) Flush() {
	f, ok := s.provider.(interface {
		ForceFlush(ctx context.Context) error
	})
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := f.ForceFlush(ctx); err != nil {
		s.logger.Warn("failed to flush spans", zap.Error(err))
	}
}

func (s *OTelSink) encode(v api.Value) string {
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Debug("trace value is not JSON encodable", zap.Error(err))
		return ""
	}
	return string(b)
}
