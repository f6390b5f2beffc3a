package semantic

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/petrijr/fluxnode/pkg/api"
	"github.com/petrijr/fluxnode/pkg/flow"
)

var (
	ErrMissingSignature   = errors.New("semantic node requires a signature")
	ErrMissingInstruction = errors.New("semantic node requires an instruction")
	ErrMissingCompleter   = errors.New("semantic node requires a completer")
)

// Builder assembles a semantic node.
//
//	node, err := semantic.NewBuilder(completer).
//		SignatureString("text -> summary").
//		Instruction("Summarize the text in one sentence.").
//		TaskID("summarize").
//		Seal()
type Builder struct {
	completer   api.Completer
	signature   *api.Signature
	sigErr      error
	instruction string
	taskID      string
	model       string
	logger      *zap.Logger
}

func NewBuilder(completer api.Completer) *Builder {
	return &Builder{completer: completer}
}

func (b *Builder) Signature(sig api.Signature) *Builder {
	b.signature, b.sigErr = &sig, nil
	return b
}

// SignatureString sets the signature from shorthand such as "a, b -> c".
// A parse error is reported by Build.
func (b *Builder) SignatureString(s string) *Builder {
	sig, err := api.ParseSignature(s)
	if err != nil {
		b.signature, b.sigErr = nil, err
		return b
	}
	return b.Signature(sig)
}

func (b *Builder) Instruction(instruction string) *Builder {
	b.instruction = instruction
	return b
}

// TaskID sets the stable identity used for traces and optimization records.
func (b *Builder) TaskID(id string) *Builder {
	b.taskID = id
	return b
}

// Model overrides the completer's default model.
func (b *Builder) Model(model string) *Builder {
	b.model = model
	return b
}

func (b *Builder) Logger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) logic() (*Logic, error) {
	if b.sigErr != nil {
		return nil, b.sigErr
	}
	if b.signature == nil {
		return nil, ErrMissingSignature
	}
	if strings.TrimSpace(b.instruction) == "" {
		return nil, ErrMissingInstruction
	}
	if b.completer == nil {
		return nil, ErrMissingCompleter
	}
	logger := b.logger
	if logger == nil {
		logger = zap.L()
	}
	taskID := b.taskID
	if taskID == "" {
		taskID = "autogen_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		logger.Warn("auto-generated task id; set TaskID for stable optimization records",
			zap.String("task_id", taskID),
		)
	}
	return &Logic{
		completer:   b.completer,
		signature:   *b.signature,
		instruction: b.instruction,
		taskID:      taskID,
		model:       b.model,
		logger:      logger,
	}, nil
}

// Build returns the unsealed async node.
func (b *Builder) Build() (*flow.AsyncNode, error) {
	l, err := b.logic()
	if err != nil {
		return nil, err
	}
	return flow.NewAsyncNode(l, flow.WithLogger(l.logger)), nil
}

// Seal builds the node and seals it.
func (b *Builder) Seal() (*flow.SealedNode, error) {
	n, err := b.Build()
	if err != nil {
		return nil, err
	}
	return n.Seal()
}
