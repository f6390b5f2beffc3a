// Package semantic provides an LLM-backed node whose behaviour is described
// by a signature and a natural-language instruction.
package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"

	"github.com/petrijr/fluxnode/pkg/api"
)

// Logic is the async node logic of a semantic node. It reads the declared
// inputs from the state, asks the completer for a JSON object and writes the
// declared outputs back.
type Logic struct {
	completer   api.Completer
	signature   api.Signature
	instruction string
	taskID      string
	model       string
	logger      *zap.Logger
}

var (
	_ api.AsyncNodeLogic = (*Logic)(nil)
	_ api.Sealable       = (*Logic)(nil)
	_ api.Promptable     = (*Logic)(nil)
	_ api.ModelDefaulter = (*Logic)(nil)
)

func (l *Logic) Signature() api.Signature { return l.signature }
func (l *Logic) TaskID() string           { return l.taskID }
func (l *Logic) Instruction() string      { return l.instruction }
func (l *Logic) Model() string            { return l.model }

// DefaultModel is the completer's default model.
func (l *Logic) DefaultModel() string {
	if l.completer == nil {
		return ""
	}
	return l.completer.DefaultModel()
}

// Prep collects the declared inputs. Missing keys map to nil.
func (l *Logic) Prep(_ context.Context, _ api.Params, state api.State) api.Value {
	inputs := make(map[string]any, len(l.signature.Inputs))
	for _, f := range l.signature.Inputs {
		inputs[f.Name] = state[f.Name]
	}
	return inputs
}

// Exec returns the completion text, or {"error": msg} when the completer
// fails.
func (l *Logic) Exec(ctx context.Context, prepRes api.Value) api.Value {
	prompt, err := l.Prompt(prepRes)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	text, err := l.completer.Complete(ctx, prompt, l.model)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return text
}

// Prompt renders the prompt sent for the given inputs.
func (l *Logic) Prompt(inputs api.Value) (string, error) {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("encode semantic inputs: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Task Instruction: %s\n\nInput Data:\n%s\n\n", l.instruction, data)
	b.WriteString("Respond ONLY with a valid JSON object matching the following output keys:\n")
	for _, f := range l.signature.Outputs {
		fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Description)
	}
	return b.String(), nil
}

// Post writes the declared outputs found in the response. It always
// returns the default action.
func (l *Logic) Post(_ context.Context, state api.State, _, execRes api.Value) string {
	var obj map[string]any
	switch v := execRes.(type) {
	case string:
		parsed, err := parseObject(v)
		if err != nil {
			l.logger.Error("semantic response is not a JSON object",
				zap.String("task_id", l.taskID),
				zap.Error(err),
			)
			return api.DefaultAction
		}
		obj = parsed
	case map[string]any:
		if msg, ok := v["error"]; ok {
			l.logger.Error("semantic completion failed",
				zap.String("task_id", l.taskID),
				zap.Any("error", msg),
			)
			return api.DefaultAction
		}
		obj = v
	default:
		l.logger.Error("unexpected semantic exec result",
			zap.String("task_id", l.taskID),
			zap.String("type", fmt.Sprintf("%T", execRes)),
		)
		return api.DefaultAction
	}

	for _, f := range l.signature.Outputs {
		val, ok := obj[f.Name]
		if !ok {
			l.logger.Warn("completion missed required output field",
				zap.String("task_id", l.taskID),
				zap.String("field", f.Name),
			)
			continue
		}
		state[f.Name] = val
	}
	return api.DefaultAction
}

func (l *Logic) Clone() api.AsyncNodeLogic {
	cp := *l
	return &cp
}

// parseObject decodes a JSON object from model output. Markdown code fences
// are stripped and malformed JSON is repaired before giving up.
func parseObject(text string) (map[string]any, error) {
	content := stripCodeFence(text)
	var obj map[string]any
	err := json.Unmarshal([]byte(content), &obj)
	if err == nil {
		return obj, nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(content)
	if repairErr != nil {
		return nil, fmt.Errorf("unmarshal: %w; repair: %v", err, repairErr)
	}
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal repaired json: %w", err)
	}
	return obj, nil
}

func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the language tag, if any.
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
