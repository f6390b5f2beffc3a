// Package openai provides an api.Completer backed by an OpenAI-compatible
// chat completions endpoint.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/petrijr/fluxnode/pkg/api"
)

// DefaultModel is used when neither the caller nor WithModel names one.
const DefaultModel = "gpt-4o-mini"

const apiKeyEnv = "OPENAI_API_KEY"

type options struct {
	apiKey     string
	baseURL    string
	model      string
	maxRetries int
	httpClient *http.Client
	logger     *zap.Logger
}

type Option func(*options)

// WithAPIKey sets the API key. Defaults to $OPENAI_API_KEY.
func WithAPIKey(key string) Option { return func(o *options) { o.apiKey = key } }

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(url string) Option { return func(o *options) { o.baseURL = url } }

// WithModel sets the model used when Complete is called without one.
func WithModel(model string) Option { return func(o *options) { o.model = model } }

// WithMaxRetries sets how often a failed request is retried.
func WithMaxRetries(n int) Option { return func(o *options) { o.maxRetries = n } }

func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// Completer sends a prompt as a single user message and returns the text of
// the first choice.
type Completer struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

var _ api.Completer = (*Completer)(nil)

func New(opts ...Option) *Completer {
	o := options{model: DefaultModel, maxRetries: 2}
	for _, opt := range opts {
		opt(&o)
	}
	if o.apiKey == "" {
		o.apiKey = os.Getenv(apiKeyEnv)
	}
	if o.logger == nil {
		o.logger = zap.L()
	}

	var clientOpts []openaiopt.RequestOption
	if o.apiKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.apiKey))
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.baseURL))
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, openaiopt.WithHTTPClient(o.httpClient))
	}
	clientOpts = append(clientOpts, openaiopt.WithMaxRetries(o.maxRetries))

	return &Completer{
		client: openai.NewClient(clientOpts...),
		model:  o.model,
		logger: o.logger,
	}
}

func (c *Completer) DefaultModel() string { return c.model }

// Complete returns the completion text. Failures wrap api.ErrCompletionFailed.
func (c *Completer) Complete(ctx context.Context, prompt string, model string) (string, error) {
	if model == "" {
		model = c.model
	}
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		c.logger.Warn("chat completion failed", zap.String("model", model), zap.Error(err))
		return "", fmt.Errorf("%w: %w", api.ErrCompletionFailed, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", api.ErrCompletionFailed)
	}
	c.logger.Debug("chat completion",
		zap.String("model", resp.Model),
		zap.Int64("total_tokens", resp.Usage.TotalTokens),
	)
	return resp.Choices[0].Message.Content, nil
}
