package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var openaiTracer = otel.Tracer("research.llm.openai")

// completionSystemPrompt frames every backend call; stage prompts carry
// their own task instructions.
const completionSystemPrompt = "You are a precise research assistant. Follow the instructions in the prompt exactly."

// DefaultOpenAIRequestsPerSecond throttles outbound calls so a burst of
// pipeline stages cannot trip the account's rate limit.
const DefaultOpenAIRequestsPerSecond = 3

// OpenAIConfig configures the hosted OpenAI backend.
type OpenAIConfig struct {
	// APIKey overrides key resolution; empty falls back to
	// OPENAI_API_KEY_FILE and then OPENAI_API_KEY.
	APIKey string
	// BaseURL points the client at a compatible gateway. Empty uses the
	// public endpoint.
	BaseURL string
	// RequestsPerSecond overrides the default throttle; <= 0 keeps it.
	RequestsPerSecond float64
	// Timeout bounds each HTTP call; zero means 2 minutes.
	Timeout time.Duration
}

// OpenAIClient implements CompletionClient against the OpenAI chat
// completions API. Web search goes through the search-preview model
// family.
type OpenAIClient struct {
	client  *openai.Client
	limiter *rate.Limiter
	key     *SecretKey
}

// NewOpenAIClient builds the hosted backend. The API key lives in
// locked memory until Close.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	key, err := LoadAPIKey(cfg.APIKey, "OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}

	clientCfg := openai.DefaultConfig(key.Value())
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultOpenAIRequestsPerSecond
	}

	slog.Info("Initializing OpenAI client", "base_url", clientCfg.BaseURL, "rps", rps)
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(clientCfg),
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		key:     key,
	}, nil
}

// Close wipes the locked API key.
func (o *OpenAIClient) Close() {
	o.key.Destroy()
}

// Complete implements CompletionClient.
func (o *OpenAIClient) Complete(ctx context.Context, prompt, model string,
	params GenerationParams) (string, error) {

	ctx, span := openaiTracer.Start(ctx, "OpenAIClient.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", model))

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: completionSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	return o.send(ctx, span, req)
}

// CompleteWithSearch implements CompletionClient. The request is routed
// to the search-preview variant of the caller's model family; the
// substitution is an adapter detail recorded on the span, engine-side
// model guarantees are unaffected.
func (o *OpenAIClient) CompleteWithSearch(ctx context.Context, prompt, model string) (string, error) {
	ctx, span := openaiTracer.Start(ctx, "OpenAIClient.CompleteWithSearch")
	defer span.End()

	searchModel := searchModelFor(model)
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.String("llm.search_model", searchModel),
	)

	// Search-preview models reject sampling parameters, so the request
	// carries none.
	req := openai.ChatCompletionRequest{
		Model: searchModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	return o.send(ctx, span, req)
}

// send applies the throttle, performs the call, and unwraps the first
// choice.
func (o *OpenAIClient) send(ctx context.Context, span oteltrace.Span, req openai.ChatCompletionRequest) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("rate limiter wait aborted: %w", err)
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("OpenAI API call failed", "model", req.Model, "error", err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		err := fmt.Errorf("OpenAI returned no choices for model %s", req.Model)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	slog.Debug("Received OpenAI response",
		"model", req.Model, "total_tokens", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

// searchModelFor maps a model identifier to its web-search-capable
// sibling.
func searchModelFor(model string) string {
	switch {
	case strings.Contains(model, "search-preview"):
		return model
	case strings.HasPrefix(model, "gpt-4o-mini"):
		return "gpt-4o-mini-search-preview"
	default:
		return "gpt-4o-search-preview"
	}
}
