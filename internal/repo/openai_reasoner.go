package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const reasonerSystemPrompt = `You are a cloud operations root-cause analyst.
Given a telemetry snapshot and evidence from similar historical incidents,
identify the most likely root cause. Respond with a single JSON object:
{"root_cause": "<short-kebab-case-label>", "confidence": <0.0-1.0>, "rationale": "<one paragraph>"}`

// InferenceOutput is the parsed reply of a reasoning model call.
type InferenceOutput struct {
	RootCause  string  `json:"root_cause"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// ReasonerClient calls a pluggable OpenAI-compatible reasoning backend. The
// model name selects the cost/capability tier.
type ReasonerClient struct {
	client  *openai.Client
	timeout time.Duration
}

// NewReasonerClient constructs the reasoning client. baseURL may point at any
// OpenAI-compatible provider; empty uses the default endpoint.
func NewReasonerClient(apiKey, baseURL string, timeout time.Duration) *ReasonerClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ReasonerClient{
		client:  openai.NewClientWithConfig(cfg),
		timeout: timeout,
	}
}

// Infer sends the prompt to the named model and parses the JSON envelope.
func (c *ReasonerClient) Infer(ctx context.Context, model, prompt string) (InferenceOutput, error) {
	if c == nil || c.client == nil {
		return InferenceOutput{}, fmt.Errorf("reasoner client not configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: reasonerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return InferenceOutput{}, fmt.Errorf("model call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return InferenceOutput{}, fmt.Errorf("model returned no choices")
	}

	return parseInferenceOutput(resp.Choices[0].Message.Content)
}

// Embed returns the embedding vector for the given text.
func (c *ReasonerClient) Embed(ctx context.Context, model, text string) ([]float32, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("reasoner client not configured")
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding call failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response empty")
	}
	return resp.Data[0].Embedding, nil
}

// parseInferenceOutput tolerates fenced or prefixed replies around the JSON envelope.
func parseInferenceOutput(content string) (InferenceOutput, error) {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "{"); idx > 0 {
		content = content[idx:]
	}
	if idx := strings.LastIndex(content, "}"); idx >= 0 && idx < len(content)-1 {
		content = content[:idx+1]
	}

	var out InferenceOutput
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return InferenceOutput{}, fmt.Errorf("parse model reply: %w", err)
	}
	if out.RootCause == "" {
		return InferenceOutput{}, fmt.Errorf("model reply missing root_cause")
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return out, nil
}
