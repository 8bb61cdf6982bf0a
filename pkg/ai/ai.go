package ai

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the model answers without any content.
var ErrEmptyResponse = errors.New("empty response from model")

// ResponseFormat asks the model for structured output matching Schema.
type ResponseFormat struct {
	Name        string
	Description string
	Schema      any
}

// GenerateOptions holds configuration for AI generation requests.
type GenerateOptions struct {
	Model          string          // Model identifier to use for generation
	SystemPrompts  []string        // System prompts prepended to the request
	Temperature    float64         // Sampling temperature (0.0-2.0)
	ResponseFormat *ResponseFormat // Optional JSON schema for the answer
}

// ModelMetrics contains performance metrics from AI model operations.
type ModelMetrics struct {
	Requests       int     `json:"requests"`
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	DurationMs     int64   `json:"duration_ms"`
	TokenPerSecond float32 `json:"tokens_per_second"`
}

// Add accumulates m into the receiver and refreshes the throughput.
func (mm *ModelMetrics) Add(m ModelMetrics) {
	mm.Requests += max(m.Requests, 1)
	mm.InputTokens += m.InputTokens
	mm.OutputTokens += m.OutputTokens
	mm.TotalTokens += m.TotalTokens
	mm.DurationMs += m.DurationMs

	if mm.DurationMs > 0 {
		tps := (float64(mm.TotalTokens) * 1000.0) / float64(mm.DurationMs)
		mm.TokenPerSecond = float32(int(tps*100+0.5)) / 100
	}
}

// GenerateOption is a functional option for configuring AI generation requests.
type GenerateOption func(*GenerateOptions)

// WithModel returns a GenerateOption that sets the model to use for generation.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts returns a GenerateOption that sets the system prompts
// to prepend to the generation request.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature returns a GenerateOption that sets the sampling temperature.
// Lower values (e.g., 0.2) make outputs more focused and deterministic.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// WithResponseFormat requests structured output. The schema is usually built
// with GenerateSchema.
func WithResponseFormat(name, description string, schema any) GenerateOption {
	return func(o *GenerateOptions) {
		o.ResponseFormat = &ResponseFormat{
			Name:        name,
			Description: description,
			Schema:      schema,
		}
	}
}

// ApplyOptions returns defaults with opts applied in order.
func ApplyOptions(defaults GenerateOptions, opts ...GenerateOption) GenerateOptions {
	for _, o := range opts {
		if o != nil {
			o(&defaults)
		}
	}
	return defaults
}

// GraphAIClient is the text generation collaborator used for graph
// extraction. Implementations return the model's raw answer text; parsing is
// left to the caller.
type GraphAIClient interface {
	GenerateCompletion(
		ctx context.Context,
		prompt string,
		opts ...GenerateOption,
	) (string, error)

	ResetMetrics()
	GetMetrics() ModelMetrics
}
