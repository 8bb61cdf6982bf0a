package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/newsgraph/pkg/ai"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
)

const defaultContextWindow = 4096

// GenerateCompletion sends a single-turn prompt and returns the assistant text.
func (c *GraphOllamaClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.model,
		Temperature: 0.2,
	}, opts...)

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.reqLock.Release(1)

	msgs := make([]api.Message, 0, len(options.SystemPrompts)+1)
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sp})
	}
	msgs = append(msgs, api.Message{Role: "user", Content: prompt})

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}

	if rf := options.ResponseFormat; rf != nil {
		format, err := json.Marshal(rf.Schema)
		if err != nil {
			return "", fmt.Errorf("failed to encode response schema: %w", err)
		}
		req.Format = format
	}

	tokens := countTokens(msgs)
	if numCtx := contextWindow(tokens); numCtx > defaultContextWindow {
		req.Options["num_ctx"] = numCtx
	}

	var final api.ChatResponse
	if err := c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.DoneReason = cr.DoneReason
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("failed to generate completion: %w", err)
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   final.Metrics.TotalDuration.Milliseconds(),
	})

	if strings.TrimSpace(final.Message.Content) == "" {
		return "", fmt.Errorf("%w (done_reason: %s)", ai.ErrEmptyResponse, final.DoneReason)
	}

	logger.Debug("[AI] Completion finished", "model", options.Model, "prompt_tokens", tokens, "duration", final.Metrics.TotalDuration)
	return final.Message.Content, nil
}

// countTokens falls back to a chars/4 estimate when the encoding cannot be
// loaded.
func countTokens(msgs []api.Message) int {
	total := 0
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		logger.Debug("[AI] Tokenizer unavailable, estimating", "err", err)
		for _, m := range msgs {
			total += len(m.Content)/4 + 1
		}
		return total
	}
	for _, m := range msgs {
		total += len(enc.Encode(m.Content, nil, nil))
	}
	return total
}

// contextWindow leaves headroom for the answer and rounds up to 1k.
func contextWindow(promptTokens int) int {
	need := promptTokens*2 + 512
	return (need + 1023) / 1024 * 1024
}
