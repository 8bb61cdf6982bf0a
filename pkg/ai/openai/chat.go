package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/ai"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"

	"github.com/openai/openai-go/v3"
)

// GenerateCompletion sends a single-turn prompt to the chat model and
// returns the answer text unmodified.
//
// With ai.WithResponseFormat the request carries a strict JSON schema. The
// answer is still returned as text so callers can sanitize and parse it the
// same way as free-form output.
//
// Example:
//
//	raw, err := client.GenerateCompletion(ctx, input,
//		ai.WithSystemPrompts(ai.ExtractionSystemPrompt(depth)),
//		ai.WithTemperature(0.2),
//	)
func (c *GraphOpenAIClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.model,
		Temperature: 0.2,
	}, opts...)

	body := buildParams(prompt, options)

	start := time.Now()
	response, err := c.ChatClient.Chat.Completions.New(ctx, body)
	if err != nil {
		return "", fmt.Errorf("failed to generate completion: %w", err)
	}
	duration := time.Since(start).Milliseconds()

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   duration,
	})

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ai.ErrEmptyResponse)
	}
	message := response.Choices[0].Message.Content
	if message == "" {
		return "", fmt.Errorf("%w (finish_reason: %s)", ai.ErrEmptyResponse, response.Choices[0].FinishReason)
	}

	logger.Debug("[AI] Completion finished", "model", options.Model, "duration_ms", duration, "tokens", response.Usage.TotalTokens)
	return message, nil
}

func buildParams(prompt string, options ai.GenerateOptions) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(options.SystemPrompts)+1)
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
	}

	if rf := options.ResponseFormat; rf != nil {
		schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:   rf.Name,
			Schema: rf.Schema,
			Strict: openai.Bool(true),
		}
		if rf.Description != "" {
			schemaParam.Description = openai.String(rf.Description)
		}
		body.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		}
	}

	return body
}
