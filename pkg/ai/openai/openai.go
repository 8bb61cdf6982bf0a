package openai

import (
	"sync"

	"github.com/OFFIS-RIT/newsgraph/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	// DefaultBaseURL is Gemini's OpenAI compatible endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultModel   = "gemini-2.5-flash"
)

// GraphOpenAIClient talks to any OpenAI compatible chat completion API.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	model   string
	baseURL string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient *openai.Client
}

// NewGraphOpenAIClientParams configures a GraphOpenAIClient. An empty BaseURL
// or Model falls back to DefaultBaseURL and DefaultModel.
type NewGraphOpenAIClientParams struct {
	Model   string
	BaseURL string
	APIKey  string
}

// NewGraphOpenAIClient creates a client for a single API key. The orchestrator
// builds one per request because callers may supply their own key.
//
// Example:
//
//	client := openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
//		APIKey: os.Getenv("GEMINI_API_KEY"),
//	})
func NewGraphOpenAIClient(params NewGraphOpenAIClientParams) *GraphOpenAIClient {
	model := params.Model
	if model == "" {
		model = DefaultModel
	}
	baseURL := params.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := openai.NewClient(
		option.WithAPIKey(params.APIKey),
		option.WithBaseURL(baseURL),
	)

	return &GraphOpenAIClient{
		model:      model,
		baseURL:    baseURL,
		ChatClient: &client,
	}
}

// ResetMetrics clears all accumulated token and timing metrics.
func (c *GraphOpenAIClient) ResetMetrics() {
	c.metricsLock.Lock()
	c.metrics = ai.ModelMetrics{}
	c.metricsLock.Unlock()
}

// GetMetrics returns the accumulated usage since the last reset.
func (c *GraphOpenAIClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *GraphOpenAIClient) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics.Add(m)
}
