package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/OFFIS-RIT/newsgraph/pkg/ai"
)

type capturedRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	ResponseFormat *struct {
		Type       string `json:"type"`
		JSONSchema struct {
			Name   string `json:"name"`
			Strict bool   `json:"strict"`
		} `json:"json_schema"`
	} `json:"response_format"`
}

func newTestServer(t *testing.T, content string, got *capturedRequest, auth *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		*auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, got); err != nil {
			t.Errorf("decode request: %v", err)
		}

		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1760000000,
			"model":   got.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateCompletion(t *testing.T) {
	var (
		got  capturedRequest
		auth string
	)
	srv := newTestServer(t, "```json\n{}\n```", &got, &auth)

	client := NewGraphOpenAIClient(NewGraphOpenAIClientParams{BaseURL: srv.URL + "/", APIKey: "k-123"})
	raw, err := client.GenerateCompletion(context.Background(), "TOPIC: Acme",
		ai.WithSystemPrompts("system"),
		ai.WithTemperature(0.2),
	)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if raw != "```json\n{}\n```" {
		t.Fatalf("expected raw answer to be returned unmodified, got %q", raw)
	}
	if auth != "Bearer k-123" {
		t.Fatalf("expected bearer key, got %q", auth)
	}
	if got.Model != DefaultModel || got.Temperature != 0.2 {
		t.Fatalf("unexpected model/temperature %q %v", got.Model, got.Temperature)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "TOPIC: Acme" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
	if got.ResponseFormat != nil {
		t.Fatalf("expected no response format, got %+v", got.ResponseFormat)
	}

	m := client.GetMetrics()
	if m.Requests != 1 || m.TotalTokens != 150 {
		t.Fatalf("unexpected metrics %+v", m)
	}
	client.ResetMetrics()
	if client.GetMetrics().TotalTokens != 0 {
		t.Fatal("expected metrics to reset")
	}
}

func TestGenerateCompletion_ResponseFormat(t *testing.T) {
	var (
		got  capturedRequest
		auth string
	)
	srv := newTestServer(t, "{}", &got, &auth)

	client := NewGraphOpenAIClient(NewGraphOpenAIClientParams{BaseURL: srv.URL + "/", APIKey: "k", Model: "gpt-4o-mini"})
	schema := map[string]any{"type": "object"}
	if _, err := client.GenerateCompletion(context.Background(), "x", ai.WithResponseFormat("graph", "", schema)); err != nil {
		t.Fatalf("generate: %v", err)
	}

	if got.Model != "gpt-4o-mini" {
		t.Fatalf("expected configured model, got %q", got.Model)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_schema" || got.ResponseFormat.JSONSchema.Name != "graph" || !got.ResponseFormat.JSONSchema.Strict {
		t.Fatalf("unexpected response format %+v", got.ResponseFormat)
	}
}

func TestGenerateCompletion_EmptyAnswer(t *testing.T) {
	var (
		got  capturedRequest
		auth string
	)
	srv := newTestServer(t, "", &got, &auth)

	client := NewGraphOpenAIClient(NewGraphOpenAIClientParams{BaseURL: srv.URL + "/", APIKey: "k"})
	_, err := client.GenerateCompletion(context.Background(), "x")
	if !errors.Is(err, ai.ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestNewGraphOpenAIClient_Defaults(t *testing.T) {
	c := NewGraphOpenAIClient(NewGraphOpenAIClientParams{APIKey: "k"})
	if c.model != DefaultModel || c.baseURL != DefaultBaseURL {
		t.Fatalf("unexpected defaults %q %q", c.model, c.baseURL)
	}
}
