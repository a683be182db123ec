// Package llmclient provides the concrete llm.Client wired at the
// engine edge: an OpenRouter-compatible chat-completions client that
// requests a JSON-schema-constrained response when the caller supplies
// one, and reports completions to an observer for cost tracking.
//
// Grounded on the teacher's (now-superseded) internal/llm client, adapted
// from the free-form ChatClient.Chat contract to llm.Client's
// ARun(worker, job) -> Report contract, and extended with a
// response_format json_schema request body per invopop/jsonschema's
// generated schemas.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"deepresearch/internal/llm"
)

const openRouterURL = "https://openrouter.ai/api/v1/chat/completions"

// Client is an OpenRouter-compatible llm.Client.
type Client struct {
	apiKey     string
	httpClient *http.Client
	observer   llm.CompletionObserver
}

// New constructs a Client. observer may be nil.
func New(apiKey string, timeout time.Duration, observer llm.CompletionObserver) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		observer:   observer,
	}
}

var _ llm.Client = (*Client)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Type       string         `json:"type"`
	JSONSchema jsonSchemaBody `json:"json_schema"`
}

type jsonSchemaBody struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat *jsonSchemaFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int     `json:"prompt_tokens"`
		CompletionTokens int     `json:"completion_tokens"`
		TotalTokens      int     `json:"total_tokens"`
		Cost             float64 `json:"cost"`
	} `json:"usage"`
}

// ARun implements llm.Client.
func (c *Client) ARun(ctx context.Context, worker llm.Worker, job llm.Job) (llm.Report, error) {
	messages := []chatMessage{
		{Role: "system", Content: worker.Instructions},
		{Role: "user", Content: job.InputPrompt},
	}

	req := chatRequest{Model: worker.Model, Messages: messages}
	if job.ResponseSchema != nil {
		schema, ok := job.ResponseSchema.(map[string]any)
		if ok {
			req.ResponseFormat = &jsonSchemaFormat{
				Type: "json_schema",
				JSONSchema: jsonSchemaBody{
					Name:   "structured_output",
					Strict: true,
					Schema: schema,
				},
			}
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return llm.Report{Status: llm.StatusFailed}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, openRouterURL, bytes.NewReader(body))
	if err != nil {
		return llm.Report{Status: llm.StatusFailed}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("HTTP-Referer", "https://github.com/deepresearch")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return llm.Report{Status: llm.StatusFailed}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return llm.Report{Status: llm.StatusFailed}, fmt.Errorf("openrouter API error %d: %s", resp.StatusCode, string(raw))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return llm.Report{Status: llm.StatusFailed}, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return llm.Report{Status: llm.StatusFailed}, fmt.Errorf("openrouter: empty choices")
	}

	content := decoded.Choices[0].Message.Content

	c.observeCompletion(worker.Model, decoded.Usage.PromptTokens, decoded.Usage.CompletionTokens, decoded.Usage.TotalTokens, decoded.Usage.Cost)

	report := llm.Report{Status: llm.StatusCompleted, Content: content}
	if req.ResponseFormat != nil {
		report.Data = json.RawMessage(content)
	}
	return report, nil
}

func (c *Client) observeCompletion(model string, promptTokens, completionTokens, totalTokens int, cost float64) {
	if c.observer == nil {
		return
	}
	if cost == 0 {
		_, _, cost = llm.CalculateCost(model, promptTokens, completionTokens)
	}
	c.observer.ObserveCompletion(llm.CompletionSignal{
		Model:            model,
		Cost:             cost,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      totalTokens,
	})
}
