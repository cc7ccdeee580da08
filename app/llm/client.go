package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to an OpenAI-compatible API for chat completions and
// embeddings.
type Client struct {
	endpoint       string
	apiKey         string
	chatModel      string
	embeddingModel string
	httpClient     *http.Client
}

func NewClient(endpoint, apiKey, chatModel, embeddingModel string) *Client {
	return &Client{
		endpoint:       strings.TrimRight(endpoint, "/"),
		apiKey:         apiKey,
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// Analyze performs one enrichment call and parses the reply into the typed
// result. A reply that cannot be parsed returns ErrMalformedResponse.
func (c *Client) Analyze(ctx context.Context, req AnalysisRequest) (*Analysis, *Usage, error) {
	system, user := BuildAnalysisPrompt(req)

	jsonFormat := &struct {
		Type string `json:"type"`
	}{Type: "json_object"}

	resp, usage, err := c.chat(ctx, chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: jsonFormat,
	})
	if err != nil {
		return nil, nil, err
	}

	analysis, err := parseAnalysis(resp)
	if err != nil {
		return nil, usage, err
	}

	return analysis, usage, nil
}

type analysisPayload struct {
	Title          *string  `json:"title"`
	Subtitle       *string  `json:"subtitle"`
	Summary        *string  `json:"summary"`
	Category       *string  `json:"category"`
	RelevanceScore *float64 `json:"relevance_score"`
}

func parseAnalysis(content string) (*Analysis, error) {
	var payload analysisPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if payload.Title == nil || *payload.Title == "" {
		return nil, fmt.Errorf("%w: missing title", ErrMalformedResponse)
	}
	if payload.Summary == nil || *payload.Summary == "" {
		return nil, fmt.Errorf("%w: missing summary", ErrMalformedResponse)
	}
	if payload.RelevanceScore == nil {
		return nil, fmt.Errorf("%w: missing relevance_score", ErrMalformedResponse)
	}

	score := *payload.RelevanceScore
	if score < 0 || score > 1 {
		return nil, fmt.Errorf("%w: relevance_score %g outside [0, 1]", ErrMalformedResponse, score)
	}

	analysis := &Analysis{
		Title:          *payload.Title,
		Summary:        *payload.Summary,
		RelevanceScore: score,
	}
	if payload.Subtitle != nil {
		analysis.Subtitle = *payload.Subtitle
	}
	if payload.Category != nil {
		analysis.CategorySlug = *payload.Category
	}

	return analysis, nil
}

// Embed returns the embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, *Usage, error) {
	body, err := json.Marshal(map[string]any{
		"model": c.embeddingModel,
		"input": text,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal embedding payload: %w", err)
	}

	data, err := c.post(ctx, "/embeddings", body)
	if err != nil {
		return nil, nil, err
	}

	var resp struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
		Usage *Usage `json:"usage"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, resp.Usage, fmt.Errorf("%w: empty embedding", ErrMalformedResponse)
	}

	return resp.Data[0].Embedding, resp.Usage, nil
}

// Complete performs a plain-text chat call, used for the on-demand score
// adjustment explanation.
func (c *Client) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	temperature := 0.7
	resp, _, err := c.chat(ctx, chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(resp), nil
}

func (c *Client) chat(ctx context.Context, req chatRequest) (string, *Usage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", nil, fmt.Errorf("marshal chat payload: %w", err)
	}

	data, err := c.post(ctx, "/chat/completions", body)
	if err != nil {
		return "", nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(resp.Choices) == 0 {
		return "", resp.Usage, fmt.Errorf("%w: no choices in reply", ErrMalformedResponse)
	}

	return resp.Choices[0].Message.Content, resp.Usage, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(data)),
		}
	}

	return data, nil
}
