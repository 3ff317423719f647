package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const (
	GroqBaseURL      = "https://api.groq.com/openai/v1"
	DefaultGroqModel = "llama-3.1-8b-instant"
)

// OpenAIClient speaks the OpenAI-compatible chat completions protocol used
// by Groq and others.
type OpenAIClient struct {
	provider string
	apiKey   string
	baseURL  string
	http     *http.Client
}

func NewOpenAIClient(provider, apiKey, baseURL string, httpClient *http.Client) *OpenAIClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenAIClient{
		provider: provider,
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *OpenAIClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

func (c *OpenAIClient) complete(ctx context.Context, req completion) (string, error) {
	body := map[string]any{
		"model":    req.Model,
		"messages": []chatMessage{{Role: "user", Content: req.Prompt}},
	}
	if req.JSON {
		body["response_format"] = map[string]string{"type": "json_object"}
	}

	var resp struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	if err := postJSON(ctx, c.http, c.provider, "chat/completions", c.baseURL+"/chat/completions", c.headers(), body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &GenerationError{Err: errors.New("no choices in response")}
	}
	return resp.Choices[0].Message.Content, nil
}

// OpenAIEmbedder embeds text with an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client *OpenAIClient
	model  string
}

func NewOpenAIEmbedder(client *OpenAIClient, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body := map[string]any{
		"model": e.model,
		"input": text,
	}
	var resp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := postJSON(ctx, e.client.http, e.client.provider, "embeddings", e.client.baseURL+"/embeddings", e.client.headers(), body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &ProviderError{Provider: e.client.provider, Op: "embeddings", StatusCode: http.StatusOK, Err: errors.New("empty embedding")}
	}
	return resp.Data[0].Embedding, nil
}
