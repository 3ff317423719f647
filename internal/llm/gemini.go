package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const (
	GeminiBaseURL           = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel      = "gemini-1.5-flash"
	DefaultGeminiEmbedModel = "text-embedding-004"
)

// GeminiClient calls the Generative Language REST API.
type GeminiClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewGeminiClient(apiKey, baseURL string, httpClient *http.Client) *GeminiClient {
	if baseURL == "" {
		baseURL = GeminiBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GeminiClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

func (c *GeminiClient) headers() map[string]string {
	return map[string]string{"x-goog-api-key": c.apiKey}
}

func (c *GeminiClient) complete(ctx context.Context, req completion) (string, error) {
	body := map[string]any{
		"contents": []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
	}
	if req.JSON {
		body["generationConfig"] = map[string]any{"responseMimeType": "application/json"}
	}

	var resp struct {
		Candidates []struct {
			Content      geminiContent `json:"content"`
			FinishReason string        `json:"finishReason"`
		} `json:"candidates"`
		PromptFeedback struct {
			BlockReason string `json:"blockReason"`
		} `json:"promptFeedback"`
	}
	url := c.baseURL + "/models/" + modelPath(req.Model) + ":generateContent"
	if err := postJSON(ctx, c.http, "gemini", "generateContent", url, c.headers(), body, &resp); err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback.BlockReason != "" {
			return "", &GenerationError{Err: errors.New("prompt blocked: " + resp.PromptFeedback.BlockReason)}
		}
		return "", &GenerationError{Err: errors.New("no candidates in response")}
	}
	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	return text.String(), nil
}

// GeminiEmbedder embeds text with the embedContent endpoint.
type GeminiEmbedder struct {
	client *GeminiClient
	model  string
}

func NewGeminiEmbedder(client *GeminiClient, model string) *GeminiEmbedder {
	return &GeminiEmbedder{client: client, model: firstNonEmpty(model, DefaultGeminiEmbedModel)}
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body := map[string]any{
		"model":   "models/" + modelPath(e.model),
		"content": geminiContent{Parts: []geminiPart{{Text: text}}},
	}
	var resp struct {
		Embedding struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}
	url := e.client.baseURL + "/models/" + modelPath(e.model) + ":embedContent"
	if err := postJSON(ctx, e.client.http, "gemini", "embedContent", url, e.client.headers(), body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding.Values) == 0 {
		return nil, &ProviderError{Provider: "gemini", Op: "embedContent", StatusCode: http.StatusOK, Err: errors.New("empty embedding")}
	}
	return resp.Embedding.Values, nil
}

// modelPath accepts both "gemini-1.5-flash" and "models/gemini-1.5-flash".
func modelPath(model string) string {
	return strings.TrimPrefix(model, "models/")
}
