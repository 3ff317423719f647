// Package retrieval finds passages relevant to a request in a prebuilt
// vector index. The index is produced by an external build step; this
// package only loads and searches it.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gzhole/voxsh/internal/config"
	"github.com/gzhole/voxsh/internal/llm"
)

// ErrIndexNotLoaded is returned by Retrieve when no index is available.
var ErrIndexNotLoaded = errors.New("retrieval index not loaded")

// DefaultK is the number of passages returned when k is not positive.
const DefaultK = 3

// Embedder turns text into a vector. It must be the same function the index
// was built with.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever embeds a query and returns the nearest passages as one context
// string.
type Retriever struct {
	index    *Index
	embedder Embedder
	retry    RetryPolicy
	logger   *slog.Logger
}

// Option customizes a Retriever.
type Option func(*Retriever)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(r *Retriever) { r.retry = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

func New(index *Index, embedder Embedder, opts ...Option) *Retriever {
	r := &Retriever{
		index:    index,
		embedder: embedder,
		retry:    DefaultRetry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open loads the configured index and builds the embedder it was built with.
func Open(cfg *config.Config, logger *slog.Logger) (*Retriever, error) {
	if logger == nil {
		logger = slog.Default()
	}
	index, err := Load(cfg.Retrieval.IndexDir)
	if err != nil {
		return nil, fmt.Errorf("load index from %s: %w", cfg.Retrieval.IndexDir, err)
	}
	embedder, err := NewEmbedder(cfg, index.Meta())
	if err != nil {
		return nil, err
	}
	logger.Info("retrieval index loaded",
		"dir", cfg.Retrieval.IndexDir,
		"passages", index.Len(),
		"dim", index.Dim(),
		"metric", index.Metric().String(),
		"embedding_provider", index.Meta().Provider,
		"embedding_model", index.Meta().Model,
	)
	return New(index, embedder, WithLogger(logger)), nil
}

// defaultEmbedTimeout bounds one embedding request when neither
// retrieval.timeout nor provider.timeout is set.
const defaultEmbedTimeout = 30 * time.Second

// NewEmbedder builds the embedder for an index. The provider and model come
// from the index metadata; configuration may only repeat them. Without
// metadata they come from the retrieval configuration, and the provider
// falls back to the generation provider.
func NewEmbedder(cfg *config.Config, meta Meta) (Embedder, error) {
	provider, model, err := resolveEmbedding(cfg, meta)
	if err != nil {
		return nil, err
	}
	key := config.EmbeddingAPIKey(provider)
	if key == "" {
		return nil, fmt.Errorf("no API key for embedding provider %q", provider)
	}

	r := cfg.Retrieval
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = cfg.Provider.Timeout
	}
	if timeout <= 0 {
		timeout = defaultEmbedTimeout
	}
	httpClient := &http.Client{Timeout: timeout}

	switch provider {
	case "gemini":
		client := llm.NewGeminiClient(key, r.EmbeddingBaseURL, httpClient)
		return llm.NewGeminiEmbedder(client, model), nil
	case "groq", "openai":
		if model == "" {
			return nil, fmt.Errorf("retrieval.embedding_model is required for provider %q", provider)
		}
		baseURL := r.EmbeddingBaseURL
		if baseURL == "" && provider == "groq" {
			baseURL = llm.GroqBaseURL
		}
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		client := llm.NewOpenAIClient(provider, key, baseURL, httpClient)
		return llm.NewOpenAIEmbedder(client, model), nil
	}
	return nil, fmt.Errorf("unsupported embedding provider %q", provider)
}

func resolveEmbedding(cfg *config.Config, meta Meta) (provider, model string, err error) {
	provider = cfg.Retrieval.EmbeddingProvider
	model = cfg.Retrieval.EmbeddingModel

	if meta.Provider != "" {
		if provider != "" && provider != meta.Provider {
			return "", "", fmt.Errorf("retrieval.embedding_provider is %q but the index was built with %q", provider, meta.Provider)
		}
		provider = meta.Provider
	}
	if meta.Model != "" {
		if model != "" && bareModel(model) != bareModel(meta.Model) {
			return "", "", fmt.Errorf("retrieval.embedding_model is %q but the index was built with %q", model, meta.Model)
		}
		model = meta.Model
	}
	if provider == "" {
		provider = cfg.Provider.Name
	}
	return provider, model, nil
}

// bareModel treats "models/x" and "x" as the same model.
func bareModel(model string) string {
	return strings.TrimPrefix(model, "models/")
}

// Index returns the loaded index, or nil.
func (r *Retriever) Index() *Index {
	if r == nil {
		return nil
	}
	return r.index
}

// Retrieve returns the k passages nearest to query, joined by blank lines in
// rank order. Embedding failures surface as *llm.ProviderError once retries
// are exhausted.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (string, error) {
	if r == nil || r.index == nil {
		return "", ErrIndexNotLoaded
	}
	if k <= 0 {
		k = DefaultK
	}

	vec, err := doWithRetry(ctx, r.logger, r.retry, func() ([]float32, error) {
		return r.embedder.Embed(ctx, query)
	})
	if err != nil {
		return "", err
	}

	hits, err := r.index.Search(vec, k)
	if err != nil {
		return "", err
	}
	passages := make([]string, len(hits))
	for i, h := range hits {
		passages[i] = r.index.Passage(h.Position)
	}
	r.logger.DebugContext(ctx, "retrieved context", "k", k, "hits", len(hits))
	return strings.Join(passages, "\n\n"), nil
}
