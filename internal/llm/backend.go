// Package llm talks to hosted language models. A Backend generates candidate
// scripts and summarizes command output; the concrete service is chosen once
// from configuration and never switched during a session.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gzhole/voxsh/internal/config"
)

// Backend is the capability set every model service provides.
type Backend interface {
	// Name identifies the service, e.g. "gemini".
	Name() string
	// GenerateScript returns a *GenerationError for unusable replies and a
	// *ProviderError for transport failures. It does not retry.
	GenerateScript(ctx context.Context, query, retrieved string) (Script, error)
	// InterpretOutput returns a speech-safe summary or an *InterpretationError.
	InterpretOutput(ctx context.Context, query, output string) (string, error)
}

// completer sends one prompt and returns the model's text.
type completer interface {
	complete(ctx context.Context, req completion) (string, error)
}

type completion struct {
	Prompt string
	Model  string
	// JSON asks the service to constrain the reply to a JSON object.
	JSON bool
}

// backend adapts a completer to the Backend contract. Prompting, envelope
// parsing and sanitizing are identical for every service.
type backend struct {
	name           string
	model          string
	interpretModel string
	client         completer
	logger         *slog.Logger
}

// New builds the backend named in cfg.
func New(cfg config.ProviderConfig, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key for provider %q", cfg.Name)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	b := &backend{name: cfg.Name, logger: logger.With("provider", cfg.Name)}
	switch cfg.Name {
	case "gemini":
		b.client = NewGeminiClient(cfg.APIKey, cfg.BaseURL, httpClient)
		b.model = firstNonEmpty(cfg.Model, DefaultGeminiModel)
		b.interpretModel = firstNonEmpty(cfg.InterpretModel, b.model)
	case "groq":
		b.client = NewOpenAIClient("groq", cfg.APIKey, firstNonEmpty(cfg.BaseURL, GroqBaseURL), httpClient)
		b.model = firstNonEmpty(cfg.Model, DefaultGroqModel)
		b.interpretModel = firstNonEmpty(cfg.InterpretModel, b.model)
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Name)
	}
	return b, nil
}

func (b *backend) Name() string { return b.name }

func (b *backend) GenerateScript(ctx context.Context, query, retrieved string) (Script, error) {
	start := time.Now()
	raw, err := b.client.complete(ctx, completion{
		Prompt: GeneratePrompt(query, retrieved),
		Model:  b.model,
		JSON:   true,
	})
	if err != nil {
		return Script{}, err
	}
	b.logger.DebugContext(ctx, "generation reply", "model", b.model, "bytes", len(raw), "elapsed", time.Since(start))

	script, err := ParseEnvelope(raw)
	if err != nil {
		b.logger.WarnContext(ctx, "unusable generation reply", "error", err)
		return Script{}, err
	}
	return script, nil
}

func (b *backend) InterpretOutput(ctx context.Context, query, output string) (string, error) {
	raw, err := b.client.complete(ctx, completion{
		Prompt: InterpretPrompt(query, output),
		Model:  b.interpretModel,
	})
	if err != nil {
		return "", &InterpretationError{Err: err}
	}
	text := SanitizeSpeech(raw)
	if text == "" {
		return "", &InterpretationError{Err: fmt.Errorf("empty summary")}
	}
	return text, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
