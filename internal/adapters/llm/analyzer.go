// Package llm implements the analysis adapter on an OpenAI-compatible chat
// completion API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/repolens/repolens/config"
	"github.com/repolens/repolens/internal/core"
)

// defaultPrompt is the built-in system prompt used when no prompt file
// resolves. It asks for the scored markdown table the extractor understands.
const defaultPrompt = `You are a senior software engineer reviewing a code repository.
Write a concise markdown report covering architecture, code quality, testing, documentation, and security.
End the report with a markdown table of scores in this exact format:

| Category | Score |
|----------|-------|
| Security | N/10 |
| Readability | N/10 |
| Maintainability | N/10 |
| Documentation | N/10 |
| Testing | N/10 |
| Overall | N/10 |

Replace N with a number from 0 to 10. Keep category names as single words where possible.`

// AnalyzerOptions groups dependencies for Analyzer.
type AnalyzerOptions struct {
	Config config.AnalysisConfig
	Logger *slog.Logger

	// Client overrides the constructed OpenAI client (used by tests).
	Client ChatCompleter
}

// ChatCompleter is the slice of the OpenAI client the analyzer uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Analyzer produces free-form analysis text for a repository digest.
type Analyzer struct {
	client ChatCompleter
	cfg    config.AnalysisConfig
	logger *slog.Logger
}

// NewAnalyzer constructs a new Analyzer.
func NewAnalyzer(opts AnalyzerOptions) *Analyzer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := opts.Client
	if client == nil {
		clientCfg := openai.DefaultConfig(opts.Config.APIKey)
		if opts.Config.BaseURL != "" {
			clientCfg.BaseURL = opts.Config.BaseURL
		}
		client = openai.NewClientWithConfig(clientCfg)
	}

	return &Analyzer{
		client: client,
		cfg:    opts.Config,
		logger: logger,
	}
}

// Analyze sends the digest through one chat completion and returns the raw
// text. The response structure is entirely up to the model; callers extract
// what they can from it.
func (a *Analyzer) Analyze(ctx context.Context, p core.AnalyzeParams) (string, error) {
	if strings.TrimSpace(p.Digest) == "" {
		return "", errors.New("digest is empty")
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.Model,
		Temperature: float32(p.Temperature),
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: a.promptText(ctx, p.PromptRef),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: p.Digest,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", errors.New("chat completion returned empty content")
	}
	return text, nil
}

// promptText resolves a prompt reference to its text. References are plain
// names resolved inside the configured prompt directory; a missing or
// unreadable file falls back to the built-in prompt rather than failing the
// task.
func (a *Analyzer) promptText(ctx context.Context, ref string) string {
	name := strings.TrimSpace(ref)
	if name == "" {
		name = a.cfg.DefaultPrompt
	}
	if name == "" {
		return defaultPrompt
	}

	// Base strips any path components a client may have smuggled in.
	path := filepath.Join(a.cfg.PromptDir, filepath.Base(name)+".txt")
	raw, err := os.ReadFile(path)
	if err != nil {
		a.logger.WarnContext(ctx, "prompt file unavailable, using built-in prompt",
			"prompt", name,
			"path", path,
			"error", err,
		)
		return defaultPrompt
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return defaultPrompt
	}
	return text
}
