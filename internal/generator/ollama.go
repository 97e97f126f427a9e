package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/sony/gobreaker"

	"github.com/example/promptpack/api-go/internal/config"
	"github.com/example/promptpack/api-go/internal/model"
	"github.com/example/promptpack/api-go/internal/workspace"
)

const systemPrompt = "You write project deliverables. Answer with the full content of a single Markdown document."

// errCallerGone marks a call abandoned by its caller; the breaker does not
// count it against the backend.
var errCallerGone = errors.New("caller gone")

// Ollama generates artifacts through an Ollama server's OpenAI-compatible API.
type Ollama struct {
	client         openai.Client
	model          string
	timeout        time.Duration
	maxPromptBytes int
	breaker        *gobreaker.CircuitBreaker
}

// NewOllama builds a client for baseURL (e.g. http://ollama:11434).
func NewOllama(baseURL, modelName string, timeout time.Duration, maxPromptBytes int) *Ollama {
	if modelName == "" {
		modelName = config.DefaultOllamaModel
	}
	if timeout <= 0 {
		timeout = config.DefaultOllamaTimeout
	}
	apiURL := strings.TrimRight(baseURL, "/") + "/v1/"
	client := openai.NewClient(
		option.WithBaseURL(apiURL),
		option.WithAPIKey("ollama"),
		option.WithMaxRetries(0),
	)
	return &Ollama{
		client:         client,
		model:          modelName,
		timeout:        timeout,
		maxPromptBytes: maxPromptBytes,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "ollama",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, errCallerGone)
			},
		}),
	}
}

func (o *Ollama) ModelName() string { return o.model }

func (o *Ollama) Generate(ctx context.Context, prompt string, ws workspace.Workspace) ([]string, error) {
	if err := ValidatePrompt(prompt, o.maxPromptBytes); err != nil {
		return nil, err
	}

	out, err := o.breaker.Execute(func() (interface{}, error) {
		content, err := o.complete(ctx, prompt)
		if err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", errCallerGone, err)
		}
		return content, err
	})
	switch {
	case err == nil:
	case errors.Is(err, errCallerGone):
		return nil, model.NewJobError(model.ErrGeneration, "generation cancelled", ctx.Err())
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, model.NewJobError(model.ErrGeneration, "generation backend unavailable", fmt.Errorf("%w: %w", model.ErrBackend, err))
	default:
		return nil, model.NewJobError(model.ErrGeneration, "generation backend request failed", fmt.Errorf("%w: %w", model.ErrBackend, err))
	}
	content := out.(string)

	readme := fmt.Sprintf("Prompt: %s\nModel: %s\n", prompt, o.model)
	files := make([]string, 0, 2)
	for _, f := range []struct{ name, body string }{
		{"README.txt", readme},
		{"response.md", content},
	} {
		name, err := ws.Create(f.name, strings.NewReader(f.body))
		if err != nil {
			return nil, model.NewJobError(model.ErrGeneration, "write "+f.name, err)
		}
		files = append(files, name)
	}
	return files, nil
}

func (o *Ollama) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}
	content := completion.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("empty completion")
	}
	return content, nil
}

// FromConfig selects the generator named by cfg.Generator.
func FromConfig(cfg config.Config) (Generator, error) {
	switch cfg.Generator {
	case "", KindPlaceholder:
		return Placeholder{MaxPromptBytes: cfg.MaxPromptBytes}, nil
	case KindOllama:
		return NewOllama(cfg.Ollama.BaseURL, cfg.Ollama.Model, cfg.Ollama.Timeout, cfg.MaxPromptBytes), nil
	default:
		return nil, fmt.Errorf("unknown generator %q", cfg.Generator)
	}
}
