// Package generator produces job artifacts inside a workspace.
//
// The packaging pipeline depends only on the Generator interface, so the
// placeholder writer and the model-backed generator are interchangeable.
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/promptpack/api-go/internal/config"
	"github.com/example/promptpack/api-go/internal/model"
	"github.com/example/promptpack/api-go/internal/workspace"
)

const (
	KindPlaceholder = "placeholder"
	KindOllama      = "ollama"
)

// Generator writes files for prompt into ws and returns their
// workspace-relative names. It must not write outside ws.
type Generator interface {
	Generate(ctx context.Context, prompt string, ws workspace.Workspace) ([]string, error)
}

// Func adapts a function to Generator.
type Func func(ctx context.Context, prompt string, ws workspace.Workspace) ([]string, error)

func (f Func) Generate(ctx context.Context, prompt string, ws workspace.Workspace) ([]string, error) {
	return f(ctx, prompt, ws)
}

// Placeholder writes a single README.txt echoing the prompt.
type Placeholder struct {
	MaxPromptBytes int
}

func (p Placeholder) Generate(ctx context.Context, prompt string, ws workspace.Workspace) ([]string, error) {
	if err := ValidatePrompt(prompt, p.MaxPromptBytes); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, model.NewJobError(model.ErrGeneration, "generation cancelled", err)
	}
	body := fmt.Sprintf("Prompt: %s\nThis is a placeholder.", prompt)
	name, err := ws.Create("README.txt", strings.NewReader(body))
	if err != nil {
		return nil, model.NewJobError(model.ErrGeneration, "write README.txt", err)
	}
	return []string{name}, nil
}

// ValidatePrompt rejects empty prompts and prompts over max bytes (max <= 0
// means config.DefaultMaxPromptBytes).
func ValidatePrompt(prompt string, max int) error {
	if max <= 0 {
		max = config.DefaultMaxPromptBytes
	}
	if strings.TrimSpace(prompt) == "" {
		return model.NewJobError(model.ErrGeneration, "prompt is empty", model.ErrInvalidPrompt)
	}
	if len(prompt) > max {
		return model.NewJobError(model.ErrGeneration, fmt.Sprintf("prompt exceeds %d bytes", max), model.ErrInvalidPrompt)
	}
	return nil
}
