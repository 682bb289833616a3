package sandbox

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// LLMAdapter is the opaque external collaborator the planner (C7) and the
// sandbox's healing loop (heal.go) use to synthesise or repair function
// source (WAT, native Go, or DSL rule text). It is intentionally narrow —
// one method, "turn a directive plus optional prior attempt/error into
// source text" — matching the teacher's LLMProvider interface shape
// (pkg/executor/builtin/llm.go) generalized from "answer a chat prompt" to
// "produce source code".
type LLMAdapter interface {
	GenerateSource(ctx context.Context, req GenerationRequest) (string, error)
}

// GenerationRequest captures everything an LLMAdapter needs to produce or
// repair one source artifact.
type GenerationRequest struct {
	Directive       string // the user's original natural-language goal
	TargetMode      Mode   // wat, wasm, or native — shapes the prompt's grammar constraints
	PreviousSource  string // non-empty on a repair attempt
	PreviousError   string // compiler/runtime error text from the previous attempt
}

// OpenAIAdapter is a concrete LLMAdapter backed by sashabaranov/go-openai,
// adapted from the teacher's provider-per-backend registration idiom
// (LLMExecutor.RegisterProvider) down to a single bound provider, since the
// planner only ever needs one adapter instance per run (selected once via
// CLI flags, not per-block like the teacher's workflow nodes).
type OpenAIAdapter struct {
	client *openai.Client
	model  string
}

// NewOpenAIAdapter returns an OpenAIAdapter using apiKey and model (e.g.
// "gpt-4o-mini"). A zero-value apiKey is accepted so callers running
// --offline can construct the adapter without a key and never invoke it.
func NewOpenAIAdapter(apiKey, model string) *OpenAIAdapter {
	return &OpenAIAdapter{client: openai.NewClient(apiKey), model: model}
}

// GenerateSource implements LLMAdapter by sending a single chat-completion
// request that embeds the grammar constraints for req.TargetMode and, on a
// repair attempt, the previous source and the error it produced.
func (a *OpenAIAdapter) GenerateSource(ctx context.Context, req GenerationRequest) (string, error) {
	prompt := buildPrompt(req)
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPromptFor(req.TargetMode)},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("sandbox: openai generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("sandbox: openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func systemPromptFor(mode Mode) string {
	switch mode {
	case ModeWAT:
		return "You write WebAssembly Text in the following canonical form only: " +
			`(module (func $NAME (export "EXPORT") (param $n i32) (result i32) ...)). ` +
			"Declare all locals up front. Every if must have a matching else branch " +
			"(use (else (nop)) when there is nothing to do). Only use these instructions: " +
			"i32.rem_u, i32.eq, i32.add, i32.const, local.get, local.set, block, loop, br, br_if, return. " +
			"No imports, no comments, no markdown fencing — output raw WAT only."
	case ModeNative:
		return "You write a single Go source file, package main, exporting exactly one " +
			"function: func Compute(args []any) (any, error). Output raw Go source only, " +
			"no markdown fencing, no explanatory text."
	default:
		return "You write sandboxed WebAssembly modules. Output raw source only."
	}
}

func buildPrompt(req GenerationRequest) string {
	if req.PreviousSource == "" {
		return req.Directive
	}
	return fmt.Sprintf(
		"The directive is: %s\n\nThe previous attempt was:\n%s\n\nIt failed with error:\n%s\n\nProduce a corrected version.",
		req.Directive, req.PreviousSource, req.PreviousError,
	)
}
