package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/thinksystem/pddfr/pkg/sandbox"
)

// PlanAdapter is the opaque external collaborator that generates, repairs,
// classifies, and assesses the feasibility of a Plan — the planner-level
// counterpart of sandbox.LLMAdapter, kept as a separate interface because a
// plan-level adapter and a function-level adapter are selected independently
// (spec.md §9's Adapters{plan, fn} config struct).
type PlanAdapter interface {
	GeneratePlan(ctx context.Context, directive string) (string, error)
	RepairPlan(ctx context.Context, planJSON, validationError string) (string, error)
	ClassifyDualStage(ctx context.Context, directive string) (bool, error)
	AssessFeasibility(ctx context.Context, directive string, plan *Plan) (FeasibilityVerdict, error)
}

// FeasibilityVerdict is the advisory result of the feasibility gate
// (spec.md §4.7 step 5): it is recorded, never blocks execution.
type FeasibilityVerdict struct {
	Feasible bool     `json:"feasible"`
	Concerns []string `json:"concerns,omitempty"`
}

// Adapters bundles the plan-level and function-level LLM collaborators,
// captured once at startup per spec.md §9's redesign hint ("Global mutable
// adapter state ... should be captured once into an explicit Adapters{plan,
// fn} struct"), grounded on the teacher's internal/config.Config
// single-load-at-startup idiom.
type Adapters struct {
	Plan PlanAdapter
	Fn   sandbox.LLMAdapter
}

// OpenAIPlanAdapter is a concrete PlanAdapter backed by sashabaranov/go-openai,
// mirroring sandbox.OpenAIAdapter's single-bound-provider shape.
type OpenAIPlanAdapter struct {
	client *openai.Client
	model  string
}

func NewOpenAIPlanAdapter(apiKey, model string) *OpenAIPlanAdapter {
	return &OpenAIPlanAdapter{client: openai.NewClient(apiKey), model: model}
}

func (a *OpenAIPlanAdapter) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("planner: openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("planner: openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

const planSystemPrompt = `You produce a single JSON document matching this schema exactly:
{"functions":[{"name":str,"export":str,"wat":str}],"flow":{"id":str,"start":str,"blocks":[{"id":str,"type":"display"|"compute"|"terminal","next":str,"expression":str,"output_key":str}]},"execution_graph":{"nodes":[...]},"evaluators":[...],"numeric_domain":{"expected_range":[lo,hi],"target":str}}
Output raw JSON only, no markdown fencing, no explanatory text.`

func (a *OpenAIPlanAdapter) GeneratePlan(ctx context.Context, directive string) (string, error) {
	return a.complete(ctx, planSystemPrompt, directive)
}

func (a *OpenAIPlanAdapter) RepairPlan(ctx context.Context, planJSON, validationError string) (string, error) {
	user := fmt.Sprintf("The plan:\n%s\n\nfailed validation with:\n%s\n\nProduce a corrected plan JSON.", planJSON, validationError)
	return a.complete(ctx, planSystemPrompt, user)
}

func (a *OpenAIPlanAdapter) ClassifyDualStage(ctx context.Context, directive string) (bool, error) {
	resp, err := a.complete(ctx, `Answer with exactly "yes" or "no": does this directive require more than one evaluator stage (a multi-stage scan)?`, directive)
	if err != nil {
		return false, err
	}
	return containsYes(resp), nil
}

func (a *OpenAIPlanAdapter) AssessFeasibility(ctx context.Context, directive string, plan *Plan) (FeasibilityVerdict, error) {
	planJSON, _ := json.Marshal(plan)
	resp, err := a.complete(ctx,
		`Reply with JSON {"feasible":bool,"concerns":[str,...]} assessing whether this plan's numeric ranges and evaluators are realistic for the directive.`,
		fmt.Sprintf("Directive: %s\nPlan: %s", directive, planJSON))
	if err != nil {
		return FeasibilityVerdict{}, err
	}
	var verdict FeasibilityVerdict
	if err := json.Unmarshal([]byte(resp), &verdict); err != nil {
		return FeasibilityVerdict{Feasible: true, Concerns: []string{"feasibility response was not valid JSON, treated as advisory pass"}}, nil
	}
	return verdict, nil
}

func containsYes(s string) bool {
	return strings.Contains(strings.ToLower(s), "yes")
}

// OfflineAdapter is a PlanAdapter that never calls out, used for --offline
// runs and for --plan-file runs where no generation is ever attempted.
// GeneratePlan and RepairPlan fail loudly rather than silently returning an
// empty plan, so a flow that unexpectedly needs generation surfaces as an
// error instead of a confusing downstream validation failure.
// ClassifyDualStage answers "no" and AssessFeasibility returns a feasible
// verdict noting that the gate was skipped.
type OfflineAdapter struct{}

func (OfflineAdapter) GeneratePlan(context.Context, string) (string, error) {
	return "", fmt.Errorf("planner: plan generation requested in --offline mode")
}

func (OfflineAdapter) RepairPlan(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("planner: plan repair requested in --offline mode")
}

func (OfflineAdapter) ClassifyDualStage(context.Context, string) (bool, error) {
	return false, nil
}

func (OfflineAdapter) AssessFeasibility(context.Context, string, *Plan) (FeasibilityVerdict, error) {
	return FeasibilityVerdict{Feasible: true, Concerns: []string{"feasibility gate skipped in --offline mode"}}, nil
}
