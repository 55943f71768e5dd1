package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/hiro-org/hiro/internal/agents"
	"github.com/hiro-org/hiro/internal/core"
)

// ChatClient is the slice of the OpenAI client the adapters use. The real
// *openai.Client satisfies it; tests substitute a canned implementation.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// NewClient builds the real client from an API key and optional base URL.
func NewClient(apiKey, baseURL string) *goopenai.Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return goopenai.NewClientWithConfig(cfg)
}

// stage bundles what every adapter needs for one completion call.
type stage struct {
	client       ChatClient
	model        string
	temperature  *float32
	maxTokens    int
	systemPrompt string
	jsonOutput   bool
}

func (s stage) complete(ctx context.Context, user string) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model: s.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: s.systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: user},
		},
	}
	if s.temperature != nil {
		req.Temperature = *s.temperature
	}
	if s.maxTokens > 0 {
		req.MaxTokens = s.maxTokens
	}
	if s.jsonOutput {
		req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model %s returned no choices", s.model)
	}
	return resp.Choices[0].Message.Content, nil
}

// renderInput flattens the task input into the user message.
func renderInput(input core.AgentTaskInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overall objective: %s\n", input.OverallObjective)
	fmt.Fprintf(&b, "Current goal: %s\n", input.CurrentGoal)
	if len(input.RelevantContextItems) > 0 {
		b.WriteString("\nContext from completed work:\n")
		for _, item := range input.RelevantContextItems {
			fmt.Fprintf(&b, "\n[%s] %s (%s):\n%v\n", item.SourceTaskID, item.SourceTaskGoal, item.ContentTypeDescription, item.Content)
		}
	}
	return b.String()
}

func decodeJSON(content string, v any) error {
	// Tolerate fenced output from models that ignore the JSON response mode.
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return json.Unmarshal([]byte(strings.TrimSpace(content)), v)
}

func summarize(text string) string {
	const limit = 280
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

// BuildRegistry wires a full adapter registry from a profile.
func BuildRegistry(client ChatClient, profile agents.Profile) *agents.Registry {
	reg := agents.NewRegistry()

	reg.RegisterPlanner("openai-planner", NewPlanner(client, profile, profile.Planner))
	reg.RegisterAtomizer("openai-atomizer", NewAtomizer(client, profile, profile.Atomizer))
	reg.RegisterAggregator("openai-aggregator", NewAggregator(client, profile, profile.Aggregator))
	reg.RegisterPlanModifier("openai-plan-modifier", NewPlanModifier(client, profile, profile.PlanModifier))

	reg.RegisterExecutor("openai-executor", NewExecutor(client, profile, profile.Executor))
	for token, spec := range profile.Executors {
		t := core.TaskTypeFromString(token)
		reg.RegisterExecutor("openai-executor-"+strings.ToLower(token), NewExecutor(client, profile, spec), t)
	}
	return reg
}

func newStage(client ChatClient, profile agents.Profile, spec agents.AdapterSpec, defaultPrompt string, jsonOutput bool) stage {
	prompt := spec.SystemPrompt
	if prompt == "" {
		prompt = defaultPrompt
	}
	return stage{
		client:       client,
		model:        profile.StageModel(spec),
		temperature:  spec.Temperature,
		maxTokens:    spec.MaxTokens,
		systemPrompt: prompt,
		jsonOutput:   jsonOutput,
	}
}
