package agents

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/hiro-org/hiro/internal/core"
)

// AdapterSpec is the per-stage model configuration inside a profile.
type AdapterSpec struct {
	Model        string   `yaml:"model,omitempty"`
	Temperature  *float32 `yaml:"temperature,omitempty"`
	MaxTokens    int      `yaml:"maxTokens,omitempty"`
	SystemPrompt string   `yaml:"systemPrompt,omitempty"`
}

// Profile is the declarative agent configuration loaded from YAML. The
// top-level model is the fallback for every stage; Executors may override the
// executor per task type, keyed by the canonical task-type token.
type Profile struct {
	Name  string `yaml:"name"`
	Model string `yaml:"model"`

	Planner      AdapterSpec            `yaml:"planner,omitempty"`
	Atomizer     AdapterSpec            `yaml:"atomizer,omitempty"`
	Executor     AdapterSpec            `yaml:"executor,omitempty"`
	Executors    map[string]AdapterSpec `yaml:"executors,omitempty"`
	Aggregator   AdapterSpec            `yaml:"aggregator,omitempty"`
	PlanModifier AdapterSpec            `yaml:"planModifier,omitempty"`
}

// LoadProfile reads and validates a profile file.
func LoadProfile(path string) (Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	return ParseProfile(raw)
}

// ParseProfile parses profile YAML.
func ParseProfile(raw []byte) (Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile: %w", err)
	}
	if p.Model == "" {
		return Profile{}, fmt.Errorf("profile %q: model is required", p.Name)
	}
	for token := range p.Executors {
		if core.TaskTypeFromString(token).String() != token {
			return Profile{}, fmt.Errorf("profile %q: unknown task type %q", p.Name, token)
		}
	}
	return p, nil
}

// StageModel resolves a stage spec against the profile fallback model.
func (p Profile) StageModel(spec AdapterSpec) string {
	if spec.Model != "" {
		return spec.Model
	}
	return p.Model
}

// ExecutorSpec returns the executor spec for a task type, falling back to the
// generic executor spec.
func (p Profile) ExecutorSpec(t core.TaskType) AdapterSpec {
	if spec, ok := p.Executors[t.String()]; ok {
		return spec
	}
	return p.Executor
}

// DefaultProfile is the compiled-in profile used when no file is given.
func DefaultProfile() Profile {
	return Profile{Name: "default", Model: "gpt-4o-mini"}
}
