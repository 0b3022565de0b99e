package llm

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"debiasapi/internal/model"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Prompts holds the system prompt and per-category rewrite guidance.
type Prompts struct {
	System     string            `yaml:"system"`
	Default    string            `yaml:"default"`
	Categories map[string]string `yaml:"categories"`
}

// DefaultPrompts returns the guidance compiled into the binary.
func DefaultPrompts() (*Prompts, error) {
	return ParsePrompts(defaultPrompts)
}

// LoadPrompts reads a YAML file. Categories missing from the file fall back
// to the embedded guidance.
func LoadPrompts(path string) (*Prompts, error) {
	base, err := DefaultPrompts()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return base, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("llm: read prompts: %w", err)
	}
	override, err := ParsePrompts(raw)
	if err != nil {
		return nil, err
	}
	if override.System != "" {
		base.System = override.System
	}
	if override.Default != "" {
		base.Default = override.Default
	}
	for k, v := range override.Categories {
		base.Categories[k] = v
	}
	return base, nil
}

func ParsePrompts(raw []byte) (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("llm: parse prompts: %w", err)
	}
	if p.Categories == nil {
		p.Categories = map[string]string{}
	}
	return &p, nil
}

// Guidance returns the instruction for a category.
func (p *Prompts) Guidance(c model.Category) string {
	if g, ok := p.Categories[string(c)]; ok && strings.TrimSpace(g) != "" {
		return g
	}
	return p.Default
}
