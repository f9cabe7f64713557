package config

import (
	"fmt"
	"time"
)

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"anthropic", "openai", "gemini"}

// LLMConfig configures a reasoning backend.
type LLMConfig struct {
	Provider string `yaml:"provider"` // anthropic, openai, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// StageLLMConfig overrides the default backend for a single stage.
// Empty fields inherit from the top-level llm section.
type StageLLMConfig struct {
	Provider string `yaml:"provider,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	Model    string `yaml:"model,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
}

// StagesConfig holds per-stage backend overrides.
type StagesConfig struct {
	Orchestrator StageLLMConfig `yaml:"orchestrator"`
	Pivot        StageLLMConfig `yaml:"pivot"`
	Resolver     StageLLMConfig `yaml:"resolver"`
	Writer       StageLLMConfig `yaml:"writer"`
	Judge        StageLLMConfig `yaml:"judge"`
}

func (s StagesConfig) byName() map[string]StageLLMConfig {
	return map[string]StageLLMConfig{
		"orchestrator": s.Orchestrator,
		"pivot":        s.Pivot,
		"resolver":     s.Resolver,
		"writer":       s.Writer,
		"judge":        s.Judge,
	}
}

// ForStage resolves the effective backend for the named stage.
// A stage that switches provider without its own key keeps the default key,
// which only makes sense when both providers share credentials; Validate
// does not try to detect that.
func (c *Config) ForStage(stage string) LLMConfig {
	eff := c.LLM
	sc, ok := c.Stages.byName()[stage]
	if !ok {
		return eff
	}
	if sc.Provider != "" {
		eff.Provider = sc.Provider
	}
	if sc.APIKey != "" {
		eff.APIKey = sc.APIKey
	}
	if sc.Model != "" {
		eff.Model = sc.Model
	}
	if sc.BaseURL != "" {
		eff.BaseURL = sc.BaseURL
	}
	return eff
}

// GetTimeout returns the LLM timeout as a duration.
func (l LLMConfig) GetTimeout() time.Duration {
	return parseDuration(l.Timeout, 120*time.Second)
}

func (l LLMConfig) validate(field string) error {
	if l.APIKey == "" {
		return fmt.Errorf("%s: API key not configured (set ANTHROPIC_API_KEY, OPENAI_API_KEY, or GEMINI_API_KEY)", field)
	}
	if !isValidProvider(l.Provider) {
		return fmt.Errorf("%s: invalid provider %q (valid: %v)", field, l.Provider, ValidProviders)
	}
	return checkDuration(field+".timeout", l.Timeout)
}

func isValidProvider(p string) bool {
	for _, v := range ValidProviders {
		if p == v {
			return true
		}
	}
	return false
}
