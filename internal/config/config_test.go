package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY",
		"DOSSIER_ADDR", "DOSSIER_ARCHIVE", "DOSSIER_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 15, cfg.Pipeline.StepCeiling)
	assert.Equal(t, 3, cfg.Pipeline.PivotInterval)
	assert.Equal(t, 8, cfg.Pipeline.SufficientEvidence)
	assert.True(t, cfg.Pipeline.StopOnNoGaps)
	assert.Equal(t, 3, cfg.Pipeline.RedraftCeiling)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.GetToolTimeout())
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.GetGatherBudget())
	assert.Equal(t, 15*time.Minute, cfg.Pipeline.GetRunTimeout())
	assert.Equal(t, 10*time.Minute, cfg.Events.GetRetention())
	assert.Equal(t, 30*time.Second, cfg.Events.GetAckGrace())
	assert.False(t, cfg.Archive.Enabled)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Pipeline, cfg.Pipeline)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "dossier.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  step_ceiling: 4
stages:
  judge:
    provider: openai
    model: gpt-4o
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Pipeline.StepCeiling)
	assert.Equal(t, 3, cfg.Pipeline.PivotInterval)
	assert.Equal(t, "openai", cfg.Stages.Judge.Provider)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline: [unclosed"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "dossier.yaml")
	cfg := DefaultConfig()
	cfg.Server.Addr = ":9999"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", loaded.Server.Addr)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("ANTHROPIC_API_KEY sets provider", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ANTHROPIC_API_KEY", "ant-key")

		cfg := &Config{LLM: LLMConfig{Provider: "initial"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "ant-key", cfg.LLM.APIKey)
		assert.Equal(t, "anthropic", cfg.LLM.Provider)
	})

	t.Run("Precedence: GEMINI overrides OPENAI overrides ANTHROPIC", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ANTHROPIC_API_KEY", "ant-key")
		t.Setenv("OPENAI_API_KEY", "oa-key")
		t.Setenv("GEMINI_API_KEY", "gem-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gem-key", cfg.LLM.APIKey)
		assert.Equal(t, "gemini", cfg.LLM.Provider)
	})

	t.Run("DOSSIER_ARCHIVE enables the archive", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DOSSIER_ARCHIVE", "/tmp/runs.db")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.True(t, cfg.Archive.Enabled)
		assert.Equal(t, "/tmp/runs.db", cfg.Archive.Path)
	})

	t.Run("Server and logging overrides", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DOSSIER_ADDR", "127.0.0.1:7000")
		t.Setenv("DOSSIER_LOG_LEVEL", "debug")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.LLM.APIKey = "k"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing key", func(c *Config) { c.LLM.APIKey = "" }, "API key"},
		{"bad provider", func(c *Config) { c.LLM.Provider = "bogus" }, "invalid provider"},
		{"bad stage provider", func(c *Config) { c.Stages.Pivot.Provider = "bogus" }, "stages.pivot"},
		{"zero step ceiling", func(c *Config) { c.Pipeline.StepCeiling = 0 }, "step_ceiling"},
		{"zero redraft ceiling", func(c *Config) { c.Pipeline.RedraftCeiling = 0 }, "redraft_ceiling"},
		{"bad tool timeout", func(c *Config) { c.Pipeline.ToolTimeout = "soon" }, "tool_timeout"},
		{"bad retention", func(c *Config) { c.Events.Retention = "-1s" }, "events.retention"},
		{"archive without path", func(c *Config) { c.Archive.Enabled = true; c.Archive.Path = "" }, "archive.path"},
		{"no run slots", func(c *Config) { c.Server.MaxConcurrentRuns = 0 }, "max_concurrent_runs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestForStage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "default-key"
	cfg.Stages.Judge = StageLLMConfig{Provider: "openai", Model: "gpt-4o", APIKey: "judge-key"}

	judge := cfg.ForStage("judge")
	assert.Equal(t, "openai", judge.Provider)
	assert.Equal(t, "gpt-4o", judge.Model)
	assert.Equal(t, "judge-key", judge.APIKey)
	assert.Equal(t, cfg.LLM.Timeout, judge.Timeout)

	writer := cfg.ForStage("writer")
	assert.Equal(t, cfg.LLM, writer)

	assert.Equal(t, cfg.LLM, cfg.ForStage("unknown"))
}

func TestDurationFallbacks(t *testing.T) {
	p := PipelineConfig{ToolTimeout: "garbage", GatherBudget: "", RunTimeout: "2m"}
	assert.Equal(t, 30*time.Second, p.GetToolTimeout())
	assert.Equal(t, 5*time.Minute, p.GetGatherBudget())
	assert.Equal(t, 2*time.Minute, p.GetRunTimeout())
}
