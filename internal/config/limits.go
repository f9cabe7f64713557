package config

import (
	"fmt"
	"time"
)

// PipelineConfig bounds a single investigation run.
type PipelineConfig struct {
	StepCeiling        int  `yaml:"step_ceiling"`        // Max orchestrator steps while gathering
	PivotInterval      int  `yaml:"pivot_interval"`      // Pivot review every N steps
	SufficientEvidence int  `yaml:"sufficient_evidence"` // Stop gathering at N evidence items with data (0 = off)
	StopOnNoGaps       bool `yaml:"stop_on_no_gaps"`     // Stop gathering when the pivot finds no gaps
	RedraftCeiling     int  `yaml:"redraft_ceiling"`     // Max judge rejections per run
	MaxFollowUps       int  `yaml:"max_follow_ups"`      // Refined queries kept from each pivot
	StageRetries       int  `yaml:"stage_retries"`       // Re-asks when stage output cannot be parsed

	ToolTimeout  string `yaml:"tool_timeout"`
	GatherBudget string `yaml:"gather_budget"`
	RunTimeout   string `yaml:"run_timeout"`
}

// EventsConfig configures event retention.
type EventsConfig struct {
	Retention     string `yaml:"retention"`      // Keep a finished run this long when nobody saw done
	AckGrace      string `yaml:"ack_grace"`      // Keep a finished run this long after done was delivered
	SweepInterval string `yaml:"sweep_interval"` // How often expired runs are dropped
}

func (p PipelineConfig) validate() error {
	if p.StepCeiling < 1 {
		return fmt.Errorf("pipeline.step_ceiling must be >= 1")
	}
	if p.PivotInterval < 1 {
		return fmt.Errorf("pipeline.pivot_interval must be >= 1")
	}
	if p.SufficientEvidence < 0 {
		return fmt.Errorf("pipeline.sufficient_evidence must be >= 0")
	}
	if p.RedraftCeiling < 1 {
		return fmt.Errorf("pipeline.redraft_ceiling must be >= 1")
	}
	if p.MaxFollowUps < 0 {
		return fmt.Errorf("pipeline.max_follow_ups must be >= 0")
	}
	if p.StageRetries < 0 {
		return fmt.Errorf("pipeline.stage_retries must be >= 0")
	}
	for field, v := range map[string]string{
		"pipeline.tool_timeout":  p.ToolTimeout,
		"pipeline.gather_budget": p.GatherBudget,
		"pipeline.run_timeout":   p.RunTimeout,
	} {
		if err := checkDuration(field, v); err != nil {
			return err
		}
	}
	return nil
}

// GetToolTimeout returns the per-call tool timeout.
func (p PipelineConfig) GetToolTimeout() time.Duration {
	return parseDuration(p.ToolTimeout, 30*time.Second)
}

// GetGatherBudget returns the wall-clock budget for the gathering stage.
func (p PipelineConfig) GetGatherBudget() time.Duration {
	return parseDuration(p.GatherBudget, 5*time.Minute)
}

// GetRunTimeout returns the wall-clock budget for a whole run.
func (p PipelineConfig) GetRunTimeout() time.Duration {
	return parseDuration(p.RunTimeout, 15*time.Minute)
}

func (e EventsConfig) validate() error {
	for field, v := range map[string]string{
		"events.retention":      e.Retention,
		"events.ack_grace":      e.AckGrace,
		"events.sweep_interval": e.SweepInterval,
	} {
		if err := checkDuration(field, v); err != nil {
			return err
		}
	}
	return nil
}

// GetRetention returns how long an unacknowledged finished run is kept.
func (e EventsConfig) GetRetention() time.Duration {
	return parseDuration(e.Retention, 10*time.Minute)
}

// GetAckGrace returns how long a finished run is kept after done was delivered.
func (e EventsConfig) GetAckGrace() time.Duration {
	return parseDuration(e.AckGrace, 30*time.Second)
}

// GetSweepInterval returns the sweeper period.
func (e EventsConfig) GetSweepInterval() time.Duration {
	return parseDuration(e.SweepInterval, time.Minute)
}
