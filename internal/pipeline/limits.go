package pipeline

import (
	"time"

	"dossier/internal/config"
)

// Limits bound a single run.
type Limits struct {
	StepCeiling        int
	PivotInterval      int
	SufficientEvidence int // 0 disables
	StopOnNoGaps       bool
	RedraftCeiling     int
	MaxFollowUps       int
	GatherBudget       time.Duration
	RunTimeout         time.Duration
}

// DefaultLimits returns the limits of the default configuration.
func DefaultLimits() Limits {
	return LimitsFromConfig(config.DefaultConfig().Pipeline)
}

// LimitsFromConfig converts the pipeline section of the config.
func LimitsFromConfig(p config.PipelineConfig) Limits {
	return Limits{
		StepCeiling:        p.StepCeiling,
		PivotInterval:      p.PivotInterval,
		SufficientEvidence: p.SufficientEvidence,
		StopOnNoGaps:       p.StopOnNoGaps,
		RedraftCeiling:     p.RedraftCeiling,
		MaxFollowUps:       p.MaxFollowUps,
		GatherBudget:       p.GetGatherBudget(),
		RunTimeout:         p.GetRunTimeout(),
	}
}

func (l Limits) normalized() Limits {
	if l.StepCeiling < 1 {
		l.StepCeiling = 1
	}
	if l.PivotInterval < 1 {
		l.PivotInterval = 1
	}
	if l.RedraftCeiling < 1 {
		l.RedraftCeiling = 1
	}
	if l.GatherBudget <= 0 {
		l.GatherBudget = 5 * time.Minute
	}
	if l.RunTimeout <= 0 {
		l.RunTimeout = 15 * time.Minute
	}
	return l
}
