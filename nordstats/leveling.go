package nordstats

import (
	"fmt"
	"sort"
)

const defaultMaxLevel = 50

// LevelingConfig is the data definition for a LevelingSystem type.
type LevelingConfig struct {
	// XPPerLevel[i] is the XP needed to advance from level i+1 to level i+2. Empty selects DefaultXPCurve.
	XPPerLevel []int64 `json:"xp_per_level,omitempty" yaml:"xp_per_level,omitempty"`
}

// DefaultXPCurve returns the built-in curve: 50 levels, each step 10 XP larger than the last.
func DefaultXPCurve() []int64 {
	curve := make([]int64, defaultMaxLevel-1)
	for i := range curve {
		curve[i] = 50 + 10*int64(i)
	}
	return curve
}

type LevelInfo struct {
	Level            int     `json:"level"`
	TotalXP          int64   `json:"total_xp"`
	XPInCurrentLevel int64   `json:"xp_in_current_level"`
	XPForNextLevel   int64   `json:"xp_for_next_level"`
	Progress         float64 `json:"progress"`
}

// A LevelingSystem converts total XP to a level on a fixed curve.
type LevelingSystem interface {
	System

	// CalculateLevelInfo returns the level reached with totalXP. Negative XP counts as 0.
	CalculateLevelInfo(totalXP int64) *LevelInfo

	// MaxLevel returns the last level of the curve.
	MaxLevel() int
}

var _ LevelingSystem = &NakamaLevelingSystem{}

type NakamaLevelingSystem struct {
	config *LevelingConfig
	steps  []int64
	// thresholds[i] is the total XP at which level i+1 is reached.
	thresholds []int64
}

func NewNakamaLevelingSystem(config *LevelingConfig) (*NakamaLevelingSystem, error) {
	if config == nil {
		config = &LevelingConfig{}
	}
	steps := config.XPPerLevel
	if len(steps) == 0 {
		steps = DefaultXPCurve()
	}
	for i, step := range steps {
		if step <= 0 {
			return nil, fmt.Errorf("xp for level %d must be positive", i+2)
		}
		if i > 0 && step < steps[i-1] {
			return nil, fmt.Errorf("xp for level %d is below level %d", i+2, i+1)
		}
	}

	thresholds := make([]int64, len(steps)+1)
	for i, step := range steps {
		thresholds[i+1] = thresholds[i] + step
	}
	return &NakamaLevelingSystem{
		config:     config,
		steps:      steps,
		thresholds: thresholds,
	}, nil
}

func (l *NakamaLevelingSystem) GetType() SystemType {
	return SystemTypeLeveling
}

func (l *NakamaLevelingSystem) GetConfig() any {
	return l.config
}

func (l *NakamaLevelingSystem) MaxLevel() int {
	return len(l.thresholds)
}

func (l *NakamaLevelingSystem) CalculateLevelInfo(totalXP int64) *LevelInfo {
	if totalXP < 0 {
		totalXP = 0
	}
	level := sort.Search(len(l.thresholds), func(i int) bool {
		return l.thresholds[i] > totalXP
	})
	info := &LevelInfo{
		Level:            level,
		TotalXP:          totalXP,
		XPInCurrentLevel: totalXP - l.thresholds[level-1],
	}
	if level == l.MaxLevel() {
		info.Progress = 1
		return info
	}
	info.XPForNextLevel = l.steps[level-1]
	info.Progress = float64(info.XPInCurrentLevel) / float64(info.XPForNextLevel)
	return info
}
