package nordstats

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// ValidateDefinitions checks that definition ids are unique and that every definition has a stat key and
// tiers numbered 1..N with strictly increasing thresholds.
func ValidateDefinitions(definitions []*AchievementDefinition) error {
	seen := make(map[string]struct{}, len(definitions))
	for i, def := range definitions {
		if def == nil {
			return fmt.Errorf("definition %d is nil", i)
		}
		if strings.TrimSpace(def.ID) == "" {
			return fmt.Errorf("definition %d has no id", i)
		}
		if _, ok := seen[def.ID]; ok {
			return fmt.Errorf("duplicate definition id %q", def.ID)
		}
		seen[def.ID] = struct{}{}
		if def.StatKey == "" {
			return fmt.Errorf("definition %q has no stat key", def.ID)
		}
		if len(def.Tiers) == 0 {
			return fmt.Errorf("definition %q has no tiers", def.ID)
		}
		for j, tier := range def.Tiers {
			if tier == nil {
				return fmt.Errorf("definition %q tier %d is nil", def.ID, j+1)
			}
			if tier.TierNumber != j+1 {
				return fmt.Errorf("definition %q tier at position %d is numbered %d", def.ID, j+1, tier.TierNumber)
			}
			if tier.Threshold <= 0 {
				return fmt.Errorf("definition %q tier %d threshold must be positive", def.ID, tier.TierNumber)
			}
			if j > 0 && tier.Threshold <= def.Tiers[j-1].Threshold {
				return fmt.Errorf("definition %q tier %d threshold %d is not above tier %d", def.ID, tier.TierNumber, tier.Threshold, j)
			}
		}
	}
	return nil
}

// AchievementEvaluator computes the should-have set of a player from normalized stats. It holds no
// mutable state and is safe for concurrent use.
type AchievementEvaluator struct {
	definitions []*AchievementDefinition
	byID        map[string]*AchievementDefinition
}

func NewAchievementEvaluator(definitions []*AchievementDefinition) (*AchievementEvaluator, error) {
	if err := ValidateDefinitions(definitions); err != nil {
		return nil, err
	}
	return &AchievementEvaluator{
		definitions: definitions,
		byID:        lo.KeyBy(definitions, func(def *AchievementDefinition) string { return def.ID }),
	}, nil
}

func (e *AchievementEvaluator) Definitions() []*AchievementDefinition {
	return e.definitions
}

// Definition looks up a definition by id.
func (e *AchievementEvaluator) Definition(id string) (*AchievementDefinition, bool) {
	def, ok := e.byID[id]
	return def, ok
}

// Evaluate returns, in definition order, the highest tier of each definition the stats qualify for.
// Definitions whose stat is zero or negative are skipped.
func (e *AchievementEvaluator) Evaluate(stats StatVector) []*UnlockedAchievement {
	unlocked := make([]*UnlockedAchievement, 0, len(e.definitions))
	for _, def := range e.definitions {
		value := stats.Get(def.StatKey)
		if value <= 0 {
			continue
		}
		var awarded *Tier
		for _, tier := range def.Tiers {
			if value < tier.Threshold {
				break
			}
			awarded = tier
		}
		if awarded == nil {
			continue
		}
		unlocked = append(unlocked, &UnlockedAchievement{
			DefinitionID: def.ID,
			Tier:         awarded,
			StatValue:    value,
		})
	}
	return unlocked
}

// AchievementPoints sums the points of every awarded tier and the lower tiers it implies.
func (e *AchievementEvaluator) AchievementPoints(unlocked []*UnlockedAchievement) int64 {
	var total int64
	for _, u := range unlocked {
		def, ok := e.byID[u.DefinitionID]
		if !ok || u.Tier == nil {
			continue
		}
		total += lo.SumBy(def.Tiers, func(t *Tier) int64 {
			if t.TierNumber <= u.Tier.TierNumber {
				return t.Points
			}
			return 0
		})
	}
	return total
}
