package nordstats

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	ticksPerHour        = 72000
	centimetresPerBlock = 100
)

// statSourceKeys maps canonical keys to the raw counter they are read from.
// Canonical keys without an entry are read from the raw counter of the same name.
var statSourceKeys = map[StatKey]string{
	StatPlaytimeHours:      "custom_minecraft_play_time",
	StatBlocksPlaced:       "use_dirt",
	StatBlocksBroken:       "mine_ground",
	StatMobKills:           "kill_any",
	StatPlayerKills:        "custom_minecraft_player_kills",
	StatDeaths:             "custom_minecraft_deaths",
	StatDiamondsFound:      "mine_diamond_ore",
	StatAncientDebrisFound: "mine_ancient_debris",
	StatJumps:              "custom_minecraft_jump",
	StatBoatDistance:       "custom_minecraft_boat_one_cm",
	StatMinecartDistance:   "custom_minecraft_minecart_one_cm",
	StatFishCaught:         "custom_minecraft_fish_caught",
	StatVillagerTrades:     "custom_minecraft_traded_with_villager",
	StatItemsEnchanted:     "custom_minecraft_enchant_item",
	StatAnimalsBred:        "custom_minecraft_animals_bred",
}

var statConversions = map[StatKey]func(int64) int64{
	StatPlaytimeHours:    func(ticks int64) int64 { return ticks / ticksPerHour },
	StatBoatDistance:     func(cm int64) int64 { return cm / centimetresPerBlock },
	StatMinecartDistance: func(cm int64) int64 { return cm / centimetresPerBlock },
}

// consumedRawKeys are raw counters folded into a canonical key; they are not passed through.
var consumedRawKeys = func() map[string]struct{} {
	set := make(map[string]struct{}, len(statSourceKeys))
	for _, raw := range statSourceKeys {
		set[raw] = struct{}{}
	}
	return set
}()

// SourceKey returns the raw counter name a canonical key is read from.
func SourceKey(key StatKey) string {
	if raw, ok := statSourceKeys[key]; ok {
		return raw
	}
	return string(key)
}

// Normalize maps a raw record onto the canonical vocabulary. Every canonical key is present in the
// result, 0 when the source counter is missing. Raw counters that feed no canonical key are carried
// over under their raw name. Negative counters are clamped to 0.
func Normalize(raw RawStatRecord) StatVector {
	out := make(StatVector, len(CanonicalStatKeys)+len(raw))
	for name, value := range raw {
		if _, consumed := consumedRawKeys[name]; consumed {
			continue
		}
		out[StatKey(name)] = max(value, 0)
	}
	for _, key := range CanonicalStatKeys {
		value := max(raw[SourceKey(key)], 0)
		if convert, ok := statConversions[key]; ok {
			value = convert(value)
		}
		out[key] = value
	}
	return out
}

// CoerceRawStats converts decoded JSON values into a RawStatRecord. Values that are not numeric, or
// numeric but outside the int64 range, become 0. Fractional values are floored.
func CoerceRawStats(values map[string]any) RawStatRecord {
	out := make(RawStatRecord, len(values))
	for name, value := range values {
		out[name] = coerceStatValue(value)
	}
	return out
}

func coerceStatValue(value any) int64 {
	switch v := value.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float32:
		return floatToStat(float64(v))
	case float64:
		return floatToStat(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return floatToStat(f)
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return floatToStat(f)
	default:
		return 0
	}
}

func floatToStat(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f <= math.MinInt64 {
		return 0
	}
	return int64(math.Floor(f))
}

var vanillaCategoryPrefixes = map[string]string{
	"minecraft:mined":     "mine",
	"minecraft:used":      "use",
	"minecraft:crafted":   "craft",
	"minecraft:broken":    "break",
	"minecraft:picked_up": "pickup",
	"minecraft:dropped":   "drop",
	"minecraft:killed":    "kill",
	"minecraft:killed_by": "killed_by",
	"minecraft:custom":    "custom",
}

// FlattenVanillaStats turns a decoded vanilla stats document into raw counters. Category "minecraft:used"
// with entry "minecraft:dirt" becomes "use_dirt"; custom entries keep their namespace, so
// "minecraft:play_time" becomes "custom_minecraft_play_time". The aggregate counters "kill_any" and
// "mine_ground" are the totals of the killed and mined categories. A document without a "stats" object
// is read as a flat map of counters.
func FlattenVanillaStats(doc map[string]any) RawStatRecord {
	categories, ok := doc["stats"].(map[string]any)
	if !ok {
		return CoerceRawStats(doc)
	}

	out := make(RawStatRecord)
	for category, entries := range categories {
		values, ok := entries.(map[string]any)
		if !ok {
			continue
		}
		prefix, known := vanillaCategoryPrefixes[category]
		if !known {
			prefix = flattenName(category)
		}
		var total int64
		for entry, value := range values {
			n := coerceStatValue(value)
			total += n

			name := flattenName(entry)
			if prefix != "custom" {
				name = flattenName(strings.TrimPrefix(entry, "minecraft:"))
			}
			out[prefix+"_"+name] += n
		}
		switch prefix {
		case "kill":
			out["kill_any"] += total
		case "mine":
			out["mine_ground"] += total
		}
	}
	return out
}

func flattenName(name string) string {
	return strings.NewReplacer(":", "_", ".", "_", "/", "_").Replace(name)
}
