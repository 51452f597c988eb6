package nordstats

import "fmt"

var defaultTierPoints = [5]int64{10, 25, 50, 100, 250}

type tierSeed struct {
	name      string
	threshold int64
}

func tieredDefinition(id, displayName, description string, statKey StatKey, colorTag, icon string, seeds ...tierSeed) *AchievementDefinition {
	tiers := make([]*Tier, 0, len(seeds))
	for i, seed := range seeds {
		points := defaultTierPoints[len(defaultTierPoints)-1]
		if i < len(defaultTierPoints) {
			points = defaultTierPoints[i]
		}
		tiers = append(tiers, &Tier{
			TierNumber:  i + 1,
			Name:        seed.name,
			Description: fmt.Sprintf("Reach %d %s", seed.threshold, statKey),
			Threshold:   seed.threshold,
			Points:      points,
			Icon:        fmt.Sprintf("%s_%d", icon, i+1),
		})
	}
	return &AchievementDefinition{
		ID:          id,
		DisplayName: displayName,
		Description: description,
		StatKey:     statKey,
		ColorTag:    colorTag,
		Tiers:       tiers,
	}
}

// DefaultAchievementDefinitions returns a fresh copy of the built-in achievement set.
func DefaultAchievementDefinitions() []*AchievementDefinition {
	return []*AchievementDefinition{
		tieredDefinition("master_builder", "Master Builder", "Place blocks across the world", StatBlocksPlaced, "amber", "hammer",
			tierSeed{"Apprentice Builder", 1000},
			tierSeed{"Constructor", 5000},
			tierSeed{"Architect", 25000},
			tierSeed{"Master Mason", 100000},
			tierSeed{"World Shaper", 500000},
		),
		tieredDefinition("time_lord", "Time Lord", "Spend time on the server", StatPlaytimeHours, "violet", "clock",
			tierSeed{"Newcomer", 1},
			tierSeed{"Regular", 10},
			tierSeed{"Dedicated", 50},
			tierSeed{"Veteran", 100},
			tierSeed{"Time Lord", 500},
		),
		tieredDefinition("diamond_miner", "Diamond Miner", "Mine diamond ore", StatDiamondsFound, "cyan", "diamond",
			tierSeed{"Lucky Find", 1},
			tierSeed{"Prospector", 10},
			tierSeed{"Treasure Hunter", 50},
			tierSeed{"Gem Collector", 200},
			tierSeed{"Diamond Baron", 1000},
		),
		tieredDefinition("excavator", "Excavator", "Break blocks of any kind", StatBlocksBroken, "stone", "pickaxe",
			tierSeed{"Digger", 1000},
			tierSeed{"Tunneler", 10000},
			tierSeed{"Excavator", 50000},
			tierSeed{"Quarry Master", 250000},
			tierSeed{"Mountain Mover", 1000000},
		),
		tieredDefinition("monster_hunter", "Monster Hunter", "Defeat hostile and passive mobs", StatMobKills, "red", "sword",
			tierSeed{"Slayer", 10},
			tierSeed{"Hunter", 100},
			tierSeed{"Warrior", 500},
			tierSeed{"Champion", 2500},
			tierSeed{"Legend", 10000},
		),
		tieredDefinition("gladiator", "Gladiator", "Defeat other players", StatPlayerKills, "crimson", "axe",
			tierSeed{"Duelist", 1},
			tierSeed{"Fighter", 10},
			tierSeed{"Gladiator", 50},
			tierSeed{"Warlord", 200},
			tierSeed{"Conqueror", 1000},
		),
		tieredDefinition("netherite_seeker", "Netherite Seeker", "Mine ancient debris", StatAncientDebrisFound, "brown", "debris",
			tierSeed{"Scavenger", 1},
			tierSeed{"Salvager", 16},
			tierSeed{"Smelter", 64},
			tierSeed{"Forgemaster", 256},
			tierSeed{"Netherite Lord", 1024},
		),
		tieredDefinition("sailor", "Sailor", "Travel by boat", StatBoatDistance, "blue", "boat",
			tierSeed{"Deckhand", 1000},
			tierSeed{"Boatswain", 10000},
			tierSeed{"Navigator", 50000},
			tierSeed{"Captain", 200000},
			tierSeed{"Admiral", 1000000},
		),
		tieredDefinition("rail_rider", "Rail Rider", "Travel by minecart", StatMinecartDistance, "gray", "minecart",
			tierSeed{"Passenger", 500},
			tierSeed{"Commuter", 5000},
			tierSeed{"Conductor", 25000},
			tierSeed{"Engineer", 100000},
			tierSeed{"Railway Baron", 500000},
		),
		tieredDefinition("angler", "Angler", "Catch fish", StatFishCaught, "teal", "fishing_rod",
			tierSeed{"Novice Angler", 10},
			tierSeed{"Fisher", 100},
			tierSeed{"Seasoned Angler", 500},
			tierSeed{"Master Angler", 2000},
			tierSeed{"Sea Whisperer", 10000},
		),
		tieredDefinition("merchant", "Merchant", "Trade with villagers", StatVillagerTrades, "green", "emerald",
			tierSeed{"Peddler", 10},
			tierSeed{"Trader", 100},
			tierSeed{"Merchant", 500},
			tierSeed{"Tycoon", 2500},
			tierSeed{"Trade Magnate", 10000},
		),
		tieredDefinition("enchanter", "Enchanter", "Enchant items", StatItemsEnchanted, "purple", "book",
			tierSeed{"Initiate", 5},
			tierSeed{"Adept", 50},
			tierSeed{"Enchanter", 250},
			tierSeed{"Arcanist", 1000},
			tierSeed{"Archmage", 5000},
		),
		tieredDefinition("rancher", "Rancher", "Breed animals", StatAnimalsBred, "lime", "wheat",
			tierSeed{"Farmhand", 10},
			tierSeed{"Shepherd", 100},
			tierSeed{"Rancher", 500},
			tierSeed{"Breeder", 2500},
			tierSeed{"Beastmaster", 10000},
		),
		tieredDefinition("raid_captain", "Raid Captain", "Defend villages from raids", StatRaidsWon, "orange", "banner",
			tierSeed{"Defender", 1},
			tierSeed{"Guardian", 5},
			tierSeed{"Protector", 25},
			tierSeed{"Hero of the Village", 100},
			tierSeed{"Raid Captain", 250},
		),
		tieredDefinition("kangaroo", "Kangaroo", "Jump around", StatJumps, "yellow", "feather",
			tierSeed{"Hopper", 1000},
			tierSeed{"Bouncer", 10000},
			tierSeed{"Leaper", 100000},
			tierSeed{"Skyjumper", 500000},
			tierSeed{"Kangaroo", 1000000},
		),
	}
}
