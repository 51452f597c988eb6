package nordstats

import (
	"context"
	"strconv"

	"github.com/heroiclabs/nakama-common/runtime"
)

const (
	EventAchievementUnlocked = "achievement_unlocked"

	achievementNotificationCode = 100
)

type PublisherEvent struct {
	Name      string            `json:"name,omitempty"`
	Id        string            `json:"id,omitempty"`
	Timestamp int64             `json:"timestamp,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Value     string            `json:"value,omitempty"`

	// The system that generated this event.
	System System `json:"-"`
	// SourceId identifies the event source, such as an achievement definition ID.
	SourceId string `json:"-"`
	// Source is the configuration of the event source, such as the achievement definition.
	Source any `json:"-"`
}

// The Publisher describes a target that wishes to receive events generated server-side by the systems.
//
// Publisher implementations must safely handle concurrent calls and handle any errors or retries
// internally, callers will not repeat calls in case of errors.
type Publisher interface {
	// Send is called when there are one or more events generated.
	Send(ctx context.Context, logger runtime.Logger, userID string, events []*PublisherEvent)
}

// NotificationPublisher forwards achievement unlocks to the player as persistent in-app notifications.
type NotificationPublisher struct {
	nk runtime.NakamaModule
}

func NewNotificationPublisher(nk runtime.NakamaModule) *NotificationPublisher {
	return &NotificationPublisher{nk: nk}
}

func (p *NotificationPublisher) Send(ctx context.Context, logger runtime.Logger, userID string, events []*PublisherEvent) {
	for _, event := range events {
		if event.Name != EventAchievementUnlocked {
			continue
		}
		content := map[string]any{
			"achievement_id": event.SourceId,
			"tier":           event.Value,
		}
		for k, v := range event.Metadata {
			content[k] = v
		}
		subject := "Achievement unlocked"
		if name := event.Metadata["tier_name"]; name != "" {
			subject = "Achievement unlocked: " + name
		}
		if err := p.nk.NotificationSend(ctx, userID, subject, content, achievementNotificationCode, "", true); err != nil {
			logger.Warn("Failed to send achievement notification to %s: %v", userID, err)
		}
	}
}

func achievementUnlockedEvent(system System, unlocked *UnlockedAchievement, def *AchievementDefinition, now int64) *PublisherEvent {
	return &PublisherEvent{
		Name:      EventAchievementUnlocked,
		Id:        TierRowID(unlocked.DefinitionID, unlocked.Tier.TierNumber),
		Timestamp: now,
		Metadata: map[string]string{
			"stat_key":   string(def.StatKey),
			"stat_value": strconv.FormatInt(unlocked.StatValue, 10),
			"tier_name":  unlocked.Tier.Name,
		},
		Value:    strconv.Itoa(unlocked.Tier.TierNumber),
		System:   system,
		SourceId: unlocked.DefinitionID,
		Source:   def,
	}
}
