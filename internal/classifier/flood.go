package classifier

import (
	"context"
	"fmt"
)

// Flood counts messages per member in a short fixed window.
type Flood struct {
	policy Policy
}

func NewFlood(p Policy) *Flood {
	return &Flood{policy: p}
}

func (f *Flood) Kind() Kind {
	return KindFlood
}

func (f *Flood) Classify(ctx context.Context, target *Target) (Verdict, error) {
	chatID, userID := target.ChatID(), target.UserID()
	settings, err := f.policy.Flood(ctx, chatID)
	if err != nil {
		return NoViolation(), err
	}
	if !settings.Enabled {
		return NoViolation(), nil
	}
	ignored, err := f.policy.IsIgnored(ctx, chatID, userID)
	if err != nil || ignored {
		return NoViolation(), err
	}

	count, err := f.policy.CountFlood(ctx, chatID, userID)
	if err != nil {
		return NoViolation(), err
	}
	if count <= int64(settings.Max) {
		return NoViolation(), nil
	}

	v := violation(KindFlood, settings.Action, fmt.Sprintf("Message flood detected (%d/%d)", count, settings.Max))
	v.Context["count"] = count
	v.Context["max"] = settings.Max
	v.MessageDeleted = target.Deleted()
	return v, nil
}
