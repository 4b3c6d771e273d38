package policy

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/store"
)

// ToggleYesNo flips a stored yes/no value. Anything other than "yes" reads as "no".
func ToggleYesNo(v string) string {
	if v == yes {
		return no
	}
	return yes
}

// ToggleSetting flips a yes/no field of the settings hash and returns the new value.
func (g *Groups) ToggleSetting(ctx context.Context, chatID int64, field string) (string, error) {
	def, known := toggleSettings[field]
	if !known {
		return "", errors.Wrap(ErrUnknownSetting, field)
	}
	return g.toggle(ctx, chatID, store.ChatSettingsKey(chatID), field, def)
}

// ToggleTextLength flips the stored "enabled" flag of the text length check.
func (g *Groups) ToggleTextLength(ctx context.Context, chatID int64) (string, error) {
	return g.toggle(ctx, chatID, store.ChatTextLengthKey(chatID), fieldEnabled, no)
}

func (g *Groups) toggle(ctx context.Context, chatID int64, key, field, def string) (string, error) {
	if err := g.EnsureDefaults(ctx, chatID); err != nil {
		return "", err
	}
	current, ok, err := g.store.HGet(ctx, key, field)
	if err != nil {
		return "", err
	}
	if !ok {
		current = def
	}
	next := ToggleYesNo(current)
	if err := g.store.HSet(ctx, key, field, next); err != nil {
		return "", err
	}
	g.getLogEntry().WithFields(log.Fields{"chat_id": chatID, "key": key, "field": field, "value": next}).Info("setting toggled")
	return next, nil
}

func (g *Groups) ToggleMedia(ctx context.Context, chatID int64, kind MediaKind) (MediaStatus, error) {
	if err := g.EnsureDefaults(ctx, chatID); err != nil {
		return "", err
	}
	current, err := g.mediaStatus(ctx, chatID, kind)
	if err != nil {
		return "", err
	}
	next := current.Toggle()
	if err := g.store.HSet(ctx, store.ChatMediaKey(chatID), string(kind), string(next)); err != nil {
		return "", err
	}
	return next, nil
}

// CycleAction advances an action slot. The warning fallback never lands on warn.
func (g *Groups) CycleAction(ctx context.Context, chatID int64, target ActionTarget) (Action, error) {
	if err := g.EnsureDefaults(ctx, chatID); err != nil {
		return ActionNone, err
	}
	current, err := g.readAction(ctx, target, chatID)
	if err != nil {
		return ActionNone, err
	}
	var next Action
	if target == TargetWarnFallback {
		next = current.NextExcluding(ActionWarn)
	} else {
		next = current.Next()
	}
	if err := g.writeAction(ctx, chatID, target, next); err != nil {
		return ActionNone, err
	}
	return next, nil
}

// SetAction stores an action slot, rejecting warn as the warning fallback.
func (g *Groups) SetAction(ctx context.Context, chatID int64, target ActionTarget, action Action) error {
	if !action.IsConfigurable() {
		return errors.Wrap(ErrInvalidAction, action.String())
	}
	if target == TargetWarnFallback && action == ActionWarn {
		return ErrInvalidFallback
	}
	if err := g.EnsureDefaults(ctx, chatID); err != nil {
		return err
	}
	return g.writeAction(ctx, chatID, target, action)
}

func (g *Groups) writeAction(ctx context.Context, chatID int64, target ActionTarget, action Action) error {
	slot := actionSlots[target]
	return g.store.HSet(ctx, slot.key(chatID), slot.field, action.String())
}

// Step moves a bounded number up or down by one step, wrapping past the ends.
func (g *Groups) Step(ctx context.Context, chatID int64, b Bound, up bool) (int64, error) {
	if err := g.EnsureDefaults(ctx, chatID); err != nil {
		return 0, err
	}
	delta := b.Step
	if !up {
		delta = -delta
	}
	n, err := g.store.HIncrBy(ctx, b.key(chatID), b.field, delta)
	if err != nil {
		return 0, err
	}
	switch {
	case n > b.Max:
		n = b.Min
	case n < b.Min:
		n = b.Max
	default:
		return n, nil
	}
	if err := g.store.HSet(ctx, b.key(chatID), b.field, strconv.FormatInt(n, 10)); err != nil {
		return 0, err
	}
	return n, nil
}

func (g *Groups) SetTempBanMinutes(ctx context.Context, chatID int64, minutes int) error {
	if minutes <= 0 {
		return errors.New("temp ban duration must be positive")
	}
	return g.store.HSet(ctx, store.ChatSettingsKey(chatID), SettingTempBanTime, strconv.Itoa(minutes))
}

func (g *Groups) Ignore(ctx context.Context, chatID, userID int64) error {
	return g.store.SAdd(ctx, store.ChatWatchKey(chatID), strconv.FormatInt(userID, 10))
}

func (g *Groups) Unignore(ctx context.Context, chatID, userID int64) error {
	return g.store.SRem(ctx, store.ChatWatchKey(chatID), strconv.FormatInt(userID, 10))
}
