// Package policy reads and mutates the per-group moderation configuration.
// Every read applies the documented defaults first, and malformed stored
// values fall back to those defaults.
package policy

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/store"
)

var (
	ErrInvalidFallback = errors.New("warn cannot be used as the warning fallback action")
	ErrInvalidAction   = errors.New("unknown action")
	ErrUnknownSetting  = errors.New("unknown setting")
)

type (
	FloodPolicy struct {
		Enabled bool
		Max     int
		Action  Action
	}

	ForwardPolicy struct {
		Allowed bool
		Action  Action
	}

	TextLengthPolicy struct {
		Enabled   bool
		MaxLength int
		MaxLines  int
		Action    Action
	}

	MediaPolicy struct {
		Status MediaStatus
		Action Action
	}

	WarnPolicy struct {
		Ceiling  int
		Fallback Action
	}

	// WelcomePolicy controls the greeting of new members. DeleteLast removes
	// the previous greetings before a new one is posted.
	WelcomePolicy struct {
		Enabled    bool
		DeleteLast bool
	}

	// Snapshot is every setting of one group, used for rendering menus.
	Snapshot struct {
		ChatID               int64
		Title                string
		Toggles              map[string]bool
		RegistrationRequired bool
		Flood                FloodPolicy
		Forward              ForwardPolicy
		TextLength           TextLengthPolicy
		Media                map[MediaKind]MediaStatus
		MediaAction          Action
		Warnings             WarnPolicy
		Welcome              WelcomePolicy
		TempBan              time.Duration
	}
)

type Groups struct {
	store       store.Store
	initialized *xsync.MapOf[int64, struct{}]
}

func NewGroups(s store.Store) *Groups {
	return &Groups{
		store:       s,
		initialized: xsync.NewMapOf[int64, struct{}](),
	}
}

func (g *Groups) getLogEntry() *log.Entry {
	return log.WithField("object", "Groups")
}

// EnsureDefaults writes every missing setting of the group. Existing values
// are never overwritten, so the call is idempotent.
func (g *Groups) EnsureDefaults(ctx context.Context, chatID int64) error {
	if _, ok := g.initialized.Load(chatID); ok {
		return nil
	}
	for _, d := range defaultFields() {
		if _, err := g.store.HSetNX(ctx, d.key(chatID), d.field, d.value); err != nil {
			return errors.Wrap(err, "init group defaults")
		}
	}
	g.initialized.Store(chatID, struct{}{})
	g.getLogEntry().WithField("chat_id", chatID).Debug("group defaults ensured")
	return nil
}

func (g *Groups) Flood(ctx context.Context, chatID int64) (FloodPolicy, error) {
	if err := g.EnsureDefaults(ctx, chatID); err != nil {
		return FloodPolicy{}, err
	}
	disabled, err := g.readFlag(ctx, store.ChatSettingsKey(chatID), SettingFlood, false)
	if err != nil {
		return FloodPolicy{}, err
	}
	maxFlood, err := g.readInt(ctx, store.ChatFloodKey(chatID), fieldMaxFlood, DefaultFloodMax)
	if err != nil {
		return FloodPolicy{}, err
	}
	action, err := g.readAction(ctx, TargetFlood, chatID)
	if err != nil {
		return FloodPolicy{}, err
	}
	return FloodPolicy{Enabled: !disabled, Max: maxFlood, Action: action}, nil
}

func (g *Groups) Forward(ctx context.Context, chatID int64) (ForwardPolicy, error) {
	if err := g.EnsureDefaults(ctx, chatID); err != nil {
		return ForwardPolicy{}, err
	}
	allowed, err := g.readFlag(ctx, store.ChatSettingsKey(chatID), SettingAllowChannelForward, false)
	if err != nil {
		return ForwardPolicy{}, err
	}
	action, err := g.readAction(ctx, TargetForward, chatID)
	if err != nil {
		return ForwardPolicy{}, err
	}
	return ForwardPolicy{Allowed: allowed, Action: action}, nil
}

func (g *Groups) TextLength(ctx context.Context, chatID int64) (TextLengthPolicy, error) {
	if err := g.EnsureDefaults(ctx, chatID); err != nil {
		return TextLengthPolicy{}, err
	}
	key := store.ChatTextLengthKey(chatID)
	disabled, err := g.readFlag(ctx, key, fieldEnabled, false)
	if err != nil {
		return TextLengthPolicy{}, err
	}
	maxLength, err := g.readInt(ctx, key, fieldMaxLength, DefaultTextMaxLength)
	if err != nil {
		return TextLengthPolicy{}, err
	}
	maxLines, err := g.readInt(ctx, key, fieldMaxLines, DefaultTextMaxLines)
	if err != nil {
		return TextLengthPolicy{}, err
	}
	action, err := g.readAction(ctx, TargetTextLength, chatID)
	if err != nil {
		return TextLengthPolicy{}, err
	}
	return TextLengthPolicy{Enabled: !disabled, MaxLength: maxLength, MaxLines: maxLines, Action: action}, nil
}

func (g *Groups) Media(ctx context.Context, chatID int64, kind MediaKind) (MediaPolicy, error) {
	if err := g.EnsureDefaults(ctx, chatID); err != nil {
		return MediaPolicy{}, err
	}
	status, err := g.mediaStatus(ctx, chatID, kind)
	if err != nil {
		return MediaPolicy{}, err
	}
	action, err := g.readAction(ctx, TargetMedia, chatID)
	if err != nil {
		return MediaPolicy{}, err
	}
	return MediaPolicy{Status: status, Action: action}, nil
}

// Warnings returns the ceiling and fallback. A stored fallback of warn is
// read as the default so escalation always ends in a terminal action.
func (g *Groups) Warnings(ctx context.Context, chatID int64) (WarnPolicy, error) {
	if err := g.EnsureDefaults(ctx, chatID); err != nil {
		return WarnPolicy{}, err
	}
	ceiling, err := g.readInt(ctx, store.ChatWarnSettingsKey(chatID), fieldWarnMax, DefaultWarnCeiling)
	if err != nil {
		return WarnPolicy{}, err
	}
	fallback, err := g.readAction(ctx, TargetWarnFallback, chatID)
	if err != nil {
		return WarnPolicy{}, err
	}
	if fallback == ActionWarn {
		fallback = DefaultWarnFallback
	}
	return WarnPolicy{Ceiling: ceiling, Fallback: fallback}, nil
}

func (g *Groups) TempBanDuration(ctx context.Context, chatID int64) (time.Duration, error) {
	if err := g.EnsureDefaults(ctx, chatID); err != nil {
		return 0, err
	}
	minutes, err := g.readInt(ctx, store.ChatSettingsKey(chatID), SettingTempBanTime, DefaultTempBanMinutes)
	if err != nil {
		return 0, err
	}
	return time.Duration(minutes) * time.Minute, nil
}

func (g *Groups) RegistrationRequired(ctx context.Context, chatID int64) (bool, error) {
	if err := g.EnsureDefaults(ctx, chatID); err != nil {
		return false, err
	}
	notRequired, err := g.readFlag(ctx, store.ChatSettingsKey(chatID), SettingNewUsersCaptcha, true)
	if err != nil {
		return false, err
	}
	return !notRequired, nil
}

func (g *Groups) Welcome(ctx context.Context, chatID int64) (WelcomePolicy, error) {
	if err := g.EnsureDefaults(ctx, chatID); err != nil {
		return WelcomePolicy{}, err
	}
	key := store.ChatSettingsKey(chatID)
	disabled, err := g.readFlag(ctx, key, SettingWelcome, true)
	if err != nil {
		return WelcomePolicy{}, err
	}
	keepLast, err := g.readFlag(ctx, key, SettingDeleteLastWelcome, false)
	if err != nil {
		return WelcomePolicy{}, err
	}
	return WelcomePolicy{Enabled: !disabled, DeleteLast: !keepLast}, nil
}

func (g *Groups) IsIgnored(ctx context.Context, chatID, userID int64) (bool, error) {
	return g.store.SIsMember(ctx, store.ChatWatchKey(chatID), strconv.FormatInt(userID, 10))
}

// CountFlood bumps the member's message counter inside the current window.
func (g *Groups) CountFlood(ctx context.Context, chatID, userID int64) (int64, error) {
	return g.store.Incr(ctx, store.FloodKey(chatID, userID), floodWindowSeconds*time.Second)
}

func (g *Groups) Title(ctx context.Context, chatID int64) (string, error) {
	title, _, err := g.store.HGet(ctx, store.ChatDetailsKey(chatID), fieldName)
	return title, err
}

func (g *Groups) SetTitle(ctx context.Context, chatID int64, title string) error {
	return g.store.HSet(ctx, store.ChatDetailsKey(chatID), fieldName, title)
}

func (g *Groups) Snapshot(ctx context.Context, chatID int64) (*Snapshot, error) {
	var err error
	s := &Snapshot{
		ChatID:  chatID,
		Toggles: make(map[string]bool, len(toggleSettings)),
		Media:   make(map[MediaKind]MediaStatus, len(MediaKinds)),
	}
	if s.Flood, err = g.Flood(ctx, chatID); err != nil {
		return nil, err
	}
	if s.Forward, err = g.Forward(ctx, chatID); err != nil {
		return nil, err
	}
	if s.TextLength, err = g.TextLength(ctx, chatID); err != nil {
		return nil, err
	}
	if s.Warnings, err = g.Warnings(ctx, chatID); err != nil {
		return nil, err
	}
	if s.TempBan, err = g.TempBanDuration(ctx, chatID); err != nil {
		return nil, err
	}
	if s.Welcome, err = g.Welcome(ctx, chatID); err != nil {
		return nil, err
	}
	if s.RegistrationRequired, err = g.RegistrationRequired(ctx, chatID); err != nil {
		return nil, err
	}
	if s.MediaAction, err = g.readAction(ctx, TargetMedia, chatID); err != nil {
		return nil, err
	}
	if s.Title, err = g.Title(ctx, chatID); err != nil {
		return nil, err
	}
	for field, def := range toggleSettings {
		if s.Toggles[field], err = g.readFlag(ctx, store.ChatSettingsKey(chatID), field, def == yes); err != nil {
			return nil, err
		}
	}
	for _, kind := range MediaKinds {
		if s.Media[kind], err = g.mediaStatus(ctx, chatID, kind); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (g *Groups) mediaStatus(ctx context.Context, chatID int64, kind MediaKind) (MediaStatus, error) {
	v, _, err := g.store.HGet(ctx, store.ChatMediaKey(chatID), string(kind))
	if err != nil {
		return "", err
	}
	if MediaStatus(v) == MediaBlocked {
		return MediaBlocked, nil
	}
	return MediaAllowed, nil
}

// readFlag reports whether the stored value is "yes".
func (g *Groups) readFlag(ctx context.Context, key, field string, def bool) (bool, error) {
	v, ok, err := g.store.HGet(ctx, key, field)
	if err != nil {
		return false, err
	}
	switch {
	case !ok:
		return def, nil
	case v == yes:
		return true, nil
	case v == no:
		return false, nil
	default:
		g.getLogEntry().WithFields(log.Fields{"key": key, "field": field, "value": v}).Warn("malformed flag, using default")
		return def, nil
	}
}

func (g *Groups) readInt(ctx context.Context, key, field string, def int) (int, error) {
	v, ok, err := g.store.HGet(ctx, key, field)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		g.getLogEntry().WithFields(log.Fields{"key": key, "field": field, "value": v}).Warn("malformed number, using default")
		return def, nil
	}
	return n, nil
}

func (g *Groups) readAction(ctx context.Context, target ActionTarget, chatID int64) (Action, error) {
	slot := actionSlots[target]
	v, ok, err := g.store.HGet(ctx, slot.key(chatID), slot.field)
	if err != nil {
		return ActionNone, err
	}
	if !ok {
		return slot.def, nil
	}
	action, known := ParseAction(v)
	if !known {
		g.getLogEntry().WithFields(log.Fields{"chat_id": chatID, "field": slot.field, "value": v}).Warn("malformed action, using default")
		return slot.def, nil
	}
	return action, nil
}
