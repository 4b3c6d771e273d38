package policy

import (
	"strconv"

	"github.com/iamwavecut/ngguard/internal/store"
)

// Settings hash fields. Stored values are "yes"/"no"; for Flood, Welcome,
// DeleteLastWelcome, NewUsersCaptcha and the text length "enabled" flag "no"
// keeps the feature active.
const (
	SettingWelcome             = "Welcome"
	SettingDeleteLastWelcome   = "DeleteLastWelcome"
	SettingNewUsersCaptcha     = "NewUsersCaptcha"
	SettingAllowChannelForward = "AllowChannelForward"
	SettingFlood               = "Flood"
	SettingTempBanTime         = "tempbantime"

	fieldForward     = "Forward"
	fieldMaxFlood    = "MaxFlood"
	fieldActionFlood = "ActionFlood"
	fieldAction      = "action"
	fieldEnabled     = "enabled"
	fieldMaxLength   = "maxlength"
	fieldMaxLines    = "maxlines"
	fieldWarnMax     = "mediamax"
	fieldName        = "name"

	yes = "yes"
	no  = "no"
)

const (
	DefaultFloodMax        = 8
	DefaultFloodAction     = ActionKick
	DefaultForwardAction   = ActionWarn
	DefaultMediaAction     = ActionWarn
	DefaultTextMaxLength   = 4000
	DefaultTextMaxLines    = 50
	DefaultTextAction      = ActionWarn
	DefaultWarnCeiling     = 5
	DefaultWarnFallback    = ActionKick
	DefaultTempBanMinutes  = 30
	floodWindowSeconds     = 6
	defaultMediaStatusText = string(MediaAllowed)
)

// toggleSettings are the settings hash fields that flip between yes and no.
var toggleSettings = map[string]string{
	SettingWelcome:             yes,
	SettingDeleteLastWelcome:   no,
	SettingNewUsersCaptcha:     yes,
	SettingAllowChannelForward: no,
	SettingFlood:               no,
}

type fieldDefault struct {
	key   func(int64) string
	field string
	value string
}

func defaultFields() []fieldDefault {
	fields := make([]fieldDefault, 0, 40)
	for field, value := range toggleSettings {
		fields = append(fields, fieldDefault{store.ChatSettingsKey, field, value})
	}
	fields = append(fields,
		fieldDefault{store.ChatSettingsKey, SettingTempBanTime, strconv.Itoa(DefaultTempBanMinutes)},
		fieldDefault{store.ChatCharKey, fieldForward, DefaultForwardAction.String()},
		fieldDefault{store.ChatMediaKey, fieldAction, DefaultMediaAction.String()},
		fieldDefault{store.ChatTextLengthKey, fieldEnabled, no},
		fieldDefault{store.ChatTextLengthKey, fieldMaxLength, strconv.Itoa(DefaultTextMaxLength)},
		fieldDefault{store.ChatTextLengthKey, fieldMaxLines, strconv.Itoa(DefaultTextMaxLines)},
		fieldDefault{store.ChatTextLengthKey, fieldAction, DefaultTextAction.String()},
		fieldDefault{store.ChatWarnSettingsKey, fieldWarnMax, strconv.Itoa(DefaultWarnCeiling)},
		fieldDefault{store.ChatWarnSettingsKey, fieldAction, DefaultWarnFallback.String()},
		fieldDefault{store.ChatFloodKey, fieldMaxFlood, strconv.Itoa(DefaultFloodMax)},
		fieldDefault{store.ChatFloodKey, fieldActionFlood, DefaultFloodAction.String()},
	)
	for _, kind := range MediaKinds {
		fields = append(fields, fieldDefault{store.ChatMediaKey, string(kind), defaultMediaStatusText})
	}
	return fields
}

// Bound is a numeric setting adjusted in fixed steps that wraps around its range.
type Bound struct {
	key   func(int64) string
	field string
	Step  int64
	Min   int64
	Max   int64
}

var (
	BoundFloodMax      = Bound{store.ChatFloodKey, fieldMaxFlood, 1, 5, 30}
	BoundWarnCeiling   = Bound{store.ChatWarnSettingsKey, fieldWarnMax, 1, 3, 8}
	BoundTextMaxLength = Bound{store.ChatTextLengthKey, fieldMaxLength, 500, 500, 4000}
	BoundTextMaxLines  = Bound{store.ChatTextLengthKey, fieldMaxLines, 10, 10, 50}
)

// ActionTarget names a configurable action slot of a group.
type ActionTarget int

const (
	TargetForward ActionTarget = iota
	TargetFlood
	TargetTextLength
	TargetMedia
	TargetWarnFallback
)

type actionSlot struct {
	key   func(int64) string
	field string
	def   Action
}

var actionSlots = map[ActionTarget]actionSlot{
	TargetForward:      {store.ChatCharKey, fieldForward, DefaultForwardAction},
	TargetFlood:        {store.ChatFloodKey, fieldActionFlood, DefaultFloodAction},
	TargetTextLength:   {store.ChatTextLengthKey, fieldAction, DefaultTextAction},
	TargetMedia:        {store.ChatMediaKey, fieldAction, DefaultMediaAction},
	TargetWarnFallback: {store.ChatWarnSettingsKey, fieldAction, DefaultWarnFallback},
}
