package policy

import "strings"

type Action string

const (
	ActionNone    Action = ""
	ActionKick    Action = "kick"
	ActionBan     Action = "ban"
	ActionTempBan Action = "tempban"
	ActionWarn    Action = "warn"
	ActionMute    Action = "mute"

	// Reversals are executable but never configurable.
	ActionUnmute Action = "unmute"
	ActionUnban  Action = "unban"
)

// actionCycle is the order settings buttons step through.
var actionCycle = []Action{ActionKick, ActionBan, ActionTempBan, ActionWarn, ActionMute}

// ParseAction accepts only configurable actions.
func ParseAction(s string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range actionCycle {
		if a == known {
			return a, true
		}
	}
	return ActionNone, false
}

func (a Action) String() string {
	return string(a)
}

// IsConfigurable reports whether a can be stored as a policy action.
func (a Action) IsConfigurable() bool {
	_, ok := ParseAction(string(a))
	return ok
}

// Next returns the action following a in the settings cycle. Unknown values
// restart the cycle at kick.
func (a Action) Next() Action {
	return a.NextExcluding()
}

// NextExcluding steps the cycle past every excluded action.
func (a Action) NextExcluding(excluded ...Action) Action {
	idx := -1
	for i, known := range actionCycle {
		if known == a {
			idx = i
			break
		}
	}
	for step := 1; step <= len(actionCycle); step++ {
		candidate := actionCycle[(idx+step+len(actionCycle))%len(actionCycle)]
		if !containsAction(excluded, candidate) {
			return candidate
		}
	}
	return ActionKick
}

func containsAction(list []Action, a Action) bool {
	for _, item := range list {
		if item == a {
			return true
		}
	}
	return false
}
