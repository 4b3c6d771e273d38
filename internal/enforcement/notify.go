package enforcement

import (
	"fmt"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/ngguard/internal/classifier"
	"github.com/iamwavecut/ngguard/internal/i18n"
	"github.com/iamwavecut/ngguard/internal/moderation"
	"github.com/iamwavecut/ngguard/internal/policy"
)

// Callback data of the moderation buttons attached to notices.
const (
	CallbackUnban      = "mod|unban|"
	CallbackUnmute     = "mod|unmute|"
	CallbackRemoveWarn = "mod|remwarn|"
)

func (o *Orchestrator) t(key string) string {
	return i18n.Get(key, o.deps.Language)
}

func (o *Orchestrator) reason(v classifier.Verdict) string {
	switch v.Kind {
	case classifier.KindFlood:
		return fmt.Sprintf(o.t("message flood (%v/%v)"), v.Context["count"], v.Context["max"])
	case classifier.KindForward:
		return o.t("forwarding is not allowed")
	case classifier.KindTextLength:
		return fmt.Sprintf(o.t("text too long (%v/%v characters, %v/%v lines)"),
			v.Context["length"], v.Context["maxLength"], v.Context["lines"], v.Context["maxLines"])
	case classifier.KindMedia:
		return fmt.Sprintf(o.t("blocked media type: %v"), v.Context["media"])
	}
	return v.Reason
}

func (o *Orchestrator) warningNotice(userID int64, name, reason string, w moderation.WarnOutcome) (string, *api.InlineKeyboardMarkup) {
	if !w.Escalated {
		text := fmt.Sprintf(o.t("%s has been warned (%d/%d). Reason: %s"), name, w.Count, w.Ceiling, reason)
		markup := api.NewInlineKeyboardMarkup(api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData(o.t("Remove warning"), CallbackRemoveWarn+strconv.FormatInt(userID, 10)),
		))
		return text, &markup
	}
	text, markup := o.actionNotice(userID, w.Fallback, name, reason)
	if text == "" {
		return "", nil
	}
	prefix := fmt.Sprintf(o.t("Warning limit reached (%d/%d). "), w.Count, w.Ceiling)
	return prefix + text, markup
}

// actionNotice renders the announcement of a penalty together with the
// button that reverses it, if any.
func (o *Orchestrator) actionNotice(userID int64, action policy.Action, name, reason string) (string, *api.InlineKeyboardMarkup) {
	uid := strconv.FormatInt(userID, 10)
	var (
		format string
		button *api.InlineKeyboardButton
	)
	switch action {
	case policy.ActionKick:
		format = o.t("%s has been kicked. Reason: %s")
	case policy.ActionBan:
		format = o.t("%s has been banned. Reason: %s")
		b := api.NewInlineKeyboardButtonData(o.t("Remove ban"), CallbackUnban+uid)
		button = &b
	case policy.ActionTempBan:
		format = o.t("%s has been temporarily banned. Reason: %s")
		b := api.NewInlineKeyboardButtonData(o.t("Remove ban"), CallbackUnban+uid)
		button = &b
	case policy.ActionMute:
		format = o.t("%s has been muted. Reason: %s")
		b := api.NewInlineKeyboardButtonData(o.t("Unmute"), CallbackUnmute+uid)
		button = &b
	default:
		return "", nil
	}
	text := fmt.Sprintf(format, name, reason)
	if button == nil {
		return text, nil
	}
	markup := api.NewInlineKeyboardMarkup(api.NewInlineKeyboardRow(*button))
	return text, &markup
}

// DisplayName renders an HTML mention of the user.
func DisplayName(user *api.User) string {
	if user == nil {
		return ""
	}
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name == "" {
		name = user.UserName
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, user.ID, api.EscapeText(api.ModeHTML, name))
}
