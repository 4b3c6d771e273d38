package commands

import (
	"context"
	"fmt"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/policy"
)

const (
	sectionHome    = "home"
	sectionFlood   = "flood"
	sectionForward = "forward"
	sectionText    = "text"
	sectionMedia   = "media"
	sectionWarns   = "warns"
	sectionGeneral = "general"
	sectionClose   = "close"

	opToggle      = "toggle"
	opToggleText  = "toggleText"
	opToggleMedia = "toggleMedia"
	opCycle       = "cycle"
	opCycleMedia  = "cycleMedia"
	opInc         = "inc"
	opDec         = "dec"
	opTempBan     = "tempban"
)

var errUnknownMenuOp = errors.New("unknown menu operation")

var (
	menuActionTargets = map[string]policy.ActionTarget{
		sectionFlood:   policy.TargetFlood,
		sectionForward: policy.TargetForward,
		sectionText:    policy.TargetTextLength,
		sectionMedia:   policy.TargetMedia,
		sectionWarns:   policy.TargetWarnFallback,
	}

	menuBounds = map[string]policy.Bound{
		"flood":  policy.BoundFloodMax,
		"warns":  policy.BoundWarnCeiling,
		"length": policy.BoundTextMaxLength,
		"lines":  policy.BoundTextMaxLines,
	}

	// menuToggles are the settings hash fields the menu may flip.
	menuToggles = map[string]bool{
		policy.SettingFlood:               true,
		policy.SettingAllowChannelForward: true,
		policy.SettingNewUsersCaptcha:     true,
		policy.SettingWelcome:             true,
		policy.SettingDeleteLastWelcome:   true,
	}

	tempBanPresets = []int{30, 60, 180, 720, 1440}
)

// menu opens the settings menu in a private chat with the administrator,
// falling back to the group when the bot cannot write there.
func (c *Commands) menu(ctx context.Context, req *Request) error {
	if err := c.deps.Groups.SetTitle(ctx, req.Chat.ID, req.Chat.Title); err != nil {
		return err
	}
	if canModerate, err := c.deps.Platform.BotCanModerate(ctx, req.Chat.ID); err != nil {
		c.getLogEntry().WithError(err).WithField("chat_id", req.Chat.ID).Debug("cant check bot rights")
	} else if !canModerate {
		if err := c.reply(ctx, req, c.t("I need to be an administrator allowed to delete messages and ban members to moderate this group.")); err != nil {
			return err
		}
	}
	text, markup, err := c.renderMenu(ctx, req.Chat.ID, sectionHome)
	if err != nil {
		return err
	}
	if _, err := c.deps.Platform.SendText(ctx, req.User.ID, text, markup); err == nil {
		return c.reply(ctx, req, c.t("I have sent you the settings menu in a private message."))
	}
	return c.replyWithMarkup(ctx, req, text, markup)
}

func (c *Commands) menuCallback(ctx context.Context, req *CallbackRequest) error {
	action, err := parseMenuAction(req.Data)
	msg := req.Query.Message
	if err != nil || msg == nil {
		c.answer(ctx, req.Query, "", false)
		return nil
	}
	allowed, err := c.isGroupAdmin(ctx, action.ChatID, req.User.ID)
	if err != nil {
		return err
	}
	if !allowed {
		c.answer(ctx, req.Query, c.t("Only group administrators can do this"), true)
		return nil
	}
	entry := c.getLogEntry().WithFields(log.Fields{
		"chat_id": action.ChatID,
		"user_id": req.User.ID,
		"section": action.Section,
		"op":      action.Op,
		"arg":     action.Arg,
	})

	if action.Section == sectionClose {
		c.answer(ctx, req.Query, "", false)
		return c.deps.Platform.DeleteMessage(ctx, msg.Chat.ID, msg.MessageID)
	}
	if action.Op != "" {
		if err := c.applyMenuOp(ctx, action); err != nil {
			if errors.Is(err, errUnknownMenuOp) {
				entry.Debug("unknown menu operation")
				c.answer(ctx, req.Query, "", false)
				return nil
			}
			return err
		}
		entry.Info("settings changed")
	}

	text, markup, err := c.renderMenu(ctx, action.ChatID, action.Section)
	if err != nil {
		return err
	}
	c.answer(ctx, req.Query, "", false)
	return c.deps.Platform.EditMessageText(ctx, msg.Chat.ID, msg.MessageID, text, markup)
}

func (c *Commands) applyMenuOp(ctx context.Context, a menuAction) error {
	groups := c.deps.Groups
	switch a.Op {
	case opToggle:
		if !menuToggles[a.Arg] {
			return errUnknownMenuOp
		}
		_, err := groups.ToggleSetting(ctx, a.ChatID, a.Arg)
		return err
	case opToggleText:
		_, err := groups.ToggleTextLength(ctx, a.ChatID)
		return err
	case opToggleMedia:
		kind, ok := policy.ParseMediaKind(a.Arg)
		if !ok {
			return errUnknownMenuOp
		}
		_, err := groups.ToggleMedia(ctx, a.ChatID, kind)
		return err
	case opCycle:
		target, ok := menuActionTargets[a.Arg]
		if !ok {
			return errUnknownMenuOp
		}
		_, err := groups.CycleAction(ctx, a.ChatID, target)
		return err
	case opCycleMedia:
		_, err := groups.CycleAction(ctx, a.ChatID, policy.TargetMedia)
		return err
	case opInc, opDec:
		bound, ok := menuBounds[a.Arg]
		if !ok {
			return errUnknownMenuOp
		}
		_, err := groups.Step(ctx, a.ChatID, bound, a.Op == opInc)
		return err
	case opTempBan:
		current, err := groups.TempBanDuration(ctx, a.ChatID)
		if err != nil {
			return err
		}
		return groups.SetTempBanMinutes(ctx, a.ChatID, nextTempBanPreset(current))
	}
	return errUnknownMenuOp
}

func nextTempBanPreset(current time.Duration) int {
	minutes := int(current / time.Minute)
	for _, preset := range tempBanPresets {
		if preset > minutes {
			return preset
		}
	}
	return tempBanPresets[0]
}

func (c *Commands) renderMenu(ctx context.Context, chatID int64, section string) (string, *api.InlineKeyboardMarkup, error) {
	snap, err := c.deps.Groups.Snapshot(ctx, chatID)
	if err != nil {
		return "", nil, err
	}
	title := snap.Title
	if title == "" {
		title = c.t("Unknown chat")
	}
	text := fmt.Sprintf(c.t("Settings of %s"), api.EscapeText(api.ModeHTML, title))
	nav := func(s string) menuAction { return menuAction{ChatID: chatID, Section: s} }
	op := func(s, op, arg string) menuAction { return menuAction{ChatID: chatID, Section: s, Op: op, Arg: arg} }
	back := api.NewInlineKeyboardRow(button(c.t("« Back"), nav(sectionHome)))

	var rows [][]api.InlineKeyboardButton
	switch section {
	case sectionFlood:
		text += "\n\n" + c.t("Flood protection counts the messages of each member over a few seconds.")
		rows = append(rows,
			api.NewInlineKeyboardRow(button(statusEmoji(snap.Flood.Enabled)+" "+c.t("Flood protection"), op(section, opToggle, policy.SettingFlood))),
			c.stepRow(section, "flood", fmt.Sprintf(c.t("Max messages: %d"), snap.Flood.Max), nav, op),
			api.NewInlineKeyboardRow(button(c.actionButtonLabel(snap.Flood.Action), op(section, opCycle, sectionFlood))),
			back,
		)
	case sectionForward:
		rows = append(rows,
			api.NewInlineKeyboardRow(button(statusEmoji(snap.Forward.Allowed)+" "+c.t("Allow forwarded messages"), op(section, opToggle, policy.SettingAllowChannelForward))),
			api.NewInlineKeyboardRow(button(c.actionButtonLabel(snap.Forward.Action), op(section, opCycle, sectionForward))),
			back,
		)
	case sectionText:
		rows = append(rows,
			api.NewInlineKeyboardRow(button(statusEmoji(snap.TextLength.Enabled)+" "+c.t("Text length limit"), op(section, opToggleText, ""))),
			c.stepRow(section, "length", fmt.Sprintf(c.t("Max characters: %d"), snap.TextLength.MaxLength), nav, op),
			c.stepRow(section, "lines", fmt.Sprintf(c.t("Max lines: %d"), snap.TextLength.MaxLines), nav, op),
			api.NewInlineKeyboardRow(button(c.actionButtonLabel(snap.TextLength.Action), op(section, opCycle, sectionText))),
			back,
		)
	case sectionMedia:
		text += "\n\n" + c.t("Blocked media types are deleted.")
		var row []api.InlineKeyboardButton
		for _, kind := range policy.MediaKinds {
			label := statusEmoji(snap.Media[kind] == policy.MediaAllowed) + " " + c.t(string(kind))
			row = append(row, button(label, op(section, opToggleMedia, string(kind))))
			if len(row) == 2 {
				rows = append(rows, row)
				row = nil
			}
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
		rows = append(rows,
			api.NewInlineKeyboardRow(button(c.actionButtonLabel(snap.MediaAction), op(section, opCycleMedia, ""))),
			back,
		)
	case sectionWarns:
		rows = append(rows,
			c.stepRow(section, "warns", fmt.Sprintf(c.t("Warnings before penalty: %d"), snap.Warnings.Ceiling), nav, op),
			api.NewInlineKeyboardRow(button(c.actionButtonLabel(snap.Warnings.Fallback), op(section, opCycle, sectionWarns))),
			api.NewInlineKeyboardRow(button(fmt.Sprintf(c.t("Temporary ban: %d min"), int(snap.TempBan/time.Minute)), op(section, opTempBan, ""))),
			back,
		)
	case sectionGeneral:
		rows = append(rows,
			api.NewInlineKeyboardRow(button(statusEmoji(snap.RegistrationRequired)+" "+c.t("Registration required"), op(section, opToggle, policy.SettingNewUsersCaptcha))),
			api.NewInlineKeyboardRow(button(statusEmoji(snap.Welcome.Enabled)+" "+c.t("Greet new members"), op(section, opToggle, policy.SettingWelcome))),
			api.NewInlineKeyboardRow(button(statusEmoji(snap.Welcome.DeleteLast)+" "+c.t("Delete the previous greeting"), op(section, opToggle, policy.SettingDeleteLastWelcome))),
			back,
		)
	default:
		rows = append(rows,
			api.NewInlineKeyboardRow(button(c.t("Flood"), nav(sectionFlood)), button(c.t("Forwarding"), nav(sectionForward))),
			api.NewInlineKeyboardRow(button(c.t("Text length"), nav(sectionText)), button(c.t("Media"), nav(sectionMedia))),
			api.NewInlineKeyboardRow(button(c.t("Warnings"), nav(sectionWarns)), button(c.t("General"), nav(sectionGeneral))),
			api.NewInlineKeyboardRow(button("❌", nav(sectionClose))),
		)
	}
	markup := api.NewInlineKeyboardMarkup(rows...)
	return text, &markup, nil
}

// stepRow renders a "− value +" row for a bounded number.
func (c *Commands) stepRow(section, bound, label string, nav func(string) menuAction, op func(string, string, string) menuAction) []api.InlineKeyboardButton {
	return api.NewInlineKeyboardRow(
		button("−", op(section, opDec, bound)),
		button(label, nav(section)),
		button("+", op(section, opInc, bound)),
	)
}

func (c *Commands) actionButtonLabel(a policy.Action) string {
	return fmt.Sprintf(c.t("Action: %s"), c.actionName(a))
}

func (c *Commands) actionName(a policy.Action) string {
	switch a {
	case policy.ActionKick:
		return c.t("kick")
	case policy.ActionBan:
		return c.t("ban")
	case policy.ActionTempBan:
		return c.t("temporary ban")
	case policy.ActionWarn:
		return c.t("warn")
	case policy.ActionMute:
		return c.t("mute")
	}
	return a.String()
}

func button(label string, a menuAction) api.InlineKeyboardButton {
	return api.NewInlineKeyboardButtonData(label, a.encode())
}

func statusEmoji(enabled bool) string {
	if enabled {
		return "✅"
	}
	return "⬜"
}
