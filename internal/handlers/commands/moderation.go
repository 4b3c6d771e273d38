package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/enforcement"
	"github.com/iamwavecut/ngguard/internal/policy"
)

const (
	callbackUnban        = enforcement.CallbackUnban
	callbackUnmute       = enforcement.CallbackUnmute
	callbackRemoveWarn   = enforcement.CallbackRemoveWarn
	callbackRegistration = "reg|"
	callbackMenu         = "menu|"
)

// replyTarget returns the author of the message the command replies to.
func replyTarget(req *Request) *api.User {
	if req.Message.ReplyToMessage == nil {
		return nil
	}
	return req.Message.ReplyToMessage.From
}

func (c *Commands) ignore(ctx context.Context, req *Request) error {
	target := replyTarget(req)
	if target == nil {
		return c.reply(ctx, req, c.t("Reply to a member's message to use this command"))
	}
	if err := c.deps.Groups.Ignore(ctx, req.Chat.ID, target.ID); err != nil {
		return err
	}
	return c.reply(ctx, req, fmt.Sprintf(c.t("%s will no longer be checked."), enforcement.DisplayName(target)))
}

func (c *Commands) unignore(ctx context.Context, req *Request) error {
	target := replyTarget(req)
	if target == nil {
		return c.reply(ctx, req, c.t("Reply to a member's message to use this command"))
	}
	if err := c.deps.Groups.Unignore(ctx, req.Chat.ID, target.ID); err != nil {
		return err
	}
	return c.reply(ctx, req, fmt.Sprintf(c.t("%s is checked again."), enforcement.DisplayName(target)))
}

// warn records a manual warning through the ledger, escalating like any
// automatic one.
func (c *Commands) warn(ctx context.Context, req *Request) error {
	target := replyTarget(req)
	if target == nil {
		return c.reply(ctx, req, c.t("Reply to a member's message to use this command"))
	}
	isAdmin, err := c.deps.Platform.IsGroupAdmin(ctx, req.Chat.ID, target.ID)
	if err != nil {
		return err
	}
	if isAdmin || target.IsBot {
		return c.reply(ctx, req, c.t("Administrators cannot be warned"))
	}

	outcome, err := c.deps.Ledger.Warn(ctx, req.Chat.ID, target.ID)
	if err != nil {
		return err
	}
	name := enforcement.DisplayName(target)
	uid := strconv.FormatInt(target.ID, 10)
	if !outcome.Escalated {
		markup := api.NewInlineKeyboardMarkup(api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData(c.t("Remove warning"), callbackRemoveWarn+uid),
		))
		text := fmt.Sprintf(c.t("%s has been warned by an administrator (%d/%d)."), name, outcome.Count, outcome.Ceiling)
		return c.replyWithMarkup(ctx, req, text, &markup)
	}

	text := fmt.Sprintf(c.t("Warning limit reached (%d/%d). "), outcome.Count, outcome.Ceiling)
	var markup *api.InlineKeyboardMarkup
	switch outcome.Fallback {
	case policy.ActionKick:
		text += fmt.Sprintf(c.t("%s has been kicked."), name)
	case policy.ActionBan, policy.ActionTempBan:
		text += fmt.Sprintf(c.t("%s has been banned."), name)
		m := api.NewInlineKeyboardMarkup(api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData(c.t("Remove ban"), callbackUnban+uid),
		))
		markup = &m
	case policy.ActionMute:
		text += fmt.Sprintf(c.t("%s has been muted."), name)
		m := api.NewInlineKeyboardMarkup(api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData(c.t("Unmute"), callbackUnmute+uid),
		))
		markup = &m
	}
	return c.replyWithMarkup(ctx, req, text, markup)
}

// info shows what the ledger and the executor know about a member.
func (c *Commands) info(ctx context.Context, req *Request) error {
	target := replyTarget(req)
	if target == nil {
		return c.reply(ctx, req, c.t("Reply to a member's message to use this command"))
	}
	chatID := req.Chat.ID
	count, err := c.deps.Ledger.Count(ctx, chatID, target.ID)
	if err != nil {
		return err
	}
	settings, err := c.deps.Groups.Warnings(ctx, chatID)
	if err != nil {
		return err
	}
	muted, err := c.deps.Executor.IsMuted(ctx, chatID, target.ID)
	if err != nil {
		return err
	}
	tempBanned, err := c.deps.Executor.IsTempBanned(ctx, chatID, target.ID)
	if err != nil {
		return err
	}
	registered, err := c.deps.Registry.IsRegistered(ctx, chatID, target.ID)
	if err != nil {
		return err
	}
	ignored, err := c.deps.Groups.IsIgnored(ctx, chatID, target.ID)
	if err != nil {
		return err
	}
	lines := []string{
		enforcement.DisplayName(target),
		fmt.Sprintf(c.t("Warnings: %d/%d"), count, settings.Ceiling),
		fmt.Sprintf(c.t("Muted: %s"), c.yesNo(muted)),
		fmt.Sprintf(c.t("Temporarily banned: %s"), c.yesNo(tempBanned)),
		fmt.Sprintf(c.t("Registered: %s"), c.yesNo(registered)),
		fmt.Sprintf(c.t("Exempt from checks: %s"), c.yesNo(ignored)),
	}
	return c.reply(ctx, req, strings.Join(lines, "\n"))
}

func (c *Commands) yesNo(v bool) string {
	if v {
		return c.t("Yes")
	}
	return c.t("No")
}

func (c *Commands) unbanCallback(ctx context.Context, req *CallbackRequest) error {
	return c.reverse(ctx, req, policy.ActionUnban, c.t("Ban removed by %s"))
}

func (c *Commands) unmuteCallback(ctx context.Context, req *CallbackRequest) error {
	return c.reverse(ctx, req, policy.ActionUnmute, c.t("Unmuted by %s"))
}

// reverse undoes a penalty announced in the callback's message and marks
// the notice as resolved.
func (c *Commands) reverse(ctx context.Context, req *CallbackRequest, action policy.Action, resolvedFormat string) error {
	userID, err := strconv.ParseInt(req.Data, 10, 64)
	if err != nil {
		c.answer(ctx, req.Query, "", false)
		return nil
	}
	chatID := req.Query.Message.Chat.ID
	if !c.deps.Executor.Execute(ctx, chatID, userID, action) {
		c.answer(ctx, req.Query, c.t("The action failed, check the bot permissions"), true)
		return nil
	}
	c.getLogEntry().WithFields(log.Fields{
		"chat_id": chatID,
		"user_id": userID,
		"by":      req.User.ID,
		"action":  action.String(),
	}).Info("penalty reversed")
	c.answer(ctx, req.Query, c.t("Done"), false)
	return c.resolveNotice(ctx, req, fmt.Sprintf(resolvedFormat, enforcement.DisplayName(req.User)))
}

func (c *Commands) removeWarnCallback(ctx context.Context, req *CallbackRequest) error {
	userID, err := strconv.ParseInt(req.Data, 10, 64)
	if err != nil {
		c.answer(ctx, req.Query, "", false)
		return nil
	}
	removed, err := c.deps.Ledger.Remove(ctx, req.Query.Message.Chat.ID, userID)
	if err != nil {
		return err
	}
	if !removed {
		c.answer(ctx, req.Query, c.t("There are no warnings to remove"), true)
		return nil
	}
	c.answer(ctx, req.Query, c.t("Done"), false)
	return c.resolveNotice(ctx, req, fmt.Sprintf(c.t("Warning removed by %s"), enforcement.DisplayName(req.User)))
}

// resolveNotice appends a note to the notice and drops its buttons.
func (c *Commands) resolveNotice(ctx context.Context, req *CallbackRequest, note string) error {
	msg := req.Query.Message
	text := api.EscapeText(api.ModeHTML, msg.Text) + "\n\n" + note
	return c.deps.Platform.EditMessageText(ctx, msg.Chat.ID, msg.MessageID, text, nil)
}
