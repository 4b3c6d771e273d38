package commands

import (
	"context"
	"fmt"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/registration"
)

func (c *Commands) start(ctx context.Context, req *Request) error {
	groupID, ok := registration.ParseStartPayload(req.Args)
	if !ok || !req.Chat.IsPrivate() {
		return c.reply(ctx, req, c.t("Hi! I keep group chats tidy. Add me to a group as an administrator and use /menu there to configure me."))
	}

	title, err := c.deps.Registry.GroupTitle(ctx, groupID)
	if err != nil {
		return err
	}
	registered, err := c.deps.Registry.IsRegistered(ctx, groupID, req.User.ID)
	if err != nil {
		return err
	}
	if registered {
		return c.reply(ctx, req, fmt.Sprintf(c.t("You are already registered in %s."), api.EscapeText(api.ModeHTML, title)))
	}
	member, err := c.deps.Platform.GetChatMember(ctx, groupID, req.User.ID)
	if err != nil || member.HasLeft() || member.WasKicked() {
		if err != nil {
			c.getLogEntry().WithError(err).WithField("group_id", groupID).Debug("cant check membership")
		}
		return c.reply(ctx, req, fmt.Sprintf(c.t("You are not a member of %s."), api.EscapeText(api.ModeHTML, title)))
	}

	c.deps.Registry.Begin(req.User.ID, groupID)
	return c.reply(ctx, req, fmt.Sprintf(c.t("Registering you in %s. Please send your full name."), api.EscapeText(api.ModeHTML, title)))
}

// register posts the registration deep link for the group.
func (c *Commands) register(ctx context.Context, req *Request) error {
	if err := c.deps.Registry.StoreGroupInfo(ctx, req.Chat.ID, req.Chat.Title); err != nil {
		return err
	}
	if err := c.deps.Groups.SetTitle(ctx, req.Chat.ID, req.Chat.Title); err != nil {
		return err
	}
	markup := api.NewInlineKeyboardMarkup(api.NewInlineKeyboardRow(
		api.NewInlineKeyboardButtonURL(c.t("Register"), registration.DeepLink(c.deps.Platform.BotUsername(), req.Chat.ID)),
	))
	text := fmt.Sprintf(c.t("Members of %s can register with the button below."), api.EscapeText(api.ModeHTML, req.Chat.Title))
	return c.replyWithMarkup(ctx, req, text, &markup)
}

// handleRegistrationText takes the name typed during a registration.
func (c *Commands) handleRegistrationText(ctx context.Context, req *Request) (bool, error) {
	session, ok := c.deps.Registry.Session(req.User.ID)
	if !ok || session.Stage != registration.StageAwaitingName {
		return false, nil
	}
	if _, err := c.deps.Registry.SubmitName(req.User.ID, req.Message.Text); err != nil {
		if errors.Is(err, registration.ErrEmptyName) {
			return true, c.reply(ctx, req, c.t("Please send your full name."))
		}
		return true, err
	}

	markup := api.NewInlineKeyboardMarkup(api.NewInlineKeyboardRow(
		api.NewInlineKeyboardButtonData(c.t("Yes"), callbackRegistration+string(registration.AttendanceYes)),
		api.NewInlineKeyboardButtonData(c.t("No"), callbackRegistration+string(registration.AttendanceNo)),
		api.NewInlineKeyboardButtonData(c.t("Maybe"), callbackRegistration+string(registration.AttendanceMaybe)),
	))
	return true, c.replyWithMarkup(ctx, req, c.t("Will you attend?"), &markup)
}

func (c *Commands) registrationCallback(ctx context.Context, req *CallbackRequest) error {
	answer, ok := registration.ParseAttendance(req.Data)
	if !ok {
		c.answer(ctx, req.Query, "", false)
		return nil
	}
	session, err := c.deps.Registry.Complete(ctx, req.User, answer)
	switch {
	case errors.Is(err, registration.ErrNoSession), errors.Is(err, registration.ErrWrongStage):
		c.answer(ctx, req.Query, c.t("Your registration has expired. Please start again from the group."), true)
		return nil
	case err != nil:
		c.answer(ctx, req.Query, c.t("Registration failed, please try again later."), true)
		return err
	}

	title, err := c.deps.Registry.GroupTitle(ctx, session.GroupID)
	if err != nil {
		return err
	}
	c.answer(ctx, req.Query, "", false)
	c.getLogEntry().WithFields(log.Fields{
		"group_id":   session.GroupID,
		"user_id":    req.User.ID,
		"attendance": string(answer),
	}).Debug("registration completed")

	text := fmt.Sprintf(c.t("Thank you, %s! You are registered in %s."),
		api.EscapeText(api.ModeHTML, strings.TrimSpace(session.Name)), api.EscapeText(api.ModeHTML, title))
	if msg := req.Query.Message; msg != nil {
		return c.deps.Platform.EditMessageText(ctx, msg.Chat.ID, msg.MessageID, text, nil)
	}
	_, err = c.deps.Platform.SendText(ctx, req.User.ID, text, nil)
	return err
}
