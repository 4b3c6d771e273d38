// Package commands serves the bot commands, the moderation buttons, the
// private registration conversation and the group settings menu.
package commands

import (
	"context"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/i18n"
	"github.com/iamwavecut/ngguard/internal/moderation"
	"github.com/iamwavecut/ngguard/internal/policy"
	"github.com/iamwavecut/ngguard/internal/registration"
	"github.com/iamwavecut/ngguard/internal/store"
	"github.com/iamwavecut/ngguard/internal/welcome"
)

type (
	platform interface {
		Send(ctx context.Context, c api.Chattable) (api.Message, error)
		SendText(ctx context.Context, chatID int64, text string, markup *api.InlineKeyboardMarkup) (api.Message, error)
		EditMessageText(ctx context.Context, chatID int64, messageID int, text string, markup *api.InlineKeyboardMarkup) error
		DeleteMessage(ctx context.Context, chatID int64, messageID int) error
		AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
		IsGroupAdmin(ctx context.Context, chatID, userID int64) (bool, error)
		GetChatMember(ctx context.Context, chatID, userID int64) (api.ChatMember, error)
		GetMemberCount(ctx context.Context, chatID int64) (int, error)
		BotCanModerate(ctx context.Context, chatID int64) (bool, error)
		LeaveChat(ctx context.Context, chatID int64) error
		BotUsername() string
	}

	greetingStore interface {
		Get(ctx context.Context, chatID int64) (welcome.Greeting, bool, error)
		Set(ctx context.Context, chatID int64, g welcome.Greeting) error
	}

	burstTracker interface {
		AddMessage(userID int64, at time.Time) (suppressReply bool)
		Tracked() int
	}

	// Request is one incoming command or private text.
	Request struct {
		Message *api.Message
		Chat    *api.Chat
		User    *api.User
		Args    string
		Lang    string

		suppressReply bool
	}

	// CallbackRequest is one pressed inline button. Data is the callback
	// payload after the trigger prefix.
	CallbackRequest struct {
		Query *api.CallbackQuery
		User  *api.User
		Data  string
		Lang  string
	}

	Command struct {
		Trigger        string
		InGroupOnly    bool
		GroupAdminOnly bool
		DevOnly        bool
		Handle         func(ctx context.Context, req *Request) error
	}

	// Callback matches callback data by prefix. GroupAdminOnly is checked
	// against the chat the button was posted in.
	Callback struct {
		Trigger        string
		GroupAdminOnly bool
		DevOnly        bool
		Handle         func(ctx context.Context, req *CallbackRequest) error
	}
)

type Dependencies struct {
	Platform  platform
	Groups    *policy.Groups
	Registry  *registration.Registry
	Ledger    *moderation.Ledger
	Executor  *moderation.Executor
	Greetings greetingStore
	Burst     burstTracker
	Store     store.Store
	IsDev     func(userID int64) bool
	Language  string
	Now       func() time.Time
}

type Commands struct {
	deps      Dependencies
	commands  []Command
	callbacks []Callback
}

func NewCommands(deps Dependencies) *Commands {
	if deps.IsDev == nil {
		deps.IsDev = func(int64) bool { return false }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Language == "" {
		deps.Language = i18n.DefaultLanguage
	}
	c := &Commands{deps: deps}
	c.commands = []Command{
		{Trigger: "start", Handle: c.start},
		{Trigger: "id", Handle: c.id},
		{Trigger: "register", InGroupOnly: true, GroupAdminOnly: true, Handle: c.register},
		{Trigger: "menu", InGroupOnly: true, GroupAdminOnly: true, Handle: c.menu},
		{Trigger: "stats", DevOnly: true, Handle: c.stats},
		{Trigger: "ignore", InGroupOnly: true, GroupAdminOnly: true, Handle: c.ignore},
		{Trigger: "unignore", InGroupOnly: true, GroupAdminOnly: true, Handle: c.unignore},
		{Trigger: "warn", InGroupOnly: true, GroupAdminOnly: true, Handle: c.warn},
		{Trigger: "info", InGroupOnly: true, GroupAdminOnly: true, Handle: c.info},
		{Trigger: "setwelcome", InGroupOnly: true, GroupAdminOnly: true, Handle: c.setWelcome},
		{Trigger: "welcome", InGroupOnly: true, GroupAdminOnly: true, Handle: c.welcomePreview},
		{Trigger: "users", DevOnly: true, Handle: c.users},
		{Trigger: "broadcast", DevOnly: true, Handle: c.broadcast},
		{Trigger: "sendmsg", DevOnly: true, Handle: c.sendMessage},
		{Trigger: "bangroup", DevOnly: true, Handle: c.banGroup},
	}
	c.callbacks = []Callback{
		{Trigger: callbackUnban, GroupAdminOnly: true, Handle: c.unbanCallback},
		{Trigger: callbackUnmute, GroupAdminOnly: true, Handle: c.unmuteCallback},
		{Trigger: callbackRemoveWarn, GroupAdminOnly: true, Handle: c.removeWarnCallback},
		{Trigger: callbackRegistration, Handle: c.registrationCallback},
		{Trigger: callbackGroupPage, DevOnly: true, Handle: c.groupPageCallback},
		{Trigger: callbackGroupSelect, DevOnly: true, Handle: c.groupSelectCallback},
		// The menu carries its own chat id and checks access itself.
		{Trigger: callbackMenu, Handle: c.menuCallback},
	}
	return c
}

func (c *Commands) getLogEntry() *log.Entry {
	return log.WithField("object", "Commands")
}

func (c *Commands) t(key string) string {
	return i18n.Get(key, c.deps.Language)
}

// Handle serves commands, callbacks and the registration conversation.
// Group messages always proceed down the handler chain, commands included,
// so the content checks see them too.
func (c *Commands) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if u == nil || user == nil {
		return true, nil
	}
	if u.CallbackQuery != nil {
		handled, err := c.handleCallback(ctx, u.CallbackQuery, user)
		return !handled, err
	}
	msg := u.Message
	if msg == nil || chat == nil {
		return true, nil
	}
	if msg.IsCommand() {
		handled, err := c.handleCommand(ctx, msg, chat, user)
		return !handled || !chat.IsPrivate(), err
	}
	if chat.IsPrivate() && msg.Text != "" {
		handled, err := c.handleRegistrationText(ctx, c.newRequest(msg, chat, user))
		return !handled, err
	}
	return true, nil
}

func (c *Commands) newRequest(msg *api.Message, chat *api.Chat, user *api.User) *Request {
	req := &Request{
		Message: msg,
		Chat:    chat,
		User:    user,
		Args:    strings.TrimSpace(msg.CommandArguments()),
		Lang:    c.deps.Language,
	}
	if c.deps.Burst != nil {
		req.suppressReply = c.deps.Burst.AddMessage(user.ID, c.deps.Now())
	}
	return req
}

func (c *Commands) handleCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) (bool, error) {
	trigger := msg.Command()
	var cmd *Command
	for i := range c.commands {
		if c.commands[i].Trigger == trigger {
			cmd = &c.commands[i]
			break
		}
	}
	if cmd == nil {
		return false, nil
	}
	entry := c.getLogEntry().WithFields(log.Fields{"command": trigger, "chat_id": chat.ID, "user_id": user.ID})

	if cmd.DevOnly && !c.deps.IsDev(user.ID) {
		entry.Debug("not a developer, ignoring")
		return true, nil
	}
	req := c.newRequest(msg, chat, user)
	if cmd.InGroupOnly && chat.IsPrivate() {
		return true, c.reply(ctx, req, c.t("This command can only be used in groups"))
	}
	if cmd.GroupAdminOnly {
		allowed, err := c.isGroupAdmin(ctx, chat.ID, user.ID)
		if err != nil {
			return true, err
		}
		if !allowed {
			entry.Debug("not a group admin, ignoring")
			return true, nil
		}
	}

	if err := cmd.Handle(ctx, req); err != nil {
		return true, errors.WithMessagef(err, "command %s", trigger)
	}
	return true, nil
}

func (c *Commands) handleCallback(ctx context.Context, q *api.CallbackQuery, user *api.User) (bool, error) {
	var cb *Callback
	for i := range c.callbacks {
		if strings.HasPrefix(q.Data, c.callbacks[i].Trigger) {
			cb = &c.callbacks[i]
			break
		}
	}
	if cb == nil {
		return false, nil
	}
	if cb.DevOnly && !c.deps.IsDev(user.ID) {
		c.answer(ctx, q, "", false)
		return true, nil
	}
	req := &CallbackRequest{
		Query: q,
		User:  user,
		Data:  strings.TrimPrefix(q.Data, cb.Trigger),
		Lang:  c.deps.Language,
	}
	if cb.GroupAdminOnly {
		if q.Message == nil {
			return true, nil
		}
		allowed, err := c.isGroupAdmin(ctx, q.Message.Chat.ID, user.ID)
		if err != nil {
			return true, err
		}
		if !allowed {
			c.answer(ctx, q, c.t("Only group administrators can do this"), true)
			return true, nil
		}
	}
	if err := cb.Handle(ctx, req); err != nil {
		return true, errors.WithMessagef(err, "callback %s", cb.Trigger)
	}
	return true, nil
}

// isGroupAdmin lets developers act everywhere.
func (c *Commands) isGroupAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	if c.deps.IsDev(userID) {
		return true, nil
	}
	return c.deps.Platform.IsGroupAdmin(ctx, chatID, userID)
}

func (c *Commands) reply(ctx context.Context, req *Request, text string) error {
	return c.replyWithMarkup(ctx, req, text, nil)
}

// replyWithMarkup answers in the chat of the request unless the sender is
// over the reply rate.
func (c *Commands) replyWithMarkup(ctx context.Context, req *Request, text string, markup *api.InlineKeyboardMarkup) error {
	if req.suppressReply {
		c.getLogEntry().WithField("user_id", req.User.ID).Debug("reply suppressed")
		return nil
	}
	_, err := c.deps.Platform.SendText(ctx, req.Chat.ID, text, markup)
	return err
}

func (c *Commands) answer(ctx context.Context, q *api.CallbackQuery, text string, alert bool) {
	if err := c.deps.Platform.AnswerCallback(ctx, q.ID, text, alert); err != nil {
		c.getLogEntry().WithError(err).Debug("cant answer callback")
	}
}
