package telegram

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/policy/permissions"
)

// BotClient is the subset of *api.BotAPI the adapter needs.
type BotClient interface {
	Send(c api.Chattable) (api.Message, error)
	Request(c api.Chattable) (*api.APIResponse, error)
	GetChatAdministrators(config api.ChatAdministratorsConfig) ([]api.ChatMember, error)
	GetChatMembersCount(config api.ChatMemberCountConfig) (int, error)
	GetChatMember(config api.GetChatMemberConfig) (api.ChatMember, error)
}

type Options struct {
	SendConcurrency int64
	SendSpacing     time.Duration
	AdminCacheTTL   time.Duration
	AdminCacheSize  int
}

// Operations wraps the Bot API with a send gate and an administrator cache.
type Operations struct {
	bot      BotClient
	self     api.User
	gate     *SendGate
	admins   *expirable.LRU[int64, []api.ChatMember]
}

func NewOperations(bot BotClient, self api.User, opts Options) *Operations {
	if opts.AdminCacheSize <= 0 {
		opts.AdminCacheSize = 1024
	}
	return &Operations{
		bot:      bot,
		self:     self,
		gate:     NewSendGate(opts.SendConcurrency, opts.SendSpacing),
		admins:   expirable.NewLRU[int64, []api.ChatMember](opts.AdminCacheSize, nil, opts.AdminCacheTTL),
	}
}

func (o *Operations) getLogEntry() *log.Entry {
	return log.WithField("object", "Operations")
}

func (o *Operations) BotUsername() string {
	return o.self.UserName
}

func (o *Operations) BotID() int64 {
	return o.self.ID
}

// Send delivers any sendable config through the gate.
func (o *Operations) Send(ctx context.Context, c api.Chattable) (api.Message, error) {
	release, err := o.gate.Acquire(ctx)
	if err != nil {
		return api.Message{}, err
	}
	defer release()
	msg, err := o.bot.Send(c)
	if err != nil {
		return api.Message{}, errors.WithMessage(err, "cant send")
	}
	return msg, nil
}

// SendText sends an HTML message with an optional inline keyboard.
func (o *Operations) SendText(ctx context.Context, chatID int64, text string, markup *api.InlineKeyboardMarkup) (api.Message, error) {
	msg := api.NewMessage(chatID, text)
	msg.ParseMode = api.ModeHTML
	msg.LinkPreviewOptions.IsDisabled = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	return o.Send(ctx, msg)
}

func (o *Operations) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, markup *api.InlineKeyboardMarkup) error {
	edit := api.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = api.ModeHTML
	edit.ReplyMarkup = markup
	_, err := o.Send(ctx, edit)
	return err
}

func (o *Operations) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if _, err := o.bot.Request(api.NewDeleteMessage(chatID, messageID)); err != nil {
		return errors.WithMessage(err, "cant delete")
	}
	return nil
}

func (o *Operations) RestrictMember(ctx context.Context, chatID, userID int64, perms *api.ChatPermissions, until time.Time) error {
	var untilUnix int64
	if !until.IsZero() {
		untilUnix = until.Unix()
	}
	if _, err := o.bot.Request(api.RestrictChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
		UntilDate:   untilUnix,
		Permissions: perms,

		UseIndependentChatPermissions: true,
	}); err != nil {
		return errors.WithMessage(err, "cant restrict")
	}
	return nil
}

// BanMember bans until the given time; a zero time bans permanently.
func (o *Operations) BanMember(ctx context.Context, chatID, userID int64, until time.Time) error {
	var untilUnix int64
	if !until.IsZero() {
		untilUnix = until.Unix()
	}
	if _, err := o.bot.Request(api.BanChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
		UntilDate:      untilUnix,
		RevokeMessages: false,
	}); err != nil {
		return errors.WithMessage(err, "cant ban")
	}
	return nil
}

func (o *Operations) UnbanMember(ctx context.Context, chatID, userID int64) error {
	if _, err := o.bot.Request(api.UnbanChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
		OnlyIfBanned: true,
	}); err != nil {
		return errors.WithMessage(err, "cant unban")
	}
	return nil
}

// GetChatAdministrators serves the administrator list from cache when fresh.
func (o *Operations) GetChatAdministrators(ctx context.Context, chatID int64) ([]api.ChatMember, error) {
	if admins, ok := o.admins.Get(chatID); ok {
		return admins, nil
	}
	admins, err := o.bot.GetChatAdministrators(api.ChatAdministratorsConfig{
		ChatConfig: api.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return nil, errors.WithMessage(err, "cant get chat administrators")
	}
	o.admins.Add(chatID, admins)
	o.getLogEntry().WithFields(log.Fields{"chat_id": chatID, "count": len(admins)}).Debug("administrators cached")
	return admins, nil
}

func (o *Operations) InvalidateAdmins(chatID int64) {
	o.admins.Remove(chatID)
}

func (o *Operations) IsGroupAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	admins, err := o.GetChatAdministrators(ctx, chatID)
	if err != nil {
		return false, err
	}
	return permissions.ContainsUser(admins, userID), nil
}

func (o *Operations) GetMemberCount(ctx context.Context, chatID int64) (int, error) {
	n, err := o.bot.GetChatMembersCount(api.ChatMemberCountConfig{
		ChatConfig: api.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return 0, errors.WithMessage(err, "cant get member count")
	}
	return n, nil
}

// BotCanModerate reports whether the bot itself may restrict, ban and
// delete in the chat.
func (o *Operations) BotCanModerate(ctx context.Context, chatID int64) (bool, error) {
	member, err := o.GetChatMember(ctx, chatID, o.self.ID)
	if err != nil {
		return false, err
	}
	return permissions.CanModerate(&member), nil
}

func (o *Operations) GetChatMember(ctx context.Context, chatID, userID int64) (api.ChatMember, error) {
	member, err := o.bot.GetChatMember(api.GetChatMemberConfig{
		ChatConfigWithUser: api.ChatConfigWithUser{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
	})
	if err != nil {
		return api.ChatMember{}, errors.WithMessage(err, "cant get chat member")
	}
	return member, nil
}

// LeaveChat makes the bot leave a group it must not serve.
func (o *Operations) LeaveChat(ctx context.Context, chatID int64) error {
	if _, err := o.bot.Request(api.LeaveChatConfig{ChatConfig: api.ChatConfig{ChatID: chatID}}); err != nil {
		return errors.WithMessage(err, "cant leave chat")
	}
	o.admins.Remove(chatID)
	return nil
}

func (o *Operations) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	cb := api.NewCallback(callbackID, text)
	cb.ShowAlert = alert
	if _, err := o.bot.Request(cb); err != nil {
		return errors.WithMessage(err, "cant answer callback")
	}
	return nil
}
