// Package members greets new group members and keeps the administrator
// cache in step with membership changes.
package members

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/i18n"
	"github.com/iamwavecut/ngguard/internal/policy"
	"github.com/iamwavecut/ngguard/internal/policy/permissions"
	"github.com/iamwavecut/ngguard/internal/welcome"
)

type (
	platform interface {
		Send(ctx context.Context, c api.Chattable) (api.Message, error)
		SendText(ctx context.Context, chatID int64, text string, markup *api.InlineKeyboardMarkup) (api.Message, error)
		DeleteMessage(ctx context.Context, chatID int64, messageID int) error
		InvalidateAdmins(chatID int64)
	}

	welcomePolicy interface {
		Welcome(ctx context.Context, chatID int64) (policy.WelcomePolicy, error)
	}

	greetings interface {
		Get(ctx context.Context, chatID int64) (welcome.Greeting, bool, error)
		RememberSent(ctx context.Context, chatID int64, messageID int) error
		TakeSent(ctx context.Context, chatID int64) ([]int, error)
	}
)

type Dependencies struct {
	Platform  platform
	Groups    welcomePolicy
	Greetings greetings
	Language  string
}

type Members struct {
	deps Dependencies
}

func NewMembers(deps Dependencies) *Members {
	if deps.Language == "" {
		deps.Language = i18n.DefaultLanguage
	}
	return &Members{deps: deps}
}

func (m *Members) getLogEntry() *log.Entry {
	return log.WithField("object", "Members")
}

// Handle consumes membership updates and join notices. Everything else
// proceeds down the chain.
func (m *Members) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	switch {
	case u == nil:
		return true, nil
	case u.MyChatMember != nil:
		return false, m.botMembershipChanged(ctx, u.MyChatMember)
	case u.ChatMember != nil:
		m.memberChanged(u.ChatMember)
		return false, nil
	case u.Message != nil && len(u.Message.NewChatMembers) > 0:
		return false, m.greet(ctx, u.Message)
	}
	return true, nil
}

// memberChanged drops the cached administrators when a promotion or a
// demotion happened.
func (m *Members) memberChanged(change *api.ChatMemberUpdated) {
	if !permissions.IsGroupAdmin(&change.OldChatMember) && !permissions.IsGroupAdmin(&change.NewChatMember) {
		return
	}
	m.deps.Platform.InvalidateAdmins(change.Chat.ID)
	m.getLogEntry().WithField("chat_id", change.Chat.ID).Debug("administrators changed")
}

// botMembershipChanged tells the group when the bot lacks the rights it
// needs to enforce the settings.
func (m *Members) botMembershipChanged(ctx context.Context, change *api.ChatMemberUpdated) error {
	m.deps.Platform.InvalidateAdmins(change.Chat.ID)
	if change.Chat.IsPrivate() {
		return nil
	}
	bot := &change.NewChatMember
	entry := m.getLogEntry().WithFields(log.Fields{"chat_id": change.Chat.ID, "status": bot.Status})
	if bot.HasLeft() || bot.WasKicked() {
		entry.Info("bot removed from group")
		return nil
	}
	if permissions.CanModerate(bot) {
		entry.Info("bot can moderate")
		return nil
	}
	entry.Warn("bot lacks moderation rights")
	_, err := m.deps.Platform.SendText(ctx, change.Chat.ID, i18n.Get("I need to be an administrator allowed to delete messages and ban members to moderate this group.", m.deps.Language), nil)
	return errors.WithMessage(err, "cant send rights notice")
}

// greet posts the group greeting for every new human member, first
// deleting the previous greetings when the group asks for it.
func (m *Members) greet(ctx context.Context, msg *api.Message) error {
	chatID := msg.Chat.ID
	entry := m.getLogEntry().WithField("chat_id", chatID)

	settings, err := m.deps.Groups.Welcome(ctx, chatID)
	if err != nil {
		return errors.WithMessage(err, "cant read welcome settings")
	}
	if !settings.Enabled {
		return nil
	}
	greeting, ok, err := m.deps.Greetings.Get(ctx, chatID)
	if err != nil {
		return errors.WithMessage(err, "cant read greeting")
	}
	if !ok {
		return nil
	}

	if settings.DeleteLast {
		previous, err := m.deps.Greetings.TakeSent(ctx, chatID)
		if err != nil {
			entry.WithError(err).Warn("cant read previous greetings")
		}
		for _, id := range previous {
			if err := m.deps.Platform.DeleteMessage(ctx, chatID, id); err != nil {
				entry.WithError(err).WithField("message_id", id).Debug("cant delete previous greeting")
			}
		}
	}

	for i := range msg.NewChatMembers {
		member := &msg.NewChatMembers[i]
		if member.IsBot {
			continue
		}
		sent, err := m.deps.Platform.Send(ctx, greeting.Render(member, &msg.Chat, msg.MessageThreadID))
		if err != nil {
			entry.WithError(err).WithField("user_id", member.ID).Warn("cant send greeting")
			continue
		}
		if settings.DeleteLast {
			if err := m.deps.Greetings.RememberSent(ctx, chatID, sent.MessageID); err != nil {
				entry.WithError(err).Warn("cant remember greeting")
			}
		}
	}
	return nil
}
