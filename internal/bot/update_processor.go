package bot

import (
	"context"
	"strconv"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/store"
)

const DefaultUpdateMaxAge = 2 * time.Minute

type (
	// Handler is one link of the update chain. Returning proceed=false stops
	// the chain for the update.
	Handler interface {
		Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error)
	}

	filterStore interface {
		SIsMember(ctx context.Context, key, member string) (bool, error)
		Exists(ctx context.Context, key string) (bool, error)
		HSet(ctx context.Context, key, field, value string) error
	}

	chatLeaver interface {
		LeaveChat(ctx context.Context, chatID int64) error
	}

	UpdateProcessor struct {
		handlers  []Handler
		store     filterStore
		leaver    chatLeaver
		maxAge    time.Duration
		startedAt time.Time
		now       func() time.Time
	}

	ProcessorOption func(*UpdateProcessor)
)

func WithMaxAge(d time.Duration) ProcessorOption {
	return func(up *UpdateProcessor) {
		if d > 0 {
			up.maxAge = d
		}
	}
}

func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(up *UpdateProcessor) {
		up.now = now
	}
}

// NewUpdateProcessor chains the enabled handlers in the configured order.
// Unknown names are skipped with a warning.
func NewUpdateProcessor(s filterStore, leaver chatLeaver, available map[string]Handler, enabled []string, opts ...ProcessorOption) *UpdateProcessor {
	up := &UpdateProcessor{
		store:  s,
		leaver: leaver,
		maxAge: DefaultUpdateMaxAge,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(up)
	}
	up.startedAt = up.now()

	for _, name := range enabled {
		handler, ok := available[name]
		if !ok || handler == nil {
			log.Warnf("no registered handler: %s", name)
			continue
		}
		up.handlers = append(up.handlers, handler)
	}
	return up
}

func (up *UpdateProcessor) getLogEntry() *log.Entry {
	return log.WithField("object", "UpdateProcessor")
}

func (up *UpdateProcessor) Process(ctx context.Context, u *api.Update) error {
	if u == nil {
		return errors.New("update is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	entry := up.getLogEntry().WithField("update_id", u.UpdateID)

	if at, ok := updateTime(u); ok && at.Before(up.startedAt.Add(-up.maxAge)) {
		entry.WithField("update_time", at).Debug("skipping outdated update")
		return nil
	}

	chat := u.FromChat()
	if chat == nil {
		switch {
		case u.ChatJoinRequest != nil:
			chat = &u.ChatJoinRequest.Chat
		case u.MyChatMember != nil:
			chat = &u.MyChatMember.Chat
		case u.ChatMember != nil:
			chat = &u.ChatMember.Chat
		}
	}
	user := u.SentFrom()
	if user == nil {
		switch {
		case u.ChatJoinRequest != nil:
			user = &u.ChatJoinRequest.From
		case u.MyChatMember != nil:
			user = &u.MyChatMember.From
		case u.ChatMember != nil:
			user = &u.ChatMember.From
		}
	}

	if chat != nil && !chat.IsPrivate() {
		banned, err := up.store.SIsMember(ctx, store.KeyBannedGroups, strconv.FormatInt(chat.ID, 10))
		if err != nil {
			return errors.WithMessage(err, "cant check banned groups")
		}
		if banned {
			entry.WithField("chat_id", chat.ID).Info("leaving banned group")
			if err := up.leaver.LeaveChat(ctx, chat.ID); err != nil {
				entry.WithError(err).Debug("cant leave banned group")
			}
			return nil
		}
	}
	if user != nil {
		if addressesBot(u) {
			spammer, err := up.store.Exists(ctx, store.SpammerKey(user.ID))
			if err != nil {
				return errors.WithMessage(err, "cant check spammer record")
			}
			if spammer {
				entry.WithField("user_id", user.ID).Debug("dropping update from banned user")
				return nil
			}
		}
		up.rememberUser(ctx, user)
	}

	if u.Message != nil {
		entry = entry.WithField("type", GetMessageType(u.Message))
	}
	for _, handler := range up.handlers {
		if err := ctx.Err(); err != nil {
			return err
		}
		proceed, err := handler.Handle(ctx, u, chat, user)
		if err != nil {
			return errors.WithMessage(err, "handling error")
		}
		if !proceed {
			entry.Trace("not proceeding")
			return nil
		}
	}
	return nil
}

// rememberUser keeps the display name used in ban announcements.
func (up *UpdateProcessor) rememberUser(ctx context.Context, user *api.User) {
	key := store.UserKey(user.ID)
	if err := up.store.HSet(ctx, key, "name", GetFullName(user)); err != nil {
		up.getLogEntry().WithError(err).Debug("cant remember user")
		return
	}
	if user.UserName != "" {
		_ = up.store.HSet(ctx, key, "username", user.UserName)
	}
}

// addressesBot reports whether the update talks to the bot itself rather
// than to a group: callbacks, commands and private messages.
func addressesBot(u *api.Update) bool {
	if u.CallbackQuery != nil {
		return true
	}
	if u.Message != nil {
		return u.Message.IsCommand() || u.Message.Chat.IsPrivate()
	}
	return false
}

func updateTime(u *api.Update) (time.Time, bool) {
	switch {
	case u.Message != nil:
		return time.Unix(int64(u.Message.Date), 0), true
	case u.EditedMessage != nil:
		return time.Unix(int64(u.EditedMessage.Date), 0), true
	case u.ChannelPost != nil:
		return time.Unix(int64(u.ChannelPost.Date), 0), true
	case u.EditedChannelPost != nil:
		return time.Unix(int64(u.EditedChannelPost.Date), 0), true
	}
	return time.Time{}, false
}
