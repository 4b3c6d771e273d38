// Package welcome keeps the greeting of each group and renders it for new
// members.
package welcome

import (
	"context"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/markup"
	"github.com/iamwavecut/ngguard/internal/store"
)

const (
	fieldText      = "text"
	fieldMediaType = "mediaType"
	fieldMediaID   = "mediaId"
)

// Greeting is the stored template. Text may use $name, $username, $id,
// $language and $title and carry {[Label](URL)} button rows.
type Greeting struct {
	Text  string
	Media markup.Media
}

func (g Greeting) IsZero() bool {
	return strings.TrimSpace(g.Text) == "" && g.Media.IsZero()
}

// Render fills the placeholders for member and returns the message to post
// in chat.
func (g Greeting) Render(member *api.User, chat *api.Chat, threadID int) api.Chattable {
	text, keyboard := markup.ParseButtons(Fill(g.Text, member, chat))
	return markup.Message(chat.ID, threadID, g.Media, text, keyboard)
}

// Fill replaces the member and group placeholders. $name becomes a mention.
func Fill(text string, member *api.User, chat *api.Chat) string {
	name := strings.TrimSpace(member.FirstName + " " + member.LastName)
	mention := `<a href="tg://user?id=` + strconv.FormatInt(member.ID, 10) + `">` + api.EscapeText(api.ModeHTML, name) + `</a>`
	return strings.NewReplacer(
		"$name", mention,
		"$username", member.UserName,
		"$id", strconv.FormatInt(member.ID, 10),
		"$language", member.LanguageCode,
		"$title", api.EscapeText(api.ModeHTML, chat.Title),
	).Replace(text)
}

type Store struct {
	store store.Store
}

func NewStore(s store.Store) *Store {
	return &Store{store: s}
}

func (w *Store) getLogEntry() *log.Entry {
	return log.WithField("object", "WelcomeStore")
}

// Set replaces the greeting. A greeting without media clears the stored one.
func (w *Store) Set(ctx context.Context, chatID int64, g Greeting) error {
	key := store.ChatWelcomeKey(chatID)
	if err := w.store.HSet(ctx, key, fieldText, g.Text); err != nil {
		return errors.WithMessage(err, "store greeting")
	}
	if g.Media.IsZero() {
		for _, field := range []string{fieldMediaType, fieldMediaID} {
			if err := w.store.HDel(ctx, key, field); err != nil {
				return errors.WithMessage(err, "clear greeting media")
			}
		}
		return nil
	}
	if err := w.store.HSet(ctx, key, fieldMediaType, g.Media.Kind); err != nil {
		return errors.WithMessage(err, "store greeting media")
	}
	if err := w.store.HSet(ctx, key, fieldMediaID, g.Media.FileID); err != nil {
		return errors.WithMessage(err, "store greeting media")
	}
	return nil
}

// Get reports ok=false when the group has no greeting.
func (w *Store) Get(ctx context.Context, chatID int64) (Greeting, bool, error) {
	fields, err := w.store.HGetAll(ctx, store.ChatWelcomeKey(chatID))
	if err != nil {
		return Greeting{}, false, err
	}
	g := Greeting{
		Text:  fields[fieldText],
		Media: markup.Media{Kind: fields[fieldMediaType], FileID: fields[fieldMediaID]},
	}
	return g, !g.IsZero(), nil
}

func (w *Store) RememberSent(ctx context.Context, chatID int64, messageID int) error {
	return w.store.SAdd(ctx, store.ChatWelcomeSentKey(chatID), strconv.Itoa(messageID))
}

// TakeSent returns the posted greeting ids and forgets them.
func (w *Store) TakeSent(ctx context.Context, chatID int64) ([]int, error) {
	key := store.ChatWelcomeSentKey(chatID)
	members, err := w.store.SMembers(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := w.store.Delete(ctx, key); err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(members))
	for _, m := range members {
		id, err := strconv.Atoi(m)
		if err != nil {
			w.getLogEntry().WithField("value", m).Debug("malformed greeting id")
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
