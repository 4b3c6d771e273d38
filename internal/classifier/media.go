package classifier

import (
	"context"
	"fmt"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/policy"
)

// Media blocks message kinds the group has switched off. A message that
// cannot be deleted is left alone and its sender is not penalized.
type Media struct {
	policy  Policy
	deleter MessageDeleter
}

func NewMedia(p Policy, d MessageDeleter) *Media {
	return &Media{policy: p, deleter: d}
}

func (m *Media) Kind() Kind {
	return KindMedia
}

func (m *Media) Classify(ctx context.Context, target *Target) (Verdict, error) {
	chatID, userID := target.ChatID(), target.UserID()
	ignored, err := m.policy.IsIgnored(ctx, chatID, userID)
	if err != nil || ignored {
		return NoViolation(), err
	}
	kind := MediaKindOf(target.Message)
	if kind == "" {
		return NoViolation(), nil
	}
	settings, err := m.policy.Media(ctx, chatID, kind)
	if err != nil {
		return NoViolation(), err
	}
	if settings.Status != policy.MediaBlocked {
		return NoViolation(), nil
	}

	v := violation(KindMedia, settings.Action, fmt.Sprintf("Media type %s is blocked", kind))
	v.Context["media"] = string(kind)
	if err := target.Delete(ctx, m.deleter); err != nil {
		log.WithFields(log.Fields{"chat_id": chatID, "user_id": userID, "media": kind}).WithError(err).Debug("cant delete blocked media, not penalizing")
		v.Action = policy.ActionNone
		return v, nil
	}
	v.MessageDeleted = true
	return v, nil
}

// MediaKindOf derives the single media label of a message: an .apk document
// first, then any link entity, then the native message type. Plain text
// without links has no label.
func MediaKindOf(msg *api.Message) policy.MediaKind {
	if msg == nil {
		return ""
	}
	if msg.Document != nil && strings.HasSuffix(strings.ToLower(msg.Document.FileName), ".apk") {
		return policy.MediaAPK
	}
	if hasLink(msg.Entities) || hasLink(msg.CaptionEntities) {
		return policy.MediaURL
	}
	switch {
	case msg.Animation != nil:
		return policy.MediaAnimation
	case msg.Photo != nil:
		return policy.MediaPhoto
	case msg.Video != nil:
		return policy.MediaVideo
	case msg.Audio != nil:
		return policy.MediaAudio
	case msg.Voice != nil:
		return policy.MediaVoice
	case msg.Document != nil:
		return policy.MediaDocument
	case msg.Sticker != nil:
		return policy.MediaSticker
	case msg.VideoNote != nil:
		return policy.MediaVideoNote
	case msg.Contact != nil:
		return policy.MediaContact
	case msg.Venue != nil:
		return policy.MediaVenue
	case msg.Location != nil:
		return policy.MediaLocation
	case msg.Poll != nil:
		return policy.MediaPoll
	case msg.Game != nil:
		return policy.MediaGame
	case msg.Dice != nil:
		return policy.MediaDice
	}
	return ""
}

func hasLink(entities []api.MessageEntity) bool {
	for _, e := range entities {
		if e.Type == "url" || e.Type == "text_link" {
			return true
		}
	}
	return false
}
