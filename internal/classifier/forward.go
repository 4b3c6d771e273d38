package classifier

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"
)

// Forward rejects forwarded messages unless the group allows them.
type Forward struct {
	policy  Policy
	deleter MessageDeleter
}

func NewForward(p Policy, d MessageDeleter) *Forward {
	return &Forward{policy: p, deleter: d}
}

func (f *Forward) Kind() Kind {
	return KindForward
}

func (f *Forward) Classify(ctx context.Context, target *Target) (Verdict, error) {
	if !IsForwarded(target.Message) {
		return NoViolation(), nil
	}
	chatID, userID := target.ChatID(), target.UserID()
	ignored, err := f.policy.IsIgnored(ctx, chatID, userID)
	if err != nil || ignored {
		return NoViolation(), err
	}
	settings, err := f.policy.Forward(ctx, chatID)
	if err != nil {
		return NoViolation(), err
	}
	if settings.Allowed {
		return NoViolation(), nil
	}

	if err := target.Delete(ctx, f.deleter); err != nil {
		log.WithFields(log.Fields{"chat_id": chatID, "user_id": userID}).WithError(err).Debug("cant delete forwarded message")
	}
	v := violation(KindForward, settings.Action, "Forwarding not allowed")
	v.MessageDeleted = target.Deleted()
	return v, nil
}

// IsForwarded reports whether the message carries forward metadata.
func IsForwarded(msg *api.Message) bool {
	return msg != nil && msg.ForwardOrigin != nil
}
