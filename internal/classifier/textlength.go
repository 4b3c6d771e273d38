package classifier

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
)

// TextLength limits the characters and lines of plain text messages.
type TextLength struct {
	policy  Policy
	deleter MessageDeleter
}

func NewTextLength(p Policy, d MessageDeleter) *TextLength {
	return &TextLength{policy: p, deleter: d}
}

func (c *TextLength) Kind() Kind {
	return KindTextLength
}

func (c *TextLength) Classify(ctx context.Context, target *Target) (Verdict, error) {
	text := target.Message.Text
	if text == "" {
		return NoViolation(), nil
	}
	chatID, userID := target.ChatID(), target.UserID()
	ignored, err := c.policy.IsIgnored(ctx, chatID, userID)
	if err != nil || ignored {
		return NoViolation(), err
	}
	settings, err := c.policy.TextLength(ctx, chatID)
	if err != nil {
		return NoViolation(), err
	}
	if !settings.Enabled {
		return NoViolation(), nil
	}

	length, lines := TextMetrics(text)
	if length < settings.MaxLength && lines < settings.MaxLines {
		return NoViolation(), nil
	}

	if err := target.Delete(ctx, c.deleter); err != nil {
		log.WithFields(log.Fields{"chat_id": chatID, "user_id": userID}).WithError(err).Debug("cant delete long message")
	}
	v := violation(KindTextLength, settings.Action, fmt.Sprintf(
		"Text too long: %d/%d chars, %d/%d lines", length, settings.MaxLength, lines, settings.MaxLines,
	))
	v.Context["length"] = length
	v.Context["maxLength"] = settings.MaxLength
	v.Context["lines"] = lines
	v.Context["maxLines"] = settings.MaxLines
	v.MessageDeleted = target.Deleted()
	return v, nil
}

// TextMetrics returns the length in characters and the newline separated line count.
func TextMetrics(text string) (length, lines int) {
	return utf8.RuneCountInString(text), strings.Count(text, "\n") + 1
}
