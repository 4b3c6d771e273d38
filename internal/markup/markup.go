// Package markup turns text written by group operators into HTML messages
// with rows of URL buttons, optionally carrying a photo, video or animation.
package markup

import (
	"regexp"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
)

const (
	MediaAnimation = "animation"
	MediaPhoto     = "photo"
	MediaVideo     = "video"
)

var (
	buttonBlock = regexp.MustCompile(`(?s)\{(.+?)\}`)
	buttonItem  = regexp.MustCompile(`\[(.+?)\]\((.+?)\)`)
	allowedTag  = regexp.MustCompile(`</?(?:b|strong|i|em|u|ins|s|strike|del|code|pre|a|tg-spoiler|tg-emoji|blockquote|span)(?:\s[^>]*)?>`)
	ampersand   = regexp.MustCompile(`&(?:amp|lt|gt|quot|#\d+|#x[0-9a-fA-F]+);|&`)

	angleEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")
)

// Media is a file already stored on the platform, referenced by its id.
type Media struct {
	Kind   string
	FileID string
}

func (m Media) IsZero() bool {
	return m.Kind == "" || m.FileID == ""
}

// MediaOf picks the animation, the largest photo or the video of msg.
func MediaOf(msg *api.Message) (Media, bool) {
	switch {
	case msg == nil:
		return Media{}, false
	case msg.Animation != nil:
		return Media{Kind: MediaAnimation, FileID: msg.Animation.FileID}, true
	case len(msg.Photo) > 0:
		return Media{Kind: MediaPhoto, FileID: msg.Photo[len(msg.Photo)-1].FileID}, true
	case msg.Video != nil:
		return Media{Kind: MediaVideo, FileID: msg.Video.FileID}, true
	}
	return Media{}, false
}

// Escape keeps the formatting tags the platform understands and escapes
// every other angle bracket and bare ampersand.
func Escape(text string) string {
	text = ampersand.ReplaceAllStringFunc(text, func(m string) string {
		if m == "&" {
			return "&amp;"
		}
		return m
	})
	var b strings.Builder
	last := 0
	for _, loc := range allowedTag.FindAllStringIndex(text, -1) {
		b.WriteString(angleEscaper.Replace(text[last:loc[0]]))
		b.WriteString(text[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(angleEscaper.Replace(text[last:]))
	return b.String()
}

// ParseButtons cuts {[Label](URL), [Label2](URL2)} blocks out of text. Each
// block becomes one keyboard row. The remaining text is escaped.
func ParseButtons(text string) (string, *api.InlineKeyboardMarkup) {
	var rows [][]api.InlineKeyboardButton
	for _, block := range buttonBlock.FindAllStringSubmatch(text, -1) {
		var row []api.InlineKeyboardButton
		for _, item := range buttonItem.FindAllStringSubmatch(block[1], -1) {
			row = append(row, api.NewInlineKeyboardButtonURL(strings.TrimSpace(item[1]), strings.TrimSpace(item[2])))
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	text = Escape(strings.TrimSpace(buttonBlock.ReplaceAllString(text, "")))
	if len(rows) == 0 {
		return text, nil
	}
	keyboard := api.NewInlineKeyboardMarkup(rows...)
	return text, &keyboard
}

// Message builds the sendable for text with optional media and keyboard.
// With media the text becomes the caption.
func Message(chatID int64, threadID int, media Media, text string, keyboard *api.InlineKeyboardMarkup) api.Chattable {
	switch {
	case media.IsZero():
	case media.Kind == MediaAnimation:
		c := api.NewAnimation(chatID, api.FileID(media.FileID))
		c.Caption, c.ParseMode, c.MessageThreadID = text, api.ModeHTML, threadID
		if keyboard != nil {
			c.ReplyMarkup = keyboard
		}
		return c
	case media.Kind == MediaPhoto:
		c := api.NewPhoto(chatID, api.FileID(media.FileID))
		c.Caption, c.ParseMode, c.MessageThreadID = text, api.ModeHTML, threadID
		if keyboard != nil {
			c.ReplyMarkup = keyboard
		}
		return c
	case media.Kind == MediaVideo:
		c := api.NewVideo(chatID, api.FileID(media.FileID))
		c.Caption, c.ParseMode, c.MessageThreadID = text, api.ModeHTML, threadID
		if keyboard != nil {
			c.ReplyMarkup = keyboard
		}
		return c
	}
	msg := api.NewMessage(chatID, text)
	msg.ParseMode = api.ModeHTML
	msg.MessageThreadID = threadID
	msg.LinkPreviewOptions.IsDisabled = true
	if keyboard != nil {
		msg.ReplyMarkup = keyboard
	}
	return msg
}
