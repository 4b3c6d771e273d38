package commands

import (
	"context"
	"strings"

	"github.com/iamwavecut/ngguard/internal/markup"
	"github.com/iamwavecut/ngguard/internal/welcome"
)

// setWelcome stores the greeting from the arguments, or from the replied
// message together with its photo, video or animation.
func (c *Commands) setWelcome(ctx context.Context, req *Request) error {
	g := welcome.Greeting{Text: req.Args}
	if reply := req.Message.ReplyToMessage; reply != nil {
		if media, ok := markup.MediaOf(reply); ok {
			g.Media = media
		}
		switch {
		case strings.TrimSpace(reply.Text) != "":
			g.Text = reply.Text
		case strings.TrimSpace(reply.Caption) != "":
			g.Text = reply.Caption
		}
	}
	if g.IsZero() {
		return c.reply(ctx, req, c.t("Usage: /setwelcome text, or reply to a message with /setwelcome. Placeholders: $name, $username, $id, $language, $title."))
	}
	if err := c.deps.Greetings.Set(ctx, req.Chat.ID, g); err != nil {
		return err
	}
	c.getLogEntry().WithField("chat_id", req.Chat.ID).Info("greeting updated")
	if !g.Media.IsZero() {
		return c.reply(ctx, req, c.t("Greeting saved with media."))
	}
	return c.reply(ctx, req, c.t("Greeting saved."))
}

// welcomePreview renders the greeting for the administrator who asked.
func (c *Commands) welcomePreview(ctx context.Context, req *Request) error {
	g, ok, err := c.deps.Greetings.Get(ctx, req.Chat.ID)
	if err != nil {
		return err
	}
	if !ok {
		return c.reply(ctx, req, c.t("No greeting is set. Use /setwelcome."))
	}
	if req.suppressReply {
		return nil
	}
	_, err = c.deps.Platform.Send(ctx, g.Render(req.User, req.Chat, req.Message.MessageThreadID))
	return err
}
