package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iamwavecut/ngguard/internal/markup"
)

const broadcastConcurrency = 8

// delivery is what a broadcast sends: the typed text with its buttons, or
// the message the command replied to when no text was given.
type delivery struct {
	text     string
	keyboard *api.InlineKeyboardMarkup
	forward  *api.Message
}

func newDelivery(content string, reply *api.Message) (delivery, bool) {
	if content = strings.TrimSpace(content); content != "" {
		text, keyboard := markup.ParseButtons(content)
		if text == "" {
			text = "."
		}
		return delivery{text: text, keyboard: keyboard}, true
	}
	if reply != nil {
		return delivery{forward: reply}, true
	}
	return delivery{}, false
}

func (d delivery) to(chatID int64) api.Chattable {
	if d.forward != nil {
		return api.NewForward(chatID, d.forward.Chat.ID, d.forward.MessageID)
	}
	return markup.Message(chatID, 0, markup.Media{}, d.text, d.keyboard)
}

type deliveryReport struct {
	sent   []string
	failed []string
}

// deliver sends d to every target through the platform send gate. A failed
// target does not stop the others.
func (c *Commands) deliver(ctx context.Context, targets []string, d delivery) deliveryReport {
	results := make([]error, len(targets))
	var g errgroup.Group
	g.SetLimit(broadcastConcurrency)
	for i, target := range targets {
		g.Go(func() error {
			chatID, err := strconv.ParseInt(target, 10, 64)
			if err != nil {
				results[i] = err
				return nil
			}
			_, results[i] = c.deps.Platform.Send(ctx, d.to(chatID))
			return nil
		})
	}
	_ = g.Wait()

	var report deliveryReport
	for i, err := range results {
		if err != nil {
			c.getLogEntry().WithError(err).WithField("target", targets[i]).Warn("delivery failed")
			report.failed = append(report.failed, targets[i])
			continue
		}
		report.sent = append(report.sent, targets[i])
	}
	return report
}

func (c *Commands) replyReport(ctx context.Context, req *Request, report deliveryReport) error {
	text := fmt.Sprintf(c.t("Delivered: %d\nFailed: %d"), len(report.sent), len(report.failed))
	if len(report.failed) > 0 {
		text += "\n" + fmt.Sprintf(c.t("Failed targets: %s"), api.EscapeText(api.ModeHTML, strings.Join(report.failed, ", ")))
	}
	return c.reply(ctx, req, text)
}

// broadcast sends the text, or the replied message, to every known group.
func (c *Commands) broadcast(ctx context.Context, req *Request) error {
	d, ok := newDelivery(req.Args, req.Message.ReplyToMessage)
	if !ok {
		return c.reply(ctx, req, c.t("Usage: /broadcast text, or reply to a message with /broadcast"))
	}
	groups, err := c.deps.Registry.Groups(ctx)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return c.reply(ctx, req, c.t("There are no groups to send to."))
	}
	c.getLogEntry().WithFields(log.Fields{"by": req.User.ID, "groups": len(groups)}).Info("broadcast started")
	if err := c.reply(ctx, req, fmt.Sprintf(c.t("Sending to %d groups..."), len(groups))); err != nil {
		return err
	}
	return c.replyReport(ctx, req, c.deliver(ctx, groups, d))
}

// sendMessage sends to the listed chats: /sendmsg id1,id2 text.
func (c *Commands) sendMessage(ctx context.Context, req *Request) error {
	rawTargets, content, _ := strings.Cut(req.Args, " ")
	var targets []string
	for _, target := range strings.Split(rawTargets, ",") {
		if target = strings.TrimSpace(target); target != "" {
			targets = append(targets, target)
		}
	}
	if len(targets) == 0 {
		return c.reply(ctx, req, c.t("Usage: /sendmsg id1,id2 text"))
	}
	d, ok := newDelivery(content, req.Message.ReplyToMessage)
	if !ok {
		return c.reply(ctx, req, c.t("Usage: /sendmsg id1,id2 text"))
	}
	return c.replyReport(ctx, req, c.deliver(ctx, targets, d))
}
