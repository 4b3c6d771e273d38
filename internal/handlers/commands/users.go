package commands

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	callbackGroupPage   = "grp_page|"
	callbackGroupSelect = "grp_sel|"
	groupsPerPage       = 4
)

var errNoGroups = errors.New("no groups")

// users lists the known groups; picking one sends its registration export.
func (c *Commands) users(ctx context.Context, req *Request) error {
	text, keyboard, err := c.groupList(ctx, 0)
	if errors.Is(err, errNoGroups) {
		return c.reply(ctx, req, c.t("There are no groups to list."))
	}
	if err != nil {
		return err
	}
	return c.replyWithMarkup(ctx, req, text, keyboard)
}

func (c *Commands) groupList(ctx context.Context, page int) (string, *api.InlineKeyboardMarkup, error) {
	groups, err := c.deps.Registry.Groups(ctx)
	if err != nil {
		return "", nil, err
	}
	if len(groups) == 0 {
		return "", nil, errNoGroups
	}
	start := page * groupsPerPage
	if page < 0 || start >= len(groups) {
		page, start = 0, 0
	}
	end := min(start+groupsPerPage, len(groups))

	var rows [][]api.InlineKeyboardButton
	for _, raw := range groups[start:end] {
		groupID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		title, err := c.deps.Registry.GroupTitle(ctx, groupID)
		if err != nil {
			return "", nil, err
		}
		rows = append(rows, api.NewInlineKeyboardRow(api.NewInlineKeyboardButtonData(title, callbackGroupSelect+raw)))
	}
	var nav []api.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, api.NewInlineKeyboardButtonData("⬅️", callbackGroupPage+strconv.Itoa(page-1)))
	}
	if end < len(groups) {
		nav = append(nav, api.NewInlineKeyboardButtonData("➡️", callbackGroupPage+strconv.Itoa(page+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	keyboard := api.NewInlineKeyboardMarkup(rows...)
	return c.t("Choose a group:"), &keyboard, nil
}

func (c *Commands) groupPageCallback(ctx context.Context, req *CallbackRequest) error {
	page, err := strconv.Atoi(req.Data)
	msg := req.Query.Message
	if err != nil || msg == nil {
		c.answer(ctx, req.Query, "", false)
		return nil
	}
	text, keyboard, err := c.groupList(ctx, page)
	if errors.Is(err, errNoGroups) {
		c.answer(ctx, req.Query, c.t("There are no groups to list."), true)
		return nil
	}
	if err != nil {
		return err
	}
	c.answer(ctx, req.Query, "", false)
	return c.deps.Platform.EditMessageText(ctx, msg.Chat.ID, msg.MessageID, text, keyboard)
}

// groupSelectCallback sends the registration export of the group with its
// member counts.
func (c *Commands) groupSelectCallback(ctx context.Context, req *CallbackRequest) error {
	groupID, err := strconv.ParseInt(req.Data, 10, 64)
	msg := req.Query.Message
	if err != nil || msg == nil {
		c.answer(ctx, req.Query, "", false)
		return nil
	}
	title, err := c.deps.Registry.GroupTitle(ctx, groupID)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	registered, err := c.deps.Registry.Export(ctx, groupID, &buf)
	if err != nil {
		return err
	}
	members, err := c.deps.Platform.GetMemberCount(ctx, groupID)
	if err != nil {
		c.getLogEntry().WithError(err).WithField("group_id", groupID).Debug("cant count members")
		members = 0
	}

	doc := api.NewDocument(msg.Chat.ID, api.FileBytes{
		Name:  fmt.Sprintf("users_%d.csv", groupID),
		Bytes: buf.Bytes(),
	})
	doc.Caption = fmt.Sprintf(c.t("%s\nMembers: %d\nRegistered: %d\nNot registered: %d"),
		api.EscapeText(api.ModeHTML, title), members, registered, max(0, members-registered))
	doc.ParseMode = api.ModeHTML
	if _, err := c.deps.Platform.Send(ctx, doc); err != nil {
		c.answer(ctx, req.Query, c.t("Could not send the list."), true)
		return err
	}
	c.getLogEntry().WithFields(log.Fields{"group_id": groupID, "by": req.User.ID}).Info("registrations exported")
	c.answer(ctx, req.Query, "", false)
	return nil
}
