package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/store"
)

func (c *Commands) id(ctx context.Context, req *Request) error {
	lines := []string{
		fmt.Sprintf(c.t("Chat ID: %s"), code(req.Chat.ID)),
		fmt.Sprintf(c.t("Your ID: %s"), code(req.User.ID)),
	}
	if target := replyTarget(req); target != nil {
		lines = append(lines, fmt.Sprintf(c.t("Replied user ID: %s"), code(target.ID)))
	}
	return c.reply(ctx, req, strings.Join(lines, "\n"))
}

func (c *Commands) stats(ctx context.Context, req *Request) error {
	general, err := c.deps.Store.HGetAll(ctx, store.KeyBotGeneral)
	if err != nil {
		return err
	}
	groups, err := c.deps.Store.SMembers(ctx, store.KeyGroupsList)
	if err != nil {
		return err
	}
	banned, err := c.deps.Store.SMembers(ctx, store.KeyBannedGroups)
	if err != nil {
		return err
	}
	tracked := 0
	if c.deps.Burst != nil {
		tracked = c.deps.Burst.Tracked()
	}

	text := fmt.Sprintf(c.t("Messages checked: %s\nKicks: %s\nBans: %s\nRegistered groups: %d\nBanned groups: %d\nUsers watched for bursts: %d"),
		counter(general, store.FieldStatMessages),
		counter(general, store.FieldStatKick),
		counter(general, store.FieldStatBan),
		len(groups),
		len(banned),
		tracked,
	)
	return c.reply(ctx, req, text)
}

// banGroup bans the group given as argument, or the current group, and
// leaves it.
func (c *Commands) banGroup(ctx context.Context, req *Request) error {
	groupID := req.Chat.ID
	if req.Args != "" {
		parsed, err := strconv.ParseInt(req.Args, 10, 64)
		if err != nil {
			return c.reply(ctx, req, c.t("Usage: /bangroup [group id]"))
		}
		groupID = parsed
	}
	if groupID >= 0 {
		return c.reply(ctx, req, c.t("Usage: /bangroup [group id]"))
	}
	if err := c.deps.Store.SAdd(ctx, store.KeyBannedGroups, strconv.FormatInt(groupID, 10)); err != nil {
		return err
	}
	c.getLogEntry().WithFields(log.Fields{"group_id": groupID, "by": req.User.ID}).Warn("group banned")

	if groupID != req.Chat.ID {
		if err := c.reply(ctx, req, fmt.Sprintf(c.t("Group %s is banned."), code(groupID))); err != nil {
			return err
		}
	}
	if err := c.deps.Platform.LeaveChat(ctx, groupID); err != nil {
		c.getLogEntry().WithError(err).WithField("group_id", groupID).Debug("cant leave banned group")
	}
	return nil
}

func code(id int64) string {
	return "<code>" + strconv.FormatInt(id, 10) + "</code>"
}

func counter(hash map[string]string, field string) string {
	if v, ok := hash[field]; ok && v != "" {
		return v
	}
	return "0"
}
