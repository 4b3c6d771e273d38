package commands

import (
	"context"
	"strings"
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamwavecut/ngguard/internal/policy"
	"github.com/iamwavecut/ngguard/internal/store"
)

func TestCommandGuards(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	env := newTestEnv(t)

	assert.True(env.handleMessage(t, commandMessage(groupChat(), user(testUser), "/stats")))
	assert.True(env.handleMessage(t, commandMessage(groupChat(), user(testUser), "/menu")))
	assert.Empty(env.platform.sent, "non privileged users get no answer")

	// Served group commands still reach the content checks.
	assert.True(env.handleMessage(t, commandMessage(groupChat(), user(testAdmin), "/id")))
	assert.False(env.handleMessage(t, commandMessage(privateChat(testUser), user(testUser), "/id")))

	assert.False(env.handleMessage(t, commandMessage(privateChat(testAdmin), user(testAdmin), "/menu")))
	assert.Equal("This command can only be used in groups", env.platform.lastSent(t).text)

	assert.True(env.handleMessage(t, commandMessage(groupChat(), user(testUser), "/unknown")))
	assert.True(env.handleMessage(t, &api.Message{From: user(testUser), Chat: groupChat(), Text: "hello"}))
}

func TestRepliesAreDebounced(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.burst.suppress = true

	env.handleMessage(t, commandMessage(groupChat(), user(testUser), "/id"))
	assert.Empty(t, env.platform.sent)
	assert.Equal(t, 1, env.burst.calls)
}

func TestIDCommand(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	msg := commandMessage(groupChat(), user(testUser), "/id")
	msg.ReplyToMessage = &api.Message{From: user(99)}
	env.handleMessage(t, msg)

	text := env.platform.lastSent(t).text
	assert.Contains(t, text, "<code>-1001</code>")
	assert.Contains(t, text, "<code>42</code>")
	assert.Contains(t, text, "<code>99</code>")
}

func TestRegistrationConversation(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	ctx := context.Background()
	env := newTestEnv(t)
	member := user(testUser)

	// No session yet: plain private text proceeds.
	assert.True(env.handleMessage(t, &api.Message{From: member, Chat: privateChat(testUser), Text: "hi"}))

	env.handleMessage(t, commandMessage(groupChat(), user(testAdmin), "/register"))
	posted := env.platform.lastSent(t)
	assert.Equal(testGroup, posted.chatID)
	assert.Equal("https://t.me/ngguard_bot?start=register_-1001", *posted.markup.InlineKeyboard[0][0].URL)

	env.handleMessage(t, commandMessage(privateChat(testUser), member, "/start register_-1001"))
	assert.Contains(env.platform.lastSent(t).text, "Registering you in Gophers")

	assert.False(env.handleMessage(t, &api.Message{From: member, Chat: privateChat(testUser), Text: "Eve Doe"}))
	question := env.platform.lastSent(t)
	require.NotNil(t, question.markup)
	require.Len(t, question.markup.InlineKeyboard[0], 3)
	assert.Equal("reg|maybe", *question.markup.InlineKeyboard[0][2].CallbackData)

	env.press(t, member, privateChat(testUser), "reg|yes")
	registered, err := env.registry.IsRegistered(ctx, testGroup, testUser)
	require.NoError(t, err)
	assert.True(registered)
	attendance, err := env.registry.Attendances(ctx, testGroup)
	require.NoError(t, err)
	assert.Equal("yes", attendance["42"])
	require.Len(t, env.platform.edits, 1)
	assert.Contains(env.platform.edits[0].text, "Thank you, Eve Doe!")

	// The session is over.
	env.press(t, member, privateChat(testUser), "reg|no")
	assert.True(env.platform.lastAnswer(t).alert)

	env.handleMessage(t, commandMessage(privateChat(testUser), member, "/start register_-1001"))
	assert.Contains(env.platform.lastSent(t).text, "already registered")
}

func TestStartRejectsNonMembers(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.platform.member = api.ChatMember{Status: "left"}

	env.handleMessage(t, commandMessage(privateChat(testUser), user(testUser), "/start register_-1001"))
	assert.Contains(t, env.platform.lastSent(t).text, "not a member")
	_, ok := env.registry.Session(testUser)
	assert.False(t, ok)
}

func TestWarnCommandAndRemoval(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	ctx := context.Background()
	env := newTestEnv(t)

	msg := commandMessage(groupChat(), user(testAdmin), "/warn")
	msg.ReplyToMessage = &api.Message{From: user(testUser)}
	env.handleMessage(t, msg)

	count, err := env.ledger.Count(ctx, testGroup, testUser)
	require.NoError(t, err)
	assert.Equal(int64(1), count)
	notice := env.platform.lastSent(t)
	assert.Contains(notice.text, "(1/5)")
	assert.Equal("mod|remwarn|42", *notice.markup.InlineKeyboard[0][0].CallbackData)

	env.press(t, user(testUser), groupChat(), "mod|remwarn|42")
	assert.True(env.platform.lastAnswer(t).alert, "members cannot remove warnings")

	env.press(t, user(testAdmin), groupChat(), "mod|remwarn|42")
	count, err = env.ledger.Count(ctx, testGroup, testUser)
	require.NoError(t, err)
	assert.Zero(count)
	require.Len(t, env.platform.edits, 1)
	assert.Contains(env.platform.edits[0].text, "Warning removed by")
	assert.Nil(env.platform.edits[0].markup)

	env.press(t, user(testAdmin), groupChat(), "mod|remwarn|42")
	assert.Equal(answered{"There are no warnings to remove", true}, env.platform.lastAnswer(t))
}

func TestWarnRefusesAdministrators(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	msg := commandMessage(groupChat(), user(testAdmin), "/warn")
	msg.ReplyToMessage = &api.Message{From: user(testAdmin)}
	env.handleMessage(t, msg)

	assert.Equal(t, "Administrators cannot be warned", env.platform.lastSent(t).text)
}

func TestReversalCallbacks(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	env := newTestEnv(t)

	env.press(t, user(testAdmin), groupChat(), "mod|unban|42")
	env.press(t, user(testAdmin), groupChat(), "mod|unmute|42")
	assert.Equal([]string{"unban", "restrict"}, env.platform.ops)
	require.Len(t, env.platform.edits, 2)
	assert.Contains(env.platform.edits[0].text, "Ban removed by")
	assert.Contains(env.platform.edits[1].text, "Unmuted by")
}

func TestIgnoreCommands(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)

	msg := commandMessage(groupChat(), user(testAdmin), "/ignore")
	msg.ReplyToMessage = &api.Message{From: user(testUser)}
	env.handleMessage(t, msg)
	ignored, err := env.groups.IsIgnored(ctx, testGroup, testUser)
	require.NoError(t, err)
	assert.True(t, ignored)

	msg = commandMessage(groupChat(), user(testAdmin), "/unignore")
	msg.ReplyToMessage = &api.Message{From: user(testUser)}
	env.handleMessage(t, msg)
	ignored, err = env.groups.IsIgnored(ctx, testGroup, testUser)
	require.NoError(t, err)
	assert.False(t, ignored)

	env.handleMessage(t, commandMessage(groupChat(), user(testAdmin), "/ignore"))
	assert.Equal(t, "Reply to a member's message to use this command", env.platform.lastSent(t).text)
}

func TestBanGroupAndStats(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	ctx := context.Background()
	env := newTestEnv(t)

	env.handleMessage(t, commandMessage(privateChat(testDev), user(testDev), "/bangroup -2002"))
	banned, err := env.store.SIsMember(ctx, store.KeyBannedGroups, "-2002")
	require.NoError(t, err)
	assert.True(banned)
	assert.Equal([]int64{-2002}, env.platform.left)

	env.handleMessage(t, commandMessage(privateChat(testDev), user(testDev), "/bangroup nope"))
	assert.Equal("Usage: /bangroup [group id]", env.platform.lastSent(t).text)

	_, err = env.store.HIncrBy(ctx, store.KeyBotGeneral, store.FieldStatMessages, 12)
	require.NoError(t, err)
	env.handleMessage(t, commandMessage(privateChat(testDev), user(testDev), "/stats"))
	stats := env.platform.lastSent(t).text
	assert.Contains(stats, "Messages checked: 12")
	assert.Contains(stats, "Kicks: 0")
	assert.Contains(stats, "Banned groups: 1")
}

func TestInfoCommand(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.ledger.Warn(ctx, testGroup, testUser)
	require.NoError(t, err)
	require.True(t, env.executor.Execute(ctx, testGroup, testUser, policy.ActionMute))
	require.NoError(t, env.groups.Ignore(ctx, testGroup, testUser))

	msg := commandMessage(groupChat(), user(testAdmin), "/info")
	msg.ReplyToMessage = &api.Message{From: user(testUser)}
	env.handleMessage(t, msg)

	lines := strings.Split(env.platform.lastSent(t).text, "\n")
	require.Len(t, lines, 6)
	assert.Equal(`<a href="tg://user?id=42">User</a>`, lines[0])
	assert.Equal("Warnings: 1/5", lines[1])
	assert.Equal("Muted: Yes", lines[2])
	assert.Equal("Temporarily banned: No", lines[3])
	assert.Equal("Registered: No", lines[4])
	assert.Equal("Exempt from checks: Yes", lines[5])

	env.handleMessage(t, commandMessage(groupChat(), user(testAdmin), "/info"))
	assert.Equal("Reply to a member's message to use this command", env.platform.lastSent(t).text)
}
