package commands

import (
	"context"
	"fmt"
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamwavecut/ngguard/internal/registration"
)

func TestUsersListIsPaginated(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	ctx := context.Background()
	env := newTestEnv(t)
	for i := 1; i <= 5; i++ {
		require.NoError(t, env.registry.StoreGroupInfo(ctx, int64(-3000-i), fmt.Sprintf("Group %d", i)))
	}

	env.handleMessage(t, commandMessage(privateChat(testDev), user(testDev), "/users"))
	list := env.platform.lastSent(t)
	assert.Equal("Choose a group:", list.text)
	rows := list.markup.InlineKeyboard
	require.Len(t, rows, 5)
	assert.Equal("Group 1", rows[0][0].Text)
	assert.Equal("grp_sel|-3001", *rows[0][0].CallbackData)
	require.Len(t, rows[4], 1)
	assert.Equal("➡️", rows[4][0].Text)
	assert.Equal("grp_page|1", *rows[4][0].CallbackData)

	env.press(t, user(testDev), privateChat(testDev), "grp_page|1")
	require.Len(t, env.platform.edits, 1)
	page := env.platform.edits[0].markup.InlineKeyboard
	require.Len(t, page, 2)
	assert.Equal("Group 5", page[0][0].Text)
	assert.Equal("⬅️", page[1][0].Text)
	assert.Equal("grp_page|0", *page[1][0].CallbackData)
}

func TestUsersWithoutGroups(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.handleMessage(t, commandMessage(privateChat(testDev), user(testDev), "/users"))
	assert.Equal(t, "There are no groups to list.", env.platform.lastSent(t).text)
}

func TestGroupSelectSendsExport(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	ctx := context.Background()
	env := newTestEnv(t)
	env.platform.memberCount = 5
	require.NoError(t, env.registry.StoreGroupInfo(ctx, testGroup, "Gophers"))
	require.NoError(t, env.registry.Register(ctx, testGroup, &api.User{ID: testUser, FirstName: "Eve"}, "Eve Doe", registration.AttendanceYes))

	env.press(t, user(testDev), privateChat(testDev), "grp_sel|-1001")

	require.Len(t, env.platform.chattables, 1)
	doc, ok := env.platform.chattables[0].(api.DocumentConfig)
	require.True(t, ok)
	assert.Equal(testDev, doc.ChatID)
	assert.Equal("Gophers\nMembers: 5\nRegistered: 1\nNot registered: 4", doc.Caption)
	file, ok := doc.File.(api.FileBytes)
	require.True(t, ok)
	assert.Equal("users_-1001.csv", file.Name)
	assert.Contains(string(file.Bytes), "42,Eve,None,Eve Doe,yes,-1001")
}

func TestGroupCallbacksNeedDeveloper(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	require.NoError(t, env.registry.StoreGroupInfo(context.Background(), testGroup, "Gophers"))

	env.press(t, user(testAdmin), privateChat(testAdmin), "grp_sel|-1001")
	env.press(t, user(testAdmin), privateChat(testAdmin), "grp_page|0")
	assert.Empty(t, env.platform.chattables)
	assert.Empty(t, env.platform.edits)
	assert.Equal(t, answered{"", false}, env.platform.lastAnswer(t))
}
