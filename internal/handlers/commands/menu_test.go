package commands

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamwavecut/ngguard/internal/policy"
)

func menuData(section, op, arg string) string {
	return menuAction{ChatID: testGroup, Section: section, Op: op, Arg: arg}.encode()
}

func TestMenuCommandSendsPrivately(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	env := newTestEnv(t)

	env.handleMessage(t, commandMessage(groupChat(), user(testAdmin), "/menu"))
	require.Len(t, env.platform.sent, 2)
	menu := env.platform.sent[0]
	assert.Equal(testAdmin, menu.chatID)
	assert.Contains(menu.text, "Settings of Gophers")
	assert.Len(menu.markup.InlineKeyboard, 4)
	assert.Equal(testGroup, env.platform.sent[1].chatID)
}

func TestMenuCommandFallsBackToGroup(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.platform.privErr = assert.AnError

	env.handleMessage(t, commandMessage(groupChat(), user(testAdmin), "/menu"))
	menu := env.platform.lastSent(t)
	assert.Equal(t, testGroup, menu.chatID)
	assert.NotNil(t, menu.markup)
}

func TestMenuOperations(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	ctx := context.Background()
	env := newTestEnv(t)
	admin := user(testAdmin)
	chat := privateChat(testAdmin)

	env.press(t, admin, chat, menuData(sectionFlood, opToggle, policy.SettingFlood))
	flood, err := env.groups.Flood(ctx, testGroup)
	require.NoError(t, err)
	assert.False(flood.Enabled)

	env.press(t, admin, chat, menuData(sectionFlood, opInc, "flood"))
	env.press(t, admin, chat, menuData(sectionFlood, opCycle, sectionFlood))
	flood, err = env.groups.Flood(ctx, testGroup)
	require.NoError(t, err)
	assert.Equal(9, flood.Max)
	assert.Equal(policy.ActionBan, flood.Action)

	env.press(t, admin, chat, menuData(sectionMedia, opToggleMedia, string(policy.MediaSticker)))
	env.press(t, admin, chat, menuData(sectionMedia, opCycleMedia, ""))
	media, err := env.groups.Media(ctx, testGroup, policy.MediaSticker)
	require.NoError(t, err)
	assert.Equal(policy.MediaBlocked, media.Status)
	assert.Equal(policy.ActionMute, media.Action)

	env.press(t, admin, chat, menuData(sectionText, opToggleText, ""))
	env.press(t, admin, chat, menuData(sectionText, opDec, "lines"))
	text, err := env.groups.TextLength(ctx, testGroup)
	require.NoError(t, err)
	assert.False(text.Enabled)
	assert.Equal(40, text.MaxLines)

	env.press(t, admin, chat, menuData(sectionWarns, opTempBan, ""))
	tempBan, err := env.groups.TempBanDuration(ctx, testGroup)
	require.NoError(t, err)
	assert.Equal(time.Hour, tempBan)

	env.press(t, admin, chat, menuData(sectionGeneral, opToggle, policy.SettingNewUsersCaptcha))
	required, err := env.groups.RegistrationRequired(ctx, testGroup)
	require.NoError(t, err)
	assert.True(required)

	assert.Len(env.platform.edits, 9)
	last := env.platform.edits[len(env.platform.edits)-1]
	assert.Equal("✅ Registration required", last.markup.InlineKeyboard[0][0].Text)
}

func TestMenuTogglesGreeting(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	ctx := context.Background()
	env := newTestEnv(t)
	admin := user(testAdmin)
	chat := privateChat(testAdmin)

	env.press(t, admin, chat, menuData(sectionGeneral, opToggle, policy.SettingWelcome))
	env.press(t, admin, chat, menuData(sectionGeneral, opToggle, policy.SettingDeleteLastWelcome))
	welcome, err := env.groups.Welcome(ctx, testGroup)
	require.NoError(t, err)
	assert.Equal(policy.WelcomePolicy{Enabled: true, DeleteLast: false}, welcome)

	require.Len(t, env.platform.edits, 2)
	rows := env.platform.edits[1].markup.InlineKeyboard
	assert.Equal("✅ Greet new members", rows[1][0].Text)
	assert.Equal("⬜ Delete the previous greeting", rows[2][0].Text)
}

func TestMenuWarnsAboutMissingRights(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.platform.limited = true

	env.handleMessage(t, commandMessage(groupChat(), user(testAdmin), "/menu"))
	require.Len(t, env.platform.sent, 3)
	notice := env.platform.sent[0]
	assert.Equal(t, testGroup, notice.chatID)
	assert.Equal(t, "I need to be an administrator allowed to delete messages and ban members to moderate this group.", notice.text)
	assert.Equal(t, testAdmin, env.platform.sent[1].chatID)
}

func TestMenuRejectsUnknownAndUnauthorized(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	ctx := context.Background()
	env := newTestEnv(t)

	env.press(t, user(testUser), privateChat(testUser), menuData(sectionFlood, opToggle, policy.SettingFlood))
	assert.True(env.platform.lastAnswer(t).alert)

	env.press(t, user(testAdmin), privateChat(testAdmin), menuData(sectionGeneral, opToggle, "NoSuchSetting"))
	env.press(t, user(testAdmin), privateChat(testAdmin), menuData(sectionFlood, "explode", ""))
	env.press(t, user(testAdmin), privateChat(testAdmin), "menu|garbage")
	assert.Empty(env.platform.edits)

	flood, err := env.groups.Flood(ctx, testGroup)
	require.NoError(t, err)
	assert.True(flood.Enabled)
}

func TestMenuClose(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.press(t, user(testAdmin), privateChat(testAdmin), menuData(sectionClose, "", ""))
	assert.Equal(t, []int{55}, env.platform.deleted)
}

func TestNextTempBanPreset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		current time.Duration
		want    int
	}{
		{30 * time.Minute, 60},
		{45 * time.Minute, 60},
		{12 * time.Hour, 1440},
		{24 * time.Hour, 30},
	}
	for _, tt := range tests {
		if got := nextTempBanPreset(tt.current); got != tt.want {
			t.Fatalf("nextTempBanPreset(%v) = %d, want %d", tt.current, got, tt.want)
		}
	}
}
