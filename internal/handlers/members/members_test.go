package members

import (
	"context"
	"sync"
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamwavecut/ngguard/internal/policy"
	"github.com/iamwavecut/ngguard/internal/store/sqlite"
	"github.com/iamwavecut/ngguard/internal/welcome"
)

const testGroup int64 = -1001

type fakePlatform struct {
	mu          sync.Mutex
	sent        []api.Chattable
	texts       []string
	deleted     []int
	invalidated []int64
}

func (p *fakePlatform) Send(ctx context.Context, c api.Chattable) (api.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, c)
	return api.Message{MessageID: 100 + len(p.sent)}, nil
}

func (p *fakePlatform) SendText(ctx context.Context, chatID int64, text string, markup *api.InlineKeyboardMarkup) (api.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts = append(p.texts, text)
	return api.Message{}, nil
}

func (p *fakePlatform) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, messageID)
	return nil
}

func (p *fakePlatform) InvalidateAdmins(chatID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidated = append(p.invalidated, chatID)
}

type testEnv struct {
	platform  *fakePlatform
	groups    *policy.Groups
	greetings *welcome.Store
	members   *Members
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	client, err := sqlite.NewSQLiteClient(context.Background(), t.TempDir(), "test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	env := &testEnv{
		platform:  &fakePlatform{},
		groups:    policy.NewGroups(client),
		greetings: welcome.NewStore(client),
	}
	env.members = NewMembers(Dependencies{
		Platform:  env.platform,
		Groups:    env.groups,
		Greetings: env.greetings,
	})
	return env
}

func joinUpdate(users ...api.User) *api.Update {
	return &api.Update{Message: &api.Message{
		MessageID:      1,
		Chat:           api.Chat{ID: testGroup, Type: "supergroup", Title: "Gophers"},
		From:           &users[0],
		NewChatMembers: users,
	}}
}

func (env *testEnv) handle(t *testing.T, u *api.Update) bool {
	t.Helper()
	proceed, err := env.members.Handle(context.Background(), u, u.FromChat(), u.SentFrom())
	require.NoError(t, err)
	return proceed
}

func TestGreetingNeedsWelcomeEnabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.greetings.Set(ctx, testGroup, welcome.Greeting{Text: "Hi $name"}))

	assert.False(t, env.handle(t, joinUpdate(api.User{ID: 5, FirstName: "Ada"})))
	assert.Empty(t, env.platform.sent, "greeting is off by default")

	_, err := env.groups.ToggleSetting(ctx, testGroup, policy.SettingWelcome)
	require.NoError(t, err)
	env.handle(t, joinUpdate(api.User{ID: 5, FirstName: "Ada"}, api.User{ID: 6, FirstName: "Bot", IsBot: true}))
	require.Len(t, env.platform.sent, 1)
	msg, ok := env.platform.sent[0].(api.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, `Hi <a href="tg://user?id=5">Ada</a>`, msg.Text)
}

func TestPreviousGreetingsAreDeleted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.greetings.Set(ctx, testGroup, welcome.Greeting{Text: "Hi"}))
	_, err := env.groups.ToggleSetting(ctx, testGroup, policy.SettingWelcome)
	require.NoError(t, err)

	env.handle(t, joinUpdate(api.User{ID: 5, FirstName: "Ada"}))
	env.handle(t, joinUpdate(api.User{ID: 6, FirstName: "Bob"}))
	assert.Equal(t, []int{101}, env.platform.deleted)

	_, err = env.groups.ToggleSetting(ctx, testGroup, policy.SettingDeleteLastWelcome)
	require.NoError(t, err)
	env.handle(t, joinUpdate(api.User{ID: 7, FirstName: "Cy"}))
	env.handle(t, joinUpdate(api.User{ID: 8, FirstName: "Di"}))
	assert.Equal(t, []int{101}, env.platform.deleted, "greetings are kept once the option is off")
}

func TestNoGreetingWithoutTemplate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	_, err := env.groups.ToggleSetting(ctx, testGroup, policy.SettingWelcome)
	require.NoError(t, err)

	env.handle(t, joinUpdate(api.User{ID: 5, FirstName: "Ada"}))
	assert.Empty(t, env.platform.sent)
}

func TestAdminChangesInvalidateCache(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	chat := api.Chat{ID: testGroup, Type: "supergroup"}

	assert.False(t, env.handle(t, &api.Update{ChatMember: &api.ChatMemberUpdated{
		Chat:          chat,
		OldChatMember: api.ChatMember{Status: "member"},
		NewChatMember: api.ChatMember{Status: "restricted"},
	}}))
	assert.Empty(t, env.platform.invalidated)

	env.handle(t, &api.Update{ChatMember: &api.ChatMemberUpdated{
		Chat:          chat,
		OldChatMember: api.ChatMember{Status: "member"},
		NewChatMember: api.ChatMember{Status: "administrator"},
	}})
	assert.Equal(t, []int64{testGroup}, env.platform.invalidated)
}

func TestBotRightsNotice(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	chat := api.Chat{ID: testGroup, Type: "supergroup"}

	env.handle(t, &api.Update{MyChatMember: &api.ChatMemberUpdated{
		Chat:          chat,
		NewChatMember: api.ChatMember{Status: "administrator", CanDeleteMessages: true, CanRestrictMembers: true},
	}})
	assert.Empty(t, env.platform.texts)

	env.handle(t, &api.Update{MyChatMember: &api.ChatMemberUpdated{
		Chat:          chat,
		NewChatMember: api.ChatMember{Status: "member"},
	}})
	require.Len(t, env.platform.texts, 1)
	assert.Contains(t, env.platform.texts[0], "administrator")

	env.handle(t, &api.Update{MyChatMember: &api.ChatMemberUpdated{
		Chat:          chat,
		NewChatMember: api.ChatMember{Status: "kicked"},
	}})
	assert.Len(t, env.platform.texts, 1)
	assert.Len(t, env.platform.invalidated, 3)
}

func TestOtherUpdatesProceed(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	msg := &api.Message{Chat: api.Chat{ID: testGroup, Type: "group"}, From: &api.User{ID: 5}, Text: "hi"}
	assert.True(t, env.handle(t, &api.Update{Message: msg}))
}
