package commands

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/stretchr/testify/require"

	"github.com/iamwavecut/ngguard/internal/moderation"
	"github.com/iamwavecut/ngguard/internal/policy"
	"github.com/iamwavecut/ngguard/internal/registration"
	"github.com/iamwavecut/ngguard/internal/store/sqlite"
	"github.com/iamwavecut/ngguard/internal/welcome"
)

const (
	testGroup int64 = -1001
	testAdmin int64 = 7
	testUser  int64 = 42
	testDev   int64 = 1
)

type sent struct {
	chatID int64
	text   string
	markup *api.InlineKeyboardMarkup
}

type answered struct {
	text  string
	alert bool
}

type fakePlatform struct {
	mu          sync.Mutex
	sent        []sent
	chattables  []api.Chattable
	edits       []sent
	answers     []answered
	deleted     []int
	left        []int64
	ops         []string
	member      api.ChatMember
	privErr     error
	sendErr     map[int64]error
	memberCount int
	limited     bool
}

func (p *fakePlatform) Send(ctx context.Context, c api.Chattable) (api.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if chatID, ok := chattableChat(c); ok {
		if err := p.sendErr[chatID]; err != nil {
			return api.Message{}, err
		}
	}
	p.chattables = append(p.chattables, c)
	return api.Message{MessageID: 500 + len(p.chattables)}, nil
}

func chattableChat(c api.Chattable) (int64, bool) {
	switch v := c.(type) {
	case api.MessageConfig:
		return v.ChatID, true
	case api.ForwardConfig:
		return v.ChatID, true
	case api.DocumentConfig:
		return v.ChatID, true
	}
	return 0, false
}

func (p *fakePlatform) GetMemberCount(ctx context.Context, chatID int64) (int, error) {
	return p.memberCount, nil
}

func (p *fakePlatform) BotCanModerate(ctx context.Context, chatID int64) (bool, error) {
	return !p.limited, nil
}

func (p *fakePlatform) SendText(ctx context.Context, chatID int64, text string, markup *api.InlineKeyboardMarkup) (api.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if chatID > 0 && p.privErr != nil {
		return api.Message{}, p.privErr
	}
	p.sent = append(p.sent, sent{chatID, text, markup})
	return api.Message{MessageID: len(p.sent)}, nil
}

func (p *fakePlatform) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, markup *api.InlineKeyboardMarkup) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.edits = append(p.edits, sent{chatID, text, markup})
	return nil
}

func (p *fakePlatform) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, messageID)
	return nil
}

func (p *fakePlatform) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.answers = append(p.answers, answered{text, alert})
	return nil
}

func (p *fakePlatform) IsGroupAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	return userID == testAdmin, nil
}

func (p *fakePlatform) GetChatMember(ctx context.Context, chatID, userID int64) (api.ChatMember, error) {
	return p.member, nil
}

func (p *fakePlatform) LeaveChat(ctx context.Context, chatID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.left = append(p.left, chatID)
	return nil
}

func (p *fakePlatform) BotUsername() string {
	return "ngguard_bot"
}

func (p *fakePlatform) BanMember(ctx context.Context, chatID, userID int64, until time.Time) error {
	p.op("ban")
	return nil
}

func (p *fakePlatform) UnbanMember(ctx context.Context, chatID, userID int64) error {
	p.op("unban")
	return nil
}

func (p *fakePlatform) RestrictMember(ctx context.Context, chatID, userID int64, perms *api.ChatPermissions, until time.Time) error {
	p.op("restrict")
	return nil
}

func (p *fakePlatform) op(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, name)
}

func (p *fakePlatform) lastSent(t *testing.T) sent {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.sent)
	return p.sent[len(p.sent)-1]
}

func (p *fakePlatform) lastAnswer(t *testing.T) answered {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.answers)
	return p.answers[len(p.answers)-1]
}

type fakeBurst struct {
	suppress bool
	calls    int
}

func (b *fakeBurst) AddMessage(userID int64, at time.Time) bool {
	b.calls++
	return b.suppress
}

func (b *fakeBurst) Tracked() int {
	return b.calls
}

type testEnv struct {
	platform  *fakePlatform
	burst     *fakeBurst
	groups    *policy.Groups
	registry  *registration.Registry
	ledger    *moderation.Ledger
	executor  *moderation.Executor
	greetings *welcome.Store
	store     *sqlite.Client
	commands  *Commands
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	client, err := sqlite.NewSQLiteClient(context.Background(), t.TempDir(), "test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	env := &testEnv{
		platform:  &fakePlatform{member: api.ChatMember{Status: "member"}},
		burst:     &fakeBurst{},
		groups:    policy.NewGroups(client),
		registry:  registration.NewRegistry(client),
		greetings: welcome.NewStore(client),
		store:     client,
	}
	env.executor = moderation.NewExecutor(env.platform, env.groups, client, moderation.WithKickGrace(0))
	env.ledger = moderation.NewLedger(client, env.groups, env.executor)
	env.commands = NewCommands(Dependencies{
		Platform:  env.platform,
		Groups:    env.groups,
		Registry:  env.registry,
		Ledger:    env.ledger,
		Executor:  env.executor,
		Greetings: env.greetings,
		Burst:     env.burst,
		Store:     client,
		IsDev:     func(userID int64) bool { return userID == testDev },
	})
	return env
}

func groupChat() api.Chat {
	return api.Chat{ID: testGroup, Type: "supergroup", Title: "Gophers"}
}

func privateChat(userID int64) api.Chat {
	return api.Chat{ID: userID, Type: "private"}
}

func user(id int64) *api.User {
	return &api.User{ID: id, FirstName: "User"}
}

func commandMessage(chat api.Chat, from *api.User, text string) *api.Message {
	length := strings.IndexByte(text, ' ')
	if length < 0 {
		length = len(text)
	}
	return &api.Message{
		MessageID: 100,
		From:      from,
		Chat:      chat,
		Text:      text,
		Entities:  []api.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}
}

func (env *testEnv) handleMessage(t *testing.T, msg *api.Message) bool {
	t.Helper()
	proceed, err := env.commands.Handle(context.Background(), &api.Update{Message: msg}, &msg.Chat, msg.From)
	require.NoError(t, err)
	return proceed
}

func (env *testEnv) press(t *testing.T, from *api.User, chat api.Chat, data string) {
	t.Helper()
	q := &api.CallbackQuery{
		ID:   "cb",
		From: from,
		Data: data,
		Message: &api.Message{
			MessageID: 55,
			Chat:      chat,
			Text:      "notice",
		},
	}
	proceed, err := env.commands.Handle(context.Background(), &api.Update{CallbackQuery: q}, &chat, from)
	require.NoError(t, err)
	require.False(t, proceed)
}
