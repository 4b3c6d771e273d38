package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/stretchr/testify/require"

	"github.com/iamwavecut/ngguard/internal/policy"
	"github.com/iamwavecut/ngguard/internal/store/sqlite"
)

const (
	testChat int64 = -1001
	testUser int64 = 42
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type platformCall struct {
	op     string
	chatID int64
	userID int64
	until  time.Time
	perms  *api.ChatPermissions
}

type fakePlatform struct {
	mu       sync.Mutex
	calls    []platformCall
	banErr   error
	unbanErr error
}

func (p *fakePlatform) record(c platformCall) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, c)
}

func (p *fakePlatform) ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.calls))
	for _, c := range p.calls {
		out = append(out, c.op)
	}
	return out
}

func (p *fakePlatform) last() platformCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[len(p.calls)-1]
}

func (p *fakePlatform) BanMember(ctx context.Context, chatID, userID int64, until time.Time) error {
	p.record(platformCall{op: "ban", chatID: chatID, userID: userID, until: until})
	return p.banErr
}

func (p *fakePlatform) UnbanMember(ctx context.Context, chatID, userID int64) error {
	p.record(platformCall{op: "unban", chatID: chatID, userID: userID})
	return p.unbanErr
}

func (p *fakePlatform) RestrictMember(ctx context.Context, chatID, userID int64, perms *api.ChatPermissions, until time.Time) error {
	p.record(platformCall{op: "restrict", chatID: chatID, userID: userID, until: until, perms: perms})
	return p.banErr
}

type sentText struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentText
	err  error
}

func (n *fakeNotifier) SendText(ctx context.Context, chatID int64, text string, markup *api.InlineKeyboardMarkup) (api.Message, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentText{chatID: chatID, text: text})
	if n.err != nil {
		return api.Message{}, n.err
	}
	return api.Message{MessageID: len(n.sent)}, nil
}

func (n *fakeNotifier) texts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.text)
	}
	return out
}

type testEnv struct {
	store    *sqlite.Client
	groups   *policy.Groups
	platform *fakePlatform
	clock    *testClock
	executor *Executor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := newTestClock()
	client, err := sqlite.NewSQLiteClient(context.Background(), t.TempDir(), "test.db", sqlite.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	env := &testEnv{
		store:    client,
		groups:   policy.NewGroups(client),
		platform: &fakePlatform{},
		clock:    clock,
	}
	env.executor = NewExecutor(env.platform, env.groups, client, WithKickGrace(0), WithExecutorClock(clock.Now))
	return env
}

var errAdminTarget = errors.New("cant ban: Bad Request: user is an administrator of the chat")
