package classifier

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

type fakeDeleter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (d *fakeDeleter) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.err
}

func (d *fakeDeleter) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

var errNoRights = errors.New("Bad Request: message can't be deleted")

func newTestGroups(t *testing.T) (*policy.Groups, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	client, err := sqlite.NewSQLiteClient(context.Background(), t.TempDir(), "test.db", sqlite.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return policy.NewGroups(client), clock
}

func textMessage(text string) *api.Message {
	return &api.Message{
		MessageID: 1,
		From:      &api.User{ID: testUser, FirstName: "Eve"},
		Chat:      api.Chat{ID: testChat, Type: "supergroup"},
		Text:      text,
	}
}
