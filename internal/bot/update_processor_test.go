package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamwavecut/ngguard/internal/store"
	"github.com/iamwavecut/ngguard/internal/store/sqlite"
)

type recordingHandler struct {
	mu      sync.Mutex
	name    string
	proceed bool
	calls   *[]string
}

func (h *recordingHandler) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	*h.calls = append(*h.calls, h.name)
	return h.proceed, nil
}

type fakeLeaver struct {
	left []int64
}

func (l *fakeLeaver) LeaveChat(ctx context.Context, chatID int64) error {
	l.left = append(l.left, chatID)
	return nil
}

var processorStart = time.Unix(1700000000, 0)

func newTestProcessor(t *testing.T, enabled ...string) (*UpdateProcessor, *sqlite.Client, *fakeLeaver, *[]string) {
	t.Helper()
	client, err := sqlite.NewSQLiteClient(context.Background(), t.TempDir(), "test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	calls := &[]string{}
	available := map[string]Handler{
		"commands":    &recordingHandler{name: "commands", proceed: true, calls: calls},
		"enforcement": &recordingHandler{name: "enforcement", proceed: false, calls: calls},
		"tail":        &recordingHandler{name: "tail", proceed: true, calls: calls},
	}
	leaver := &fakeLeaver{}
	up := NewUpdateProcessor(client, leaver, available, enabled, WithProcessorClock(func() time.Time { return processorStart }))
	return up, client, leaver, calls
}

func groupUpdate(userID int64, text string, at time.Time) *api.Update {
	return &api.Update{
		UpdateID: 1,
		Message: &api.Message{
			MessageID: 1,
			From:      &api.User{ID: userID, FirstName: "Eve", LastName: "Doe", UserName: "eve"},
			Chat:      api.Chat{ID: -1001, Type: "supergroup"},
			Text:      text,
			Date:      int(at.Unix()),
		},
	}
}

func TestHandlerChainOrderAndStop(t *testing.T) {
	t.Parallel()
	up, _, _, calls := newTestProcessor(t, "commands", "missing", "enforcement", "tail")

	require.NoError(t, up.Process(context.Background(), groupUpdate(42, "hi", processorStart)))
	assert.Equal(t, []string{"commands", "enforcement"}, *calls)
}

func TestOutdatedUpdatesAreDropped(t *testing.T) {
	t.Parallel()
	up, _, _, calls := newTestProcessor(t, "commands")

	require.NoError(t, up.Process(context.Background(), groupUpdate(42, "old", processorStart.Add(-3*time.Minute))))
	assert.Empty(t, *calls)

	require.NoError(t, up.Process(context.Background(), groupUpdate(42, "recent", processorStart.Add(-time.Minute))))
	assert.Len(t, *calls, 1)
}

func TestBannedGroupIsLeft(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	up, client, leaver, calls := newTestProcessor(t, "commands")
	require.NoError(t, client.SAdd(ctx, store.KeyBannedGroups, "-1001"))

	require.NoError(t, up.Process(ctx, groupUpdate(42, "hi", processorStart)))
	assert.Empty(t, *calls)
	assert.Equal(t, []int64{-1001}, leaver.left)
}

func TestSpammerCannotAddressBot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	up, client, _, calls := newTestProcessor(t, "commands")
	require.NoError(t, client.Set(ctx, store.SpammerKey(42), "Spam/Flood|1|Eve", time.Hour))

	cmd := groupUpdate(42, "/menu", processorStart)
	cmd.Message.Entities = []api.MessageEntity{{Type: "bot_command", Offset: 0, Length: 5}}
	require.NoError(t, up.Process(ctx, cmd))
	assert.Empty(t, *calls)

	// Group messages still reach moderation.
	require.NoError(t, up.Process(ctx, groupUpdate(42, "hello", processorStart)))
	assert.Len(t, *calls, 1)
}

func TestUserNameIsRemembered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	up, client, _, _ := newTestProcessor(t)

	require.NoError(t, up.Process(ctx, groupUpdate(42, "hi", processorStart)))
	name, ok, err := client.HGet(ctx, store.UserKey(42), "name")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Eve Doe", name)
}

func TestProcessRejectsNil(t *testing.T) {
	t.Parallel()
	up, _, _, _ := newTestProcessor(t)
	assert.Error(t, up.Process(context.Background(), nil))
}

func TestGetMessageType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  *api.Message
		want MessageType
	}{
		{"text", &api.Message{Text: "hi"}, MessageTypeText},
		{"photo", &api.Message{Photo: []api.PhotoSize{{}}}, MessageTypePhoto},
		{"venue before location", &api.Message{Venue: &api.Venue{}, Location: &api.Location{}}, MessageTypeVenue},
		{"sticker", &api.Message{Sticker: &api.Sticker{}}, MessageTypeSticker},
		{"service", &api.Message{}, MessageTypeService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetMessageType(tt.msg); got != tt.want {
				t.Fatalf("GetMessageType() = %q, want %q", got, tt.want)
			}
		})
	}
}
