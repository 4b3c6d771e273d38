package classifier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamwavecut/ngguard/internal/policy"
)

func TestFloodTriggersOnlyPastThreshold(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	ctx := context.Background()
	groups, clock := newTestGroups(t)
	flood := NewFlood(groups)

	violations := 0
	for i := 1; i <= 9; i++ {
		v, err := flood.Classify(ctx, NewTarget(textMessage("hi")))
		require.NoError(t, err)
		if v.Violation {
			violations++
			assert.Equal(9, i, "only the 9th message exceeds 8")
			assert.Equal(KindFlood, v.Kind)
			assert.Equal(policy.ActionKick, v.Action)
			assert.Equal(int64(9), v.Context["count"])
			assert.Equal(8, v.Context["max"])
		}
	}
	assert.Equal(1, violations)

	clock.Advance(7 * time.Second)
	count, err := groups.CountFlood(ctx, testChat, testUser)
	require.NoError(t, err)
	assert.Equal(int64(1), count, "counter restarts after the window")
}

func TestFloodSkipsDisabledAndIgnored(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	groups, _ := newTestGroups(t)
	flood := NewFlood(groups)

	_, err := groups.ToggleSetting(ctx, testChat, policy.SettingFlood)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		v, err := flood.Classify(ctx, NewTarget(textMessage("hi")))
		require.NoError(t, err)
		require.False(t, v.Violation)
	}
	count, err := groups.CountFlood(ctx, testChat, testUser)
	require.NoError(t, err)
	if count != 1 {
		t.Fatalf("disabled flood check must not count messages, got %d", count)
	}

	_, err = groups.ToggleSetting(ctx, testChat, policy.SettingFlood)
	require.NoError(t, err)
	require.NoError(t, groups.Ignore(ctx, testChat, testUser))
	for i := 0; i < 20; i++ {
		v, err := flood.Classify(ctx, NewTarget(textMessage("hi")))
		require.NoError(t, err)
		require.False(t, v.Violation)
	}
}
