package moderation

import (
	"context"
	"strconv"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/observability"
	"github.com/iamwavecut/ngguard/internal/policy"
	"github.com/iamwavecut/ngguard/internal/store"
)

const DefaultKickGrace = 500 * time.Millisecond

// Platform is the part of the chat platform the executor drives.
type Platform interface {
	BanMember(ctx context.Context, chatID, userID int64, until time.Time) error
	UnbanMember(ctx context.Context, chatID, userID int64) error
	RestrictMember(ctx context.Context, chatID, userID int64, perms *api.ChatPermissions, until time.Time) error
}

type tempBanPolicy interface {
	TempBanDuration(ctx context.Context, chatID int64) (time.Duration, error)
}

// Executor turns abstract actions into platform calls. It never retries:
// a refused or failed call is reported as false.
type Executor struct {
	platform  Platform
	groups    tempBanPolicy
	store     store.Store
	kickGrace time.Duration
	now       func() time.Time
}

type ExecutorOption func(*Executor)

func WithKickGrace(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.kickGrace = d
	}
}

func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

func NewExecutor(platform Platform, groups tempBanPolicy, s store.Store, opts ...ExecutorOption) *Executor {
	e := &Executor{
		platform:  platform,
		groups:    groups,
		store:     s,
		kickGrace: DefaultKickGrace,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) getLogEntry() *log.Entry {
	return log.WithField("object", "Executor")
}

func (e *Executor) Execute(ctx context.Context, chatID, userID int64, action policy.Action) bool {
	return e.ExecuteUntil(ctx, chatID, userID, action, time.Time{})
}

// ExecuteUntil is Execute with an explicit end time for mute and tempban.
// A zero until means permanent for mute and the group duration for tempban.
func (e *Executor) ExecuteUntil(ctx context.Context, chatID, userID int64, action policy.Action, until time.Time) bool {
	entry := e.getLogEntry().WithFields(log.Fields{
		"chat_id": chatID,
		"user_id": userID,
		"action":  action.String(),
	})

	var err error
	switch action {
	case policy.ActionKick:
		err = e.kick(ctx, chatID, userID)
	case policy.ActionBan:
		err = e.ban(ctx, chatID, userID)
	case policy.ActionTempBan:
		err = e.tempBan(ctx, chatID, userID, until)
	case policy.ActionMute:
		err = e.mute(ctx, chatID, userID, until)
	case policy.ActionUnmute:
		err = e.unmute(ctx, chatID, userID)
	case policy.ActionUnban:
		err = e.unban(ctx, chatID, userID)
	default:
		entry.Warn("unsupported action")
		return false
	}

	switch {
	case err == nil:
		observability.RecordAction(action.String())
		entry.Info("action executed")
		return true
	case IsExpected(err):
		entry.WithError(err).Debug("action refused by platform")
	default:
		entry.WithError(err).Error("action failed")
	}
	return false
}

func (e *Executor) kick(ctx context.Context, chatID, userID int64) error {
	if err := e.platform.BanMember(ctx, chatID, userID, time.Time{}); err != nil {
		return classifyPlatformError(err, "kick")
	}
	if e.kickGrace > 0 {
		timer := time.NewTimer(e.kickGrace)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
	// The kick must not leave a permanent ban behind even if ctx is done.
	if err := e.platform.UnbanMember(context.WithoutCancel(ctx), chatID, userID); err != nil {
		return classifyPlatformError(err, "kick")
	}
	e.bumpGeneral(ctx, store.FieldStatKick)
	return nil
}

func (e *Executor) ban(ctx context.Context, chatID, userID int64) error {
	if err := e.platform.BanMember(ctx, chatID, userID, time.Time{}); err != nil {
		return classifyPlatformError(err, "ban")
	}
	e.bumpGeneral(ctx, store.FieldStatBan)
	return nil
}

func (e *Executor) tempBan(ctx context.Context, chatID, userID int64, until time.Time) error {
	now := e.now()
	if until.IsZero() {
		duration, err := e.groups.TempBanDuration(ctx, chatID)
		if err != nil {
			duration = time.Duration(policy.DefaultTempBanMinutes) * time.Minute
			e.getLogEntry().WithError(err).WithField("chat_id", chatID).Warn("temp ban duration unavailable, using default")
		}
		until = now.Add(duration)
	}
	if err := e.platform.BanMember(ctx, chatID, userID, until); err != nil {
		return classifyPlatformError(err, "tempban")
	}
	e.bumpGeneral(ctx, store.FieldStatBan)
	if ttl := until.Sub(now); ttl > 0 {
		record := strconv.FormatInt(until.Unix(), 10)
		if err := e.store.Set(ctx, store.TempBanKey(chatID, userID), record, ttl); err != nil {
			e.getLogEntry().WithError(err).Warn("cant record temp ban")
		}
	}
	return nil
}

func (e *Executor) mute(ctx context.Context, chatID, userID int64, until time.Time) error {
	if err := e.platform.RestrictMember(ctx, chatID, userID, &api.ChatPermissions{}, until); err != nil {
		return classifyPlatformError(err, "mute")
	}
	if err := e.store.SAdd(ctx, store.ChatMutedKey(chatID), strconv.FormatInt(userID, 10)); err != nil {
		e.getLogEntry().WithError(err).Warn("cant track mute")
	}
	return nil
}

func (e *Executor) unmute(ctx context.Context, chatID, userID int64) error {
	if err := e.platform.RestrictMember(ctx, chatID, userID, FullPermissions(), time.Time{}); err != nil {
		return classifyPlatformError(err, "unmute")
	}
	if err := e.store.SRem(ctx, store.ChatMutedKey(chatID), strconv.FormatInt(userID, 10)); err != nil {
		e.getLogEntry().WithError(err).Warn("cant untrack mute")
	}
	return nil
}

func (e *Executor) unban(ctx context.Context, chatID, userID int64) error {
	if err := e.platform.UnbanMember(ctx, chatID, userID); err != nil {
		return classifyPlatformError(err, "unban")
	}
	if err := e.store.Delete(ctx, store.TempBanKey(chatID, userID)); err != nil {
		e.getLogEntry().WithError(err).Warn("cant clear temp ban record")
	}
	return nil
}

// IsMuted reads the observational mute set. Display only.
func (e *Executor) IsMuted(ctx context.Context, chatID, userID int64) (bool, error) {
	return e.store.SIsMember(ctx, store.ChatMutedKey(chatID), strconv.FormatInt(userID, 10))
}

// IsTempBanned reads the temp ban record. Display only.
func (e *Executor) IsTempBanned(ctx context.Context, chatID, userID int64) (bool, error) {
	return e.store.Exists(ctx, store.TempBanKey(chatID, userID))
}

func (e *Executor) bumpGeneral(ctx context.Context, field string) {
	if _, err := e.store.HIncrBy(ctx, store.KeyBotGeneral, field, 1); err != nil {
		e.getLogEntry().WithError(err).WithField("field", field).Warn("cant bump counter")
	}
}

// FullPermissions is the permission set restored on unmute.
func FullPermissions() *api.ChatPermissions {
	return &api.ChatPermissions{
		CanSendMessages:       true,
		CanSendAudios:         true,
		CanSendDocuments:      true,
		CanSendPhotos:         true,
		CanSendVideos:         true,
		CanSendVideoNotes:     true,
		CanSendVoiceNotes:     true,
		CanSendPolls:          true,
		CanSendOtherMessages:  true,
		CanAddWebPagePreviews: true,
		CanInviteUsers:        true,
	}
}
