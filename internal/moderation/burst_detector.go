package moderation

import (
	"context"
	"fmt"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/puzpuzpuz/xsync/v3"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/i18n"
	"github.com/iamwavecut/ngguard/internal/observability"
	"github.com/iamwavecut/ngguard/internal/store"
)

const (
	DefaultBurstSweepInterval = 2 * time.Second

	burstWindow          = time.Minute
	burstReplyDebounce   = 4 * time.Second
	burstThreshold       = 10
	burstHardThreshold   = 20
	burstWarnsToWarn     = 2
	burstWarnsToEscalate = 3
)

type (
	notifier interface {
		SendText(ctx context.Context, chatID int64, text string, markup *api.InlineKeyboardMarkup) (api.Message, error)
	}

	burstMessage struct {
		at      time.Time
		replied bool
	}

	// SpamDetector is the in-memory burst state of one user.
	SpamDetector struct {
		mu       sync.Mutex
		messages []burstMessage
		warns    int
		notified bool
	}

	sweepDecision int
)

const (
	sweepNothing sweepDecision = iota
	sweepWarn
	sweepEscalate
)

// BurstDetector watches per user message rates towards the bot and issues
// global bans for acute bursts. Its state lives only in memory.
type BurstDetector struct {
	store    store.Store
	notifier notifier
	lang     string
	interval time.Duration
	now      func() time.Time
	table    *xsync.MapOf[int64, *SpamDetector]

	runMutex  sync.Mutex
	started   bool
	runCancel context.CancelFunc
	workersWg sync.WaitGroup
}

type BurstOption func(*BurstDetector)

func WithSweepInterval(d time.Duration) BurstOption {
	return func(b *BurstDetector) {
		if d > 0 {
			b.interval = d
		}
	}
}

func WithBurstClock(now func() time.Time) BurstOption {
	return func(b *BurstDetector) {
		b.now = now
	}
}

func NewBurstDetector(s store.Store, n notifier, lang string, opts ...BurstOption) *BurstDetector {
	b := &BurstDetector{
		store:    s,
		notifier: n,
		lang:     lang,
		interval: DefaultBurstSweepInterval,
		now:      time.Now,
		table:    xsync.NewMapOf[int64, *SpamDetector](),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *BurstDetector) getLogEntry() *log.Entry {
	return log.WithField("object", "BurstDetector")
}

// AddMessage records a message from userID. It returns true when the caller
// should not reply, because the bot already replied within the debounce window.
func (b *BurstDetector) AddMessage(userID int64, at time.Time) (suppressReply bool) {
	d, _ := b.table.LoadOrCompute(userID, func() *SpamDetector {
		return &SpamDetector{}
	})

	d.mu.Lock()
	defer d.mu.Unlock()

	var lastReplied time.Time
	for _, m := range d.messages {
		if m.replied && m.at.After(lastReplied) {
			lastReplied = m.at
		}
	}
	shouldReply := lastReplied.Before(b.now().Add(-burstReplyDebounce))
	d.messages = append(d.messages, burstMessage{at: at, replied: shouldReply})
	return !shouldReply
}

// IsBanned reports whether the user carries an active global burst ban.
func (b *BurstDetector) IsBanned(ctx context.Context, userID int64) (bool, error) {
	return b.store.Exists(ctx, store.SpammerKey(userID))
}

func (b *BurstDetector) Start(ctx context.Context) error {
	b.runMutex.Lock()
	defer b.runMutex.Unlock()
	if b.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.runCancel = cancel

	b.workersWg.Add(1)
	go func() {
		defer b.workersWg.Done()
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				b.Sweep(runCtx)
			}
		}
	}()

	b.started = true
	return nil
}

func (b *BurstDetector) Stop(ctx context.Context) error {
	b.runMutex.Lock()
	if !b.started {
		b.runMutex.Unlock()
		return nil
	}
	b.started = false
	cancel := b.runCancel
	b.runMutex.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.workersWg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Sweep evaluates every tracked user once. Users added during the sweep may
// be evaluated on the next one.
func (b *BurstDetector) Sweep(ctx context.Context) {
	b.table.Range(func(userID int64, d *SpamDetector) bool {
		if ctx.Err() != nil {
			return false
		}
		b.sweepUser(ctx, userID, d)
		return true
	})
}

func (b *BurstDetector) sweepUser(ctx context.Context, userID int64, d *SpamDetector) {
	defer func() {
		if r := recover(); r != nil {
			b.getLogEntry().WithFields(log.Fields{"user_id": userID, "panic": r}).Error("burst sweep panicked")
		}
	}()

	decision, count := b.decide(d)
	entry := b.getLogEntry().WithFields(log.Fields{"user_id": userID, "messages": count})
	switch decision {
	case sweepWarn:
		entry.Info("burst warning")
		b.send(ctx, userID, i18n.Get("Please do not spam me. Next time is automated ban.", b.lang))
	case sweepEscalate:
		if err := b.escalate(ctx, userID, count); err != nil {
			entry.WithError(err).Error("cant escalate burst")
		}
	}
}

// decide applies the window rules under the detector lock and leaves all I/O
// to the caller.
func (b *BurstDetector) decide(d *SpamDetector) (sweepDecision, int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := b.now().Add(-burstWindow)
	kept := d.messages[:0]
	for _, m := range d.messages {
		if !m.at.Before(cutoff) {
			kept = append(kept, m)
		}
	}
	d.messages = kept
	count := len(d.messages)

	if count == 0 {
		d.notified = false
		return sweepNothing, 0
	}
	if count < burstThreshold {
		return sweepNothing, count
	}

	d.warns++
	if d.warns < burstWarnsToWarn && count < burstHardThreshold {
		return sweepWarn, count
	}

	decision := sweepNothing
	if (d.warns >= burstWarnsToEscalate || count >= burstHardThreshold) && !d.notified {
		d.notified = true
		decision = sweepEscalate
	}
	d.messages = d.messages[:0]
	return decision, count
}

func (b *BurstDetector) escalate(ctx context.Context, userID int64, messages int) error {
	banned, err := b.IsBanned(ctx, userID)
	if err != nil {
		return err
	}
	if banned {
		return nil
	}

	userKey := store.UserKey(userID)
	name, ok, err := b.store.HGet(ctx, userKey, "name")
	if err != nil {
		return err
	}
	if !ok || name == "" {
		name = "Unknown"
	}
	offense, err := b.store.HIncrBy(ctx, userKey, "temp_ban_count", 1)
	if err != nil {
		return err
	}

	duration, period := BurstBanDuration(offense)
	record := fmt.Sprintf("Spam/Flood|%d|%s", offense, name)
	if err := b.store.Set(ctx, store.SpammerKey(userID), record, duration); err != nil {
		return err
	}
	observability.RecordBurstBan()

	b.getLogEntry().WithFields(log.Fields{
		"user_id":  userID,
		"name":     name,
		"offense":  offense,
		"duration": duration.String(),
		"messages": messages,
	}).Warn("user banned for spam")

	text := i18n.Get("You have been banned for spamming. Your ban period is: ", b.lang) + i18n.Get(period, b.lang)
	b.send(ctx, userID, text)
	return nil
}

func (b *BurstDetector) send(ctx context.Context, userID int64, text string) {
	if _, err := b.notifier.SendText(ctx, userID, text, nil); err != nil {
		b.getLogEntry().WithError(err).WithField("user_id", userID).Warn("cant notify user")
	}
}

// BurstBanDuration maps the offense number to the ban length and its
// human readable period.
func BurstBanDuration(offense int64) (time.Duration, string) {
	switch offense {
	case 1:
		return 12 * time.Hour, "12 hours"
	case 2:
		return 24 * time.Hour, "24 hours"
	case 3:
		return 3 * 24 * time.Hour, "3 days"
	default:
		return 36500 * 24 * time.Hour, "Permanent. You have reached the max limit of temp bans for spamming."
	}
}

// Tracked returns the number of users with burst state.
func (b *BurstDetector) Tracked() int {
	return b.table.Size()
}
