package moderation

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/policy"
	"github.com/iamwavecut/ngguard/internal/store"
)

type (
	warnPolicy interface {
		Warnings(ctx context.Context, chatID int64) (policy.WarnPolicy, error)
	}

	actionExecutor interface {
		Execute(ctx context.Context, chatID, userID int64, action policy.Action) bool
	}

	// WarnOutcome describes one recorded warning. Escalated outcomes carry the
	// fallback that fired and whether the platform accepted it.
	WarnOutcome struct {
		Count     int64
		Ceiling   int
		Escalated bool
		Fallback  policy.Action
		Executed  bool
	}
)

// Ledger keeps per member warning counts and escalates at the ceiling.
// Concurrent warnings for the same member may both read a count below the
// ceiling; that off-by-one is tolerated.
type Ledger struct {
	store    store.Store
	groups   warnPolicy
	executor actionExecutor
}

func NewLedger(s store.Store, groups warnPolicy, executor actionExecutor) *Ledger {
	return &Ledger{
		store:    s,
		groups:   groups,
		executor: executor,
	}
}

func (l *Ledger) getLogEntry() *log.Entry {
	return log.WithField("object", "Ledger")
}

// RecordWarning atomically increments the warning count and returns it.
func (l *Ledger) RecordWarning(ctx context.Context, chatID, userID int64) (int64, error) {
	n, err := l.store.HIncrBy(ctx, store.ChatWarnsKey(chatID), strconv.FormatInt(userID, 10), 1)
	if err != nil {
		return 0, errors.WithMessage(err, "record warning")
	}
	return n, nil
}

// Warn records a warning and runs the group fallback once the ceiling is reached.
func (l *Ledger) Warn(ctx context.Context, chatID, userID int64) (WarnOutcome, error) {
	settings, err := l.groups.Warnings(ctx, chatID)
	if err != nil {
		return WarnOutcome{}, errors.WithMessage(err, "read warning settings")
	}
	count, err := l.RecordWarning(ctx, chatID, userID)
	if err != nil {
		return WarnOutcome{}, err
	}
	outcome := WarnOutcome{Count: count, Ceiling: settings.Ceiling}
	if count < int64(settings.Ceiling) {
		return outcome, nil
	}

	outcome.Escalated = true
	outcome.Fallback = settings.Fallback
	outcome.Executed = l.executor.Execute(ctx, chatID, userID, settings.Fallback)
	// The counter is consumed whether or not the platform accepted the fallback.
	if err := l.Reset(ctx, chatID, userID); err != nil {
		l.getLogEntry().WithError(err).WithFields(log.Fields{"chat_id": chatID, "user_id": userID}).Warn("cant reset warnings")
	}
	l.getLogEntry().WithFields(log.Fields{
		"chat_id":  chatID,
		"user_id":  userID,
		"count":    count,
		"fallback": settings.Fallback.String(),
		"executed": outcome.Executed,
	}).Info("warning ceiling reached")
	return outcome, nil
}

// Count returns the current number of warnings.
func (l *Ledger) Count(ctx context.Context, chatID, userID int64) (int64, error) {
	v, ok, err := l.store.HGet(ctx, store.ChatWarnsKey(chatID), strconv.FormatInt(userID, 10))
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// Remove takes back one warning. It reports false when there was nothing to remove.
func (l *Ledger) Remove(ctx context.Context, chatID, userID int64) (bool, error) {
	key, field := store.ChatWarnsKey(chatID), strconv.FormatInt(userID, 10)
	exists, err := l.store.HExists(ctx, key, field)
	if err != nil || !exists {
		return false, err
	}
	n, err := l.store.HIncrBy(ctx, key, field, -1)
	if err != nil {
		return false, errors.WithMessage(err, "remove warning")
	}
	if n <= 0 {
		if err := l.store.HDel(ctx, key, field); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (l *Ledger) Reset(ctx context.Context, chatID, userID int64) error {
	return l.store.HDel(ctx, store.ChatWarnsKey(chatID), strconv.FormatInt(userID, 10))
}
