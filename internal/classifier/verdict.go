// Package classifier holds the content checks run against every group
// message. A classifier never calls another one and never executes a
// penalty: it reports a Verdict and leaves the enforcement to the caller.
package classifier

import (
	"context"
	"sync"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/ngguard/internal/policy"
)

type Kind string

const (
	KindFlood      Kind = "flood"
	KindForward    Kind = "forward"
	KindTextLength Kind = "textlength"
	KindMedia      Kind = "media"
)

type Verdict struct {
	Violation      bool
	Kind           Kind
	Action         policy.Action
	Reason         string
	Context        map[string]any
	MessageDeleted bool
}

func NoViolation() Verdict {
	return Verdict{}
}

func violation(kind Kind, action policy.Action, reason string) Verdict {
	return Verdict{
		Violation: true,
		Kind:      kind,
		Action:    action,
		Reason:    reason,
		Context:   map[string]any{},
	}
}

type Classifier interface {
	Kind() Kind
	Classify(ctx context.Context, target *Target) (Verdict, error)
}

// Policy is the group configuration the classifiers read.
type Policy interface {
	Flood(ctx context.Context, chatID int64) (policy.FloodPolicy, error)
	Forward(ctx context.Context, chatID int64) (policy.ForwardPolicy, error)
	TextLength(ctx context.Context, chatID int64) (policy.TextLengthPolicy, error)
	Media(ctx context.Context, chatID int64, kind policy.MediaKind) (policy.MediaPolicy, error)
	IsIgnored(ctx context.Context, chatID, userID int64) (bool, error)
	CountFlood(ctx context.Context, chatID, userID int64) (int64, error)
}

type MessageDeleter interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Target is one inbound message shared by the classifiers of a single run.
// It remembers a successful delete so later checks do not repeat it.
type Target struct {
	Message *api.Message

	mu      sync.Mutex
	deleted bool
}

func NewTarget(msg *api.Message) *Target {
	return &Target{Message: msg}
}

func (t *Target) ChatID() int64 {
	return t.Message.Chat.ID
}

func (t *Target) UserID() int64 {
	if t.Message.From == nil {
		return 0
	}
	return t.Message.From.ID
}

func (t *Target) Deleted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deleted
}

// Delete removes the message unless an earlier check already did.
func (t *Target) Delete(ctx context.Context, d MessageDeleter) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deleted {
		return nil
	}
	if err := d.DeleteMessage(ctx, t.Message.Chat.ID, t.Message.MessageID); err != nil {
		return err
	}
	t.deleted = true
	return nil
}
