// Package enforcement runs the content classifiers over group messages and
// applies the resulting warnings and penalties.
package enforcement

import (
	"context"
	"fmt"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/classifier"
	"github.com/iamwavecut/ngguard/internal/infra"
	"github.com/iamwavecut/ngguard/internal/moderation"
	"github.com/iamwavecut/ngguard/internal/observability"
	"github.com/iamwavecut/ngguard/internal/policy"
	"github.com/iamwavecut/ngguard/internal/registration"
	"github.com/iamwavecut/ngguard/internal/store"
)

// ServiceUserID is the platform account that relays linked channel posts.
const ServiceUserID int64 = 777000

const (
	SkipNoSender      = "no sender"
	SkipServiceSender = "service account"
	SkipPrivateChat   = "private chat"
)

type (
	registrationPolicy interface {
		RegistrationRequired(ctx context.Context, chatID int64) (bool, error)
	}

	registry interface {
		IsRegistered(ctx context.Context, groupID, userID int64) (bool, error)
	}

	adminChecker interface {
		IsGroupAdmin(ctx context.Context, chatID, userID int64) (bool, error)
	}

	warner interface {
		Warn(ctx context.Context, chatID, userID int64) (moderation.WarnOutcome, error)
	}

	executor interface {
		Execute(ctx context.Context, chatID, userID int64, action policy.Action) bool
	}

	notifier interface {
		SendText(ctx context.Context, chatID int64, text string, markup *api.InlineKeyboardMarkup) (api.Message, error)
	}

	counterStore interface {
		HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	}
)

type (
	// Outcome is what happened for one violation that carried an action.
	Outcome struct {
		Verdict  classifier.Verdict
		Action   policy.Action
		Executed bool
		Warning  *moderation.WarnOutcome
		Notified bool
	}

	Result struct {
		Skipped      bool
		SkipReason   string
		Registration bool
		Verdicts     []classifier.Verdict
		Outcomes     []Outcome
	}
)

type Dependencies struct {
	Policy      registrationPolicy
	Registry    registry
	Admins      adminChecker
	Ledger      warner
	Executor    executor
	Notifier    notifier
	Store       counterStore
	Classifiers []classifier.Classifier
	IsDev       func(userID int64) bool
	BotUsername string
	Language    string
}

// Orchestrator sequences the classifiers for each group message. Every
// classifier runs regardless of earlier verdicts.
type Orchestrator struct {
	deps Dependencies
}

func NewOrchestrator(deps Dependencies) *Orchestrator {
	if deps.IsDev == nil {
		deps.IsDev = func(int64) bool { return false }
	}
	return &Orchestrator{deps: deps}
}

// DefaultClassifiers returns the checks in the order they run.
func DefaultClassifiers(p classifier.Policy, d classifier.MessageDeleter) []classifier.Classifier {
	return []classifier.Classifier{
		classifier.NewForward(p, d),
		classifier.NewMedia(p, d),
		classifier.NewTextLength(p, d),
		classifier.NewFlood(p),
	}
}

func (o *Orchestrator) getLogEntry() *log.Entry {
	return log.WithField("object", "Orchestrator")
}

func (o *Orchestrator) Process(ctx context.Context, msg *api.Message) Result {
	switch {
	case msg == nil || msg.From == nil:
		return Result{Skipped: true, SkipReason: SkipNoSender}
	case msg.From.ID == ServiceUserID:
		return Result{Skipped: true, SkipReason: SkipServiceSender}
	case msg.Chat.IsPrivate():
		return Result{Skipped: true, SkipReason: SkipPrivateChat}
	}

	done := observability.StartMessageProcessing()
	observability.RecordMessageProcessed()
	if _, err := o.deps.Store.HIncrBy(ctx, store.KeyBotGeneral, store.FieldStatMessages, 1); err != nil {
		o.getLogEntry().WithError(err).Warn("cant count message")
	}

	if o.registrationRequired(ctx, msg) {
		o.promptRegistration(ctx, msg)
		done("registration")
		return Result{Registration: true}
	}

	result := Result{}
	target := classifier.NewTarget(msg)
	for _, c := range o.deps.Classifiers {
		verdict := o.classify(ctx, c, target)
		if !verdict.Violation {
			continue
		}
		observability.RecordViolation(string(verdict.Kind))
		result.Verdicts = append(result.Verdicts, verdict)
		if verdict.Action == policy.ActionNone {
			continue
		}
		result.Outcomes = append(result.Outcomes, o.enforce(ctx, msg, verdict))
	}

	if len(result.Verdicts) > 0 {
		done("violation")
	} else {
		done("clean")
	}
	return result
}

// classify runs one classifier and turns errors and panics into abstention.
func (o *Orchestrator) classify(ctx context.Context, c classifier.Classifier, target *classifier.Target) (verdict classifier.Verdict) {
	entry := o.getLogEntry().WithFields(log.Fields{
		"classifier": string(c.Kind()),
		"chat_id":    target.ChatID(),
		"user_id":    target.UserID(),
	})
	err := infra.Recover(string(c.Kind()), func() (err error) {
		verdict, err = c.Classify(ctx, target)
		return err
	})
	if err != nil {
		entry.WithError(err).Warn("classifier failed, abstaining")
		return classifier.NoViolation()
	}
	return verdict
}

func (o *Orchestrator) registrationRequired(ctx context.Context, msg *api.Message) bool {
	chatID, userID := msg.Chat.ID, msg.From.ID
	entry := o.getLogEntry().WithFields(log.Fields{"chat_id": chatID, "user_id": userID})

	required, err := o.deps.Policy.RegistrationRequired(ctx, chatID)
	if err != nil {
		entry.WithError(err).Warn("cant read registration setting")
		return false
	}
	if !required || o.deps.IsDev(userID) {
		return false
	}
	isAdmin, err := o.deps.Admins.IsGroupAdmin(ctx, chatID, userID)
	if err != nil {
		entry.WithError(err).Warn("cant check admin status")
	}
	if isAdmin {
		return false
	}
	registered, err := o.deps.Registry.IsRegistered(ctx, chatID, userID)
	if err != nil {
		entry.WithError(err).Warn("cant read registration")
		return false
	}
	return !registered
}

func (o *Orchestrator) enforce(ctx context.Context, msg *api.Message, verdict classifier.Verdict) Outcome {
	chatID, userID := msg.Chat.ID, msg.From.ID
	outcome := Outcome{Verdict: verdict, Action: verdict.Action}
	entry := o.getLogEntry().WithFields(log.Fields{
		"chat_id":    chatID,
		"user_id":    userID,
		"classifier": string(verdict.Kind),
		"action":     verdict.Action.String(),
	})

	var (
		text   string
		markup *api.InlineKeyboardMarkup
	)
	name := DisplayName(msg.From)
	reason := o.reason(verdict)

	if verdict.Action == policy.ActionWarn {
		warning, err := o.deps.Ledger.Warn(ctx, chatID, userID)
		if err != nil {
			entry.WithError(err).Warn("cant record warning")
			return outcome
		}
		outcome.Warning = &warning
		outcome.Executed = !warning.Escalated || warning.Executed
		text, markup = o.warningNotice(userID, name, reason, warning)
	} else {
		outcome.Executed = o.deps.Executor.Execute(ctx, chatID, userID, verdict.Action)
		text, markup = o.actionNotice(userID, verdict.Action, name, reason)
	}
	entry.WithField("executed", outcome.Executed).Info(verdict.Reason)

	if text == "" {
		return outcome
	}
	if _, err := o.deps.Notifier.SendText(ctx, chatID, text, markup); err != nil {
		entry.WithError(err).Warn("cant send notification")
		return outcome
	}
	outcome.Notified = true
	return outcome
}

func (o *Orchestrator) promptRegistration(ctx context.Context, msg *api.Message) {
	text := fmt.Sprintf(o.t("%s, this group requires registration. Please register with the bot before writing here."), DisplayName(msg.From))
	markup := api.NewInlineKeyboardMarkup(api.NewInlineKeyboardRow(
		api.NewInlineKeyboardButtonURL(o.t("Register"), registration.DeepLink(o.deps.BotUsername, msg.Chat.ID)),
	))
	if _, err := o.deps.Notifier.SendText(ctx, msg.Chat.ID, text, &markup); err != nil {
		o.getLogEntry().WithError(err).WithField("chat_id", msg.Chat.ID).Warn("cant send registration prompt")
	}
}
