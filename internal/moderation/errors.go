package moderation

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	msgNotEnoughRights = "not enough rights"
	msgTargetIsAdmin   = "user is an administrator"
	msgCantRestrictOwn = "can't restrict self"
	msgChatOwner       = "can't remove chat owner"
)

var (
	ErrNoPrivileges  = errors.New("no privileges")
	ErrTargetIsAdmin = errors.New("target is an administrator")
	ErrUnknownAction = errors.New("unknown action")
)

// classifyPlatformError maps the platform's textual refusals onto sentinels.
// Anything else is returned wrapped with the operation name.
func classifyPlatformError(err error, operation string) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, msgNotEnoughRights), strings.Contains(msg, msgCantRestrictOwn):
		return errors.Wrap(ErrNoPrivileges, operation)
	case strings.Contains(msg, msgTargetIsAdmin), strings.Contains(msg, msgChatOwner):
		return errors.Wrap(ErrTargetIsAdmin, operation)
	}
	return errors.WithMessagef(err, "failed to %s user", operation)
}

// IsExpected reports whether err is a refusal the caller should not escalate.
func IsExpected(err error) bool {
	return errors.Is(err, ErrNoPrivileges) || errors.Is(err, ErrTargetIsAdmin)
}
