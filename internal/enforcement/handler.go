package enforcement

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"
)

// Handle plugs the orchestrator into the update handler chain. A message
// stopped by the registration gate is not passed further.
func (o *Orchestrator) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if u == nil || u.Message == nil {
		return true, nil
	}
	result := o.Process(ctx, u.Message)
	return !result.Registration, nil
}
