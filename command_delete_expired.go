package guestuser

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// DeleteExpiredGuestsMessage triggers a reclamation pass. It carries no
// payload; schedule it from cron or any periodic invoker.
type DeleteExpiredGuestsMessage struct{}

func (e DeleteExpiredGuestsMessage) Type() string { return "guest.delete_expired" }

// DeleteExpiredGuestsHandler executes the maintenance operation. Partial
// completion is fine; the next run picks up whatever remains.
type DeleteExpiredGuestsHandler struct {
	Manager *GuestManager
	Logger  Logger
}

func NewDeleteExpiredGuestsHandler(manager *GuestManager) *DeleteExpiredGuestsHandler {
	return &DeleteExpiredGuestsHandler{
		Manager: manager,
		Logger:  defLogger{},
	}
}

func (h *DeleteExpiredGuestsHandler) Execute(ctx context.Context, event DeleteExpiredGuestsMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during guest cleanup",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeleteExpiredGuestsHandler) execute(ctx context.Context, _ DeleteExpiredGuestsMessage) error {
	count, err := h.Manager.DeleteExpired(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "guest cleanup failed")
	}

	h.logger().Info("guest cleanup finished", "deleted", count)
	return nil
}

func (h *DeleteExpiredGuestsHandler) logger() Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return defLogger{}
}
