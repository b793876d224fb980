package alerts

import (
	"context"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/log"
)

// Toast is a transient, fire-and-forget message emitted when a budget moves
// into a higher alert tier.
type Toast struct {
	UserID     string
	BudgetID   string
	Category   string
	Type       core.NotificationType
	Priority   core.Priority
	Percentage float64
	Message    string
	At         time.Time
}

// Toaster delivers toasts. Delivery failures are the caller's to log; they
// never affect the notification feed.
type Toaster interface {
	Toast(ctx context.Context, t Toast) error
}

// LogToaster writes toasts to the log. Used when no message broker is
// configured.
type LogToaster struct {
	logger *log.Logger
}

func NewLogToaster(logger *log.Logger) *LogToaster {
	return &LogToaster{logger: logger.WithComponent(log.ComponentAlerts)}
}

func (t *LogToaster) Toast(ctx context.Context, toast Toast) error {
	t.logger.InfoContext(ctx, "Budget threshold crossed",
		log.FieldUserID, toast.UserID,
		"budget_id", toast.BudgetID,
		"type", string(toast.Type),
		"percentage", toast.Percentage,
		"message", toast.Message)
	return nil
}
