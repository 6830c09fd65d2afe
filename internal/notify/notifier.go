// Package notify pushes events to connected participants. Delivery is
// fire-and-forget: clients also poll on demand, so a failed push is logged
// and dropped, never retried.
package notify

import (
	"context"

	"github.com/google/uuid"

	"github.com/bizlinkhq/bizlink-server/pkg/logging"
)

// ManagerAudience addresses a manager's connected clients.
func ManagerAudience(id uuid.UUID) string {
	return "manager:" + id.String()
}

// CustomerAudience addresses a customer's connected clients.
func CustomerAudience(id uuid.UUID) string {
	return "customer:" + id.String()
}

// Notifier emits an event toward an audience.
type Notifier interface {
	Notify(ctx context.Context, audience, event string, payload any)
}

// LogNotifier logs events instead of delivering them. Used in development
// and as the fallback when no hub is wired.
type LogNotifier struct {
	Logger *logging.Logger
}

func (n *LogNotifier) Notify(_ context.Context, audience, event string, _ any) {
	logger := n.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger.Debug("notify: event", "audience", audience, "event", event)
}
