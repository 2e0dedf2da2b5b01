package ports

import (
	"context"

	"github.com/layer-3/authbridge/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishLogout(ctx context.Context, identity core.Identity, sessionID string) error
}
