package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/layer-3/authbridge/core"
)

// Forgetter drops locally cached session state for an identity
type Forgetter interface {
	Forget(identity core.Identity)
}

// LogoutListener consumes logout events published by other instances
type LogoutListener struct {
	subscriber message.Subscriber
	forgetter  Forgetter
	logger     zerolog.Logger
}

// NewLogoutListener creates a listener that forwards logout events to forgetter
func NewLogoutListener(subscriber message.Subscriber, forgetter Forgetter, logger zerolog.Logger) *LogoutListener {
	return &LogoutListener{
		subscriber: subscriber,
		forgetter:  forgetter,
		logger:     logger.With().Str("component", "logout-listener").Logger(),
	}
}

// Run blocks until ctx is done or the subscription closes
func (l *LogoutListener) Run(ctx context.Context) error {
	messages, err := l.subscriber.Subscribe(ctx, LogoutTopic)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			l.handle(msg)
		}
	}
}

func (l *LogoutListener) handle(msg *message.Message) {
	var event LogoutEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		// Poison message, do not redeliver
		l.logger.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping malformed logout event")
		msg.Ack()
		return
	}

	l.forgetter.Forget(event.Identity)
	l.logger.Debug().Str("identity", event.Identity.Redacted()).Msg("dropped cached session state")
	msg.Ack()
}
