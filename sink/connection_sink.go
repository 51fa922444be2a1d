package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"deskchat/domain"
	"deskchat/errors"
)

// ConnectionSink is the delivery channel of one live connection.
// The room worker pushes persisted messages into it in store order;
// the gateway's write pump drains it onto the wire in the same order.
type ConnectionSink struct {
	Events chan domain.Message

	log             *slog.Logger
	deliveryTimeout time.Duration
	done            chan struct{}
	closeOnce       sync.Once
}

func NewConnectionSink(log *slog.Logger, bufferSize int, deliveryTimeout time.Duration) *ConnectionSink {
	return &ConnectionSink{
		Events:          make(chan domain.Message, bufferSize),
		log:             log,
		deliveryTimeout: deliveryTimeout,
		done:            make(chan struct{}),
	}
}

// Deliver hands one message to the connection. It fails once the sink is
// closed, or after the delivery timeout when the buffer stays full
// (a slow or stuck reader). Callers treat the error as delivery-scoped
// and drop the target.
func (s *ConnectionSink) Deliver(ctx context.Context, message domain.Message) error {
	timer := time.NewTimer(s.deliveryTimeout)
	defer timer.Stop()

	select {
	case s.Events <- message:
		return nil
	case <-s.done:
		return errors.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		s.log.Warn("sink delivery timed out", "message_id", message.ID)
		return errors.ErrDeliveryTimeout
	}
}

// Close marks the sink as dead. Idempotent; in-flight Deliver calls
// unblock with ErrConnectionClosed.
func (s *ConnectionSink) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
