package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"deskchat/contract"
	"deskchat/domain"
	"deskchat/errors"
	"deskchat/repositories"
)

type sendResult struct {
	message domain.Message
	err     error
}

type sendRequest struct {
	conn    *domain.Connection
	content string
	reply   chan sendResult // buffered(1), the worker never blocks on it
}

// RoomWorker serializes every send of one conversation. Membership
// re-check, persistence and fan-out all happen inside its loop, so the
// store's assignment order and the delivery order every subscriber
// observes are the same thing, without holding any lock across store I/O.
// Unrelated conversations run on their own workers and never contend.
type RoomWorker struct {
	id        domain.ConversationID
	log       *slog.Logger
	directory repositories.IConversationRepository
	store     repositories.IMessageRepository
	registry  contract.IRegistry
	requests  chan sendRequest
}

func NewRoomWorker(log *slog.Logger, id domain.ConversationID,
	directory repositories.IConversationRepository,
	store repositories.IMessageRepository,
	registry contract.IRegistry, bufferSize int) *RoomWorker {
	return &RoomWorker{
		id:        id,
		log:       log,
		directory: directory,
		store:     store,
		registry:  registry,
		requests:  make(chan sendRequest, bufferSize),
	}
}

func (w *RoomWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("room worker stopping", "conversation", w.id)
			return nil
		case req := <-w.requests:
			req.reply <- w.handle(ctx, req)
		}
	}
}

// handle re-checks membership against the directory on every send; a stale
// join must not be usable after the participant set changed. Any failure
// means no persistence and no fan-out: either the message is fully stored
// and fully fanned out, or neither happens.
func (w *RoomWorker) handle(ctx context.Context, req sendRequest) sendResult {
	participants, err := w.directory.Participants(w.id)
	if err != nil {
		return sendResult{err: fmt.Errorf("send-time membership check: %w", err)}
	}
	if !lo.Contains(participants, req.conn.Identity.ID) {
		return sendResult{err: errors.ErrNotAParticipant}
	}

	message, err := w.store.Append(w.id, req.conn.Identity.ID, req.content)
	if err != nil {
		return sendResult{err: err}
	}

	for _, s := range w.registry.SinksForRoom(w.id) {
		if err := s.Deliver(ctx, message); err != nil {
			// Delivery-scoped: the target is gone or stuck. Dropped
			// silently per target, the send itself already succeeded.
			w.log.Debug("dropping delivery",
				"conversation", w.id,
				"message_id", message.ID,
				"error", err)
		}
	}
	return sendResult{message: message}
}
