// Package runtime owns the live side of the messaging core: the connection
// registry, the per-conversation workers and their supervision. It contains
// no protocol parsing and no business rules beyond membership enforcement.
package runtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"deskchat/contract"
	"deskchat/domain"
	"deskchat/errors"
	"deskchat/repositories"
)

// Orchestrator is created at server start and torn down at shutdown. The
// gateway talks to it through the service layer; it never reaches into
// registry internals itself.
type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	registry       contract.IRegistry
	directory      repositories.IConversationRepository
	store          repositories.IMessageRepository
	supervisor     *Supervisor
	rooms          map[domain.ConversationID]*RoomWorker
	roomBufferSize int
}

func NewOrchestrator(log *slog.Logger, supervisor *Supervisor,
	registry contract.IRegistry,
	directory repositories.IConversationRepository,
	store repositories.IMessageRepository,
	roomBufferSize int) *Orchestrator {
	return &Orchestrator{
		log:            log,
		registry:       registry,
		directory:      directory,
		store:          store,
		supervisor:     supervisor,
		rooms:          make(map[domain.ConversationID]*RoomWorker),
		roomBufferSize: roomBufferSize,
	}
}

func (o *Orchestrator) Start(ctx context.Context) {
	o.supervisor.Run(ctx)
}

func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}

// Connect admits an authenticated connection into the registry.
func (o *Orchestrator) Connect(conn *domain.Connection, sink contract.EventSink) error {
	return o.registry.Register(conn, sink)
}

// Disconnect promptly removes the connection from every room index so that
// concurrent in-flight fan-out stops targeting it.
func (o *Orchestrator) Disconnect(connectionID string) {
	o.registry.Unregister(connectionID)
}

// Join authorizes the connection's identity against the conversation's
// participant set and, on success, subscribes it for fan-out. On failure
// the connection's room set is unchanged.
func (o *Orchestrator) Join(conn *domain.Connection, roomID domain.ConversationID) error {
	participants, err := o.directory.Participants(roomID)
	if err != nil {
		return err
	}
	if !lo.Contains(participants, conn.Identity.ID) {
		return errors.ErrNotAParticipant
	}

	conn.Join(roomID)
	o.registry.Subscribe(conn.ID, roomID)
	o.ensureRoom(roomID)
	return nil
}

// Send checks the local join state, then hands the request to the
// conversation's worker and waits for its outcome. The worker re-checks
// live membership, persists and fans out; see RoomWorker.
func (o *Orchestrator) Send(ctx context.Context, conn *domain.Connection,
	roomID domain.ConversationID, content string) (domain.Message, error) {
	if !conn.HasJoined(roomID) {
		return domain.Message{}, errors.ErrNotJoined
	}

	worker := o.ensureRoom(roomID)
	req := sendRequest{
		conn:    conn,
		content: content,
		reply:   make(chan sendResult, 1),
	}

	select {
	case worker.requests <- req:
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.message, res.err
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	}
}

// ensureRoom lazily spins up the conversation's worker under supervision.
// Workers are cheap (a goroutine and a channel) and stay idle between
// bursts; the room as clients observe it remains the registry's derived
// membership view, which does disappear with its last subscriber.
func (o *Orchestrator) ensureRoom(roomID domain.ConversationID) *RoomWorker {
	o.mu.Lock()
	defer o.mu.Unlock()

	if worker, ok := o.rooms[roomID]; ok {
		return worker
	}
	worker := NewRoomWorker(o.log, roomID, o.directory, o.store, o.registry, o.roomBufferSize)
	o.rooms[roomID] = worker
	o.supervisor.Start(worker)
	o.log.Debug("room worker started", "conversation", roomID)
	return worker
}
