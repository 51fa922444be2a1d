package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"

	"deskchat/domain"
	"deskchat/errors"
	"deskchat/services"
	"deskchat/sink"
)

// ConnLike is the slice of the WebSocket connection the session needs.
// Tests drive a session through a scripted fake instead of a live socket.
type ConnLike interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

// Session runs the protocol state machine of one connection:
// Connecting -> Authenticating -> Active -> Closed. It is the single
// reader of its socket, so a client's own join/send events are processed
// in emission order; a dedicated write pump is the single writer, merging
// room fan-out with the session's own error events.
type Session struct {
	conn     ConnLike
	record   *domain.Connection
	sink     *sink.ConnectionSink
	service  services.IMessagingService
	log      *slog.Logger
	outbound chan []byte
}

// run authenticates and serves the connection until the transport closes.
// Handshake failure is fatal: the connection is closed with a reason and
// never enters the registry.
func (h *Handler) run(credential string, conn ConnLike) {
	identity, err := h.verifier.Verify(credential)
	if err != nil {
		h.log.Warn("handshake rejected", "error", err)
		closeWithReason(conn, handshakeCloseReason(err))
		return
	}

	record := domain.NewConnection(uuid.NewString(), identity)
	connectionSink := sink.NewConnectionSink(h.log, h.bufferSize, h.deliveryTimeout)
	if err := h.service.Connect(record, connectionSink); err != nil {
		h.log.Error("connection rejected", "connection_id", record.ID, "error", err)
		closeWithReason(conn, closeReasonInvalidToken)
		return
	}

	session := &Session{
		conn:     conn,
		record:   record,
		sink:     connectionSink,
		service:  h.service,
		log:      h.log.With("connection_id", record.ID, "user_id", identity.ID),
		outbound: make(chan []byte, h.bufferSize),
	}

	ctx, cancel := context.WithCancel(context.Background())
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		session.writePump(ctx)
	}()

	session.log.Info("connection active")
	session.readLoop(ctx)

	// Disconnect closes the sink and removes the connection from every
	// room index before the write pump stops, so concurrent fan-out
	// fails fast instead of targeting a dead connection.
	h.service.Disconnect(record.ID)
	cancel()
	<-writerDone
	_ = conn.Close()
	session.log.Info("connection closed")
}

// readLoop dispatches client events until the transport errors out.
// Operation failures are reported to this connection only and never
// terminate the session.
func (s *Session) readLoop(ctx context.Context) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var envelope Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			s.emitError("Malformed event.")
			continue
		}

		switch envelope.Event {
		case EventJoinConversation:
			s.handleJoin(envelope.Data)
		case EventSendMessage:
			s.handleSend(ctx, envelope.Data)
		default:
			s.emitError("Unknown event type.")
		}
	}
}

func (s *Session) handleJoin(data json.RawMessage) {
	var payload JoinPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			s.emitError("Malformed event.")
			return
		}
	}

	err := s.service.Join(s.record, domain.ConversationID(payload.ConversationID))
	if err != nil {
		s.log.Warn("join denied", "conversation", payload.ConversationID, "error", err)
		s.emitError(joinErrorMessage(err))
		return
	}
	// Join is silent on success; the connection is now a fan-out target.
	s.log.Debug("joined conversation", "conversation", payload.ConversationID)
}

func (s *Session) handleSend(ctx context.Context, data json.RawMessage) {
	var payload SendPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			s.emitError("Malformed event.")
			return
		}
	}

	_, err := s.service.Send(ctx, s.record, domain.ConversationID(payload.ConversationID), payload.Content)
	if err != nil {
		s.log.Warn("send rejected", "conversation", payload.ConversationID, "error", err)
		s.emitError(sendErrorMessage(err))
	}
	// The sender receives its own copy through the room fan-out, like
	// every other participant.
}

// writePump is the single socket writer. Fan-out deliveries and the
// session's own error events leave in the order they were enqueued.
func (s *Session) writePump(ctx context.Context) {
	for {
		select {
		case message := <-s.sink.Events:
			s.write(mustMarshalEvent(EventReceiveMessage, toMessagePayload(message)))
		case bytes := <-s.outbound:
			s.write(bytes)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) write(bytes []byte) {
	if err := s.conn.WriteMessage(websocket.TextMessage, bytes); err != nil {
		s.log.Debug("write failed", "error", err)
	}
}

func (s *Session) emitError(message string) {
	bytes := mustMarshalEvent(EventError, ErrorPayload{Error: ErrorBody{Message: message}})
	select {
	case s.outbound <- bytes:
	default:
		s.log.Warn("outbound buffer full, dropping error event")
	}
}

func handshakeCloseReason(err error) string {
	if stderrors.Is(err, errors.ErrCredentialMissing) {
		return closeReasonAuthRequired
	}
	return closeReasonInvalidToken
}

func joinErrorMessage(err error) string {
	if stderrors.Is(err, errors.ErrInvalidPayload) {
		return "A conversation id is required."
	}
	// Unknown conversations and directory failures read the same as a
	// membership miss: fail closed, leak nothing.
	return "Access denied to room."
}

func sendErrorMessage(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrNotJoined):
		return "You have not joined this conversation."
	case stderrors.Is(err, errors.ErrNotAParticipant):
		return "You cannot send messages to this conversation."
	case stderrors.Is(err, errors.ErrInvalidPayload):
		return "A conversation id and content are required."
	case stderrors.Is(err, errors.ErrStoreUnavailable):
		return "Message could not be saved."
	default:
		return "Message could not be sent."
	}
}

func closeWithReason(conn ConnLike, reason string) {
	frame := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteMessage(websocket.CloseMessage, frame)
	_ = conn.Close()
}
