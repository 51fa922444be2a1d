package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"deskchat/auth"
	"deskchat/domain"
	"deskchat/mocks"
	"deskchat/runtime"
	"deskchat/services"
)

var testSecret = []byte("gateway_test_secret_keep_it_local")

// fakeConn scripts inbound frames and records everything written. Reads
// block until a frame is queued; closing ends the read loop like a
// transport disconnect would.
type fakeConn struct {
	mu        sync.Mutex
	inbound   chan []byte
	written   [][]byte
	types     []int
	closeOnce sync.Once
	closed    chan struct{}
	scanned   int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbound:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types = append(c.types, messageType)
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) send(t *testing.T, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	bytes, err := json.Marshal(Envelope{Event: event, Data: raw})
	require.NoError(t, err)
	c.inbound <- bytes
}

// awaitEvent polls the written frames until one with the wanted event
// name shows up.
func (c *fakeConn) awaitEvent(t *testing.T, event string) Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		frames := c.written[c.scanned:]
		c.scanned = len(c.written)
		c.mu.Unlock()
		for _, frame := range frames {
			var envelope Envelope
			if json.Unmarshal(frame, &envelope) == nil && envelope.Event == event {
				return envelope
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %q event observed", event)
	return Envelope{}
}

func (c *fakeConn) wroteCloseFrame(reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, messageType := range c.types {
		if messageType == websocket.CloseMessage {
			// Close payload: 2-byte code then the reason text.
			if len(c.written[i]) >= 2 && string(c.written[i][2:]) == reason {
				return true
			}
		}
	}
	return false
}

type gatewayHarness struct {
	handler   *Handler
	directory *mocks.MockIConversationRepository
	store     *mocks.MockIMessageRepository
	wg        sync.WaitGroup
}

func newGatewayHarness(t *testing.T) *gatewayHarness {
	t.Helper()
	ctrl := gomock.NewController(t)
	directory := mocks.NewMockIConversationRepository(ctrl)
	store := mocks.NewMockIMessageRepository(ctrl)
	registry := runtime.NewRegistry()
	supervisor := runtime.NewSupervisor(slog.Default())
	orchestrator := runtime.NewOrchestrator(slog.Default(), supervisor, registry, directory, store, 16)
	service := services.NewMessagingService(orchestrator, directory, store, 1024)
	handler := NewHandler(slog.Default(), auth.NewVerifier(testSecret), service, 16, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	orchestrator.Start(ctx)
	h := &gatewayHarness{handler: handler, directory: directory, store: store}
	t.Cleanup(func() {
		cancel()
		orchestrator.Stop()
		h.wg.Wait()
	})
	return h
}

// open runs a session for the given credential and returns its conn.
func (h *gatewayHarness) open(credential string) *fakeConn {
	conn := newFakeConn()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.handler.run(credential, conn)
	}()
	return conn
}

func mintToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, domain.Identity{ID: userID, DisplayName: userID, Role: "client"}, time.Hour)
	require.NoError(t, err)
	return token
}

func TestGateway_Handshake_MissingCredential(t *testing.T) {
	req := require.New(t)
	h := newGatewayHarness(t)

	conn := h.open("")
	h.wg.Wait()
	req.True(conn.wroteCloseFrame("Auth required!"))
}

func TestGateway_Handshake_InvalidCredential(t *testing.T) {
	req := require.New(t)
	h := newGatewayHarness(t)

	conn := h.open("garbage-token")
	h.wg.Wait()
	req.True(conn.wroteCloseFrame("Invalid token"))
}

func TestGateway_Join_Denied(t *testing.T) {
	req := require.New(t)
	h := newGatewayHarness(t)
	h.directory.EXPECT().Participants(domain.ConversationID("conv1")).
		Return([]string{"alice", "bob"}, nil)

	conn := h.open(mintToken(t, "carol"))
	conn.send(t, EventJoinConversation, JoinPayload{ConversationID: "conv1"})

	envelope := conn.awaitEvent(t, EventError)
	var payload ErrorPayload
	req.NoError(json.Unmarshal(envelope.Data, &payload))
	req.Equal("Access denied to room.", payload.Error.Message)
	conn.Close()
}

func TestGateway_Send_Without_Join(t *testing.T) {
	req := require.New(t)
	h := newGatewayHarness(t)

	conn := h.open(mintToken(t, "alice"))
	conn.send(t, EventSendMessage, SendPayload{ConversationID: "conv2", Content: "hello"})

	envelope := conn.awaitEvent(t, EventError)
	var payload ErrorPayload
	req.NoError(json.Unmarshal(envelope.Data, &payload))
	req.Equal("You have not joined this conversation.", payload.Error.Message)
	conn.Close()
}

func TestGateway_Send_Delivered_To_Both_Participants(t *testing.T) {
	req := require.New(t)
	h := newGatewayHarness(t)
	h.directory.EXPECT().Participants(domain.ConversationID("conv1")).
		Return([]string{"alice", "bob"}, nil).AnyTimes()
	h.store.EXPECT().Append(domain.ConversationID("conv1"), "alice", "hello").
		DoAndReturn(func(conversationID domain.ConversationID, senderID, content string) (domain.Message, error) {
			return domain.Message{
				ID:             uuid.New(),
				ConversationID: conversationID,
				SenderID:       senderID,
				Content:        content,
				CreatedAt:      time.Now().UTC(),
			}, nil
		})

	connA := h.open(mintToken(t, "alice"))
	connB := h.open(mintToken(t, "bob"))

	connA.send(t, EventJoinConversation, JoinPayload{ConversationID: "conv1"})
	connB.send(t, EventJoinConversation, JoinPayload{ConversationID: "conv1"})

	// Joins are silent; give both a moment to subscribe before sending.
	time.Sleep(50 * time.Millisecond)
	connA.send(t, EventSendMessage, SendPayload{ConversationID: "conv1", Content: "hello"})

	for _, conn := range []*fakeConn{connA, connB} {
		envelope := conn.awaitEvent(t, EventReceiveMessage)
		var payload MessagePayload
		req.NoError(json.Unmarshal(envelope.Data, &payload))
		req.Equal("conv1", payload.Conversation)
		req.Equal("alice", payload.Sender)
		req.Equal("hello", payload.Content)
		req.NotEmpty(payload.ID)
		req.NotEmpty(payload.CreatedAt)
	}

	connA.Close()
	connB.Close()
}

func TestGateway_Malformed_And_Unknown_Events(t *testing.T) {
	req := require.New(t)
	h := newGatewayHarness(t)

	conn := h.open(mintToken(t, "alice"))
	conn.inbound <- []byte("not json at all")

	envelope := conn.awaitEvent(t, EventError)
	var payload ErrorPayload
	req.NoError(json.Unmarshal(envelope.Data, &payload))
	req.Equal("Malformed event.", payload.Error.Message)

	conn.send(t, "ping", struct{}{})
	envelope = conn.awaitEvent(t, EventError)
	req.NoError(json.Unmarshal(envelope.Data, &payload))
	req.Equal("Unknown event type.", payload.Error.Message)
	conn.Close()
}
