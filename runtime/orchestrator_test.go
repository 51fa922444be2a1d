package runtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"deskchat/domain"
	"deskchat/errors"
	"deskchat/mocks"
	"deskchat/sink"
)

const conv1 = domain.ConversationID("conv1")

type harness struct {
	orchestrator *Orchestrator
	registry     *Registry
	directory    *mocks.MockIConversationRepository
	store        *mocks.MockIMessageRepository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	directory := mocks.NewMockIConversationRepository(ctrl)
	store := mocks.NewMockIMessageRepository(ctrl)
	registry := NewRegistry()
	supervisor := NewSupervisor(slog.Default())
	orchestrator := NewOrchestrator(slog.Default(), supervisor, registry, directory, store, 16)

	ctx, cancel := context.WithCancel(context.Background())
	orchestrator.Start(ctx)
	t.Cleanup(func() {
		cancel()
		orchestrator.Stop()
	})
	return &harness{
		orchestrator: orchestrator,
		registry:     registry,
		directory:    directory,
		store:        store,
	}
}

func (h *harness) connect(t *testing.T, userID string) (*domain.Connection, *sink.ConnectionSink) {
	t.Helper()
	conn := domain.NewConnection(uuid.NewString(), domain.Identity{ID: userID, DisplayName: userID})
	s := sink.NewConnectionSink(slog.Default(), 16, time.Second)
	require.NoError(t, h.orchestrator.Connect(conn, s))
	return conn, s
}

func storedMessage(senderID, content string) domain.Message {
	return domain.Message{
		ID:             uuid.New(),
		ConversationID: conv1,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
}

func receiveOne(t *testing.T, s *sink.ConnectionSink) domain.Message {
	t.Helper()
	select {
	case message := <-s.Events:
		return message
	case <-time.After(time.Second):
		t.Fatal("expected a delivered message")
		return domain.Message{}
	}
}

func requireSilent(t *testing.T, s *sink.ConnectionSink) {
	t.Helper()
	select {
	case message := <-s.Events:
		t.Fatalf("unexpected delivery: %v", message)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOrchestrator_Join_Denied_For_NonParticipant(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	conn, s := h.connect(t, "carol")

	h.directory.EXPECT().Participants(conv1).Return([]string{"alice", "bob"}, nil)

	err := h.orchestrator.Join(conn, conv1)
	req.ErrorIs(err, errors.ErrNotAParticipant)
	req.False(conn.HasJoined(conv1))
	req.Nil(h.registry.SinksForRoom(conv1))
	_ = s
}

func TestOrchestrator_Send_Without_Join(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	conn, _ := h.connect(t, "alice")

	// No store or directory expectation: nothing may be called.
	_, err := h.orchestrator.Send(context.Background(), conn, conv1, "hello")
	req.ErrorIs(err, errors.ErrNotJoined)
}

func TestOrchestrator_Send_FansOut_To_All_Including_Sender(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	connA, sinkA := h.connect(t, "alice")
	connB, sinkB := h.connect(t, "bob")

	h.directory.EXPECT().Participants(conv1).Return([]string{"alice", "bob"}, nil).AnyTimes()
	persisted := storedMessage("alice", "hello")
	h.store.EXPECT().Append(conv1, "alice", "hello").Return(persisted, nil)

	req.NoError(h.orchestrator.Join(connA, conv1))
	req.NoError(h.orchestrator.Join(connB, conv1))

	message, err := h.orchestrator.Send(context.Background(), connA, conv1, "hello")
	req.NoError(err)
	req.Equal(persisted, message)

	gotA := receiveOne(t, sinkA)
	gotB := receiveOne(t, sinkB)
	req.Equal(persisted, gotA)
	req.Equal(persisted, gotB)
}

func TestOrchestrator_Send_ReChecks_Membership(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	conn, _ := h.connect(t, "alice")

	// Member at join time, removed before the send.
	join := h.directory.EXPECT().Participants(conv1).Return([]string{"alice", "bob"}, nil)
	h.directory.EXPECT().Participants(conv1).Return([]string{"bob"}, nil).After(join)

	req.NoError(h.orchestrator.Join(conn, conv1))
	_, err := h.orchestrator.Send(context.Background(), conn, conv1, "hello")
	req.ErrorIs(err, errors.ErrNotAParticipant)
}

func TestOrchestrator_Send_No_CrossRoom_Leakage(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	connA, sinkA := h.connect(t, "alice")
	connC, sinkC := h.connect(t, "carol")
	conv2 := domain.ConversationID("conv2")

	h.directory.EXPECT().Participants(conv1).Return([]string{"alice"}, nil).AnyTimes()
	h.directory.EXPECT().Participants(conv2).Return([]string{"carol"}, nil).AnyTimes()
	h.store.EXPECT().Append(conv1, "alice", "hello").Return(storedMessage("alice", "hello"), nil)

	req.NoError(h.orchestrator.Join(connA, conv1))
	req.NoError(h.orchestrator.Join(connC, conv2))

	_, err := h.orchestrator.Send(context.Background(), connA, conv1, "hello")
	req.NoError(err)

	receiveOne(t, sinkA)
	requireSilent(t, sinkC)
}

func TestOrchestrator_Send_Order_Preserved(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	connA, sinkA := h.connect(t, "alice")
	connB, sinkB := h.connect(t, "bob")

	h.directory.EXPECT().Participants(conv1).Return([]string{"alice", "bob"}, nil).AnyTimes()
	first := storedMessage("alice", "first")
	second := storedMessage("alice", "second")
	call1 := h.store.EXPECT().Append(conv1, "alice", "first").Return(first, nil)
	h.store.EXPECT().Append(conv1, "alice", "second").Return(second, nil).After(call1)

	req.NoError(h.orchestrator.Join(connA, conv1))
	req.NoError(h.orchestrator.Join(connB, conv1))

	_, err := h.orchestrator.Send(context.Background(), connA, conv1, "first")
	req.NoError(err)
	_, err = h.orchestrator.Send(context.Background(), connA, conv1, "second")
	req.NoError(err)

	// Every subscriber observes the two messages in store order.
	req.Equal("first", receiveOne(t, sinkA).Content)
	req.Equal("second", receiveOne(t, sinkA).Content)
	req.Equal("first", receiveOne(t, sinkB).Content)
	req.Equal("second", receiveOne(t, sinkB).Content)
}

func TestOrchestrator_Disconnect_Stops_FanOut(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	connA, sinkA := h.connect(t, "alice")
	connB, sinkB := h.connect(t, "bob")

	h.directory.EXPECT().Participants(conv1).Return([]string{"alice", "bob"}, nil).AnyTimes()
	h.store.EXPECT().Append(conv1, "alice", "still there?").Return(storedMessage("alice", "still there?"), nil)

	req.NoError(h.orchestrator.Join(connA, conv1))
	req.NoError(h.orchestrator.Join(connB, conv1))

	h.orchestrator.Disconnect(connB.ID)

	// A send after B left succeeds and does not error on the stale target.
	_, err := h.orchestrator.Send(context.Background(), connA, conv1, "still there?")
	req.NoError(err)
	receiveOne(t, sinkA)
	requireSilent(t, sinkB)
}

func TestOrchestrator_Send_StoreFailure_NoFanOut(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	connA, sinkA := h.connect(t, "alice")
	connB, sinkB := h.connect(t, "bob")

	h.directory.EXPECT().Participants(conv1).Return([]string{"alice", "bob"}, nil).AnyTimes()
	h.store.EXPECT().Append(conv1, "alice", "hello").Return(domain.Message{}, errors.ErrStoreUnavailable)

	req.NoError(h.orchestrator.Join(connA, conv1))
	req.NoError(h.orchestrator.Join(connB, conv1))

	_, err := h.orchestrator.Send(context.Background(), connA, conv1, "hello")
	req.ErrorIs(err, errors.ErrStoreUnavailable)
	requireSilent(t, sinkA)
	requireSilent(t, sinkB)
}
