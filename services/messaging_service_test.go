package services

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"deskchat/domain"
	"deskchat/errors"
	"deskchat/mocks"
	"deskchat/runtime"
)

func newService(t *testing.T) (*MessagingService, *mocks.MockIConversationRepository, *mocks.MockIMessageRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	directory := mocks.NewMockIConversationRepository(ctrl)
	store := mocks.NewMockIMessageRepository(ctrl)
	registry := runtime.NewRegistry()
	supervisor := runtime.NewSupervisor(slog.Default())
	orchestrator := runtime.NewOrchestrator(slog.Default(), supervisor, registry, directory, store, 16)

	ctx, cancel := context.WithCancel(context.Background())
	orchestrator.Start(ctx)
	t.Cleanup(func() {
		cancel()
		orchestrator.Stop()
	})
	return NewMessagingService(orchestrator, directory, store, 64), directory, store
}

func activeConn(userID string) *domain.Connection {
	return domain.NewConnection(uuid.NewString(), domain.Identity{ID: userID})
}

func TestMessagingService_Send_Validation(t *testing.T) {
	service, _, _ := newService(t)
	conn := activeConn("alice")

	tests := []struct {
		description    string
		conversationID domain.ConversationID
		content        string
	}{
		{"Should fail if conversation id is empty", "", "hello"},
		{"Should fail if content is empty", "conv1", ""},
		{"Should fail if content exceeds the limit", "conv1", strings.Repeat("a", 65)},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			req := require.New(t)
			// No repository expectations: a rejected send must reach
			// neither the directory nor the store.
			_, err := service.Send(context.Background(), conn, tt.conversationID, tt.content)
			req.ErrorIs(err, errors.ErrInvalidPayload)
		})
	}
}

func TestMessagingService_Join_Validation(t *testing.T) {
	req := require.New(t)
	service, _, _ := newService(t)

	err := service.Join(activeConn("alice"), "")
	req.ErrorIs(err, errors.ErrInvalidPayload)
}

func TestMessagingService_History_RequiresParticipant(t *testing.T) {
	req := require.New(t)
	service, directory, _ := newService(t)

	directory.EXPECT().Participants(domain.ConversationID("conv1")).
		Return([]string{"alice", "bob"}, nil)

	_, _, err := service.History("carol", "conv1", nil)
	req.ErrorIs(err, errors.ErrNotAParticipant)
}

func TestMessagingService_History_ReturnsPage(t *testing.T) {
	req := require.New(t)
	service, directory, store := newService(t)

	messages := []domain.Message{{ID: uuid.New(), ConversationID: "conv1", SenderID: "alice", Content: "hi"}}
	directory.EXPECT().Participants(domain.ConversationID("conv1")).
		Return([]string{"alice", "bob"}, nil)
	store.EXPECT().History(domain.ConversationID("conv1"), nil).
		Return(messages, nil, nil)

	got, cursor, err := service.History("alice", "conv1", nil)
	req.NoError(err)
	req.Nil(cursor)
	req.Equal(messages, got)
}
