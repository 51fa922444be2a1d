package services

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"deskchat/contract"
	"deskchat/domain"
	"deskchat/errors"
	"deskchat/repositories"
	"deskchat/runtime"
)

var validate = validator.New()

type IMessagingService interface {
	Connect(conn *domain.Connection, sink contract.EventSink) error
	Disconnect(connectionID string)
	Join(conn *domain.Connection, conversationID domain.ConversationID) error
	Send(ctx context.Context, conn *domain.Connection, conversationID domain.ConversationID, content string) (domain.Message, error)
	History(requesterID string, conversationID domain.ConversationID, cursor *string) ([]domain.Message, *string, error)
}

// MessagingService fronts the orchestrator with input validation and the
// read path. All state lives below it; the service itself is stateless.
type MessagingService struct {
	orchestrator     *runtime.Orchestrator
	directory        repositories.IConversationRepository
	store            repositories.IMessageRepository
	maxContentLength int
}

func NewMessagingService(orchestrator *runtime.Orchestrator,
	directory repositories.IConversationRepository,
	store repositories.IMessageRepository,
	maxContentLength int) *MessagingService {
	return &MessagingService{
		orchestrator:     orchestrator,
		directory:        directory,
		store:            store,
		maxContentLength: maxContentLength,
	}
}

type joinCommand struct {
	ConversationID string `validate:"required"`
}

type sendCommand struct {
	ConversationID string `validate:"required"`
	Content        string `validate:"required"`
}

func (s *MessagingService) Connect(conn *domain.Connection, sink contract.EventSink) error {
	return s.orchestrator.Connect(conn, sink)
}

func (s *MessagingService) Disconnect(connectionID string) {
	s.orchestrator.Disconnect(connectionID)
}

func (s *MessagingService) Join(conn *domain.Connection, conversationID domain.ConversationID) error {
	cmd := joinCommand{ConversationID: string(conversationID)}
	if err := validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return s.orchestrator.Join(conn, conversationID)
}

// Send validates the payload before anything else touches the store:
// a rejected send performs no persistence and no fan-out.
func (s *MessagingService) Send(ctx context.Context, conn *domain.Connection,
	conversationID domain.ConversationID, content string) (domain.Message, error) {
	cmd := sendCommand{ConversationID: string(conversationID), Content: content}
	if err := validate.Struct(cmd); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	if s.maxContentLength > 0 && len(content) > s.maxContentLength {
		return domain.Message{}, fmt.Errorf("%w: content exceeds %d bytes",
			errors.ErrInvalidPayload, s.maxContentLength)
	}
	return s.orchestrator.Send(ctx, conn, conversationID, content)
}

// History serves the paged conversation read used by the chat window on
// open. The requester must be a participant; the check mirrors the live
// path so the HTTP surface cannot leak a conversation the socket would
// refuse.
func (s *MessagingService) History(requesterID string, conversationID domain.ConversationID,
	cursor *string) ([]domain.Message, *string, error) {
	participants, err := s.directory.Participants(conversationID)
	if err != nil {
		return nil, nil, err
	}
	if !lo.Contains(participants, requesterID) {
		return nil, nil, errors.ErrNotAParticipant
	}
	return s.store.History(conversationID, cursor)
}
