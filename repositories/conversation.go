//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"

	"deskchat/domain"
	"deskchat/errors"
)

// IConversationRepository is the conversation directory: the read side
// authorizes join and send, the write side belongs to the ticket flow
// (conversations are created when an agent accepts a ticket).
type IConversationRepository interface {
	Create(conversation domain.Conversation) error
	Get(id domain.ConversationID) (domain.Conversation, error)
	Participants(id domain.ConversationID) ([]string, error)
}

type ConversationRepository struct {
	db *badger.DB
}

func NewConversationRepository(db *badger.DB) ConversationRepository {
	return ConversationRepository{db: db}
}

type diskConversation struct {
	ID           string   `cbor:"id"`
	TicketID     string   `cbor:"ticket"`
	Participants []string `cbor:"participants"`
	CreatedAt    int64    `cbor:"created_at"`
}

func (r ConversationRepository) Create(conversation domain.Conversation) error {
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = time.Now().UTC()
	}
	bytes, err := cbor.Marshal(diskConversation{
		ID:           string(conversation.ID),
		TicketID:     conversation.TicketID,
		Participants: conversation.ParticipantIDs,
		CreatedAt:    conversation.CreatedAt.Unix(),
	})
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(conversationKey(conversation.ID), bytes)
	})
}

func (r ConversationRepository) Get(id domain.ConversationID) (domain.Conversation, error) {
	var dc diskConversation
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(conversationKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return cbor.Unmarshal(value, &dc)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Conversation{}, fmt.Errorf("%w: %s", errors.ErrConversationUnknown, id)
	}
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	return domain.Conversation{
		ID:             domain.ConversationID(dc.ID),
		TicketID:       dc.TicketID,
		ParticipantIDs: dc.Participants,
		CreatedAt:      time.Unix(dc.CreatedAt, 0).UTC(),
	}, nil
}

func (r ConversationRepository) Participants(id domain.ConversationID) ([]string, error) {
	conversation, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return conversation.ParticipantIDs, nil
}

func conversationKey(id domain.ConversationID) []byte {
	return []byte("conv:" + string(id))
}
