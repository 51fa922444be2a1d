//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"deskchat/domain"
	"deskchat/errors"
)

type IMessageRepository interface {
	Append(conversationID domain.ConversationID, senderID, content string) (domain.Message, error)
	History(conversationID domain.ConversationID, cursor *string) ([]domain.Message, *string, error)
}

type MessageRepository struct {
	db       *badger.DB
	log      *slog.Logger
	pageSize *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, pageSize *int) MessageRepository {
	return MessageRepository{db: db, log: log, pageSize: pageSize}
}

// diskMessage is the CBOR-encoded record stored in BadgerDB.
type diskMessage struct {
	ID           string `cbor:"id"`
	Conversation string `cbor:"conversation"`
	Sender       string `cbor:"sender"`
	Content      string `cbor:"content"`
	At           int64  `cbor:"at"`
}

// Append persists a message and assigns its id and timestamp. The key is
// formatted as "msg:{conversation}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two
//     messages land on the same nanosecond.
//
// Assignment order here is the authoritative conversation order; callers
// serialize Append per conversation.
func (m MessageRepository) Append(conversationID domain.ConversationID, senderID, content string) (domain.Message, error) {
	message := domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}

	key := fmt.Sprintf("msg:%s:%019d:%s",
		message.ConversationID,
		message.CreatedAt.UnixNano(),
		message.ID,
	)
	bytes, err := cbor.Marshal(fromMessage(message))
	if err != nil {
		return domain.Message{}, err
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return message, nil
}

// History retrieves messages for a conversation using a reverse prefix
// scan, newest first. Thanks to the padded timestamp in the key, messages
// are naturally sorted by time. The returned cursor resumes the next page;
// it is nil once the conversation is exhausted.
func (m MessageRepository) History(conversationID domain.ConversationID, cursor *string) ([]domain.Message, *string, error) {
	var rawValues [][]byte
	var lastKey string
	exhausted := true

	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", conversationID)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible key, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.pageSize != nil && len(rawValues) == *m.pageSize {
				exhausted = false
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				rawValues = append(rawValues, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	messages := make([]domain.Message, 0, len(rawValues))
	for _, raw := range rawValues {
		var dm diskMessage
		if err = cbor.Unmarshal(raw, &dm); err != nil {
			return nil, nil, err
		}
		message, err := toMessage(dm)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, message)
	}

	var next *string
	if !exhausted {
		next = lo.ToPtr(lastKey)
	}
	return messages, next, nil
}

func fromMessage(message domain.Message) diskMessage {
	return diskMessage{
		ID:           message.ID.String(),
		Conversation: string(message.ConversationID),
		Sender:       message.SenderID,
		Content:      message.Content,
		At:           message.CreatedAt.UnixNano(),
	}
}

func toMessage(dm diskMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(dm.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:             parsedID,
		ConversationID: domain.ConversationID(dm.Conversation),
		SenderID:       dm.Sender,
		Content:        dm.Content,
		CreatedAt:      time.Unix(0, dm.At).UTC(),
	}, nil
}
