//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"deskchat/domain"
)

// EventSink is the delivery end of one live connection. Deliver must not
// block longer than the configured delivery timeout; a sink whose
// connection is gone reports an error and the fan-out drops it silently.
type EventSink interface {
	Deliver(ctx context.Context, message domain.Message) error
	Close()
}

// IRegistry tracks live connections and the room reverse index.
type IRegistry interface {
	Register(conn *domain.Connection, sink EventSink) error
	Unregister(connectionID string)
	Get(connectionID string) (*domain.Connection, bool)
	Subscribe(connectionID string, room domain.ConversationID)
	SinksForRoom(room domain.ConversationID) []EventSink
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker
// for logging and supervision, avoiding manual naming in the interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
