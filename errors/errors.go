package errors

import "fmt"

// Credential failures are fatal to the connection attempt: the connection
// is closed and never reaches the registry.
var (
	ErrCredentialMissing = fmt.Errorf("credential missing")
	ErrCredentialInvalid = fmt.Errorf("credential invalid")
	ErrCredentialExpired = fmt.Errorf("credential expired")
)

// Operation-scoped failures. They are reported to the requesting connection
// only and never terminate the session.
var (
	ErrNotAParticipant     = fmt.Errorf("not a participant of the conversation")
	ErrNotJoined           = fmt.Errorf("conversation not joined")
	ErrInvalidPayload      = fmt.Errorf("invalid payload")
	ErrStoreUnavailable    = fmt.Errorf("message store unavailable")
	ErrConversationUnknown = fmt.Errorf("conversation unknown")
)

// Registry and delivery failures.
var (
	ErrDuplicateConnection = fmt.Errorf("connection already registered")
	ErrConnectionClosed    = fmt.Errorf("connection closed")
	ErrDeliveryTimeout     = fmt.Errorf("delivery timed out")
)

var ErrWorkerPanic = fmt.Errorf("worker panic")
