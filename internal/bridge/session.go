package bridge

import (
	"context"

	"github.com/mkrell/bridgectl/internal/credstore"
)

// EventKind discriminates session lifecycle events.
type EventKind int

const (
	// EventCredentialsChanged carries updated credential material to persist.
	EventCredentialsChanged EventKind = iota
	// EventPairingChallenge carries a fresh pairing token.
	EventPairingChallenge
	// EventConnectionOpen signals the session is live.
	EventConnectionOpen
	// EventConnectionClose signals the session ended, with the raw code.
	EventConnectionClose
)

func (k EventKind) String() string {
	switch k {
	case EventCredentialsChanged:
		return "credentials_changed"
	case EventPairingChallenge:
		return "pairing_challenge"
	case EventConnectionOpen:
		return "connection_open"
	case EventConnectionClose:
		return "connection_close"
	default:
		return "unknown"
	}
}

// Event is one push notification from an open session. Exactly one payload
// field is meaningful per kind.
type Event struct {
	Kind        EventKind
	Credentials credstore.Credentials
	Challenge   string
	Code        DisconnectCode
}

// Session is one live connection attempt to the messaging backend.
type Session interface {
	// Send delivers one outbound message. At-most-once: no queueing, no
	// retries.
	Send(ctx context.Context, destination string, payload []byte) error
	// Close tears the session down. The session must stop emitting events
	// once Close returns.
	Close(ctx context.Context) error
}

// Opener constructs sessions from stored credentials. Implementations wrap
// the protocol driver; the supervisor never touches the wire. Events must be
// delivered on the provided channel and the channel must not be written
// after Close returns.
type Opener interface {
	Open(ctx context.Context, creds credstore.Credentials, events chan<- Event) (Session, error)
}

// OpenerFunc adapts a function into an Opener.
type OpenerFunc func(ctx context.Context, creds credstore.Credentials, events chan<- Event) (Session, error)

func (f OpenerFunc) Open(ctx context.Context, creds credstore.Credentials, events chan<- Event) (Session, error) {
	return f(ctx, creds, events)
}
