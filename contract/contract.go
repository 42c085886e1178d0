//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"relaychat/domain"
)

// ISupervisor runs the long-lived workers of a process.
type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker runs until ctx is done. Restarts are the supervisor's business.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName is the type name of w, used to label supervisor logs.
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

// ConnectOptions are handed to the transport on every connect attempt.
type ConnectOptions struct {
	Room        string
	Identity    string
	DisplayName string
}

type SendOptions struct {
	Reliable bool
}

// Transport opens sessions on the relay server.
type Transport interface {
	Connect(ctx context.Context, serverURL, credential string, opts ConnectOptions) (Handle, error)
}

// Handle is one live transport session. Only the connection state machine
// holds it.
type Handle interface {
	// Local is the participant the server assigned to us.
	Local() domain.Participant
	// Participants is the remote membership at connect time.
	Participants() []domain.Participant
	Send(ctx context.Context, payload []byte, opts SendOptions) error
	// Events is closed once the session is over, after a Disconnected event.
	Events() <-chan Event
	Disconnect() error
}

// TokenSource is the external credential service.
type TokenSource interface {
	Token(ctx context.Context, room, identity string) (string, error)
}

// TranscriptSink receives every message appended to the session log.
type TranscriptSink interface {
	Append(room string, message domain.Message) error
}

// Responder writes the assistant's reply to one chat message. history holds
// the asker's earlier exchanges, oldest first.
type Responder interface {
	Respond(ctx context.Context, identity, text string, history []domain.Exchange) (string, error)
}

// ConversationMemory keeps the exchanges of every participant the assistant
// talked to.
type ConversationMemory interface {
	// Recall returns the last n exchanges of identity, oldest first.
	Recall(identity string, n int) ([]domain.Exchange, error)
	Remember(exchange domain.Exchange) error
}

type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventParticipantJoined
	EventParticipantLeft
	EventDataReceived
	EventReconnecting
	EventReconnected
	EventQualityChanged
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventParticipantJoined:
		return "participant_joined"
	case EventParticipantLeft:
		return "participant_left"
	case EventDataReceived:
		return "data_received"
	case EventReconnecting:
		return "reconnecting"
	case EventReconnected:
		return "reconnected"
	case EventQualityChanged:
		return "quality_changed"
	default:
		return "unknown"
	}
}

type DisconnectReason int

const (
	ReasonUnknown DisconnectReason = iota
	// ReasonClientInitiated is the only reason that is not "unexpected".
	ReasonClientInitiated
	ReasonServerShutdown
	ReasonDuplicateIdentity
	ReasonNetwork
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonClientInitiated:
		return "client_initiated"
	case ReasonServerShutdown:
		return "server_shutdown"
	case ReasonDuplicateIdentity:
		return "duplicate_identity"
	case ReasonNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Event is one item of a Handle's event stream.
type Event struct {
	Kind        EventKind
	Participant domain.Participant // joined, left, data sender, quality
	Data        []byte
	Reason      DisconnectReason
	Quality     domain.ConnectionQuality
	Err         error
}

func (e Event) Unexpected() bool {
	return e.Kind == EventDisconnected && e.Reason != ReasonClientInitiated
}
