package errors

import (
	goerrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrWorkerFatal      = fmt.Errorf("worker cannot be restarted")
	ErrMissingRoom      = fmt.Errorf("room name is required")
	ErrMissingIdentity  = fmt.Errorf("participant identity is required")
	ErrMissingServerURL = fmt.Errorf("server url is required")
	ErrNotConnected     = fmt.Errorf("session is not connected")
	ErrEmptyMessage     = fmt.Errorf("message is empty")
	ErrSendQueueFull    = fmt.Errorf("outgoing message queue is full")
	ErrSessionClosed    = fmt.Errorf("session is closed")
	ErrEmptyToken       = fmt.Errorf("credential service returned an empty token")
	ErrInvalidGrant     = fmt.Errorf("invalid room grant")
	ErrMissingSecret    = fmt.Errorf("api secret is required")
)

// Kind classifies session failures by how the state machine reacts to them.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfiguration is fatal and never retried.
	KindConfiguration
	// KindCredential is retried only through an explicit connect.
	KindCredential
	// KindTransportConnect is eligible for automatic backoff while reconnecting.
	KindTransportConnect
	// KindTransportDisconnected is a mid-session loss, eligible for backoff.
	KindTransportDisconnected
	// KindSend is returned synchronously to the caller of SendMessage.
	KindSend
	// KindReconnectExhausted is terminal until explicit user action.
	KindReconnectExhausted
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration_error"
	case KindCredential:
		return "credential_error"
	case KindTransportConnect:
		return "transport_connect_error"
	case KindTransportDisconnected:
		return "transport_disconnected"
	case KindSend:
		return "send_error"
	case KindReconnectExhausted:
		return "reconnect_exhausted"
	default:
		return fmt.Sprintf("unknown_kind_%d", int(k))
	}
}

// SessionError carries a Kind alongside the underlying cause.
type SessionError struct {
	Kind    Kind
	Message string
	Wrapped error
}

func (e *SessionError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *SessionError) Unwrap() error {
	return e.Wrapped
}

// Is matches another *SessionError of the same Kind.
func (e *SessionError) Is(target error) bool {
	t, ok := target.(*SessionError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, message string) *SessionError {
	return &SessionError{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *SessionError {
	return &SessionError{Kind: kind, Message: message, Wrapped: err}
}

// KindOf returns the Kind of the first SessionError in err's chain.
func KindOf(err error) Kind {
	var se *SessionError
	if goerrors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
