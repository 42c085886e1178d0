package errors

import (
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionError_KindSurvivesWrapping(t *testing.T) {
	req := require.New(t)
	cause := fmt.Errorf("dial tcp: connection refused")
	err := fmt.Errorf("attempt 2: %w", Wrap(KindTransportConnect, "transport connect failed", cause))

	req.True(IsKind(err, KindTransportConnect))
	req.False(IsKind(err, KindCredential))
	req.ErrorIs(err, cause)
	req.ErrorIs(err, New(KindTransportConnect, "other message"))
	req.Contains(err.Error(), "transport_connect_error")
}

func TestSessionError_SentinelInChain(t *testing.T) {
	req := require.New(t)
	err := Wrap(KindConfiguration, "invalid connect request", ErrMissingRoom)

	req.True(goerrors.Is(err, ErrMissingRoom))
	req.Equal(KindConfiguration, KindOf(err))
	req.Equal(KindUnknown, KindOf(ErrMissingRoom))
	req.False(IsKind(nil, KindConfiguration))
}
