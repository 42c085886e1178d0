package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoff_DelayDoubles(t *testing.T) {
	req := require.New(t)
	b := Backoff{MaxAttempts: 5, BaseDelay: 2 * time.Second}

	req.Equal([]time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
	}, b.Schedule())
	req.Zero(b.Delay(0))
}

func TestBackoff_Exhausted(t *testing.T) {
	req := require.New(t)
	b := Backoff{MaxAttempts: 2, BaseDelay: time.Second}

	req.False(b.Exhausted(0))
	req.False(b.Exhausted(1))
	req.True(b.Exhausted(2))
	req.True(Backoff{}.Exhausted(0))
	req.Empty(Backoff{}.Schedule())
}

func TestBackoff_LargeAttemptDoesNotOverflow(t *testing.T) {
	req := require.New(t)
	b := Backoff{MaxAttempts: 100, BaseDelay: time.Millisecond}

	req.Positive(b.Delay(100))
	req.Equal(b.Delay(31), b.Delay(64))
}
