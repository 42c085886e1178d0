package storage

import (
	"fmt"
	"log/slog"
	"relaychat/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_RecallsLastExchangesInOrder(t *testing.T) {
	req := require.New(t)
	repository := NewMemoryRepository(openTestDB(t), slog.Default())
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := range 5 {
		req.NoError(repository.Remember(domain.Exchange{
			Identity: "alice",
			Prompt:   fmt.Sprintf("question %d", i),
			Reply:    fmt.Sprintf("answer %d", i),
			At:       at.Add(time.Duration(i) * time.Minute),
		}))
	}

	recalled, err := repository.Recall("alice", 3)
	req.NoError(err)
	req.Len(recalled, 3)
	req.Equal("question 2", recalled[0].Prompt)
	req.Equal("answer 4", recalled[2].Reply)
	req.True(recalled[2].At.Equal(at.Add(4 * time.Minute)))

	all, err := repository.Recall("alice", 50)
	req.NoError(err)
	req.Len(all, 5)
}

func TestMemoryRepository_IdentitiesAreIsolated(t *testing.T) {
	req := require.New(t)
	repository := NewMemoryRepository(openTestDB(t), slog.Default())
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	req.NoError(repository.Remember(domain.Exchange{Identity: "a", Prompt: "hi", Reply: "hello", At: at}))
	req.NoError(repository.Remember(domain.Exchange{Identity: "a:b", Prompt: "yo", Reply: "hey", At: at}))

	recalled, err := repository.Recall("a", 10)
	req.NoError(err)
	req.Len(recalled, 1)
	req.Equal("hi", recalled[0].Prompt)

	recalled, err = repository.Recall("nobody", 10)
	req.NoError(err)
	req.Empty(recalled)

	recalled, err = repository.Recall("a", 0)
	req.NoError(err)
	req.Empty(recalled)
}

func TestMemoryRepository_SameInstantKeepsBoth(t *testing.T) {
	req := require.New(t)
	repository := NewMemoryRepository(openTestDB(t), slog.Default())
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	req.NoError(repository.Remember(domain.Exchange{Identity: "alice", Prompt: "one", At: at}))
	req.NoError(repository.Remember(domain.Exchange{Identity: "alice", Prompt: "two", At: at}))

	recalled, err := repository.Recall("alice", 10)
	req.NoError(err)
	req.Len(recalled, 2)
}
