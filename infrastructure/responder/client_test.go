package responder

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"relaychat/domain"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestClient_Respond(t *testing.T) {
	req := require.New(t)
	var got Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Response{Reply: "  Paris.  "})
	}))
	defer server.Close()

	client := NewClient(logs.GetLoggerFromLevel(slog.LevelDebug), server.URL)
	history := []domain.Exchange{{Identity: "alice", Prompt: "hi", Reply: "hello", At: time.Now()}}
	reply, err := client.Respond(context.Background(), "alice", "capital of France?", history)
	req.NoError(err)
	req.Equal("Paris.", reply)
	req.Equal(Request{
		Identity: "alice",
		Message:  "capital of France?",
		History:  []Turn{{Prompt: "hi", Reply: "hello"}},
	}, got)
}

func TestClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"Json error body", http.StatusTooManyRequests, `{"error":"quota exceeded"}`, "quota exceeded"},
		{"Plain body", http.StatusBadGateway, "model offline", "model offline"},
		{"Empty reply", http.StatusOK, `{"reply":"   "}`, "empty reply"},
		{"Garbage", http.StatusOK, `not json`, "unmarshal response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(logs.GetLoggerFromLevel(slog.LevelDebug), server.URL)
			_, err := client.Respond(context.Background(), "alice", "hi", nil)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestClient_HonorsContext(t *testing.T) {
	req := require.New(t)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(logs.GetLoggerFromLevel(slog.LevelDebug), server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Respond(ctx, "alice", "hi", nil)
	req.ErrorIs(err, context.DeadlineExceeded)
}
