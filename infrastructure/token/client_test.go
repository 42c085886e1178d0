package token

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestClient_Token(t *testing.T) {
	req := require.New(t)
	var got Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/token" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Response{Token: "grant-123", Room: got.Room, Identity: got.Identity})
	}))
	defer server.Close()

	client := NewClient(logs.GetLoggerFromLevel(slog.LevelDebug), server.URL+"/", "Alice")
	token, err := client.Token(context.Background(), "general", "alice")
	req.NoError(err)
	req.Equal("grant-123", token)
	req.Equal(Request{Room: "general", Identity: "alice", Name: "Alice"}, got)
}

func TestClient_ErrorStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"Json error body", http.StatusBadRequest, `{"error":"room is required"}`, "room is required"},
		{"Plain body", http.StatusBadGateway, "upstream down", "upstream down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(logs.GetLoggerFromLevel(slog.LevelDebug), server.URL, "")
			_, err := client.Token(context.Background(), "general", "alice")
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestClient_HonorsContext(t *testing.T) {
	req := require.New(t)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := NewClient(logs.GetLoggerFromLevel(slog.LevelDebug), server.URL, "")
	_, err := client.Token(ctx, "general", "alice")
	req.ErrorIs(err, context.Canceled)
}
