package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"relaychat/domain"
	"strings"

	"github.com/samber/lo"
)

const maxResponseSize = 1 << 20

type Turn struct {
	Prompt string `json:"prompt"`
	Reply  string `json:"reply"`
}

type Request struct {
	Identity string `json:"identity"`
	Message  string `json:"message"`
	History  []Turn `json:"history"`
}

type Response struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client asks an external completion service for the reply. The service
// owns the model and the prompt; it receives the message and the sender's
// recent exchanges.
type Client struct {
	log        *slog.Logger
	url        string
	httpClient *http.Client
}

// NewClient posts to url. Each request is bounded by the caller's context.
func NewClient(log *slog.Logger, url string) *Client {
	return &Client{log: log, url: url, httpClient: &http.Client{}}
}

func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// Respond implements contract.Responder.
func (c *Client) Respond(ctx context.Context, identity, text string, history []domain.Exchange) (string, error) {
	body := Request{
		Identity: identity,
		Message:  text,
		History: lo.Map(history, func(e domain.Exchange, _ int) Turn {
			return Turn{Prompt: e.Prompt, Reply: e.Reply}
		}),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp errorResponse
		if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Error != "" {
			return "", fmt.Errorf("completion service error (status %d): %s", resp.StatusCode, errResp.Error)
		}
		return "", fmt.Errorf("completion service error: %s (status %d)", strings.TrimSpace(string(raw)), resp.StatusCode)
	}
	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	reply := strings.TrimSpace(out.Reply)
	if reply == "" {
		return "", fmt.Errorf("completion service returned an empty reply")
	}
	c.log.Debug("Reply received", "identity", identity, "size", len(reply))
	return reply, nil
}
