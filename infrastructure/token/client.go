package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const maxResponseSize = 1 << 20

type Request struct {
	Room     string `json:"room"`
	Identity string `json:"identity"`
	Name     string `json:"name,omitempty"`
}

type Response struct {
	Token    string `json:"token"`
	Room     string `json:"room"`
	Identity string `json:"identity"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client asks the credential service for a room grant.
type Client struct {
	log         *slog.Logger
	baseURL     string
	displayName string
	httpClient  *http.Client
}

// NewClient targets baseURL, e.g. "http://localhost:8080".
func NewClient(log *slog.Logger, baseURL, displayName string) *Client {
	return &Client{
		log:         log,
		baseURL:     strings.TrimRight(baseURL, "/"),
		displayName: displayName,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// Token implements contract.TokenSource.
func (c *Client) Token(ctx context.Context, room, identity string) (string, error) {
	var resp Response
	body := Request{Room: room, Identity: identity, Name: c.displayName}
	if err := c.post(ctx, "/token", body, &resp); err != nil {
		return "", err
	}
	c.log.Debug("Grant received", "room", resp.Room, "identity", resp.Identity)
	return resp.Token, nil
}

func (c *Client) post(ctx context.Context, path string, body, dest any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp errorResponse
		if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("token service error (status %d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("token service error: %s (status %d)", strings.TrimSpace(string(raw)), resp.StatusCode)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
