package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTimeout = 30 * time.Second
	maxBatchSize   = 50
)

// Source produces candidate items for a preference request. Implemented by
// Client for the HTTP generation service; tests substitute fakes.
type Source interface {
	Generate(ctx context.Context, req Request) ([]Item, error)
}

// Client talks to the external content-generation service over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a generation client for the given base URL. The API key
// may be empty when the service runs unauthenticated.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

type generateResponse struct {
	Items []Item `json:"items"`
}

// Generate posts the preference request and returns the candidate batch.
// Items arriving without an id get one assigned so downstream storage always
// has a key. The batch is truncated to maxBatchSize.
func (c *Client) Generate(ctx context.Context, req Request) ([]Item, error) {
	if req.Count <= 0 || req.Count > maxBatchSize {
		req.Count = maxBatchSize
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling generation service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("generation service returned %d: %s", resp.StatusCode, string(respBody))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding generation response: %w", err)
	}

	items := out.Items
	if len(items) > maxBatchSize {
		items = items[:maxBatchSize]
	}
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.New().String()
		}
	}
	return items, nil
}
