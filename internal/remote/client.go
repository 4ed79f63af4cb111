// Package remote is the HTTP client for the profile store service. The
// store holds the authoritative versioned copy of each profile; this client
// fetches and pushes whole records and translates the store's status codes
// into the sentinel errors the sync coordinator branches on.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/quizfeed/internal/profile"
)

const defaultTimeout = 15 * time.Second

// ErrNotFound is returned by Fetch when the store has no record for the user.
var ErrNotFound = errors.New("remote profile not found")

// ErrConflict is returned by Push when the store rejects the write because
// the pushed version is not exactly one past its stored version.
var ErrConflict = errors.New("remote version conflict")

// Store is the profile store surface the sync coordinator depends on.
// Implemented by Client; tests substitute fakes.
type Store interface {
	Fetch(ctx context.Context, userID string) (*profile.Profile, error)
	Push(ctx context.Context, userID string, p *profile.Profile) error
}

// Client talks to the profile store service over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a store client for the given base URL. The API key may
// be empty when the store runs unauthenticated.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// Fetch retrieves the stored profile for userID, or ErrNotFound when the
// store has never seen the user.
func (c *Client) Fetch(ctx context.Context, userID string) (*profile.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileURL(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("creating fetch request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote profile: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("profile store returned %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var p profile.Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding remote profile: %w", err)
	}
	if p.Topics == nil {
		p.Topics = make(map[string]*profile.Topic)
	}
	if p.Interactions == nil {
		p.Interactions = make(map[string]*profile.Interaction)
	}
	return &p, nil
}

// Push writes the profile under userID. The profile's Version field carries
// the version the caller claims; the store accepts only when it is exactly
// one past the stored version and answers 409 otherwise, which surfaces here
// as ErrConflict.
func (c *Client) Push(ctx context.Context, userID string, p *profile.Profile) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling profile: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.profileURL(userID), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pushing remote profile: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusConflict:
		return fmt.Errorf("pushing version %d: %w", p.Version, ErrConflict)
	default:
		return fmt.Errorf("profile store returned %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}
}

func (c *Client) profileURL(userID string) string {
	return c.baseURL + "/profiles/" + userID
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	return strings.TrimSpace(string(b))
}
