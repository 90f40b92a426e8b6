// Package store talks to the durable board store over HTTP. The engine only
// reads from it: the authoritative initial snapshot of a board is fetched
// once, on the first join for a slug.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"greyboard.app/internal/board"
)

// sessionCookie is the cookie the browser client authenticates with; it is
// forwarded verbatim to the store.
const sessionCookie = "jwtToken"

// FetchError is any failure to load a board from the remote store: network,
// non-2xx HTTP status, or an error envelope.
type FetchError struct {
	Slug string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch board %q: %v", e.Slug, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// envelope is the store's response wrapper.
type envelope struct {
	Status int          `json:"status"`
	Result *board.Board `json:"result"`
	Error  *string      `json:"error"`
}

type Client struct {
	http *http.Client
}

func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: 10 * time.Second}}
}

// FetchBoard loads the board behind slug from the store at origin,
// forwarding the caller's session cookie when present. It succeeds only on
// an HTTP 2xx carrying an envelope with status 200 and a result.
func (c *Client) FetchBoard(ctx context.Context, origin, slug, token string) (*board.Board, error) {
	url := fmt.Sprintf("%s/api/boards/slug/%s", origin, slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Slug: slug, Err: err}
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Slug: slug, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Slug: slug, Err: fmt.Errorf("store returned %s", resp.Status)}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, &FetchError{Slug: slug, Err: fmt.Errorf("decode envelope: %w", err)}
	}
	if env.Status != 200 || env.Result == nil {
		reason := "unknown"
		if env.Error != nil && *env.Error != "" {
			reason = *env.Error
		}
		return nil, &FetchError{Slug: slug, Err: fmt.Errorf("%s", reason)}
	}
	return env.Result, nil
}
