// Package client provides a Go client for the noterag HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Note is a stored note as returned by the API.
type Note struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Title     string   `json:"title"`
	URL       string   `json:"url,omitempty"`
	Timestamp int64    `json:"timestamp"`
	Tags      []string `json:"tags,omitempty"`
}

// CreateNoteRequest carries the fields for a new note. Only Text is required.
type CreateNoteRequest struct {
	Text      string   `json:"text"`
	Title     string   `json:"title,omitempty"`
	URL       string   `json:"url,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// UpdateNoteRequest carries replacement fields. Nil pointers keep stored values.
type UpdateNoteRequest struct {
	Text  *string  `json:"text,omitempty"`
	Title *string  `json:"title,omitempty"`
	URL   *string  `json:"url,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

// SearchResult is one ranked search hit.
type SearchResult struct {
	Note
	Score        float64  `json:"score"`
	VectorScore  float64  `json:"vector_score"`
	KeywordScore float64  `json:"keyword_score"`
	Matched      []string `json:"matched_keywords,omitempty"`
	Boosted      bool     `json:"boosted,omitempty"`
}

// SearchResponse is the full search reply, including the serving store mode.
type SearchResponse struct {
	Items []SearchResult `json:"items"`
	Total int            `json:"total"`
	Mode  string         `json:"mode"`
}

// Health is the service health report.
type Health struct {
	Status    string `json:"status"`
	StoreMode string `json:"store_mode"`
	Notes     int    `json:"notes"`
}

// APIError is a non-2xx reply decoded from the service error envelope.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("noterag: %s (%s, http %d)", e.Message, e.Code, e.StatusCode)
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the Bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// Client talks to a noterag service instance.
type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateNote stores a note. reused reports when an identical note within the
// server's dedup window was returned instead of a new one.
func (c *Client) CreateNote(ctx context.Context, req CreateNoteRequest) (n Note, reused bool, err error) {
	status, err := c.do(ctx, http.MethodPost, "/api/notes", req, &n)
	if err != nil {
		return Note{}, false, err
	}
	return n, status == http.StatusOK, nil
}

// GetNote fetches a note by id.
func (c *Client) GetNote(ctx context.Context, id string) (Note, error) {
	var n Note
	_, err := c.do(ctx, http.MethodGet, "/api/notes/"+url.PathEscape(id), nil, &n)
	return n, err
}

// ListNotes returns all notes, newest first.
func (c *Client) ListNotes(ctx context.Context) ([]Note, error) {
	var resp struct {
		Items []Note `json:"items"`
	}
	_, err := c.do(ctx, http.MethodGet, "/api/notes", nil, &resp)
	return resp.Items, err
}

// UpdateNote replaces the given fields of an existing note.
func (c *Client) UpdateNote(ctx context.Context, id string, req UpdateNoteRequest) (Note, error) {
	var n Note
	_, err := c.do(ctx, http.MethodPut, "/api/notes/"+url.PathEscape(id), req, &n)
	return n, err
}

// DeleteNote removes a note by id.
func (c *Client) DeleteNote(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/notes/"+url.PathEscape(id), nil, nil)
	return err
}

// Search runs the ranked search pipeline. An empty query lists all notes.
// A zero limit uses the server default.
func (c *Client) Search(ctx context.Context, query string, limit int) (SearchResponse, error) {
	q := url.Values{}
	q.Set("query", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp SearchResponse
	_, err := c.do(ctx, http.MethodGet, "/api/search?"+q.Encode(), nil, &resp)
	return resp, err
}

// RefreshEmbeddings asks the server to vectorize notes that have no embedding.
func (c *Client) RefreshEmbeddings(ctx context.Context) (updated, failed int, err error) {
	var resp struct {
		Updated int `json:"updated"`
		Failed  int `json:"failed"`
	}
	_, err = c.do(ctx, http.MethodPost, "/api/notes/refresh-embeddings", nil, &resp)
	return resp.Updated, resp.Failed, err
}

// Health reports service health. A degraded store mode is still healthy.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	_, err := c.do(ctx, http.MethodGet, "/health", nil, &h)
	return h, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = &bytes.Buffer{}
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
	}

	var req *http.Request
	var err error
	if reqBody != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, http.NoBody)
	}
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr := json.NewDecoder(resp.Body).Decode(apiErr); decodeErr != nil {
			apiErr.Code = "unknown"
			apiErr.Message = resp.Status
		}
		return resp.StatusCode, apiErr
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
