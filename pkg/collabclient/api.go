// Package collabclient is the client half of the collaborative editor: a thin
// HTTP client for the document endpoints and a Session that speaks the
// realtime protocol for one open document.
package collabclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("document not found")

// StatusError is any other non-2xx answer.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Message)
}

type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// API calls the document endpoints below a base URL such as
// "http://localhost:5000/api".
type API struct {
	base *url.URL
	http *http.Client
}

// NewAPI parses baseURL. A nil client means http.DefaultClient.
func NewAPI(baseURL string, client *http.Client) (*API, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &API{base: u, http: client}, nil
}

// WebSocketURL is the realtime endpoint served next to the document routes.
func (a *API) WebSocketURL() string {
	u := a.base.JoinPath("ws")
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

func (a *API) List(ctx context.Context) ([]Document, error) {
	var out []Document
	if err := a.do(ctx, http.MethodGet, a.base.JoinPath("documents"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *API) Get(ctx context.Context, id string) (*Document, error) {
	var d Document
	if err := a.do(ctx, http.MethodGet, a.base.JoinPath("documents", id), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (a *API) Create(ctx context.Context, title, content string) (*Document, error) {
	var d Document
	body := map[string]string{"title": title, "content": content}
	if err := a.do(ctx, http.MethodPost, a.base.JoinPath("documents"), body, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Update replaces the whole content of document id.
func (a *API) Update(ctx context.Context, id, content string) (*Document, error) {
	var d Document
	body := map[string]string{"content": content}
	if err := a.do(ctx, http.MethodPost, a.base.JoinPath("documents", id), body, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (a *API) do(ctx context.Context, method string, u *url.URL, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
