package remote

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

// DefaultTimeout bounds a single blockstore HTTP call when the caller's
// context carries no earlier deadline.
const DefaultTimeout = 30 * time.Second

// Blockstore is the reference Backend: a JSON row-store speaking a small
// HTTP API. Rate limiting and retries are the projector's concern; the
// client only classifies responses.
type Blockstore struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewBlockstore creates a blockstore client for the given endpoint.
func NewBlockstore(baseURL, apiKey string) *Blockstore {
	return &Blockstore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns a copy using the given HTTP client. Useful for
// tests and custom transports.
func (b *Blockstore) WithHTTPClient(httpClient *http.Client) *Blockstore {
	return &Blockstore{
		BaseURL:    b.BaseURL,
		APIKey:     b.APIKey,
		HTTPClient: httpClient,
	}
}

func (b *Blockstore) Name() string {
	return "blockstore"
}

func (b *Blockstore) Query(ctx context.Context, anchor string, filter map[string]string) ([]string, error) {
	req := struct {
		Anchor string            `json:"anchor"`
		Filter map[string]string `json:"filter"`
	}{Anchor: anchor, Filter: filter}

	var resp struct {
		IDs []string `json:"ids"`
	}
	if err := b.do(ctx, http.MethodPost, "/v1/query", req, &resp); err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

func (b *Blockstore) Create(ctx context.Context, parentAnchor string, properties map[string]any, body string) (string, error) {
	req := struct {
		Parent     string         `json:"parent"`
		Properties map[string]any `json:"properties"`
		Body       string         `json:"body"`
	}{Parent: parentAnchor, Properties: properties, Body: body}

	var resp struct {
		ID string `json:"id"`
	}
	if err := b.do(ctx, http.MethodPost, "/v1/rows", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &RemoteError{Kind: KindSchemaMismatch, Op: "create", Err: fmt.Errorf("response carried no row id")}
	}
	return resp.ID, nil
}

func (b *Blockstore) Update(ctx context.Context, rowID string, properties map[string]any, body string) error {
	req := struct {
		Properties map[string]any `json:"properties"`
		Body       string         `json:"body,omitempty"`
	}{Properties: properties, Body: body}

	return b.do(ctx, http.MethodPatch, "/v1/rows/"+url.PathEscape(rowID), req, nil)
}

func (b *Blockstore) Fetch(ctx context.Context, rowID string) (*Row, error) {
	var row Row
	if err := b.do(ctx, http.MethodGet, "/v1/rows/"+url.PathEscape(rowID), nil, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

func (b *Blockstore) do(ctx context.Context, method, path string, reqBody, respOut any) error {
	op := method + " " + path

	var reader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return &RemoteError{Kind: KindTransport, Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, b.BaseURL+path, reader)
	if err != nil {
		return &RemoteError{Kind: KindTransport, Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.APIKey)

	resp, err := b.HTTPClient.Do(httpReq)
	if err != nil {
		kind := KindTransport
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return &RemoteError{Kind: kind, Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RemoteError{Kind: KindTransport, Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if kind, ok := classifyStatus(resp.StatusCode); ok {
		return &RemoteError{Kind: kind, Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncate(data))}
	}

	if respOut != nil {
		if err := json.Unmarshal(data, respOut); err != nil {
			return &RemoteError{Kind: KindSchemaMismatch, Op: op, Err: fmt.Errorf("failed to parse response: %w", err)}
		}
	}
	return nil
}

func classifyStatus(status int) (ErrorKind, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth, true
	case status == http.StatusNotFound:
		return KindNotFound, true
	case status == http.StatusConflict:
		return KindConflict, true
	case status == http.StatusTooManyRequests:
		return KindRateLimited, true
	case status == http.StatusUnprocessableEntity:
		return KindSchemaMismatch, true
	default:
		return KindTransport, true
	}
}

func truncate(data []byte) string {
	const max = 200
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
