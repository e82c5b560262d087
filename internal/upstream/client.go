// Package upstream implements the Upstream Client (spec.md §4.7): the
// single HTTP collaborator that talks to the Cloud Code `v1internal` API.
//
// Grounded on internal/upstream/client.go's doRequest/header-shaping, but
// adapted to the spec's single real endpoint (no daily/prod/sandbox
// fallback array — that rotation isn't named anywhere in spec.md and the
// Open Questions don't ask for it) and to the proxy-aware transport
// factory pattern from gcli2api-go's internal/upstream/gemini/client.go.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// BaseURL is the sole upstream the spec names.
const BaseURL = "https://cloudcode-pa.googleapis.com/v1internal"

// UserAgent must match for the upstream to accept the request.
const UserAgent = "antigravity/1.11.9 windows/amd64"

// Client issues the single upstream operation the spec defines.
type Client struct {
	factory *TransportFactory
}

// NewClient builds a Client over a proxy-aware transport factory.
func NewClient(factory *TransportFactory) *Client {
	return &Client{factory: factory}
}

// Call implements `call(method, access_token, body, query_string?)`:
// always POST to `…/v1internal:<method>[?<query_string>]`.
func (c *Client) Call(ctx context.Context, method, accessToken string, body map[string]any, queryString string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream request: %w", err)
	}

	url := BaseURL + ":" + method
	if queryString != "" {
		url += "?" + queryString
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	setCommonHeaders(req, accessToken)

	return c.factory.Client().Do(req)
}

// FetchAvailableModels implements the second operation the spec names:
// POST {} to `…:fetchAvailableModels`.
func (c *Client) FetchAvailableModels(ctx context.Context, accessToken string) (*http.Response, error) {
	return c.Call(ctx, "fetchAvailableModels", accessToken, map[string]any{}, "")
}

func setCommonHeaders(req *http.Request, accessToken string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", UserAgent)
}

// DrainAndClose reads the body to completion and closes it, used when an
// attempt is discarded without being forwarded to the client.
func DrainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
