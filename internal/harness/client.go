package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Client talks to the command endpoint over HTTP.
type Client struct {
	httpClient *http.Client
	token      string
	baseURL    string
}

type ClientOption func(*Client)

// WithToken sends token as a bearer token on every request.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("endpoint url cannot be empty")
	}

	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run submits req to POST /command. The envelope is returned for any
// response whose body decodes, whatever its HTTP status.
func (c *Client) Run(ctx context.Context, req Request) (*Envelope, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, &TransportError{Op: "encode request", Err: err}
	}

	resp, err := c.do(ctx, http.MethodPost, "/command", bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "read response", Err: err}
	}

	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &TransportError{
			Op:  "decode response",
			Err: errors.Wrapf(err, "status code %d, body: %s", resp.StatusCode, string(body)),
		}
	}
	envelope.HTTPStatus = resp.StatusCode
	return &envelope, nil
}

// Ping checks that the endpoint is up.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/ping", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &TransportError{Op: "ping", Err: errors.Errorf("status code %d, body: %s", resp.StatusCode, string(body))}
	}
	return nil
}

// Environment returns the endpoint host's environment variables.
func (c *Client) Environment(ctx context.Context) (map[string]string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/env", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &TransportError{Op: "env", Err: errors.Errorf("status code %d, body: %s", resp.StatusCode, string(body))}
	}

	environ := map[string]string{}
	if err := json.NewDecoder(resp.Body).Decode(&environ); err != nil {
		return nil, &TransportError{Op: "decode env", Err: err}
	}
	return environ, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &TransportError{Op: method + " " + path, Err: err}
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: method + " " + path, Err: err}
	}
	return resp, nil
}
