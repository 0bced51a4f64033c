package e2etest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/myrjola/whistleblower/internal/errors"
)

// Client talks to the JSON API of a running server.
type Client struct {
	client *http.Client
	url    string
}

func NewClient(url string) *Client {
	return &Client{
		client: &http.Client{Timeout: time.Minute}, //nolint:exhaustruct // defaults are fine
		url:    url,
	}
}

// WaitForReady calls the specified endpoint until it gets a HTTP 200 Success
// response or until the context is cancelled or the 1-second timeout is reached.
func (c *Client) WaitForReady(ctx context.Context, urlPath string) error {
	timeout := 1 * time.Second
	startTime := time.Now()
	for {
		resp, err := c.Do(ctx, http.MethodGet, urlPath, nil, nil)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "context cancelled")
		default:
			if time.Since(startTime) >= timeout {
				return errors.New("timeout waiting for endpoint to be ready")
			}
			time.Sleep(100 * time.Millisecond) //nolint:mnd // 100ms
		}
	}
}

// Do sends a request with optional extra headers. The caller closes the response body.
func (c *Client) Do(
	ctx context.Context,
	method, urlPath string,
	body io.Reader,
	header http.Header,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url+urlPath, body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request", slog.String("method", method), slog.String("path", urlPath))
	}
	return resp, nil
}

// GetJSON fetches urlPath and decodes the body into out. It returns the status code.
func (c *Client) GetJSON(ctx context.Context, urlPath string, out any) (int, error) {
	resp, err := c.Do(ctx, http.MethodGet, urlPath, nil, nil)
	if err != nil {
		return 0, err
	}
	return decode(resp, out)
}

// PostJSON encodes in as the request body, posts it to urlPath and decodes the response into out. It returns the
// status code.
func (c *Client) PostJSON(ctx context.Context, urlPath string, in, out any) (int, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(in); err != nil {
		return 0, errors.Wrap(err, "encode request body")
	}
	resp, err := c.Do(ctx, http.MethodPost, urlPath, &buf, http.Header{"Content-Type": []string{"application/json"}})
	if err != nil {
		return 0, err
	}
	return decode(resp, out)
}

func decode(resp *http.Response, out any) (int, error) {
	defer func() {
		_ = resp.Body.Close()
	}()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, errors.Wrap(err, "decode response body", slog.Int("status", resp.StatusCode))
	}
	return resp.StatusCode, nil
}
