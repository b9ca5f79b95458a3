package fetch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
)

const maxBodyBytes = 32 * 1024 * 1024

// Client issues bearer-token JSON requests against one regional API
// host. Report jobs share a client per run.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient builds a client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// GetJSON performs an authorized GET and decodes the JSON body.
// A 401 maps to ErrUnauthorized so poll loops can refresh and retry.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, accessToken string) (map[string]any, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("x-amz-access-token", accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, errors.Newf("GET %s: status %d", path, resp.StatusCode)
	}

	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return out, nil
}
