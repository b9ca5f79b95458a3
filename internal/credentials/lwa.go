package credentials

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// LWAClient exchanges refresh tokens at a Login-with-Amazon style
// token endpoint. One instance per OAuth client (SP-API and Ads use
// separate client registrations).
type LWAClient struct {
	endpoint     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewLWAClient builds an exchanger for one OAuth client registration.
func NewLWAClient(endpoint, clientID, clientSecret string, timeout time.Duration) *LWAClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &LWAClient{
		endpoint:     endpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

type lwaTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

// Exchange posts the refresh-token grant and returns the access token.
func (c *LWAClient) Exchange(ctx context.Context, refreshToken string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "token endpoint")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "read token response")
	}

	var parsed lwaTokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", errors.Wrapf(err, "decode token response (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		msg := parsed.ErrorDesc
		if msg == "" {
			msg = parsed.Error
		}
		return "", errors.Newf("token endpoint status %d: %s", resp.StatusCode, msg)
	}
	if parsed.AccessToken == "" {
		return "", errors.New("token endpoint returned empty access token")
	}
	return parsed.AccessToken, nil
}
