// Package practicum talks to the homework review API and turns its answers
// into notification text.
package practicum

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/erkineren/homework-monitor/internal/apperror"
	"github.com/google/go-querystring/query"
	"golang.org/x/oauth2"
)

// tokenType is sent verbatim as the authorization scheme: "OAuth <token>".
const tokenType = "OAuth"

type Client struct {
	client   *http.Client
	endpoint string
}

type statusesQuery struct {
	FromDate int64 `url:"from_date"`
}

// NewClient returns a client authorized with token. A zero timeout leaves the
// HTTP client without one.
func NewClient(token, endpoint string, timeout time.Duration) *Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token, TokenType: tokenType},
	)
	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = timeout

	return &Client{
		client:   tc,
		endpoint: endpoint,
	}
}

// Statuses fetches homework statuses changed since the given unix timestamp
// and returns the decoded JSON body without interpreting it.
func (c *Client) Statuses(ctx context.Context, since int64) (any, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, apperror.Transport(fmt.Errorf("invalid endpoint %q: %v", c.endpoint, err))
	}

	params, err := query.Values(statusesQuery{FromDate: since})
	if err != nil {
		return nil, apperror.Transport(fmt.Errorf("failed to encode query: %v", err))
	}
	q := u.Query()
	for key, values := range params {
		q[key] = values
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperror.Transport(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperror.Transport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &apperror.StatusError{Code: resp.StatusCode}
	}

	var body any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: failed to decode body: %v", apperror.ErrAPIShape, err)
	}

	return body, nil
}
