// Package pos implements clients for the POS platform's store directory and
// reporting API. Both authenticate with static keys, so unlike the
// backoffice there is no session to heal: a rejected key is an auth error.
package pos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/posbridge/posbridge/pkg/apierrors"
	"github.com/posbridge/posbridge/pkg/telemetry"
	"github.com/posbridge/posbridge/pkg/transport"
)

// APIKeyHeader carries the per-store key on reporting calls.
const APIKeyHeader = "X-Api-Key"

const networkRetries = 1

// Config contains POS client configuration.
type Config struct {
	// BaseURL is the API root.
	BaseURL string

	// Token is sent as a bearer token when set. The directory uses it.
	Token string

	// RequestTimeout is the per-request network timeout.
	RequestTimeout time.Duration

	// RetryDelay is the fixed pause before the network retry.
	RetryDelay time.Duration

	// HTTPClient overrides the HTTP client.
	HTTPClient transport.Doer

	// Sleep overrides how the retry delay is waited out.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
}

// httpClient is the GET-and-decode core shared by the POS clients.
type httpClient struct {
	service string
	baseURL string
	token   string
	retrier *transport.Retrier
	metrics *telemetry.Metrics
}

func newHTTPClient(service string, cfg Config) *httpClient {
	doer := cfg.HTTPClient
	if doer == nil {
		doer = transport.NewHTTPClient(cfg.RequestTimeout)
	}
	opts := []transport.Option{
		transport.WithRetryHook(func(error) { cfg.Metrics.RecordNetworkRetry(service) }),
	}
	if cfg.RetryDelay > 0 {
		opts = append(opts, transport.WithDelay(cfg.RetryDelay))
	}
	if cfg.Sleep != nil {
		opts = append(opts, transport.WithSleep(cfg.Sleep))
	}
	return &httpClient{
		service: service,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		retrier: transport.NewRetrier(doer, opts...),
		metrics: cfg.Metrics,
	}
}

// get fetches path with query and decodes the body into out. apiKey is optional.
func (c *httpClient) get(ctx context.Context, path string, query url.Values, apiKey string, out interface{}) error {
	start := time.Now()
	err := c.do(ctx, path, query, apiKey, out)
	outcome := "success"
	if err != nil {
		outcome = apierrors.Kind(err)
	}
	c.metrics.RecordAPICall(c.service, outcome, time.Since(start))
	return err
}

func (c *httpClient) do(ctx context.Context, path string, query url.Values, apiKey string, out interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	resp, err := c.retrier.Do(ctx, transport.NewBudget(networkRetries), func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if apiKey != "" {
			req.Header.Set(APIKeyHeader, apiKey)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		return req, nil
	})
	if err != nil {
		return err
	}

	body, err := transport.ReadBody(resp)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apierrors.NewAuthError(c.service+" rejected credentials", nil).
			WithStatus(resp.StatusCode).
			WithEndpoint(path)
	case resp.StatusCode != http.StatusOK:
		return apierrors.NewAPIError(resp.StatusCode, "unexpected status from "+c.service).
			WithEndpoint(path)
	}

	if err := decodeList(body, out); err != nil {
		return apierrors.NewAPIError(resp.StatusCode, "malformed "+c.service+" response").
			WithEndpoint(path).
			WithCause(err)
	}
	return nil
}

// decodeList accepts either a bare JSON array or an object with the array
// under "data" or "items".
func decodeList(body []byte, out interface{}) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty body")
	}
	if trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}

	var wrapper struct {
		Data  json.RawMessage `json:"data"`
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return err
	}
	switch {
	case len(wrapper.Data) > 0 && string(wrapper.Data) != "null":
		return json.Unmarshal(wrapper.Data, out)
	case len(wrapper.Items) > 0 && string(wrapper.Items) != "null":
		return json.Unmarshal(wrapper.Items, out)
	}
	return fmt.Errorf("response has neither data nor items")
}
