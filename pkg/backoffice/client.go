// Package backoffice implements the session-aware client for the POS backoffice API.
//
// Every backoffice account owns one Session. A Client wraps that session and
// issues calls through an explicit bounded loop: a rejected session is
// invalidated and the call is replayed exactly once after re-authentication,
// and a transient network fault is retried exactly once after a fixed delay.
// The two budgets are independent.
package backoffice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/posbridge/posbridge/pkg/apierrors"
	"github.com/posbridge/posbridge/pkg/telemetry"
	"github.com/posbridge/posbridge/pkg/transport"
)

const (
	// SessionCookieName is the cookie the backoffice reads the session from.
	SessionCookieName = "sessionId"

	// maxAuthAttempts allows one re-authentication and replay per call.
	maxAuthAttempts = 2

	// networkRetries is the per-call network retry budget.
	networkRetries = 1

	serviceName = "backoffice"
)

// Config contains backoffice client configuration.
type Config struct {
	// BaseURL is the backoffice API root, e.g. "https://backoffice.example.com/api".
	BaseURL string

	// SessionTTL is the assumed session lifetime after login.
	SessionTTL time.Duration

	// RequestTimeout is the per-request network timeout.
	RequestTimeout time.Duration

	// RetryDelay is the fixed pause before the network retry.
	RetryDelay time.Duration

	// HTTPClient overrides the HTTP client.
	HTTPClient transport.Doer

	// Clock overrides the session time source.
	Clock func() time.Time

	// Sleep overrides how the retry delay is waited out.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
}

// Response is a decoded backoffice envelope.
type Response struct {
	Status  int
	Result  bool
	Data    json.RawMessage
	Message string
}

// DecodeData unmarshals the envelope's data field into v.
func (r *Response) DecodeData(v interface{}) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return apierrors.NewAPIError(r.Status, "response has no data")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return apierrors.NewAPIError(r.Status, "malformed response data").WithCause(err)
	}
	return nil
}

// Client issues authenticated backoffice calls for one account.
type Client struct {
	baseURL string
	session *Session
	retrier *transport.Retrier
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
}

// NewClient creates a client bound to session.
func NewClient(cfg Config, session *Session) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		session: session,
		retrier: newRetrier(cfg),
		logger:  logger.NewComponentLogger("backoffice").WithAccount(session.Account()),
		metrics: cfg.Metrics,
	}
}

// Session returns the session the client authenticates with.
func (c *Client) Session() *Session {
	return c.session
}

// Call posts payload to endpoint with the current session attached.
func (c *Client) Call(ctx context.Context, endpoint string, payload map[string]interface{}) (*Response, error) {
	start := time.Now()
	resp, err := c.call(ctx, endpoint, payload)
	c.metrics.RecordAPICall(serviceName, outcome(err), time.Since(start))
	return resp, err
}

func (c *Client) call(ctx context.Context, endpoint string, payload map[string]interface{}) (*Response, error) {
	budget := transport.NewBudget(networkRetries)

	for attempt := 1; attempt <= maxAuthAttempts; attempt++ {
		if err := c.session.EnsureValid(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", endpoint, err)
		}
		state := c.session.State()

		status, body, err := c.send(ctx, budget, endpoint, payload, state)
		if err != nil {
			return nil, err
		}

		if IsAuthFailure(status, body) {
			c.session.InvalidateToken(state.Token)
			if attempt < maxAuthAttempts {
				c.logger.WithField("endpoint", endpoint).Warn("backoffice session rejected, re-authenticating")
				continue
			}
			return nil, apierrors.NewAuthError("session rejected after re-authentication", nil).
				WithStatus(status).
				WithEndpoint(endpoint).
				WithAccount(c.session.Account())
		}

		if status != http.StatusOK {
			return nil, apierrors.NewAPIError(status, "unexpected status from backoffice").
				WithEndpoint(endpoint)
		}

		return decodeEnvelope(status, endpoint, body)
	}

	// Unreachable: the loop returns on its final attempt.
	return nil, apierrors.NewAuthError("authentication attempts exhausted", nil).WithEndpoint(endpoint)
}

func (c *Client) send(
	ctx context.Context,
	budget *transport.Budget,
	endpoint string,
	payload map[string]interface{},
	state SessionState,
) (int, []byte, error) {
	body := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	if _, ok := body["userId"]; !ok && state.UserID != "" {
		body["userId"] = state.UserID
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode payload for %s: %w", endpoint, err)
	}

	resp, err := c.retrier.Do(ctx, budget, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: state.Token})
		return req, nil
	})
	if err != nil {
		return 0, nil, err
	}

	data, err := transport.ReadBody(resp)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, data, nil
}

// decodeEnvelope turns a 200 body into a Response. A result=false envelope that
// is not an auth failure is reported as an api error carrying status 200.
func decodeEnvelope(status int, endpoint string, body []byte) (*Response, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apierrors.NewAPIError(status, "malformed backoffice response").
			WithEndpoint(endpoint).WithCause(err)
	}
	if env.Result == nil {
		return nil, apierrors.NewAPIError(status, "backoffice response has no result flag").
			WithEndpoint(endpoint)
	}
	if !*env.Result {
		msg := env.message()
		if msg == "" {
			msg = "backoffice returned result=false"
		}
		return nil, apierrors.NewAPIError(status, msg).WithEndpoint(endpoint)
	}
	return &Response{
		Status:  status,
		Result:  true,
		Data:    env.Data,
		Message: env.Message,
	}, nil
}

// httpLoginer performs POST /login.
type httpLoginer struct {
	baseURL string
	retrier *transport.Retrier
	metrics *telemetry.Metrics
}

// NewLoginer creates the HTTP login exchange for cfg.BaseURL.
func NewLoginer(cfg Config) Loginer {
	return &httpLoginer{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		retrier: newRetrier(cfg),
		metrics: cfg.Metrics,
	}
}

// loginResponse is the payload of a successful login.
type loginResponse struct {
	Result bool `json:"result"`
	Data   struct {
		SessionID flexString `json:"sessionId"`
		UserID    flexString `json:"userId"`
	} `json:"data"`
}

// Login exchanges username and password for a session id.
func (l *httpLoginer) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	start := time.Now()
	res, err := l.login(ctx, creds)
	l.metrics.RecordAPICall(serviceName+"_login", outcome(err), time.Since(start))
	return res, err
}

func (l *httpLoginer) login(ctx context.Context, creds Credentials) (LoginResult, error) {
	encoded, err := json.Marshal(map[string]string{
		"username": creds.Username,
		"password": creds.Password,
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to encode login payload: %w", err)
	}

	resp, err := l.retrier.Do(ctx, transport.NewBudget(networkRetries), func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/login", bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return LoginResult{}, err
	}

	body, err := transport.ReadBody(resp)
	if err != nil {
		return LoginResult{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return LoginResult{}, apierrors.NewAuthError("login rejected", nil).
			WithStatus(resp.StatusCode).
			WithEndpoint("/login")
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return LoginResult{}, apierrors.NewAuthError("malformed login response", err).
			WithStatus(resp.StatusCode).
			WithEndpoint("/login")
	}
	if !lr.Result || lr.Data.SessionID == "" {
		return LoginResult{}, apierrors.NewAuthError("login rejected", nil).
			WithStatus(resp.StatusCode).
			WithEndpoint("/login")
	}

	return LoginResult{
		SessionID: string(lr.Data.SessionID),
		UserID:    string(lr.Data.UserID),
	}, nil
}

func newRetrier(cfg Config) *transport.Retrier {
	client := cfg.HTTPClient
	if client == nil {
		client = transport.NewHTTPClient(cfg.RequestTimeout)
	}
	opts := []transport.Option{
		transport.WithRetryHook(func(error) { cfg.Metrics.RecordNetworkRetry(serviceName) }),
	}
	if cfg.RetryDelay > 0 {
		opts = append(opts, transport.WithDelay(cfg.RetryDelay))
	}
	if cfg.Sleep != nil {
		opts = append(opts, transport.WithSleep(cfg.Sleep))
	}
	return transport.NewRetrier(client, opts...)
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return apierrors.Kind(err)
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
