// Package erp pushes per-location aggregates to the ERP.
package erp

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
	"github.com/posbridge/posbridge/pkg/stores"
	"github.com/posbridge/posbridge/pkg/telemetry"
	"github.com/posbridge/posbridge/pkg/transport"
)

const serviceName = "erp"

// Config contains ERP client configuration.
type Config struct {
	BaseURL        string
	Token          string
	RequestTimeout time.Duration
	RetryDelay     time.Duration
	HTTPClient     transport.Doer
	Sleep          func(ctx context.Context, d time.Duration) error
	Metrics        *telemetry.Metrics
}

// Aggregate is the body posted for one store.
type Aggregate struct {
	StoreID         string    `json:"storeId"`
	LocationID      string    `json:"locationId"`
	ItemCount       int       `json:"itemCount"`
	TotalQuantity   float64   `json:"totalQuantity"`
	StockValue      float64   `json:"stockValue"`
	OutOfStock      int       `json:"outOfStock"`
	ActiveDiscounts int       `json:"activeDiscounts"`
	AsOf            time.Time `json:"asOf"`
}

// NewAggregate builds the push body from a cached aggregate.
func NewAggregate(storeID string, agg *stores.LocationAggregate) Aggregate {
	return Aggregate{
		StoreID:         storeID,
		LocationID:      agg.LocationID,
		ItemCount:       agg.ItemCount,
		TotalQuantity:   agg.TotalQuantity,
		StockValue:      agg.StockValue,
		OutOfStock:      agg.OutOfStock,
		ActiveDiscounts: agg.ActiveDiscounts,
		AsOf:            agg.RefreshedAt.UTC(),
	}
}

// Client posts aggregates to the ERP.
type Client struct {
	baseURL string
	token   string
	retrier *transport.Retrier
	metrics *telemetry.Metrics
}

// NewClient creates an ERP client.
func NewClient(cfg Config) *Client {
	doer := cfg.HTTPClient
	if doer == nil {
		doer = transport.NewHTTPClient(cfg.RequestTimeout)
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
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		retrier: transport.NewRetrier(doer, opts...),
		metrics: cfg.Metrics,
	}
}

// Push posts agg for its store. Any 2xx is success.
func (c *Client) Push(ctx context.Context, agg Aggregate) error {
	start := time.Now()
	err := c.push(ctx, agg)
	outcome := "success"
	if err != nil {
		outcome = apierrors.Kind(err)
	}
	c.metrics.RecordAPICall(serviceName, outcome, time.Since(start))
	return err
}

func (c *Client) push(ctx context.Context, agg Aggregate) error {
	if agg.StoreID == "" {
		return fmt.Errorf("location %s has no external store id", agg.LocationID)
	}

	body, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("failed to encode aggregate: %w", err)
	}
	path := "/stores/" + url.PathEscape(agg.StoreID) + "/aggregates"

	resp, err := c.retrier.Do(ctx, transport.NewBudget(1), func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	if _, err := transport.ReadBody(resp); err != nil {
		return err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apierrors.NewAuthError("erp rejected token", nil).
			WithStatus(resp.StatusCode).
			WithEndpoint(path)
	default:
		return apierrors.NewAPIError(resp.StatusCode, "erp push failed").WithEndpoint(path)
	}
}
