// Package provider is a thin adapter over the external virtual-number API.
// It carries no business logic: every call returns a uniform Envelope and
// callers interpret the provider's (inconsistent) success conventions.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// Envelope is the uniform result of every provider call. JSON is nil when
// the body is not valid JSON; Raw always carries the body verbatim.
type Envelope struct {
	OK     bool
	Status int
	JSON   interface{}
	Raw    string
}

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *logrus.Logger
}

func NewClient(baseURL, apiKey string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (c *Client) Ping(ctx context.Context) (Envelope, error) {
	return c.get(ctx, "ping", nil)
}

func (c *Client) Services(ctx context.Context) (Envelope, error) {
	return c.get(ctx, "services", nil)
}

func (c *Client) Countries(ctx context.Context, serviceID string) (Envelope, error) {
	params := url.Values{}
	params.Set("service_id", serviceID)
	return c.get(ctx, "countries", params)
}

func (c *Client) Operators(ctx context.Context, country, providerID string) (Envelope, error) {
	params := url.Values{}
	params.Set("country", country)
	params.Set("provider_id", providerID)
	return c.get(ctx, "operators", params)
}

// CreateOrder places an order. The provider creates the order as a side
// effect of this GET; that is its contract, not ours to fix.
func (c *Client) CreateOrder(ctx context.Context, numberID, providerID, operatorID string) (Envelope, error) {
	params := url.Values{}
	params.Set("number_id", numberID)
	params.Set("provider_id", providerID)
	params.Set("operator_id", operatorID)
	return c.get(ctx, "orders", params)
}

func (c *Client) StatusGet(ctx context.Context, orderID string) (Envelope, error) {
	params := url.Values{}
	params.Set("order_id", orderID)
	return c.get(ctx, "status/get", params)
}

func (c *Client) StatusSet(ctx context.Context, orderID, action string) (Envelope, error) {
	params := url.Values{}
	params.Set("order_id", orderID)
	params.Set("status", action)
	return c.get(ctx, "status/set", params)
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (Envelope, error) {
	endpoint := c.baseURL + "/" + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to build provider request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Envelope{}, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to read provider response: %w", err)
	}

	env := Envelope{
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status: resp.StatusCode,
		Raw:    string(body),
	}

	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err == nil {
		env.JSON = parsed
	} else {
		c.logger.Debugf("Provider returned non-JSON body from %s: %v", path, err)
	}

	return env, nil
}
