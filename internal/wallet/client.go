// Package wallet talks to the external balance/debit/credit backend and
// normalizes its response shapes into a single balance figure.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yinnstore/otpmarket/internal/normalize"
	"github.com/yinnstore/otpmarket/internal/store"
)

// Error carries the human-readable message extracted from a wallet failure
// plus an insufficiency classification when the message is balance-related.
type Error struct {
	Message string
	Kind    string
}

func (e *Error) Error() string {
	return e.Message
}

type Client struct {
	baseURL string
	token   string
	client  *http.Client
	store   store.Store
	logger  *logrus.Logger
}

func NewClient(baseURL, token string, st store.Store, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		store:  st,
		logger: logger,
	}
}

// Debit charges the user's wallet for an order. On success the cached
// balance is updated and the fresh balance returned.
func (c *Client) Debit(ctx context.Context, userID string, amount int64, orderID, note string) (int64, error) {
	return c.post(ctx, "debit", userID, amount, orderID, note)
}

// Credit refunds an order. Same contract as Debit.
func (c *Client) Credit(ctx context.Context, userID string, amount int64, orderID, note string) (int64, error) {
	return c.post(ctx, "credit", userID, amount, orderID, note)
}

// LoadBalance reads the authoritative balance. On any failure it returns the
// last cached balance together with the error, so callers always have a
// figure to show; whether the error is surfaced is the caller's choice.
func (c *Client) LoadBalance(ctx context.Context, userID string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/balance", nil)
	if err != nil {
		return c.cachedBalance(ctx, userID), fmt.Errorf("failed to build balance request: %w", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return c.cachedBalance(ctx, userID), &Error{Message: "wallet is unreachable"}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.cachedBalance(ctx, userID), fmt.Errorf("failed to read balance response: %w", err)
	}

	var parsed interface{}
	_ = json.Unmarshal(body, &parsed)

	balance, ok := normalize.ExtractBalance(parsed)
	if !ok || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := normalize.ExtractMessage(parsed, "failed to load balance")
		return c.cachedBalance(ctx, userID), &Error{
			Message: msg,
			Kind:    normalize.ClassifyInsufficiency(msg),
		}
	}

	if err := c.store.SetBalance(ctx, userID, balance); err != nil {
		c.logger.Warnf("Failed to cache balance for user %s: %v", userID, err)
	}

	return balance, nil
}

func (c *Client) post(ctx context.Context, action, userID string, amount int64, orderID, note string) (int64, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"amount":   amount,
		"order_id": orderID,
		"note":     note,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+action, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, &Error{Message: fmt.Sprintf("wallet %s failed: upstream unreachable", action)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s response: %w", action, err)
	}

	var parsed interface{}
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !normalize.ExtractSuccess(parsed) {
		msg := normalize.ExtractMessage(parsed, fmt.Sprintf("wallet %s failed", action))
		return 0, &Error{
			Message: msg,
			Kind:    normalize.ClassifyInsufficiency(msg),
		}
	}

	balance, ok := normalize.ExtractBalance(parsed)
	if !ok {
		// Success without a balance figure: keep whatever was cached.
		return c.cachedBalance(ctx, userID), nil
	}

	if err := c.store.SetBalance(ctx, userID, balance); err != nil {
		c.logger.Warnf("Failed to cache balance for user %s: %v", userID, err)
	}

	return balance, nil
}

func (c *Client) cachedBalance(ctx context.Context, userID string) int64 {
	cache, err := c.store.Balance(ctx, userID)
	if err != nil || cache == nil {
		return 0
	}
	return cache.Amount
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
