// Package store is the persistence port for the order engine: a namespaced
// key-value layer holding the single active order per user, the refund
// ledger, the cached wallet balance, the activity feed and the notification
// preference. Everything here is a best-effort cache; the wallet backend and
// the provider stay authoritative.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/yinnstore/otpmarket/internal/models"
)

// ActivityLimit caps the per-user activity feed; oldest entries are evicted.
const ActivityLimit = 200

var ErrNotFound = errors.New("store: not found")

type BalanceCache struct {
	Amount   int64     `json:"amount"`
	SyncedAt time.Time `json:"synced_at"`
}

type Store interface {
	// ActiveOrder returns the user's active order, or (nil, nil) when the
	// slot is empty. The data model is deliberately single-slot.
	ActiveOrder(ctx context.Context, userID string) (*models.Order, error)
	SaveActiveOrder(ctx context.Context, order *models.Order) error
	ClearActiveOrder(ctx context.Context, userID string) error
	ActiveUsers(ctx context.Context) ([]string, error)

	// Refund ledger: append-only set of order IDs, consulted before every
	// credit attempt.
	IsRefunded(ctx context.Context, orderID string) (bool, error)
	MarkRefunded(ctx context.Context, orderID string) error

	// Balance returns the cached wallet balance, or (nil, nil) when the
	// user has never synced.
	Balance(ctx context.Context, userID string) (*BalanceCache, error)
	SetBalance(ctx context.Context, userID string, amount int64) error

	AppendActivity(ctx context.Context, userID string, rec models.ActivityRecord) error
	Activity(ctx context.Context, userID string, limit int64) ([]models.ActivityRecord, error)

	NotifyEnabled(ctx context.Context, userID string) (bool, error)
	SetNotifyEnabled(ctx context.Context, userID string, enabled bool) error
}
