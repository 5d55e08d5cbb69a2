package store

import (
	"context"
	"sync"
	"time"

	"github.com/yinnstore/otpmarket/internal/models"
)

// MemoryStore is an in-process implementation of the same port, used by unit
// tests and as a degraded fallback when Redis is unavailable.
type MemoryStore struct {
	mu       sync.RWMutex
	orders   map[string]models.Order
	refunds  map[string]struct{}
	balances map[string]BalanceCache
	activity map[string][]models.ActivityRecord
	notify   map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   make(map[string]models.Order),
		refunds:  make(map[string]struct{}),
		balances: make(map[string]BalanceCache),
		activity: make(map[string][]models.ActivityRecord),
		notify:   make(map[string]bool),
	}
}

func (s *MemoryStore) ActiveOrder(_ context.Context, userID string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[userID]
	if !ok {
		return nil, nil
	}
	copied := order
	return &copied, nil
}

func (s *MemoryStore) SaveActiveOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[order.UserID] = *order
	return nil
}

func (s *MemoryStore) ClearActiveOrder(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.orders, userID)
	return nil
}

func (s *MemoryStore) ActiveUsers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]string, 0, len(s.orders))
	for userID := range s.orders {
		users = append(users, userID)
	}
	return users, nil
}

func (s *MemoryStore) IsRefunded(_ context.Context, orderID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.refunds[orderID]
	return ok, nil
}

func (s *MemoryStore) MarkRefunded(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refunds[orderID] = struct{}{}
	return nil
}

func (s *MemoryStore) Balance(_ context.Context, userID string) (*BalanceCache, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cache, ok := s.balances[userID]
	if !ok {
		return nil, nil
	}
	copied := cache
	return &copied, nil
}

func (s *MemoryStore) SetBalance(_ context.Context, userID string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances[userID] = BalanceCache{Amount: amount, SyncedAt: time.Now()}
	return nil
}

func (s *MemoryStore) AppendActivity(_ context.Context, userID string, rec models.ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append([]models.ActivityRecord{rec}, s.activity[userID]...)
	if len(list) > ActivityLimit {
		list = list[:ActivityLimit]
	}
	s.activity[userID] = list
	return nil
}

func (s *MemoryStore) Activity(_ context.Context, userID string, limit int64) ([]models.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.activity[userID]
	if limit <= 0 || limit > ActivityLimit {
		limit = ActivityLimit
	}
	if int64(len(list)) > limit {
		list = list[:limit]
	}

	out := make([]models.ActivityRecord, len(list))
	copy(out, list)
	return out, nil
}

func (s *MemoryStore) NotifyEnabled(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.notify[userID], nil
}

func (s *MemoryStore) SetNotifyEnabled(_ context.Context, userID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notify[userID] = enabled
	return nil
}
