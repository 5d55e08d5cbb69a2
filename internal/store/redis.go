package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/yinnstore/otpmarket/internal/models"
)

// Key layout:
//
//	order:active:<user>   active order blob (JSON)
//	order:active_users    set of users with an active order
//	refund:ledger         set of refunded order IDs
//	wallet:balance:<user> cached balance blob (JSON)
//	activity:<user>       list of activity records, newest first
//	notify:pref:<user>    "1" / "0"
type RedisStore struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisStore(client *redis.Client, logger *logrus.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger,
	}
}

func activeOrderKey(userID string) string  { return fmt.Sprintf("order:active:%s", userID) }
func balanceKey(userID string) string      { return fmt.Sprintf("wallet:balance:%s", userID) }
func activityKey(userID string) string     { return fmt.Sprintf("activity:%s", userID) }
func notifyPrefKey(userID string) string   { return fmt.Sprintf("notify:pref:%s", userID) }

const (
	activeUsersKey  = "order:active_users"
	refundLedgerKey = "refund:ledger"
)

func (s *RedisStore) ActiveOrder(ctx context.Context, userID string) (*models.Order, error) {
	data, err := s.client.Get(ctx, activeOrderKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active order: %w", err)
	}

	var order models.Order
	if err := json.Unmarshal([]byte(data), &order); err != nil {
		return nil, fmt.Errorf("failed to unmarshal active order: %w", err)
	}

	return &order, nil
}

func (s *RedisStore) SaveActiveOrder(ctx context.Context, order *models.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, activeOrderKey(order.UserID), data, 0)
	pipe.SAdd(ctx, activeUsersKey, order.UserID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save active order: %w", err)
	}

	return nil
}

func (s *RedisStore) ClearActiveOrder(ctx context.Context, userID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, activeOrderKey(userID))
	pipe.SRem(ctx, activeUsersKey, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear active order: %w", err)
	}

	return nil
}

func (s *RedisStore) ActiveUsers(ctx context.Context) ([]string, error) {
	users, err := s.client.SMembers(ctx, activeUsersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	return users, nil
}

func (s *RedisStore) IsRefunded(ctx context.Context, orderID string) (bool, error) {
	refunded, err := s.client.SIsMember(ctx, refundLedgerKey, orderID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check refund ledger: %w", err)
	}
	return refunded, nil
}

func (s *RedisStore) MarkRefunded(ctx context.Context, orderID string) error {
	if err := s.client.SAdd(ctx, refundLedgerKey, orderID).Err(); err != nil {
		return fmt.Errorf("failed to mark refund: %w", err)
	}
	return nil
}

func (s *RedisStore) Balance(ctx context.Context, userID string) (*BalanceCache, error) {
	data, err := s.client.Get(ctx, balanceKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached balance: %w", err)
	}

	var cache BalanceCache
	if err := json.Unmarshal([]byte(data), &cache); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached balance: %w", err)
	}

	return &cache, nil
}

func (s *RedisStore) SetBalance(ctx context.Context, userID string, amount int64) error {
	data, err := json.Marshal(BalanceCache{Amount: amount, SyncedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal balance: %w", err)
	}

	if err := s.client.Set(ctx, balanceKey(userID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to cache balance: %w", err)
	}

	return nil
}

func (s *RedisStore) AppendActivity(ctx context.Context, userID string, rec models.ActivityRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal activity record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, activityKey(userID), data)
	pipe.LTrim(ctx, activityKey(userID), 0, ActivityLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}

	return nil
}

func (s *RedisStore) Activity(ctx context.Context, userID string, limit int64) ([]models.ActivityRecord, error) {
	if limit <= 0 || limit > ActivityLimit {
		limit = ActivityLimit
	}

	values, err := s.client.LRange(ctx, activityKey(userID), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read activity: %w", err)
	}

	records := make([]models.ActivityRecord, 0, len(values))
	for _, v := range values {
		var rec models.ActivityRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			s.logger.Warnf("Skipping malformed activity record: %v", err)
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

func (s *RedisStore) NotifyEnabled(ctx context.Context, userID string) (bool, error) {
	val, err := s.client.Get(ctx, notifyPrefKey(userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get notification preference: %w", err)
	}
	return val == "1", nil
}

func (s *RedisStore) SetNotifyEnabled(ctx context.Context, userID string, enabled bool) error {
	val := "0"
	if enabled {
		val = "1"
	}
	if err := s.client.Set(ctx, notifyPrefKey(userID), val, 0).Err(); err != nil {
		return fmt.Errorf("failed to set notification preference: %w", err)
	}
	return nil
}
