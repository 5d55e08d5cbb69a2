//go:build integration

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/yinnstore/otpmarket/internal/models"
	"github.com/yinnstore/otpmarket/internal/testutil"
)

type RedisStoreIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *testutil.RedisContainer
	client    *redis.Client
	store     *RedisStore
}

func TestRedisStoreIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreIntegrationSuite))
}

func (s *RedisStoreIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := testutil.StartRedisContainer(s.ctx)
	s.Require().NoError(err)
	s.container = container

	s.client = redis.NewClient(&redis.Options{Addr: container.Addr})
	s.Require().NoError(s.client.Ping(s.ctx).Err())

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	s.store = NewRedisStore(s.client, logger)
}

func (s *RedisStoreIntegrationSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
	if s.container != nil {
		s.container.Close(s.ctx)
	}
}

func (s *RedisStoreIntegrationSuite) SetupTest() {
	s.Require().NoError(s.client.FlushAll(s.ctx).Err())
}

func (s *RedisStoreIntegrationSuite) TestActiveOrderRoundTrip() {
	order, err := s.store.ActiveOrder(s.ctx, "u1")
	s.Require().NoError(err)
	s.Nil(order)

	saved := &models.Order{
		OrderID:         "ORD-1",
		UserID:          "u1",
		PhoneNumber:     "628111222333",
		Service:         "wa",
		Price:           6000,
		Status:          "waiting",
		OTPCode:         models.OTPSentinel,
		CreatedAt:       time.Now().UnixMilli(),
		ExpiresInMinute: 15,
	}
	s.Require().NoError(s.store.SaveActiveOrder(s.ctx, saved))

	order, err = s.store.ActiveOrder(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().NotNil(order)
	s.Equal(*saved, *order)

	users, err := s.store.ActiveUsers(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"u1"}, users)

	s.Require().NoError(s.store.ClearActiveOrder(s.ctx, "u1"))

	order, err = s.store.ActiveOrder(s.ctx, "u1")
	s.Require().NoError(err)
	s.Nil(order)

	users, err = s.store.ActiveUsers(s.ctx)
	s.Require().NoError(err)
	s.Empty(users)
}

func (s *RedisStoreIntegrationSuite) TestRefundLedgerSurvivesReconnect() {
	s.Require().NoError(s.store.MarkRefunded(s.ctx, "ORD-9"))

	// A fresh client sees the same ledger entry.
	fresh := redis.NewClient(&redis.Options{Addr: s.container.Addr})
	defer fresh.Close()
	store2 := NewRedisStore(fresh, logrus.New())

	refunded, err := store2.IsRefunded(s.ctx, "ORD-9")
	s.Require().NoError(err)
	s.True(refunded)

	refunded, err = store2.IsRefunded(s.ctx, "ORD-10")
	s.Require().NoError(err)
	s.False(refunded)
}

func (s *RedisStoreIntegrationSuite) TestActivityTrimmedToLimit() {
	for i := 0; i < ActivityLimit+10; i++ {
		s.Require().NoError(s.store.AppendActivity(s.ctx, "u1", models.ActivityRecord{
			ID:   fmt.Sprintf("rec-%d", i),
			Type: models.ActivityOrderStatus,
			TS:   int64(i),
		}))
	}

	records, err := s.store.Activity(s.ctx, "u1", 0)
	s.Require().NoError(err)
	s.Require().Len(records, ActivityLimit)
	s.Equal(fmt.Sprintf("rec-%d", ActivityLimit+9), records[0].ID)

	length, err := s.client.LLen(s.ctx, activityKey("u1")).Result()
	s.Require().NoError(err)
	s.Equal(int64(ActivityLimit), length)
}

func (s *RedisStoreIntegrationSuite) TestActivitySkipsMalformedEntries() {
	s.Require().NoError(s.store.AppendActivity(s.ctx, "u1", models.ActivityRecord{ID: "good"}))
	s.Require().NoError(s.client.LPush(s.ctx, activityKey("u1"), "{not json").Err())

	records, err := s.store.Activity(s.ctx, "u1", 0)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal("good", records[0].ID)
}

func (s *RedisStoreIntegrationSuite) TestBalanceCache() {
	cache, err := s.store.Balance(s.ctx, "u1")
	s.Require().NoError(err)
	s.Nil(cache)

	s.Require().NoError(s.store.SetBalance(s.ctx, "u1", 12500))

	cache, err = s.store.Balance(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().NotNil(cache)
	s.Equal(int64(12500), cache.Amount)
	s.WithinDuration(time.Now(), cache.SyncedAt, 5*time.Second)
}

func (s *RedisStoreIntegrationSuite) TestNotifyPreference() {
	enabled, err := s.store.NotifyEnabled(s.ctx, "u1")
	s.Require().NoError(err)
	s.False(enabled)

	s.Require().NoError(s.store.SetNotifyEnabled(s.ctx, "u1", true))
	enabled, err = s.store.NotifyEnabled(s.ctx, "u1")
	s.Require().NoError(err)
	s.True(enabled)

	s.Require().NoError(s.store.SetNotifyEnabled(s.ctx, "u1", false))
	enabled, err = s.store.NotifyEnabled(s.ctx, "u1")
	s.Require().NoError(err)
	s.False(enabled)
}
