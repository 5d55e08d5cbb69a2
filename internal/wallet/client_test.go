package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/yinnstore/otpmarket/internal/normalize"
	"github.com/yinnstore/otpmarket/internal/store"
)

type WalletClientTestSuite struct {
	suite.Suite
	ctx    context.Context
	store  *store.MemoryStore
	logger *logrus.Logger
}

func (s *WalletClientTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewMemoryStore()
	s.logger = logrus.New()
	s.logger.SetLevel(logrus.FatalLevel)
}

func TestWalletClientTestSuite(t *testing.T) {
	suite.Run(t, new(WalletClientTestSuite))
}

func (s *WalletClientTestSuite) newServer(status int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func (s *WalletClientTestSuite) TestDebit_SuccessUpdatesCache() {
	srv := s.newServer(http.StatusOK, `{"success": true, "data": {"balance": 4000}}`)
	defer srv.Close()

	client := NewClient(srv.URL, "tok", s.store, s.logger)

	balance, err := client.Debit(s.ctx, "u1", 6000, "ORD-1", "order ORD-1")
	s.Require().NoError(err)
	s.Equal(int64(4000), balance)

	cache, err := s.store.Balance(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().NotNil(cache)
	s.Equal(int64(4000), cache.Amount)
}

func (s *WalletClientTestSuite) TestDebit_SendsExpectedPayload() {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Equal(http.MethodPost, r.Method)
		s.Equal("/debit", r.URL.Path)
		s.Equal("Bearer tok", r.Header.Get("Authorization"))
		s.NoError(json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success": true, "balance": 1}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok", s.store, s.logger)
	_, err := client.Debit(s.ctx, "u1", 6000, "ORD-1", "order ORD-1")
	s.Require().NoError(err)

	s.Equal(float64(6000), got["amount"])
	s.Equal("ORD-1", got["order_id"])
	s.Equal("order ORD-1", got["note"])
}

func (s *WalletClientTestSuite) TestDebit_FailureYieldsTypedError() {
	srv := s.newServer(http.StatusOK, `{"success": false, "message": "Saldo tidak cukup"}`)
	defer srv.Close()

	client := NewClient(srv.URL, "tok", s.store, s.logger)

	_, err := client.Debit(s.ctx, "u1", 6000, "ORD-1", "order ORD-1")
	s.Require().Error(err)

	var walletErr *Error
	s.Require().ErrorAs(err, &walletErr)
	s.Equal("Saldo tidak cukup", walletErr.Message)
	s.Equal(normalize.InsufficiencyUser, walletErr.Kind)
}

func (s *WalletClientTestSuite) TestCredit_SuccessViaBalancePresenceOnly() {
	// No success flag at all; a non-negative balance is enough.
	srv := s.newServer(http.StatusOK, `{"wallet": {"saldo": 9000}}`)
	defer srv.Close()

	client := NewClient(srv.URL, "tok", s.store, s.logger)

	balance, err := client.Credit(s.ctx, "u1", 6000, "ORD-1", "refund order ORD-1")
	s.Require().NoError(err)
	s.Equal(int64(9000), balance)
}

func (s *WalletClientTestSuite) TestCredit_HTTPErrorStatusFails() {
	srv := s.newServer(http.StatusBadGateway, `{"error": "upstream exploded"}`)
	defer srv.Close()

	client := NewClient(srv.URL, "tok", s.store, s.logger)

	_, err := client.Credit(s.ctx, "u1", 6000, "ORD-1", "refund order ORD-1")
	var walletErr *Error
	s.Require().ErrorAs(err, &walletErr)
	s.Equal("upstream exploded", walletErr.Message)
}

func (s *WalletClientTestSuite) TestLoadBalance_Success() {
	srv := s.newServer(http.StatusOK, `{"balance": 1234}`)
	defer srv.Close()

	client := NewClient(srv.URL, "tok", s.store, s.logger)

	balance, err := client.LoadBalance(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(1234), balance)

	cache, _ := s.store.Balance(s.ctx, "u1")
	s.Require().NotNil(cache)
	s.Equal(int64(1234), cache.Amount)
}

func (s *WalletClientTestSuite) TestLoadBalance_FailureFallsBackToCache() {
	s.Require().NoError(s.store.SetBalance(s.ctx, "u1", 5555))

	srv := s.newServer(http.StatusInternalServerError, `{"message": "maintenance"}`)
	defer srv.Close()

	client := NewClient(srv.URL, "tok", s.store, s.logger)

	balance, err := client.LoadBalance(s.ctx, "u1")
	s.Require().Error(err)
	s.Equal(int64(5555), balance) // never zero when a cache exists

	var walletErr *Error
	s.Require().ErrorAs(err, &walletErr)
	s.Equal("maintenance", walletErr.Message)
}

func (s *WalletClientTestSuite) TestLoadBalance_UnreachableFallsBackToCache() {
	s.Require().NoError(s.store.SetBalance(s.ctx, "u1", 42))

	client := NewClient("http://127.0.0.1:1", "tok", s.store, s.logger)

	balance, err := client.LoadBalance(s.ctx, "u1")
	s.Require().Error(err)
	s.Equal(int64(42), balance)
}
