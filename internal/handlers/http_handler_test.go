package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/yinnstore/otpmarket/internal/engine"
	"github.com/yinnstore/otpmarket/internal/middleware"
	"github.com/yinnstore/otpmarket/internal/provider"
	"github.com/yinnstore/otpmarket/internal/store"
	"github.com/yinnstore/otpmarket/internal/wallet"
)

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string, string, string) error { return nil }

// HTTPHandlerTestSuite drives the API through the real router wiring with
// fake provider and wallet backends behind httptest servers.
type HTTPHandlerTestSuite struct {
	suite.Suite

	providerSrv *httptest.Server
	walletSrv   *httptest.Server

	// Response bodies the fakes serve, adjustable per test.
	orderBody  string
	debitBody  string
	debitCode  int
	balanceBody string

	store  *store.MemoryStore
	router *gin.Engine
	token  string
}

func TestHTTPHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HTTPHandlerTestSuite))
}

func (s *HTTPHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	s.orderBody = `{"success":true,"data":{"order_id":"ORD-1","phone_number":"628111222333","price":5000,"expires_in_minute":10,"status":"waiting"}}`
	s.debitBody = `{"success":true,"balance":4000}`
	s.debitCode = http.StatusOK
	s.balanceBody = `{"success":true,"balance":10000}`

	s.providerSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/orders"):
			w.Write([]byte(s.orderBody))
		case strings.HasPrefix(r.URL.Path, "/services"):
			w.Write([]byte(`{"success":true,"data":[{"id":"wa","name":"WhatsApp"}]}`))
		case strings.HasPrefix(r.URL.Path, "/status/set"):
			w.Write([]byte(`{"success":true}`))
		default:
			w.Write([]byte(`{"success":true,"data":{}}`))
		}
	}))

	s.walletSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/debit", "/credit":
			w.WriteHeader(s.debitCode)
			w.Write([]byte(s.debitBody))
		case "/balance":
			w.Write([]byte(s.balanceBody))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	s.store = store.NewMemoryStore()
	providerClient := provider.NewClient(s.providerSrv.URL, "test-key", logger)
	walletClient := wallet.NewClient(s.walletSrv.URL, "test-token", s.store, logger)

	eng := engine.New(s.store, providerClient, walletClient, noopNotifier{}, nil, nil, logger, engine.DefaultConfig())

	auth := middleware.NewAuthMiddleware("test-secret")
	token, err := auth.GenerateToken("user-1")
	s.Require().NoError(err)
	s.token = token

	handler := NewHTTPHandler(eng, providerClient, walletClient, s.store, nil, logger)

	s.router = gin.New()
	api := s.router.Group("/api/v1", auth.Authenticate())
	api.GET("/services", handler.ListServices)
	api.POST("/orders", handler.CreateOrder)
	api.GET("/orders/active", handler.ActiveOrder)
	api.POST("/orders/cancel", handler.CancelOrder)
	api.GET("/balance", handler.Balance)
	api.GET("/activity", handler.Activity)
	api.GET("/notifications", handler.GetNotifyPref)
	api.PUT("/notifications", handler.SetNotifyPref)
}

func (s *HTTPHandlerTestSuite) TearDownTest() {
	s.providerSrv.Close()
	s.walletSrv.Close()
}

func (s *HTTPHandlerTestSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+s.token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

const createBody = `{"number_id":"n1","provider_id":"p1","operator_id":"op1","service":"wa","country":"ID","operator":"telkomsel"}`

func (s *HTTPHandlerTestSuite) TestUnauthorizedWithoutToken() {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/balance", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *HTTPHandlerTestSuite) TestCreateOrder() {
	w := s.do(http.MethodPost, "/api/v1/orders", createBody)

	s.Equal(http.StatusCreated, w.Code)
	s.Contains(w.Body.String(), `"order_id":"ORD-1"`)
	s.Contains(w.Body.String(), `"price":6000`)
	s.Contains(w.Body.String(), `"balance":4000`)
}

func (s *HTTPHandlerTestSuite) TestCreateOrderConflictWhileActive() {
	s.Equal(http.StatusCreated, s.do(http.MethodPost, "/api/v1/orders", createBody).Code)

	w := s.do(http.MethodPost, "/api/v1/orders", createBody)
	s.Equal(http.StatusConflict, w.Code)
}

func (s *HTTPHandlerTestSuite) TestCreateOrderMissingOrderIDIsBadGateway() {
	s.orderBody = `{"success":false,"message":"out of stock"}`

	w := s.do(http.MethodPost, "/api/v1/orders", createBody)
	s.Equal(http.StatusBadGateway, w.Code)
}

func (s *HTTPHandlerTestSuite) TestCreateOrderSurfacesDebitError() {
	s.debitBody = `{"success":false,"message":"Saldo tidak cukup"}`
	s.debitCode = http.StatusPaymentRequired

	w := s.do(http.MethodPost, "/api/v1/orders", createBody)

	s.Equal(http.StatusCreated, w.Code)
	s.Contains(w.Body.String(), `"debit_error"`)

	// The order survived the failed debit.
	active := s.do(http.MethodGet, "/api/v1/orders/active", "")
	s.Equal(http.StatusOK, active.Code)
}

func (s *HTTPHandlerTestSuite) TestActiveOrderNotFound() {
	w := s.do(http.MethodGet, "/api/v1/orders/active", "")
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HTTPHandlerTestSuite) TestActiveOrderIncludesDeadlines() {
	s.do(http.MethodPost, "/api/v1/orders", createBody)

	w := s.do(http.MethodGet, "/api/v1/orders/active", "")
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"expires_at"`)
	s.Contains(w.Body.String(), `"cancel_allowed_at"`)
}

func (s *HTTPHandlerTestSuite) TestCancelDuringCooldownIsConflict() {
	s.do(http.MethodPost, "/api/v1/orders", createBody)

	w := s.do(http.MethodPost, "/api/v1/orders/cancel", "")
	s.Equal(http.StatusConflict, w.Code)
}

func (s *HTTPHandlerTestSuite) TestCancelWithoutOrderIsNotFound() {
	w := s.do(http.MethodPost, "/api/v1/orders/cancel", "")
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HTTPHandlerTestSuite) TestBalance() {
	w := s.do(http.MethodGet, "/api/v1/balance", "")

	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"balance":10000`)
}

func (s *HTTPHandlerTestSuite) TestBalanceRefreshSurfacesWalletError() {
	s.balanceBody = `{"success":false,"message":"Saldo tidak cukup"}`

	w := s.do(http.MethodGet, "/api/v1/balance?refresh=1", "")

	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"stale":true`)
	s.Contains(w.Body.String(), `"kind":"user_balance"`)
}

func (s *HTTPHandlerTestSuite) TestServicesPassthrough() {
	w := s.do(http.MethodGet, "/api/v1/services", "")

	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "WhatsApp")
}

func (s *HTTPHandlerTestSuite) TestActivityAfterCreate() {
	s.do(http.MethodPost, "/api/v1/orders", createBody)

	w := s.do(http.MethodGet, "/api/v1/activity", "")
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"order_create"`)
}

func (s *HTTPHandlerTestSuite) TestNotifyPrefRoundTrip() {
	w := s.do(http.MethodGet, "/api/v1/notifications", "")
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"enabled":false`)

	w = s.do(http.MethodPut, "/api/v1/notifications", `{"enabled":true}`)
	s.Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/v1/notifications", "")
	s.Contains(w.Body.String(), `"enabled":true`)
}
