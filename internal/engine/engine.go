// Package engine owns the order lifecycle: creation against the provider,
// wallet debit, status polling, terminal detection, at-most-once refunds and
// local expiry. It is the only writer of the active-order slot and the
// refund ledger.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yinnstore/otpmarket/internal/models"
	"github.com/yinnstore/otpmarket/internal/normalize"
	"github.com/yinnstore/otpmarket/internal/provider"
	"github.com/yinnstore/otpmarket/internal/store"
)

// ProviderAPI is the slice of the provider client the engine uses.
type ProviderAPI interface {
	CreateOrder(ctx context.Context, numberID, providerID, operatorID string) (provider.Envelope, error)
	StatusGet(ctx context.Context, orderID string) (provider.Envelope, error)
	StatusSet(ctx context.Context, orderID, action string) (provider.Envelope, error)
}

// WalletAPI is the slice of the wallet client the engine uses.
type WalletAPI interface {
	Debit(ctx context.Context, userID string, amount int64, orderID, note string) (int64, error)
	Credit(ctx context.Context, userID string, amount int64, orderID, note string) (int64, error)
}

type OTPNotifier interface {
	Notify(ctx context.Context, userID, phone, otp string) error
}

type Archiver interface {
	Archive(ctx context.Context, rec *models.ArchivedOrder) error
}

// Refund triggers, used as a metric label and in logs.
const (
	triggerPoll   = "poll"
	triggerCancel = "cancel"
)

type Config struct {
	Markup              int64
	PollInterval        time.Duration
	ExpiryCheckInterval time.Duration
	CancelCooldown      time.Duration
	DefaultExpiryMinute int
}

func DefaultConfig() Config {
	return Config{
		Markup:              1000,
		PollInterval:        1800 * time.Millisecond,
		ExpiryCheckInterval: 1 * time.Second,
		CancelCooldown:      3 * time.Minute,
		DefaultExpiryMinute: 15,
	}
}

type Engine struct {
	store    store.Store
	provider ProviderAPI
	wallet   WalletAPI
	notifier OTPNotifier
	history  Archiver
	metrics  *Metrics
	logger   *logrus.Logger
	cfg      Config

	now func() time.Time

	mu       sync.Mutex
	inFlight map[string]bool
	locks    map[string]*sync.Mutex
}

func New(
	st store.Store,
	providerAPI ProviderAPI,
	walletAPI WalletAPI,
	notifier OTPNotifier,
	history Archiver,
	metrics *Metrics,
	logger *logrus.Logger,
	cfg Config,
) *Engine {
	return &Engine{
		store:    st,
		provider: providerAPI,
		wallet:   walletAPI,
		notifier: notifier,
		history:  history,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		inFlight: make(map[string]bool),
		locks:    make(map[string]*sync.Mutex),
	}
}

// CreateOrderRequest carries the user's service/country/provider/operator
// selection. The label fields are captured verbatim onto the order.
type CreateOrderRequest struct {
	NumberID   string
	ProviderID string
	OperatorID string
	Service    string
	Country    string
	Operator   string
}

// CreateResult reports a confirmed order. DebitError is set when the wallet
// debit failed after the order was created; the order is kept regardless so
// the user never loses sight of an order that exists on the provider.
type CreateResult struct {
	Order      *models.Order
	Balance    int64
	DebitError string
}

// CreateOrder places an order with the provider and debits the wallet.
// Creation is considered successful whenever the response carries a
// non-empty order id, regardless of the provider's success flag: the
// upstream is known to return success:false alongside a perfectly valid
// order. A missing order id is the only creation-time hard failure.
func (e *Engine) CreateOrder(ctx context.Context, userID string, req CreateOrderRequest) (*CreateResult, error) {
	e.mu.Lock()
	if e.inFlight[userID] {
		e.mu.Unlock()
		return nil, models.ErrOrderInFlight
	}
	e.inFlight[userID] = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.inFlight, userID)
		e.mu.Unlock()
	}()

	existing, err := e.store.ActiveOrder(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active order: %w", err)
	}
	if existing != nil {
		return nil, models.ErrActiveOrderExists
	}

	env, err := e.provider.CreateOrder(ctx, req.NumberID, req.ProviderID, req.OperatorID)
	if err != nil {
		e.metrics.OrderCreateFailed()
		return nil, fmt.Errorf("order creation failed: %w", err)
	}

	data := dataObject(env.JSON)
	orderID := stringField(data, "order_id", "id")
	if orderID == "" {
		e.metrics.OrderCreateFailed()
		msg := normalize.ExtractMessage(env.JSON, models.ErrNoOrderID.Error())
		e.logger.Errorf("Order creation for user %s returned no order id: %s", userID, msg)
		return nil, models.ErrNoOrderID
	}

	basePrice, _ := intField(data, "price")
	expiresIn, ok := intField(data, "expires_in_minute")
	if !ok || expiresIn <= 0 {
		expiresIn = int64(e.cfg.DefaultExpiryMinute)
	}

	status := stringField(data, "status")
	if status == "" {
		status = "waiting"
	}

	order := &models.Order{
		OrderID:         orderID,
		UserID:          userID,
		PhoneNumber:     stringField(data, "phone_number", "number"),
		Service:         req.Service,
		Country:         req.Country,
		Operator:        req.Operator,
		Price:           basePrice + e.cfg.Markup,
		Status:          status,
		OTPCode:         models.OTPSentinel,
		CreatedAt:       e.now().UnixMilli(),
		ExpiresInMinute: int(expiresIn),
	}

	if err := e.store.SaveActiveOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to persist order %s: %w", orderID, err)
	}

	e.appendActivity(ctx, userID, models.ActivityRecord{
		Type:    models.ActivityOrderCreate,
		OrderID: orderID,
		Status:  order.Status,
		Price:   order.Price,
	})
	e.metrics.OrderCreated(order.Service, order.Price)

	e.logger.Infof("Created order %s (%s, %s) for user %s at price %d",
		orderID, order.Service, order.PhoneNumber, userID, order.Price)

	result := &CreateResult{Order: order}

	balance, err := e.wallet.Debit(ctx, userID, order.Price, orderID, "order "+orderID)
	if err != nil {
		// The order stays: rolling it back would leave it alive on the
		// provider but invisible to the user. No automatic debit retry.
		e.metrics.DebitFailed()
		e.logger.Errorf("Debit of %d for order %s failed: %v", order.Price, orderID, err)
		result.DebitError = err.Error()
		return result, nil
	}

	result.Balance = balance
	return result, nil
}

// Run starts the background loops: the status poller and the local expiry
// watcher. Both scan whatever active orders are persisted, so orders created
// before a restart are picked up again automatically.
func (e *Engine) Run(ctx context.Context) {
	go e.pollLoop(ctx)
	go e.expiryLoop(ctx)
}

func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.pollActiveOrders(ctx)
		}
	}
}

func (e *Engine) pollActiveOrders(ctx context.Context) {
	users, err := e.store.ActiveUsers(ctx)
	if err != nil {
		e.logger.Errorf("Failed to list active orders: %v", err)
		return
	}

	for _, userID := range users {
		e.PollOnce(ctx, userID)
	}
}

// PollOnce performs a single status tick for a user's active order. The
// order is re-read from the store at the start so the tick never acts on a
// stale snapshot. Fetch failures are swallowed: the tick becomes a no-op and
// the next interval retries.
func (e *Engine) PollOnce(ctx context.Context, userID string) {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	order, err := e.store.ActiveOrder(ctx, userID)
	if err != nil {
		e.logger.Errorf("Failed to read active order for user %s: %v", userID, err)
		return
	}
	if order == nil {
		return
	}

	e.metrics.Polled()

	env, err := e.provider.StatusGet(ctx, order.OrderID)
	if err != nil || !env.OK {
		e.metrics.PollError()
		return
	}

	data := dataObject(env.JSON)
	status := stringField(data, "status")
	if status == "" {
		return
	}

	order.Status = status
	if otp := stringField(data, "otp_code", "otp"); otp != "" {
		order.OTPCode = otp
	}
	// Price is never taken from status responses.

	if err := e.store.SaveActiveOrder(ctx, order); err != nil {
		e.logger.Errorf("Failed to persist polled order %s: %v", order.OrderID, err)
		return
	}

	e.appendActivity(ctx, userID, models.ActivityRecord{
		Type:    models.ActivityOrderStatus,
		OrderID: order.OrderID,
		Status:  order.Status,
		OTP:     order.OTPCode,
	})

	if order.HasOTP() {
		e.metrics.OTPReceived()
		if err := e.notifier.Notify(ctx, userID, order.PhoneNumber, order.OTPCode); err != nil {
			e.logger.Warnf("OTP notification for order %s failed: %v", order.OrderID, err)
		}
	}

	if models.IsCancelStatus(status) && !order.HasOTP() {
		if err := e.maybeRefund(ctx, userID, order.OrderID, triggerPoll); err != nil {
			// Keep the order active so the next tick (or a manual
			// cancel) can retry the credit.
			e.logger.Errorf("Auto-refund for order %s failed: %v", order.OrderID, err)
			return
		}
	}

	if models.IsTerminalStatus(status) {
		e.finalize(ctx, userID, models.ReasonFinalStatus)
	}
}

// CancelResult reports an explicit cancellation. RefundError is non-fatal,
// mirroring DebitError on creation; when it is set the order stays in the
// active slot so the credit remains retryable.
type CancelResult struct {
	Refunded    bool
	RefundError string
}

// Cancel is the user-initiated path. It is gated by the cooldown, asks the
// provider to cancel, then re-checks refund eligibility through the same
// maybeRefund used by the poll path before archiving.
func (e *Engine) Cancel(ctx context.Context, userID string) (*CancelResult, error) {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	order, err := e.store.ActiveOrder(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read active order: %w", err)
	}
	if order == nil {
		return nil, models.ErrNoActiveOrder
	}

	if e.now().UnixMilli()-order.CreatedAt < e.cfg.CancelCooldown.Milliseconds() {
		return nil, models.ErrCooldownActive
	}

	env, err := e.provider.StatusSet(ctx, order.OrderID, "cancel")
	if err != nil {
		return nil, fmt.Errorf("cancel request failed: %w", err)
	}
	if !env.OK {
		msg := normalize.ExtractMessage(env.JSON, "provider rejected the cancellation")
		return nil, fmt.Errorf("cancel rejected: %s", msg)
	}

	order.Status = "canceled"
	if err := e.store.SaveActiveOrder(ctx, order); err != nil {
		e.logger.Errorf("Failed to persist canceled order %s: %v", order.OrderID, err)
	}

	result := &CancelResult{}
	if err := e.maybeRefund(ctx, userID, order.OrderID, triggerCancel); err != nil {
		// Keep the order in the slot: archiving now would leave no state to
		// retry the credit against. The next poll tick sees the canceled
		// status and retries, as does a repeated cancel.
		e.logger.Errorf("Refund on cancel of order %s failed: %v", order.OrderID, err)
		result.RefundError = err.Error()
		return result, nil
	}

	refunded, _ := e.store.IsRefunded(ctx, order.OrderID)
	result.Refunded = refunded

	e.finalize(ctx, userID, models.ReasonCancelAction)

	return result, nil
}

func (e *Engine) expiryLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ExpiryCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweepExpired(ctx)
		}
	}
}

func (e *Engine) sweepExpired(ctx context.Context) {
	users, err := e.store.ActiveUsers(ctx)
	if err != nil {
		e.logger.Errorf("Failed to list active orders for expiry sweep: %v", err)
		return
	}

	for _, userID := range users {
		e.CheckExpiry(ctx, userID)
	}
}

// CheckExpiry archives the user's order when the local deadline has passed,
// even if the provider never reported a terminal status. This only stops
// local tracking; it does not ask the provider to cancel.
func (e *Engine) CheckExpiry(ctx context.Context, userID string) {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	order, err := e.store.ActiveOrder(ctx, userID)
	if err != nil {
		e.logger.Errorf("Failed to read active order for user %s: %v", userID, err)
		return
	}
	if order == nil || !order.Expired(e.now()) {
		return
	}

	e.logger.Infof("Order %s passed its local deadline, archiving", order.OrderID)
	e.finalize(ctx, userID, models.ReasonExpiredTimer)
}

// CancelAllowedAt returns the earliest epoch-millisecond instant at which
// the given order may be canceled by the user.
func (e *Engine) CancelAllowedAt(order *models.Order) int64 {
	return order.CreatedAt + e.cfg.CancelCooldown.Milliseconds()
}

// maybeRefund issues the credit for a canceled order at most once. Both the
// poll path and the explicit cancel path go through here; the ledger is
// marked only after a successful credit so a failed attempt stays retryable.
// The amount is the captured price re-read from the persisted order, never a
// snapshot from when polling started.
func (e *Engine) maybeRefund(ctx context.Context, userID, orderID, trigger string) error {
	order, err := e.store.ActiveOrder(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to read order for refund: %w", err)
	}
	if order == nil || order.OrderID != orderID {
		return nil
	}
	if order.HasOTP() {
		return nil
	}

	refunded, err := e.store.IsRefunded(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to check refund ledger: %w", err)
	}
	if refunded {
		return nil
	}

	if _, err := e.wallet.Credit(ctx, userID, order.Price, orderID, "refund order "+orderID); err != nil {
		e.metrics.RefundFailed(trigger)
		return err
	}

	if err := e.store.MarkRefunded(ctx, orderID); err != nil {
		e.logger.Errorf("Credit issued but ledger mark failed for order %s: %v", orderID, err)
	}

	e.appendActivity(ctx, userID, models.ActivityRecord{
		Type:    models.ActivityOrderRefund,
		OrderID: orderID,
		Price:   order.Price,
	})
	e.metrics.Refunded(trigger)

	e.logger.Infof("Refunded %d for order %s (trigger %s)", order.Price, orderID, trigger)
	return nil
}

// finalize is the single point where an order leaves the active slot: it is
// archived to history, gets its final activity record, and the slot is
// cleared. Callers hold the user lock.
func (e *Engine) finalize(ctx context.Context, userID, reason string) {
	order, err := e.store.ActiveOrder(ctx, userID)
	if err != nil {
		e.logger.Errorf("Failed to read order for finalization: %v", err)
		return
	}
	if order == nil {
		return
	}

	refunded, _ := e.store.IsRefunded(ctx, order.OrderID)

	if e.history != nil {
		rec := &models.ArchivedOrder{
			Order:       *order,
			FinalStatus: order.Status,
			Reason:      reason,
			Refunded:    refunded,
		}
		if err := e.history.Archive(ctx, rec); err != nil {
			e.logger.Errorf("Failed to archive order %s: %v", order.OrderID, err)
		}
	}

	e.appendActivity(ctx, userID, models.ActivityRecord{
		Type:    models.ActivityOrderFinal,
		OrderID: order.OrderID,
		Status:  order.Status,
		OTP:     order.OTPCode,
		Price:   order.Price,
		Reason:  reason,
	})

	if err := e.store.ClearActiveOrder(ctx, userID); err != nil {
		e.logger.Errorf("Failed to clear active order for user %s: %v", userID, err)
		return
	}

	e.metrics.Finalized(reason)
	e.logger.Infof("Archived order %s for user %s (%s, reason %s)",
		order.OrderID, userID, order.Status, reason)
}

func (e *Engine) appendActivity(ctx context.Context, userID string, rec models.ActivityRecord) {
	rec.ID = uuid.New().String()
	rec.TS = e.now().UnixMilli()

	if err := e.store.AppendActivity(ctx, userID, rec); err != nil {
		e.logger.Warnf("Failed to append %s activity for user %s: %v", rec.Type, userID, err)
	}
}

// userLock serializes state transitions per user: the poll loop, the expiry
// sweep and user actions interleave, and an order must leave the active slot
// exactly once.
func (e *Engine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[userID] = lock
	}
	return lock
}
