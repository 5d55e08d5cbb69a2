package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is nil-safe so unit tests can pass nil without touching the global
// prometheus registry.
type Metrics struct {
	ordersCreated   *prometheus.CounterVec
	orderCreateFail prometheus.Counter
	debitFailed     prometheus.Counter
	refunds         *prometheus.CounterVec
	refundFailed    *prometheus.CounterVec
	polls           prometheus.Counter
	pollErrors      prometheus.Counter
	otpReceived     prometheus.Counter
	finalized       *prometheus.CounterVec
	orderPrice      *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		ordersCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_created_total",
				Help: "Total number of orders confirmed by the provider",
			},
			[]string{"service"},
		),
		orderCreateFail: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "order_create_failed_total",
				Help: "Total number of order creations that yielded no order id",
			},
		),
		debitFailed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "order_debit_failed_total",
				Help: "Total number of wallet debits that failed after order creation",
			},
		),
		refunds: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_refunds_total",
				Help: "Total number of refunds credited",
			},
			[]string{"trigger"},
		),
		refundFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_refund_failed_total",
				Help: "Total number of refund credits that failed",
			},
			[]string{"trigger"},
		),
		polls: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "order_polls_total",
				Help: "Total number of status polls issued",
			},
		),
		pollErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "order_poll_errors_total",
				Help: "Total number of status polls skipped due to fetch errors",
			},
		),
		otpReceived: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "order_otp_received_total",
				Help: "Total number of polls that observed an OTP code",
			},
		),
		finalized: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_finalized_total",
				Help: "Total number of orders archived out of the active slot",
			},
			[]string{"reason"},
		),
		orderPrice: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "order_price",
				Help:    "Price distribution of created orders (smallest currency unit)",
				Buckets: prometheus.ExponentialBuckets(500, 2, 12),
			},
			[]string{"service"},
		),
	}
}

func (m *Metrics) OrderCreated(service string, price int64) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(service).Inc()
	m.orderPrice.WithLabelValues(service).Observe(float64(price))
}

func (m *Metrics) OrderCreateFailed() {
	if m == nil {
		return
	}
	m.orderCreateFail.Inc()
}

func (m *Metrics) DebitFailed() {
	if m == nil {
		return
	}
	m.debitFailed.Inc()
}

func (m *Metrics) Refunded(trigger string) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(trigger).Inc()
}

func (m *Metrics) RefundFailed(trigger string) {
	if m == nil {
		return
	}
	m.refundFailed.WithLabelValues(trigger).Inc()
}

func (m *Metrics) Polled() {
	if m == nil {
		return
	}
	m.polls.Inc()
}

func (m *Metrics) PollError() {
	if m == nil {
		return
	}
	m.pollErrors.Inc()
}

func (m *Metrics) OTPReceived() {
	if m == nil {
		return
	}
	m.otpReceived.Inc()
}

func (m *Metrics) Finalized(reason string) {
	if m == nil {
		return
	}
	m.finalized.WithLabelValues(reason).Inc()
}
