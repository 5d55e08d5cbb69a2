// Package notify publishes OTP-arrival events for downstream delivery
// (push, bot, whatever consumes the exchange).
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/yinnstore/otpmarket/internal/models"
	"github.com/yinnstore/otpmarket/internal/store"
)

const (
	EventsExchange = "orders.events"
	OTPRoutingKey  = "otp.received"
)

// Publisher is the slice of *amqp.Channel the notifier needs.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Notifier struct {
	channel Publisher
	store   store.Store
	logger  *logrus.Logger

	mu      sync.Mutex
	lastOTP map[string]string // phone -> last published otp
}

func NewNotifier(channel Publisher, st store.Store, logger *logrus.Logger) *Notifier {
	return &Notifier{
		channel: channel,
		store:   st,
		logger:  logger,
		lastOTP: make(map[string]string),
	}
}

// Notify emits an otp.received event. It is a no-op when notifications are
// disabled for the user or the OTP is empty/sentinel, and it deduplicates on
// the last published otp per phone so repeated polls returning the same code
// fire only once, also when polls for different users interleave. The code is
// remembered only after a successful publish, so a failed publish is retried
// on the next poll.
func (n *Notifier) Notify(ctx context.Context, userID, phone, otp string) error {
	if otp == "" || otp == models.OTPSentinel {
		return nil
	}

	enabled, err := n.store.NotifyEnabled(ctx, userID)
	if err != nil {
		n.logger.Warnf("Failed to read notification preference for user %s: %v", userID, err)
		return nil
	}
	if !enabled {
		return nil
	}

	n.mu.Lock()
	if n.lastOTP[phone] == otp {
		n.mu.Unlock()
		return nil
	}
	n.mu.Unlock()

	payload, err := json.Marshal(map[string]interface{}{
		"user_id": userID,
		"phone":   phone,
		"otp":     otp,
		"ts":      time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	if err := n.channel.Publish(
		EventsExchange,
		OTPRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		n.logger.Errorf("Failed to publish OTP event for user %s: %v", userID, err)
		return err
	}

	n.mu.Lock()
	n.lastOTP[phone] = otp
	n.mu.Unlock()

	return nil
}
