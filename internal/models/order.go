package models

import (
	"strings"
	"time"
)

// OTPSentinel is the placeholder stored on an order before any code arrives.
// It is distinct from the empty string so that a cleared field can be told
// apart from "provider has not delivered anything yet".
const OTPSentinel = "-"

// Order is the single active order tracked per user. Price is fixed at
// creation (provider base price plus markup) and must never be overwritten
// by later status polls.
type Order struct {
	OrderID         string `json:"order_id" bson:"order_id"`
	UserID          string `json:"user_id" bson:"user_id"`
	PhoneNumber     string `json:"phone_number" bson:"phone_number"`
	Service         string `json:"service" bson:"service"`
	Country         string `json:"country" bson:"country"`
	Operator        string `json:"operator" bson:"operator"`
	Price           int64  `json:"price" bson:"price"`
	Status          string `json:"status" bson:"status"`
	OTPCode         string `json:"otp_code" bson:"otp_code"`
	CreatedAt       int64  `json:"created_at" bson:"created_at"` // epoch milliseconds
	ExpiresInMinute int    `json:"expires_in_minute" bson:"expires_in_minute"`
}

func (o *Order) ExpiresAt() int64 {
	return o.CreatedAt + int64(o.ExpiresInMinute)*60_000
}

func (o *Order) Expired(now time.Time) bool {
	return now.UnixMilli() >= o.ExpiresAt()
}

func (o *Order) HasOTP() bool {
	return o.OTPCode != "" && o.OTPCode != OTPSentinel
}

// terminalMarkers covers the provider's vocabulary and its lexical variants
// ("canceled" matches via "cancel").
var terminalMarkers = []string{"completed", "done", "cancel", "expired"}

func IsTerminalStatus(status string) bool {
	s := strings.ToLower(status)
	for _, m := range terminalMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func IsCancelStatus(status string) bool {
	return strings.Contains(strings.ToLower(status), "cancel")
}
