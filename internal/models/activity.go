package models

type ActivityRecord struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	OrderID string `json:"order_id"`
	Status  string `json:"status,omitempty"`
	OTP     string `json:"otp,omitempty"`
	Price   int64  `json:"price,omitempty"`
	Reason  string `json:"reason,omitempty"`
	TS      int64  `json:"ts"` // epoch milliseconds
}

const (
	ActivityOrderCreate = "order_create"
	ActivityOrderStatus = "order_status"
	ActivityOrderRefund = "order_refund"
	ActivityOrderFinal  = "order_final"
)

// Final-record reasons distinguishing how an order left the active slot.
const (
	ReasonFinalStatus  = "final_status"
	ReasonExpiredTimer = "expired_timer"
	ReasonCancelAction = "cancel_action"
)
