package models

import "errors"

var (
	ErrNoActiveOrder     = errors.New("no active order")
	ErrOrderInFlight     = errors.New("order creation already in progress")
	ErrActiveOrderExists = errors.New("an active order already exists")
	ErrNoOrderID         = errors.New("provider returned no order id")
	ErrCooldownActive    = errors.New("cancel cooldown has not elapsed")
)
