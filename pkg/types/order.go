package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of a venue order.
type OrderStatus string

const (
	OrderPending         OrderStatus = "PENDING"
	OrderLive            OrderStatus = "LIVE"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCancelled       OrderStatus = "CANCELLED"
	OrderExpired         OrderStatus = "EXPIRED"
	OrderFailed          OrderStatus = "FAILED"
)

// IsTerminal reports whether the status is sticky: once an order reaches a
// terminal status no later event may change it.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderExpired, OrderFailed:
		return true
	default:
		return false
	}
}

// OpenOrder is a venue order as seen by status queries.
type OpenOrder struct {
	Venue     Venue           `json:"venue"`
	OrderID   string          `json:"order_id"`
	OrderHash string          `json:"order_hash,omitempty"`
	MarketID  string          `json:"market_id"`
	TokenID   string          `json:"token_id"`
	Side      Side            `json:"side"`
	Outcome   Outcome         `json:"outcome"`
	Price     decimal.Decimal `json:"price"`
	Original  decimal.Decimal `json:"original_size"`
	Filled    decimal.Decimal `json:"filled_size"`
	Status    OrderStatus     `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Remaining returns original minus filled, floored at zero.
func (o *OpenOrder) Remaining() decimal.Decimal {
	rem := o.Original.Sub(o.Filled)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// OrderFinal is the terminal report produced by the fill watchers.
type OrderFinal struct {
	OrderID   string          `json:"order_id"`
	Status    OrderStatus     `json:"status"`
	FilledQty decimal.Decimal `json:"filled_qty"`
	AvgPrice  decimal.Decimal `json:"avg_price"`
}
