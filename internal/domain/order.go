package domain

import (
	"fmt"
	"time"
)

// Reject reasons recorded on orders that fail construction validation.
const (
	RejectReasonZeroQuantity     = "quantity must be positive"
	RejectReasonMissingLimit     = "limit price required for this order type"
	RejectReasonMissingStopPrice = "stop price required for this order type"
)

// OrderSpec enumerates the fields a submission may carry. LimitPrice is
// required for limit and stop-limit orders, StopPrice for stop and
// stop-limit orders; both are ignored for market orders.
type OrderSpec struct {
	OrderID    OrderID     `json:"order_id"`
	Side       Side        `json:"side"`
	Kind       OrderType   `json:"kind"`
	TIF        TimeInForce `json:"tif"`
	Qty        Quantity    `json:"qty"`
	LimitPrice Price       `json:"limit_price,omitempty"`
	StopPrice  Price       `json:"stop_price,omitempty"`
}

// Order is the engine's record of one submission. Prices are integral
// ticks. Mutated only by the engine goroutine; views handed to callers
// are copies.
type Order struct {
	ID         OrderID     `json:"order_id"`
	Side       Side        `json:"side"`
	Kind       OrderType   `json:"kind"`
	TIF        TimeInForce `json:"tif"`
	LimitPrice Price       `json:"limit_price,omitempty"`
	StopPrice  Price       `json:"stop_price,omitempty"`
	InitialQty Quantity    `json:"initial_qty"`
	FilledQty  Quantity    `json:"filled_qty"`
	Status     OrderStatus `json:"status"`
	// Triggered is set once for stop and stop-limit orders when the last
	// trade price crosses the stop price.
	Triggered bool `json:"triggered,omitempty"`
	// Seq is the arrival sequence number. It establishes time priority
	// within a price level and is reassigned on modify.
	Seq          uint64    `json:"seq"`
	RejectReason string    `json:"reject_reason,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// NewOrder builds an order from a spec and validates it. Validation
// failures produce an order in Rejected status carrying the reason; they
// never panic. Market orders always carry fill-and-kill semantics, so the
// requested time in force is overridden. Market and limit orders start
// Active; stop kinds start New and become Active only on trigger.
func NewOrder(spec OrderSpec, seq uint64, now time.Time) *Order {
	o := &Order{
		ID:          spec.OrderID,
		Side:        spec.Side,
		Kind:        spec.Kind,
		TIF:         spec.TIF,
		LimitPrice:  spec.LimitPrice,
		StopPrice:   spec.StopPrice,
		InitialQty:  spec.Qty,
		Status:      OrderStatusNew,
		Seq:         seq,
		SubmittedAt: now,
	}

	if o.Kind == OrderTypeMarket {
		o.TIF = TimeInForceFAK
		o.LimitPrice = 0
	}

	switch {
	case o.InitialQty == 0:
		o.reject(RejectReasonZeroQuantity)
	case (o.Kind == OrderTypeLimit || o.Kind == OrderTypeStopLimit) && o.LimitPrice == 0:
		o.reject(RejectReasonMissingLimit)
	case (o.Kind == OrderTypeStop || o.Kind == OrderTypeStopLimit) && o.StopPrice == 0:
		o.reject(RejectReasonMissingStopPrice)
	case o.Kind == OrderTypeMarket || o.Kind == OrderTypeLimit:
		o.Status = OrderStatusActive
	}

	return o
}

func (o *Order) reject(reason string) {
	o.Status = OrderStatusRejected
	o.RejectReason = reason
}

// RemainingQty is the quantity still open.
func (o *Order) RemainingQty() Quantity {
	return o.InitialQty - o.FilledQty
}

// IsActive reports whether the order can still trade.
func (o *Order) IsActive() bool {
	return o.Status == OrderStatusActive || o.Status == OrderStatusPartiallyFilled
}

// IsStopOrder reports whether the order is held by the stop manager
// before triggering.
func (o *Order) IsStopOrder() bool {
	return o.Kind == OrderTypeStop || o.Kind == OrderTypeStopLimit
}

// Fill accumulates executed quantity. It fails without state change when
// the order is not active or qty exceeds the remaining quantity.
func (o *Order) Fill(qty Quantity) error {
	if !o.IsActive() {
		return fmt.Errorf("fill on order %d in status %s", o.ID, o.Status)
	}
	if qty > o.RemainingQty() {
		return fmt.Errorf("fill of %d exceeds remaining %d on order %d", qty, o.RemainingQty(), o.ID)
	}

	o.FilledQty += qty
	if o.FilledQty == o.InitialQty {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartiallyFilled
	}
	return nil
}

// Cancel moves the order to Canceled. Active orders and untriggered stops
// (still New) can be cancelled; anything else is left untouched, so
// repeated calls are no-ops.
func (o *Order) Cancel() {
	if o.IsActive() || o.Status == OrderStatusNew {
		o.Status = OrderStatusCanceled
	}
}

// CheckModify validates a modify request against this order without
// changing it. The target must still be live and the new quantity may not
// drop below what already filled.
func (o *Order) CheckModify(newQty Quantity) error {
	if !o.IsActive() && !(o.Status == OrderStatusNew && o.IsStopOrder()) {
		return fmt.Errorf("%w: order %d is %s", ErrIllegalModify, o.ID, o.Status)
	}
	if newQty < o.FilledQty {
		return fmt.Errorf("%w: quantity %d below filled %d", ErrIllegalModify, newQty, o.FilledQty)
	}
	return nil
}

// ApplyModify rewrites quantity and prices once the order has been pulled
// out of the book or the stop queue. Structural validation mirrors
// NewOrder; a failure leaves the order untouched. On success the order
// carries the new arrival sequence and a status recomputed from its fill
// accounting, with untriggered stops going back to New.
func (o *Order) ApplyModify(newQty Quantity, newLimit, newStop Price, seq uint64) error {
	switch {
	case newQty == 0:
		return fmt.Errorf("%w: %s", ErrInvalidOrder, RejectReasonZeroQuantity)
	case (o.Kind == OrderTypeLimit || o.Kind == OrderTypeStopLimit) && newLimit == 0:
		return fmt.Errorf("%w: %s", ErrInvalidOrder, RejectReasonMissingLimit)
	case (o.Kind == OrderTypeStop || o.Kind == OrderTypeStopLimit) && newStop == 0:
		return fmt.Errorf("%w: %s", ErrInvalidOrder, RejectReasonMissingStopPrice)
	}

	o.InitialQty = newQty
	if o.Kind == OrderTypeLimit || o.Kind == OrderTypeStopLimit {
		o.LimitPrice = newLimit
	}
	if o.Kind == OrderTypeStop || o.Kind == OrderTypeStopLimit {
		o.StopPrice = newStop
	}
	o.Seq = seq

	switch {
	case o.IsStopOrder() && !o.Triggered:
		o.Status = OrderStatusNew
	case o.FilledQty == o.InitialQty:
		o.Status = OrderStatusFilled
	case o.FilledQty > 0:
		o.Status = OrderStatusPartiallyFilled
	default:
		o.Status = OrderStatusActive
	}
	return nil
}

// ShouldTrigger evaluates the stop predicate against a last trade price.
// A buy stop arms when the price rises to or above the stop price, a sell
// stop when it falls to or below. Non-stop and already-triggered orders
// never trigger.
func (o *Order) ShouldTrigger(lastTradePrice Price) bool {
	if !o.IsStopOrder() || o.Triggered {
		return false
	}
	if o.Side == SideBuy {
		return lastTradePrice >= o.StopPrice
	}
	return lastTradePrice <= o.StopPrice
}

// MarkTriggered arms a stop order. From then on a stop behaves as a
// market order and a stop-limit as a limit order at its stored price.
func (o *Order) MarkTriggered() {
	o.Triggered = true
	if o.Status == OrderStatusNew {
		o.Status = OrderStatusActive
	}
}
