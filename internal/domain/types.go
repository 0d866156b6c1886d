package domain

import (
	"bytes"
	"errors"
	"strconv"
)

// Price is an integral tick. Zero is never a valid order price.
type Price = int64

// Quantity is a number of units.
type Quantity = uint64

// OrderID is unique for the engine lifetime. An id is never reused once
// seen, no matter how the order ended.
type OrderID = uint64

// Side represents the order side (buy or sell).
type Side uint8

const (
	SideBuy Side = iota
	SideSell

	sideBuyStr  = "buy"
	sideSellStr = "sell"
)

var (
	sideBuyByte  = []byte(`"buy"`)
	sideSellByte = []byte(`"sell"`)
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return sideBuyStr
	case SideSell:
		return sideSellStr
	}
	panic("invalid side string conversion: " + strconv.Itoa(int(s)))
}

// Opposite returns the side a given order matches against.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) MarshalJSON() ([]byte, error) {
	switch s {
	case SideBuy:
		return sideBuyByte, nil
	case SideSell:
		return sideSellByte, nil
	}
	return nil, errors.New("invalid side json conversion: " + strconv.Itoa(int(s)))
}

func (s *Side) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, sideBuyByte) {
		*s = SideBuy
		return nil
	}

	if bytes.Equal(data, sideSellByte) {
		*s = SideSell
		return nil
	}

	return errors.New("unsupported side: " + string(data))
}

// SideStrToType parses a side from its API string form.
func SideStrToType(value string) (Side, error) {
	switch value {
	case sideBuyStr:
		return SideBuy, nil
	case sideSellStr:
		return SideSell, nil
	}
	return 0, errors.New("unsupported side: " + value)
}

// OrderType classifies how an order is admitted and matched.
type OrderType uint8

const (
	OrderTypeMarket OrderType = iota
	OrderTypeLimit
	OrderTypeStop
	OrderTypeStopLimit

	orderTypeMarketStr    = "market"
	orderTypeLimitStr     = "limit"
	orderTypeStopStr      = "stop"
	orderTypeStopLimitStr = "stop_limit"
)

var (
	orderTypeMarketByte    = []byte(`"market"`)
	orderTypeLimitByte     = []byte(`"limit"`)
	orderTypeStopByte      = []byte(`"stop"`)
	orderTypeStopLimitByte = []byte(`"stop_limit"`)
)

func (ot OrderType) String() string {
	switch ot {
	case OrderTypeMarket:
		return orderTypeMarketStr
	case OrderTypeLimit:
		return orderTypeLimitStr
	case OrderTypeStop:
		return orderTypeStopStr
	case OrderTypeStopLimit:
		return orderTypeStopLimitStr
	}
	panic("invalid order type string conversion: " + strconv.Itoa(int(ot)))
}

func (ot OrderType) MarshalJSON() ([]byte, error) {
	switch ot {
	case OrderTypeMarket:
		return orderTypeMarketByte, nil
	case OrderTypeLimit:
		return orderTypeLimitByte, nil
	case OrderTypeStop:
		return orderTypeStopByte, nil
	case OrderTypeStopLimit:
		return orderTypeStopLimitByte, nil
	}
	return nil, errors.New("invalid order type json conversion: " + strconv.Itoa(int(ot)))
}

func (ot *OrderType) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, orderTypeMarketByte) {
		*ot = OrderTypeMarket
		return nil
	}

	if bytes.Equal(data, orderTypeLimitByte) {
		*ot = OrderTypeLimit
		return nil
	}

	if bytes.Equal(data, orderTypeStopByte) {
		*ot = OrderTypeStop
		return nil
	}

	if bytes.Equal(data, orderTypeStopLimitByte) {
		*ot = OrderTypeStopLimit
		return nil
	}

	return errors.New("unsupported order type: " + string(data))
}

// OrderTypeStrToType parses an order type from its API string form.
func OrderTypeStrToType(value string) (OrderType, error) {
	switch value {
	case orderTypeMarketStr:
		return OrderTypeMarket, nil
	case orderTypeLimitStr:
		return OrderTypeLimit, nil
	case orderTypeStopStr:
		return OrderTypeStop, nil
	case orderTypeStopLimitStr:
		return OrderTypeStopLimit, nil
	}
	return 0, errors.New("unsupported order type: " + value)
}

// TimeInForce controls what happens to unmatched quantity.
type TimeInForce uint8

const (
	// TimeInForceGTC rests any residual quantity until matched or cancelled.
	TimeInForceGTC TimeInForce = iota
	// TimeInForceFAK trades what can be traded now and discards the rest.
	TimeInForceFAK

	timeInForceGTCStr = "gtc"
	timeInForceFAKStr = "fak"
)

var (
	timeInForceGTCByte = []byte(`"gtc"`)
	timeInForceFAKByte = []byte(`"fak"`)
)

func (t TimeInForce) String() string {
	switch t {
	case TimeInForceGTC:
		return timeInForceGTCStr
	case TimeInForceFAK:
		return timeInForceFAKStr
	}
	panic("invalid time in force string conversion: " + strconv.Itoa(int(t)))
}

func (t TimeInForce) MarshalJSON() ([]byte, error) {
	switch t {
	case TimeInForceGTC:
		return timeInForceGTCByte, nil
	case TimeInForceFAK:
		return timeInForceFAKByte, nil
	}
	return nil, errors.New("invalid time in force json conversion: " + strconv.Itoa(int(t)))
}

func (t *TimeInForce) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, timeInForceGTCByte) {
		*t = TimeInForceGTC
		return nil
	}

	if bytes.Equal(data, timeInForceFAKByte) {
		*t = TimeInForceFAK
		return nil
	}

	return errors.New("unsupported time in force: " + string(data))
}

// TimeInForceStrToType parses a time in force from its API string form.
func TimeInForceStrToType(value string) (TimeInForce, error) {
	switch value {
	case timeInForceGTCStr:
		return TimeInForceGTC, nil
	case timeInForceFAKStr:
		return TimeInForceFAK, nil
	}
	return 0, errors.New("unsupported time in force: " + value)
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus uint8

const (
	OrderStatusNew OrderStatus = iota
	OrderStatusActive
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCanceled
	OrderStatusRejected

	orderStatusNewStr             = "new"
	orderStatusActiveStr          = "active"
	orderStatusPartiallyFilledStr = "partially_filled"
	orderStatusFilledStr          = "filled"
	orderStatusCanceledStr        = "canceled"
	orderStatusRejectedStr        = "rejected"
)

var (
	orderStatusNewByte             = []byte(`"new"`)
	orderStatusActiveByte          = []byte(`"active"`)
	orderStatusPartiallyFilledByte = []byte(`"partially_filled"`)
	orderStatusFilledByte          = []byte(`"filled"`)
	orderStatusCanceledByte        = []byte(`"canceled"`)
	orderStatusRejectedByte        = []byte(`"rejected"`)
)

func (st OrderStatus) String() string {
	switch st {
	case OrderStatusNew:
		return orderStatusNewStr
	case OrderStatusActive:
		return orderStatusActiveStr
	case OrderStatusPartiallyFilled:
		return orderStatusPartiallyFilledStr
	case OrderStatusFilled:
		return orderStatusFilledStr
	case OrderStatusCanceled:
		return orderStatusCanceledStr
	case OrderStatusRejected:
		return orderStatusRejectedStr
	}
	panic("invalid order status string conversion: " + strconv.Itoa(int(st)))
}

func (st OrderStatus) MarshalJSON() ([]byte, error) {
	switch st {
	case OrderStatusNew:
		return orderStatusNewByte, nil
	case OrderStatusActive:
		return orderStatusActiveByte, nil
	case OrderStatusPartiallyFilled:
		return orderStatusPartiallyFilledByte, nil
	case OrderStatusFilled:
		return orderStatusFilledByte, nil
	case OrderStatusCanceled:
		return orderStatusCanceledByte, nil
	case OrderStatusRejected:
		return orderStatusRejectedByte, nil
	}
	return nil, errors.New("invalid order status json conversion: " + strconv.Itoa(int(st)))
}

func (st *OrderStatus) UnmarshalJSON(data []byte) error {
	switch {
	case bytes.Equal(data, orderStatusNewByte):
		*st = OrderStatusNew
	case bytes.Equal(data, orderStatusActiveByte):
		*st = OrderStatusActive
	case bytes.Equal(data, orderStatusPartiallyFilledByte):
		*st = OrderStatusPartiallyFilled
	case bytes.Equal(data, orderStatusFilledByte):
		*st = OrderStatusFilled
	case bytes.Equal(data, orderStatusCanceledByte):
		*st = OrderStatusCanceled
	case bytes.Equal(data, orderStatusRejectedByte):
		*st = OrderStatusRejected
	default:
		return errors.New("unsupported order status: " + string(data))
	}
	return nil
}
