package domain

import "time"

// Trade records one execution between a buy and a sell order. Price is
// always the resting side's price; Seq is strictly increasing across the
// engine lifetime.
type Trade struct {
	Seq         uint64    `json:"seq"`
	ExecID      string    `json:"exec_id"`
	Symbol      string    `json:"symbol"`
	BuyOrderID  OrderID   `json:"buy_order_id"`
	SellOrderID OrderID   `json:"sell_order_id"`
	Quantity    Quantity  `json:"quantity"`
	Price       Price     `json:"price"`
	ExecutedAt  time.Time `json:"executed_at"`
}

// PriceLevel is an aggregated level in an L2 snapshot.
type PriceLevel struct {
	Price    Price    `json:"price"`
	Quantity Quantity `json:"quantity"`
}

// BookSnapshot is an aggregated L2 view of both sides, best outward.
type BookSnapshot struct {
	Symbol string       `json:"symbol"`
	Bids   []PriceLevel `json:"bids"`
	Asks   []PriceLevel `json:"asks"`
}

// TradeEvent carries the trades of one executed command downstream.
type TradeEvent struct {
	Seq       uint64    `json:"seq"`
	Symbol    string    `json:"symbol"`
	Trades    []Trade   `json:"trades"`
	Timestamp time.Time `json:"timestamp"`
}

// BookEvent carries the book top after a mutating command.
type BookEvent struct {
	Seq       uint64       `json:"seq"`
	Symbol    string       `json:"symbol"`
	BestBid   *Price       `json:"best_bid,omitempty"`
	BestAsk   *Price       `json:"best_ask,omitempty"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// BookTop is the best-price view: top of both sides plus the last trade
// price, read in one consistent snapshot.
type BookTop struct {
	Symbol         string `json:"symbol"`
	BestBid        *Price `json:"best_bid,omitempty"`
	BestAsk        *Price `json:"best_ask,omitempty"`
	LastTradePrice *Price `json:"last_trade_price,omitempty"`
}

// Candle is one OHLCV bar built from the trade tape.
type Candle struct {
	Symbol    string    `json:"symbol"`
	Open      Price     `json:"open"`
	High      Price     `json:"high"`
	Low       Price     `json:"low"`
	Close     Price     `json:"close"`
	Volume    Quantity  `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
	Interval  string    `json:"interval"`
}

// EngineStats is the snapshot served by the stats endpoint.
type EngineStats struct {
	Symbol         string `json:"symbol"`
	KnownOrders    int    `json:"known_orders"`
	RestingOrders  int    `json:"resting_orders"`
	PendingStops   int    `json:"pending_stops"`
	TradeCount     uint64 `json:"trade_count"`
	CommandSeq     uint64 `json:"command_seq"`
	LastTradePrice *Price `json:"last_trade_price,omitempty"`
}
