// Package marketdata keeps the query-side view of the tape: the raw
// trade log plus one-minute OHLCV candles built from it. It consumes
// the same trade events the streaming and feed paths do.
package marketdata

import (
	"log"
	"sync"
	"time"

	"github.com/nathanyu/matching-engine/internal/domain"
)

const (
	ringBufferCapacity = 100
	candleInterval     = time.Minute
	intervalLabel      = "1m"
)

// RingBuffer is a fixed-size circular buffer of completed candles.
type RingBuffer struct {
	data  [ringBufferCapacity]domain.Candle
	head  int // next write position
	count int
}

// Push adds a candle, evicting the oldest once the buffer is full.
func (rb *RingBuffer) Push(c domain.Candle) {
	rb.data[rb.head] = c
	rb.head = (rb.head + 1) % ringBufferCapacity
	if rb.count < ringBufferCapacity {
		rb.count++
	}
}

// Recent returns the n most recent candles in chronological order.
func (rb *RingBuffer) Recent(n int) []domain.Candle {
	if n <= 0 || rb.count == 0 {
		return nil
	}
	if n > rb.count {
		n = rb.count
	}

	result := make([]domain.Candle, n)
	start := (rb.head - n + ringBufferCapacity) % ringBufferCapacity
	for i := 0; i < n; i++ {
		result[i] = rb.data[(start+i)%ringBufferCapacity]
	}
	return result
}

// Len returns the number of stored candles.
func (rb *RingBuffer) Len() int {
	return rb.count
}

// Publisher receives trade events and maintains the tape and candles.
type Publisher struct {
	mu sync.RWMutex

	// Completed candles, oldest evicted first.
	candles RingBuffer

	// Current (building) candle. Valid only while building is true.
	current  domain.Candle
	building bool

	// Trade log in execution order, for querying.
	tape []domain.Trade

	// TradesIn is the consumer channel to register with the sequencer.
	TradesIn chan domain.TradeEvent

	done   chan struct{}
	ticker *time.Ticker
}

// NewPublisher creates a market data publisher. bufferSize is the
// consumer channel capacity.
func NewPublisher(bufferSize int) *Publisher {
	return &Publisher{
		TradesIn: make(chan domain.TradeEvent, bufferSize),
		done:     make(chan struct{}),
	}
}

// Start begins the publisher's application loop.
func (p *Publisher) Start() {
	p.ticker = time.NewTicker(candleInterval)
	go p.run()
}

// Stop shuts down the publisher.
func (p *Publisher) Stop() {
	if p.ticker != nil {
		p.ticker.Stop()
	}
	close(p.done)
}

// run is the main application loop.
func (p *Publisher) run() {
	log.Println("[marketdata] publisher started")
	for {
		select {
		case ev := <-p.TradesIn:
			p.consume(ev)
		case <-p.ticker.C:
			p.rotate()
		case <-p.done:
			log.Println("[marketdata] publisher stopped")
			return
		}
	}
}

// consume appends the event's trades to the tape and folds each one
// into the building candle.
func (p *Publisher) consume(ev domain.TradeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, t := range ev.Trades {
		p.tape = append(p.tape, t)
		p.updateCandle(t)
	}
}

// updateCandle folds one trade into the current candle.
func (p *Publisher) updateCandle(t domain.Trade) {
	if !p.building {
		// First trade in this interval.
		p.current = domain.Candle{
			Symbol:    t.Symbol,
			Open:      t.Price,
			High:      t.Price,
			Low:       t.Price,
			Close:     t.Price,
			Volume:    t.Quantity,
			Timestamp: t.ExecutedAt.Truncate(candleInterval),
			Interval:  intervalLabel,
		}
		p.building = true
		return
	}

	if t.Price > p.current.High {
		p.current.High = t.Price
	}
	if t.Price < p.current.Low {
		p.current.Low = t.Price
	}
	p.current.Close = t.Price
	p.current.Volume += t.Quantity
}

// rotate closes the building candle and starts a new interval. An
// interval with no trades produces no candle.
func (p *Publisher) rotate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.building {
		return
	}
	p.candles.Push(p.current)
	p.building = false
}

// Candles returns up to count recent candles in chronological order,
// the building candle last.
func (p *Publisher) Candles(count int) []domain.Candle {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := p.candles.Recent(count)
	if p.building {
		result = append(result, p.current)
	}
	return result
}

// Trades returns tape entries matching the filters, oldest first.
// orderID 0 matches every trade; a zero since disables the time bound;
// limit > 0 keeps only the most recent matches.
func (p *Publisher) Trades(orderID domain.OrderID, since time.Time, limit int) []domain.Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var result []domain.Trade
	for _, t := range p.tape {
		if orderID != 0 && t.BuyOrderID != orderID && t.SellOrderID != orderID {
			continue
		}
		if !since.IsZero() && t.ExecutedAt.Before(since) {
			continue
		}
		result = append(result, t)
	}
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result
}

// TapeLen returns the number of trades recorded so far.
func (p *Publisher) TapeLen() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.tape)
}
