package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathanyu/matching-engine/internal/domain"
)

func trade(buy, sell domain.OrderID, qty domain.Quantity, price domain.Price, at time.Time) domain.Trade {
	return domain.Trade{
		Symbol:      "ACME",
		BuyOrderID:  buy,
		SellOrderID: sell,
		Quantity:    qty,
		Price:       price,
		ExecutedAt:  at,
	}
}

func TestRingBuffer_Push(t *testing.T) {
	rb := &RingBuffer{}

	for i := 0; i < 5; i++ {
		rb.Push(domain.Candle{Open: int64(i)})
	}

	assert.Equal(t, 5, rb.Len())
	all := rb.Recent(5)
	require.Len(t, all, 5)
	assert.Equal(t, int64(0), all[0].Open)
	assert.Equal(t, int64(4), all[4].Open)
}

func TestRingBuffer_Overflow(t *testing.T) {
	rb := &RingBuffer{}

	// Push more than capacity
	for i := 0; i < ringBufferCapacity+10; i++ {
		rb.Push(domain.Candle{Open: int64(i)})
	}

	assert.Equal(t, ringBufferCapacity, rb.Len())
	all := rb.Recent(ringBufferCapacity)
	require.Len(t, all, ringBufferCapacity)
	// Oldest should be index 10 (first 10 were overwritten)
	assert.Equal(t, int64(10), all[0].Open)
	assert.Equal(t, int64(ringBufferCapacity+9), all[ringBufferCapacity-1].Open)
}

func TestRingBuffer_Recent(t *testing.T) {
	rb := &RingBuffer{}

	for i := 0; i < 10; i++ {
		rb.Push(domain.Candle{Open: int64(i)})
	}

	recent := rb.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, int64(7), recent[0].Open)
	assert.Equal(t, int64(9), recent[2].Open)
}

func TestRingBuffer_Recent_MoreThanAvailable(t *testing.T) {
	rb := &RingBuffer{}
	rb.Push(domain.Candle{Open: 42})

	recent := rb.Recent(10)
	require.Len(t, recent, 1)
	assert.Equal(t, int64(42), recent[0].Open)
}

func TestPublisher_CandleGeneration(t *testing.T) {
	pub := NewPublisher(16)
	now := time.Now()

	pub.consume(domain.TradeEvent{
		Symbol: "ACME",
		Trades: []domain.Trade{
			trade(1, 2, 100, 10010, now),
			trade(1, 3, 200, 10020, now),
			trade(1, 4, 50, 10005, now),
		},
	})

	candles := pub.Candles(10)
	require.Len(t, candles, 1) // one building candle

	c := candles[0]
	assert.Equal(t, "ACME", c.Symbol)
	assert.Equal(t, int64(10010), c.Open)  // first trade
	assert.Equal(t, int64(10020), c.High)  // highest
	assert.Equal(t, int64(10005), c.Low)   // lowest
	assert.Equal(t, int64(10005), c.Close) // last trade
	assert.Equal(t, uint64(350), c.Volume) // 100 + 200 + 50
	assert.Equal(t, intervalLabel, c.Interval)
	assert.Equal(t, now.Truncate(candleInterval), c.Timestamp)
}

func TestPublisher_CandleRotation(t *testing.T) {
	pub := NewPublisher(16)
	now := time.Now()

	// First interval
	pub.consume(domain.TradeEvent{
		Trades: []domain.Trade{trade(1, 2, 100, 10010, now)},
	})
	pub.rotate()

	// Second interval
	pub.consume(domain.TradeEvent{
		Trades: []domain.Trade{trade(3, 4, 200, 10020, now.Add(time.Minute))},
	})

	candles := pub.Candles(10)
	require.Len(t, candles, 2) // 1 completed + 1 building
	assert.Equal(t, int64(10010), candles[0].Open)
	assert.Equal(t, int64(10020), candles[1].Open)
}

func TestPublisher_RotateWithoutTrades(t *testing.T) {
	pub := NewPublisher(16)

	pub.consume(domain.TradeEvent{
		Trades: []domain.Trade{trade(1, 2, 100, 10010, time.Now())},
	})
	pub.rotate()
	pub.rotate() // empty interval, no new candle

	assert.Len(t, pub.Candles(10), 1)
}

func TestPublisher_Trades_Filters(t *testing.T) {
	pub := NewPublisher(16)
	base := time.Now()

	pub.consume(domain.TradeEvent{
		Trades: []domain.Trade{
			trade(1, 2, 100, 10010, base),
			trade(3, 2, 50, 10020, base.Add(time.Second)),
			trade(3, 4, 25, 10030, base.Add(2*time.Second)),
		},
	})

	// By buy-side id
	byBuy := pub.Trades(1, time.Time{}, 0)
	require.Len(t, byBuy, 1)
	assert.Equal(t, int64(10010), byBuy[0].Price)

	// By sell-side id
	bySell := pub.Trades(2, time.Time{}, 0)
	assert.Len(t, bySell, 2)

	// Since drops older entries
	recent := pub.Trades(0, base.Add(time.Second), 0)
	assert.Len(t, recent, 2)

	// Limit keeps the most recent matches
	limited := pub.Trades(0, time.Time{}, 2)
	require.Len(t, limited, 2)
	assert.Equal(t, int64(10020), limited[0].Price)
	assert.Equal(t, int64(10030), limited[1].Price)

	// No filters returns the whole tape
	assert.Len(t, pub.Trades(0, time.Time{}, 0), 3)
}

func TestPublisher_Candles_Empty(t *testing.T) {
	pub := NewPublisher(16)
	assert.Empty(t, pub.Candles(10))
}

func TestPublisher_ConsumesFromChannel(t *testing.T) {
	pub := NewPublisher(16)
	pub.Start()
	defer pub.Stop()

	pub.TradesIn <- domain.TradeEvent{
		Trades: []domain.Trade{
			trade(1, 2, 100, 10010, time.Now()),
			trade(1, 3, 50, 10020, time.Now()),
		},
	}

	require.Eventually(t, func() bool {
		return pub.TapeLen() == 2
	}, time.Second, 5*time.Millisecond)
}
