package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nathanyu/matching-engine/internal/book"
	"github.com/nathanyu/matching-engine/internal/domain"
)

// Engine is the matching core for one symbol. It owns the resting book,
// the untriggered stops, the order registry and the last trade price, and
// must only ever be driven by a single goroutine.
type Engine struct {
	symbol string

	book   *book.Book
	stops  *stopQueue
	orders map[domain.OrderID]*domain.Order

	arrivalSeq uint64
	tradeSeq   uint64

	// lastTradePrice is 0 until the first trade. 0 is never a valid order
	// price, so it doubles as the unset sentinel.
	lastTradePrice domain.Price
}

func New(symbol string) *Engine {
	return &Engine{
		symbol: symbol,
		book:   book.New(),
		stops:  newStopQueue(),
		orders: make(map[domain.OrderID]*domain.Order),
	}
}

func (e *Engine) Symbol() string { return e.symbol }

// Submit runs one order through admission, matching and the stop cascade.
// It returns every trade the submission produced, in execution order.
// Rejected submissions are still registered so their ids stay burned.
func (e *Engine) Submit(spec domain.OrderSpec) ([]domain.Trade, error) {
	if _, ok := e.orders[spec.OrderID]; ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrDuplicateOrderID, spec.OrderID)
	}

	e.arrivalSeq++
	o := domain.NewOrder(spec, e.arrivalSeq, time.Now())
	e.orders[o.ID] = o

	if o.Status == domain.OrderStatusRejected {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidOrder, o.RejectReason)
	}

	return e.process(o)
}

// Cancel removes a resting order or an untriggered stop. It reports
// whether an order was actually cancelled; unknown ids and orders already
// terminal return false. Cancels never produce trades.
func (e *Engine) Cancel(id domain.OrderID) bool {
	if o, ok := e.book.Remove(id); ok {
		o.Cancel()
		return true
	}
	if o, ok := e.stops.remove(id); ok {
		o.Cancel()
		return true
	}
	return false
}

// Modify is cancel-then-resubmit: the order keeps its id, kind and time
// in force, but is assigned a fresh arrival sequence, so its place in the
// queue is lost. Guards that would fail the modify run before anything
// changes; structural validation of the new values runs after the pull,
// so when the new values are unusable the original stays cancelled. A
// repriced order runs the full admission pipeline and can trade at once.
func (e *Engine) Modify(id domain.OrderID, newQty domain.Quantity, newLimit, newStop domain.Price) ([]domain.Trade, error) {
	o, ok := e.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnknownOrderID, id)
	}
	if !e.book.Contains(id) && !e.stops.contains(id) {
		return nil, fmt.Errorf("%w: order %d is %s", domain.ErrIllegalModify, id, o.Status)
	}
	if err := o.CheckModify(newQty); err != nil {
		return nil, err
	}

	if _, ok := e.book.Remove(id); !ok {
		e.stops.remove(id)
	}
	o.Cancel()

	e.arrivalSeq++
	if err := o.ApplyModify(newQty, newLimit, newStop, e.arrivalSeq); err != nil {
		return nil, err
	}
	if o.RemainingQty() == 0 {
		return nil, nil
	}
	return e.process(o)
}

// process runs an admitted order through the stop gate, the unfillable
// screen, the matcher and the trigger cascade.
func (e *Engine) process(o *domain.Order) ([]domain.Trade, error) {
	// Untriggered stops park unless the market already satisfies their
	// predicate. Before the first trade there is no price to test.
	if o.IsStopOrder() && !o.Triggered {
		if e.lastTradePrice == 0 || !o.ShouldTrigger(e.lastTradePrice) {
			e.stops.add(o)
			return nil, nil
		}
		o.MarkTriggered()
	}

	if immediateOnly(o) && !e.canMatch(o) {
		o.Cancel()
		return nil, fmt.Errorf("%w: order %d", domain.ErrUnfillableFAK, o.ID)
	}

	trades := e.match(o, nil)
	e.settleResidual(o)
	return e.runCascade(trades), nil
}

// match crosses the incoming order against the opposite side for as long
// as the best level satisfies the crossing rule, appending one trade per
// fill. Trades execute at the resting price.
func (e *Engine) match(o *domain.Order, trades []domain.Trade) []domain.Trade {
	restingSide := o.Side.Opposite()
	for o.RemainingQty() > 0 {
		bestPrice, ok := e.book.Best(restingSide)
		if !ok || !crosses(o, bestPrice) {
			break
		}

		resting := e.book.Front(restingSide)
		traded := min(o.RemainingQty(), resting.RemainingQty())

		mustFill(o, traded)
		mustFill(resting, traded)
		e.book.SettleFront(restingSide, traded)

		trades = append(trades, e.recordTrade(o, resting, traded, bestPrice))
	}
	return trades
}

// settleResidual decides what happens to unmatched quantity: market
// orders, triggered stops and fill-and-kill orders never rest, anything
// else goes into the book.
func (e *Engine) settleResidual(o *domain.Order) {
	if o.RemainingQty() == 0 {
		return
	}
	if immediateOnly(o) {
		o.Cancel()
		return
	}
	e.book.Insert(o)
}

// runCascade re-injects triggered stops until a sweep extracts nothing.
// Re-injected orders can trade, move the last trade price and arm further
// stops, so the sweep runs as an explicit outer loop to a fixed point.
// Termination holds because every pass shrinks the stop queue.
func (e *Engine) runCascade(trades []domain.Trade) []domain.Trade {
	for e.lastTradePrice != 0 {
		fired := e.stops.extractTriggered(e.lastTradePrice)
		if len(fired) == 0 {
			break
		}
		for _, o := range fired {
			o.MarkTriggered()
			trades = e.match(o, trades)
			e.settleResidual(o)
		}
	}
	return trades
}

// canMatch is the unfillable screen: market semantics only need opposite
// liquidity to exist, limit semantics need the best opposite price to
// satisfy the limit.
func (e *Engine) canMatch(o *domain.Order) bool {
	best, ok := e.book.Best(o.Side.Opposite())
	if !ok {
		return false
	}
	return crosses(o, best)
}

func (e *Engine) recordTrade(incoming, resting *domain.Order, qty domain.Quantity, price domain.Price) domain.Trade {
	buyID, sellID := incoming.ID, resting.ID
	if incoming.Side == domain.SideSell {
		buyID, sellID = resting.ID, incoming.ID
	}

	e.tradeSeq++
	e.lastTradePrice = price
	return domain.Trade{
		Seq:         e.tradeSeq,
		ExecID:      uuid.New().String(),
		Symbol:      e.symbol,
		BuyOrderID:  buyID,
		SellOrderID: sellID,
		Quantity:    qty,
		Price:       price,
		ExecutedAt:  time.Now(),
	}
}

// BestBid returns the highest resting buy price.
func (e *Engine) BestBid() (domain.Price, bool) { return e.book.BestBid() }

// BestAsk returns the lowest resting sell price.
func (e *Engine) BestAsk() (domain.Price, bool) { return e.book.BestAsk() }

// VolumeAt is the aggregate open quantity resting at a price.
func (e *Engine) VolumeAt(side domain.Side, price domain.Price) domain.Quantity {
	return e.book.VolumeAt(side, price)
}

// GetOrder returns a copy of any order the engine has ever admitted,
// terminal ones included.
func (e *Engine) GetOrder(id domain.OrderID) (domain.Order, bool) {
	o, ok := e.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	return *o, true
}

// Size counts every order the engine knows, whatever its status. Terminal
// orders are retained so ids are never reused and stay queryable.
func (e *Engine) Size() int { return len(e.orders) }

// LastTradePrice reports the price of the most recent trade; ok is false
// before the first trade.
func (e *Engine) LastTradePrice() (domain.Price, bool) {
	if e.lastTradePrice == 0 {
		return 0, false
	}
	return e.lastTradePrice, true
}

// Depth aggregates the book into per-price totals, best outward, up to
// maxLevels per side (0 for all).
func (e *Engine) Depth(maxLevels int) domain.BookSnapshot {
	bids, asks := e.book.Depth(maxLevels)
	return domain.BookSnapshot{Symbol: e.symbol, Bids: bids, Asks: asks}
}

// Stats summarizes engine state for monitoring. CommandSeq is stamped by
// the sequencer, not here.
func (e *Engine) Stats() domain.EngineStats {
	st := domain.EngineStats{
		Symbol:        e.symbol,
		KnownOrders:   len(e.orders),
		RestingOrders: e.book.Len(),
		PendingStops:  e.stops.len(),
		TradeCount:    e.tradeSeq,
	}
	if e.lastTradePrice != 0 {
		p := e.lastTradePrice
		st.LastTradePrice = &p
	}
	return st
}

// immediateOnly reports whether unmatched quantity must be discarded:
// market orders, stops (market semantics after trigger) and anything
// fill-and-kill.
func immediateOnly(o *domain.Order) bool {
	return o.Kind == domain.OrderTypeMarket ||
		o.Kind == domain.OrderTypeStop ||
		o.TIF == domain.TimeInForceFAK
}

// crosses is the crossing rule: market semantics always cross, a buy
// crosses resting prices at or below its limit, a sell at or above.
func crosses(o *domain.Order, restingPrice domain.Price) bool {
	if o.Kind == domain.OrderTypeMarket || o.Kind == domain.OrderTypeStop {
		return true
	}
	if o.Side == domain.SideBuy {
		return restingPrice <= o.LimitPrice
	}
	return restingPrice >= o.LimitPrice
}

// mustFill applies a fill the matching loop has already sized to fit.
// A failure here is corrupted accounting, not bad input.
func mustFill(o *domain.Order, qty domain.Quantity) {
	if err := o.Fill(qty); err != nil {
		panic(fmt.Sprintf("matching invariant violated: %v", err))
	}
}
