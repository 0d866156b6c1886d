package sequencer

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/engine"
	"github.com/nathanyu/matching-engine/internal/telemetry"
)

// bookDepthLevels is how many levels per side a BookEvent carries.
const bookDepthLevels = 10

type requestType uint8

const (
	requestSubmit requestType = iota
	requestCancel
	requestModify
	requestInspect
)

// request is one envelope through the command channel. Mutations carry
// their arguments; inspections carry a closure run against the engine
// inside the loop, so reads see point-in-time consistent state.
type request struct {
	typ requestType

	spec  domain.OrderSpec
	id    domain.OrderID
	qty   domain.Quantity
	limit domain.Price
	stop  domain.Price

	inspect func(*engine.Engine)

	resp chan response
}

type response struct {
	trades []domain.Trade
	ok     bool
	err    error
}

// Service is the single writer. It owns the engine and applies every
// command on one goroutine; public methods enqueue a request and block
// for the reply. After Stop they fail with domain.ErrEngineStopped
// instead of deadlocking.
type Service struct {
	engine   *engine.Engine
	requests chan request
	done     chan struct{}

	// cmdSeq is touched only by the loop goroutine.
	cmdSeq uint64

	eventSeq   atomic.Uint64
	tradeDrops atomic.Uint64
	bookDrops  atomic.Uint64

	tradeConsumers []chan<- domain.TradeEvent
	bookConsumers  []chan<- domain.BookEvent

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewService wraps the engine in a command loop with the given channel
// buffer size.
func NewService(eng *engine.Engine, bufferSize int) *Service {
	return &Service{
		engine:   eng,
		requests: make(chan request, bufferSize),
		done:     make(chan struct{}),
	}
}

// RegisterTradeConsumer adds a channel that receives a TradeEvent for
// every command that produced trades. Must be called before Start.
func (s *Service) RegisterTradeConsumer(ch chan<- domain.TradeEvent) {
	s.tradeConsumers = append(s.tradeConsumers, ch)
}

// RegisterBookConsumer adds a channel that receives a BookEvent after
// every mutating command. Must be called before Start.
func (s *Service) RegisterBookConsumer(ch chan<- domain.BookEvent) {
	s.bookConsumers = append(s.bookConsumers, ch)
}

// Start launches the command loop. A stopped service cannot be restarted.
func (s *Service) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

// Stop shuts the loop down. In-flight callers receive ErrEngineStopped.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *Service) run() {
	log.Println("[sequencer] started")
	for {
		select {
		case req := <-s.requests:
			s.apply(req)
		case <-s.done:
			log.Println("[sequencer] stopped")
			return
		}
	}
}

func (s *Service) apply(req request) {
	if req.typ == requestInspect {
		req.inspect(s.engine)
		req.resp <- response{}
		return
	}

	// Every mutating command gets the next slot in the total order.
	s.cmdSeq++

	var resp response
	switch req.typ {
	case requestSubmit:
		start := time.Now()
		resp.trades, resp.err = s.engine.Submit(req.spec)
		telemetry.MatchDuration.Observe(time.Since(start).Seconds())
		if resp.err != nil {
			telemetry.OrdersRejected.WithLabelValues(domain.ErrorCode(resp.err)).Inc()
		} else {
			telemetry.OrdersSubmitted.Inc()
		}
	case requestCancel:
		resp.ok = s.engine.Cancel(req.id)
		if resp.ok {
			telemetry.OrdersCancelled.Inc()
		}
	case requestModify:
		start := time.Now()
		resp.trades, resp.err = s.engine.Modify(req.id, req.qty, req.limit, req.stop)
		telemetry.MatchDuration.Observe(time.Since(start).Seconds())
		if resp.err != nil {
			telemetry.OrdersRejected.WithLabelValues(domain.ErrorCode(resp.err)).Inc()
		}
	}
	req.resp <- resp

	if len(resp.trades) > 0 {
		s.publishTrades(resp.trades)
	}
	s.publishBook()
	s.observeState()
}

// observeState refreshes the book gauges after a mutating command. The
// best-price gauges read 0 while the side is empty.
func (s *Service) observeState() {
	st := s.engine.Stats()
	telemetry.RestingOrders.Set(float64(st.RestingOrders))
	telemetry.PendingStops.Set(float64(st.PendingStops))

	bid, _ := s.engine.BestBid()
	telemetry.BestBid.Set(float64(bid))
	ask, _ := s.engine.BestAsk()
	telemetry.BestAsk.Set(float64(ask))
}

func (s *Service) publishTrades(trades []domain.Trade) {
	var volume domain.Quantity
	for _, tr := range trades {
		volume += tr.Quantity
	}
	telemetry.TradesTotal.Add(float64(len(trades)))
	telemetry.TradedVolume.Add(float64(volume))

	ev := domain.TradeEvent{
		Seq:       s.eventSeq.Add(1),
		Symbol:    s.engine.Symbol(),
		Trades:    trades,
		Timestamp: time.Now(),
	}
	for _, ch := range s.tradeConsumers {
		select {
		case ch <- ev:
		default:
			n := s.tradeDrops.Add(1)
			telemetry.EventsDropped.WithLabelValues("trade").Inc()
			log.Printf("[sequencer] WARN: trade consumer full, dropped event seq=%d (drops=%d)", ev.Seq, n)
		}
	}
}

func (s *Service) publishBook() {
	snap := s.engine.Depth(bookDepthLevels)
	ev := domain.BookEvent{
		Seq:       s.eventSeq.Add(1),
		Symbol:    snap.Symbol,
		Bids:      snap.Bids,
		Asks:      snap.Asks,
		Timestamp: time.Now(),
	}
	if bid, ok := s.engine.BestBid(); ok {
		ev.BestBid = &bid
	}
	if ask, ok := s.engine.BestAsk(); ok {
		ev.BestAsk = &ask
	}
	for _, ch := range s.bookConsumers {
		select {
		case ch <- ev:
		default:
			n := s.bookDrops.Add(1)
			telemetry.EventsDropped.WithLabelValues("book").Inc()
			log.Printf("[sequencer] WARN: book consumer full, dropped event seq=%d (drops=%d)", ev.Seq, n)
		}
	}
}

func (s *Service) do(req request) response {
	req.resp = make(chan response, 1)
	select {
	case s.requests <- req:
	case <-s.done:
		return response{err: domain.ErrEngineStopped}
	}
	select {
	case r := <-req.resp:
		return r
	case <-s.done:
		// A reply may already be buffered if the loop won the race.
		select {
		case r := <-req.resp:
			return r
		default:
			return response{err: domain.ErrEngineStopped}
		}
	}
}

// Submit runs a new order through the engine.
func (s *Service) Submit(spec domain.OrderSpec) ([]domain.Trade, error) {
	r := s.do(request{typ: requestSubmit, spec: spec})
	return r.trades, r.err
}

// Cancel pulls an order. True means the order was live and is now cancelled.
func (s *Service) Cancel(id domain.OrderID) (bool, error) {
	r := s.do(request{typ: requestCancel, id: id})
	return r.ok, r.err
}

// Modify cancels the order and resubmits it with the new values at the
// back of the time-priority queue.
func (s *Service) Modify(id domain.OrderID, newQty domain.Quantity, newLimit, newStop domain.Price) ([]domain.Trade, error) {
	r := s.do(request{typ: requestModify, id: id, qty: newQty, limit: newLimit, stop: newStop})
	return r.trades, r.err
}

func (s *Service) query(fn func(*engine.Engine)) error {
	r := s.do(request{typ: requestInspect, inspect: fn})
	return r.err
}

// BestBid returns the highest resting bid price.
func (s *Service) BestBid() (domain.Price, bool, error) {
	var (
		p  domain.Price
		ok bool
	)
	err := s.query(func(e *engine.Engine) { p, ok = e.BestBid() })
	return p, ok, err
}

// BestAsk returns the lowest resting ask price.
func (s *Service) BestAsk() (domain.Price, bool, error) {
	var (
		p  domain.Price
		ok bool
	)
	err := s.query(func(e *engine.Engine) { p, ok = e.BestAsk() })
	return p, ok, err
}

// VolumeAt returns the total resting quantity at a price level.
func (s *Service) VolumeAt(side domain.Side, price domain.Price) (domain.Quantity, error) {
	var q domain.Quantity
	err := s.query(func(e *engine.Engine) { q = e.VolumeAt(side, price) })
	return q, err
}

// GetOrder returns a copy of an order by id.
func (s *Service) GetOrder(id domain.OrderID) (domain.Order, bool, error) {
	var (
		o  domain.Order
		ok bool
	)
	err := s.query(func(e *engine.Engine) { o, ok = e.GetOrder(id) })
	return o, ok, err
}

// Size returns the number of orders the engine has ever accepted.
func (s *Service) Size() (int, error) {
	var n int
	err := s.query(func(e *engine.Engine) { n = e.Size() })
	return n, err
}

// LastTradePrice returns the price of the most recent trade.
func (s *Service) LastTradePrice() (domain.Price, bool, error) {
	var (
		p  domain.Price
		ok bool
	)
	err := s.query(func(e *engine.Engine) { p, ok = e.LastTradePrice() })
	return p, ok, err
}

// Top returns both best prices and the last trade price, read in one
// consistent snapshot.
func (s *Service) Top() (domain.BookTop, error) {
	var top domain.BookTop
	err := s.query(func(e *engine.Engine) {
		top.Symbol = e.Symbol()
		if bid, ok := e.BestBid(); ok {
			top.BestBid = &bid
		}
		if ask, ok := e.BestAsk(); ok {
			top.BestAsk = &ask
		}
		if last, ok := e.LastTradePrice(); ok {
			top.LastTradePrice = &last
		}
	})
	return top, err
}

// Depth returns an aggregated snapshot of up to maxLevels per side.
func (s *Service) Depth(maxLevels int) (domain.BookSnapshot, error) {
	var snap domain.BookSnapshot
	err := s.query(func(e *engine.Engine) { snap = e.Depth(maxLevels) })
	return snap, err
}

// Stats returns engine counters stamped with the current command sequence.
func (s *Service) Stats() (domain.EngineStats, error) {
	var st domain.EngineStats
	err := s.query(func(e *engine.Engine) {
		st = e.Stats()
		st.CommandSeq = s.cmdSeq
	})
	return st, err
}

// EventSeq returns the last published event sequence number.
func (s *Service) EventSeq() uint64 {
	return s.eventSeq.Load()
}

// Drops returns how many trade and book events were discarded because a
// consumer channel was full.
func (s *Service) Drops() (tradeDrops, bookDrops uint64) {
	return s.tradeDrops.Load(), s.bookDrops.Load()
}
