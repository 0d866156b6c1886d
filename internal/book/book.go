package book

import (
	"container/list"

	"github.com/nathanyu/matching-engine/internal/domain"
)

// entry locates a resting order inside the book for O(1) removal.
type entry struct {
	level *Level
	elem  *list.Element
}

// Book holds the resting orders of a single symbol. Bids and asks live in
// separate price trees; entries indexes every resting order by id. All
// methods assume a single calling goroutine.
type Book struct {
	bids    *levelTree
	asks    *levelTree
	entries map[domain.OrderID]*entry
}

func New() *Book {
	return &Book{
		bids:    newLevelTree(),
		asks:    newLevelTree(),
		entries: make(map[domain.OrderID]*entry),
	}
}

func (b *Book) tree(side domain.Side) *levelTree {
	if side == domain.SideBuy {
		return b.bids
	}
	return b.asks
}

// bestLevel is the level an incoming opposite order trades with first:
// the highest bid or the lowest ask.
func (b *Book) bestLevel(side domain.Side) *Level {
	if side == domain.SideBuy {
		return b.bids.last()
	}
	return b.asks.first()
}

// Insert rests an order at its limit price, behind everything already
// queued there. The caller guarantees the id is not already resting.
func (b *Book) Insert(o *domain.Order) {
	lvl := b.tree(o.Side).getOrCreate(o.LimitPrice)
	elem := lvl.push(o)
	b.entries[o.ID] = &entry{level: lvl, elem: elem}
}

// Remove unlinks a resting order by id, dropping its level when that was
// the last order there. The second return is false when the id is not
// resting.
func (b *Book) Remove(id domain.OrderID) (*domain.Order, bool) {
	ent, ok := b.entries[id]
	if !ok {
		return nil, false
	}
	delete(b.entries, id)

	o := ent.level.unlink(ent.elem)
	if ent.level.Empty() {
		b.tree(o.Side).remove(ent.level.Price())
	}
	return o, true
}

// Contains reports whether an order id is currently resting.
func (b *Book) Contains(id domain.OrderID) bool {
	_, ok := b.entries[id]
	return ok
}

// Best returns the top-of-book price on one side.
func (b *Book) Best(side domain.Side) (domain.Price, bool) {
	lvl := b.bestLevel(side)
	if lvl == nil {
		return 0, false
	}
	return lvl.Price(), true
}

func (b *Book) BestBid() (domain.Price, bool) { return b.Best(domain.SideBuy) }
func (b *Book) BestAsk() (domain.Price, bool) { return b.Best(domain.SideSell) }

// Front returns the order with price-time priority on one side, nil when
// that side is empty.
func (b *Book) Front(side domain.Side) *domain.Order {
	lvl := b.bestLevel(side)
	if lvl == nil {
		return nil
	}
	return lvl.front()
}

// SettleFront accounts a fill of qty against the front order on side. The
// fill has already been applied to the order; here the level total
// shrinks, a fully filled front leaves the book and an emptied level is
// dropped.
func (b *Book) SettleFront(side domain.Side, qty domain.Quantity) {
	lvl := b.bestLevel(side)
	if lvl == nil {
		return
	}
	if done := lvl.settle(qty); done != nil {
		delete(b.entries, done.ID)
	}
	if lvl.Empty() {
		b.tree(side).remove(lvl.Price())
	}
}

// VolumeAt is the open quantity resting at one price, zero when no level
// exists there.
func (b *Book) VolumeAt(side domain.Side, price domain.Price) domain.Quantity {
	if lvl := b.tree(side).find(price); lvl != nil {
		return lvl.TotalQty()
	}
	return 0
}

// Len is the number of resting orders across both sides.
func (b *Book) Len() int { return len(b.entries) }

// Levels is the number of distinct prices with open interest on side.
func (b *Book) Levels(side domain.Side) int { return b.tree(side).size() }

// Depth aggregates up to maxLevels price levels per side, bids from the
// highest price down and asks from the lowest up. maxLevels <= 0 means
// all levels.
func (b *Book) Depth(maxLevels int) (bids, asks []domain.PriceLevel) {
	take := func(out *[]domain.PriceLevel) func(*Level) bool {
		return func(lvl *Level) bool {
			*out = append(*out, domain.PriceLevel{Price: lvl.Price(), Quantity: lvl.TotalQty()})
			return maxLevels <= 0 || len(*out) < maxLevels
		}
	}
	b.bids.descend(take(&bids))
	b.asks.ascend(take(&asks))
	return bids, asks
}
