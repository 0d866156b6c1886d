package book

import (
	"container/list"

	"github.com/nathanyu/matching-engine/internal/domain"
)

// Level is the FIFO queue of resting orders at one price. Queue position
// is arrival order; totalQty is the sum of the remaining quantities of
// the queued orders.
type Level struct {
	price    domain.Price
	queue    *list.List
	totalQty domain.Quantity
}

func newLevel(price domain.Price) *Level {
	return &Level{price: price, queue: list.New()}
}

func (l *Level) Price() domain.Price       { return l.price }
func (l *Level) TotalQty() domain.Quantity { return l.totalQty }
func (l *Level) Len() int                  { return l.queue.Len() }
func (l *Level) Empty() bool               { return l.queue.Len() == 0 }

// push appends an order at the back of the queue and returns its handle
// for O(1) removal later.
func (l *Level) push(o *domain.Order) *list.Element {
	l.totalQty += o.RemainingQty()
	return l.queue.PushBack(o)
}

// unlink removes a resting order by handle and returns it.
func (l *Level) unlink(elem *list.Element) *domain.Order {
	o := l.queue.Remove(elem).(*domain.Order)
	l.totalQty -= o.RemainingQty()
	return o
}

// front returns the order with time priority at this level, nil when the
// level is empty.
func (l *Level) front() *domain.Order {
	if elem := l.queue.Front(); elem != nil {
		return elem.Value.(*domain.Order)
	}
	return nil
}

// settle accounts a fill of qty against the front order. The fill has
// already been applied to the order itself; a front order left with no
// remaining quantity is popped and returned.
func (l *Level) settle(qty domain.Quantity) *domain.Order {
	l.totalQty -= qty
	front := l.queue.Front()
	if front == nil {
		return nil
	}
	o := front.Value.(*domain.Order)
	if o.RemainingQty() > 0 {
		return nil
	}
	l.queue.Remove(front)
	return o
}
