package engine

import (
	"container/list"

	"github.com/nathanyu/matching-engine/internal/domain"
)

// stopQueue holds stop and stop-limit orders that have not yet triggered,
// in arrival order. The index gives O(1) removal for cancel and modify.
type stopQueue struct {
	queue *list.List
	index map[domain.OrderID]*list.Element
}

func newStopQueue() *stopQueue {
	return &stopQueue{
		queue: list.New(),
		index: make(map[domain.OrderID]*list.Element),
	}
}

func (s *stopQueue) add(o *domain.Order) {
	s.index[o.ID] = s.queue.PushBack(o)
}

func (s *stopQueue) remove(id domain.OrderID) (*domain.Order, bool) {
	elem, ok := s.index[id]
	if !ok {
		return nil, false
	}
	delete(s.index, id)
	return s.queue.Remove(elem).(*domain.Order), true
}

func (s *stopQueue) contains(id domain.OrderID) bool {
	_, ok := s.index[id]
	return ok
}

func (s *stopQueue) len() int { return s.queue.Len() }

// extractTriggered removes and returns, in held order, every stop whose
// trigger predicate holds at price.
func (s *stopQueue) extractTriggered(price domain.Price) []*domain.Order {
	var fired []*domain.Order
	for elem := s.queue.Front(); elem != nil; {
		next := elem.Next()
		o := elem.Value.(*domain.Order)
		if o.ShouldTrigger(price) {
			s.queue.Remove(elem)
			delete(s.index, o.ID)
			fired = append(fired, o)
		}
		elem = next
	}
	return fired
}
