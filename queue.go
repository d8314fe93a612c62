package hsm

import (
	"slices"
	"sync"
)

// delivery is an event and the active states it is addressed to. A nil
// holders list addresses every region.
type delivery struct {
	event   Event
	holders []slot
}

// handOff moves delivery d from the removed states to the added ones. It
// reports whether any holder was removed.
func (d *delivery) handOff(removed, added []slot) bool {
	kept := slices.DeleteFunc(slices.Clone(d.holders), func(s slot) bool {
		return slices.Contains(removed, s)
	})
	if len(kept) == len(d.holders) {
		return false
	}
	d.holders = append(kept, added...)
	return true
}

// queue holds events waiting for the instance. Replayed deferred events go
// to the front in their original order; everything else is first in, first
// out.
type queue struct {
	mutex sync.Mutex
	front []delivery // stack, last element pops first
	back  []delivery
}

func (q *queue) len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.front) + len(q.back)
}

func (q *queue) pop() (delivery, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	switch {
	case len(q.front) > 0:
		next := q.front[len(q.front)-1]
		q.front = q.front[:len(q.front)-1]
		return next, true
	case len(q.back) > 0:
		next := q.back[0]
		q.back = q.back[1:]
		return next, true
	default:
		return delivery{}, false
	}
}

func (q *queue) push(events ...Event) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for _, event := range events {
		q.back = append(q.back, delivery{event: event})
	}
}

// requeue puts deliveries ahead of everything queued, preserving their order.
func (q *queue) requeue(deliveries ...delivery) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for i := len(deliveries) - 1; i >= 0; i-- {
		q.front = append(q.front, deliveries[i])
	}
}
