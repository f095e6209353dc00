// Package bus fans activity events out to the callbacks subscribed to them.
package bus

import (
	"container/list"
	"sync"
	"time"

	"eventwall/internal/models"

	"github.com/google/logger"
)

// Handler receives one event. A returned error or a panic is logged and
// does not stop delivery to the other handlers.
type Handler func(models.Event) error

type subscriber struct {
	id      uint64
	handler Handler
}

type topic struct {
	subs  *list.List
	index map[uint64]*list.Element
}

// Bus is a registry of per-activity subscriber sets plus process-wide taps.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]*topic
	taps   []Handler
	next   uint64
	now    func() time.Time
}

func New() *Bus {
	return &Bus{
		topics: make(map[string]*topic),
		now:    time.Now,
	}
}

// Subscribe registers h for activityID and returns a function removing it.
// The returned function may be called any number of times, from any goroutine,
// including from inside h.
func (b *Bus) Subscribe(activityID string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[activityID]
	if !ok {
		t = &topic{subs: list.New(), index: make(map[uint64]*list.Element)}
		b.topics[activityID] = t
	}
	b.next++
	id := b.next
	t.index[id] = t.subs.PushBack(subscriber{id: id, handler: h})

	return func() { b.remove(activityID, id) }
}

func (b *Bus) remove(activityID string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[activityID]
	if !ok {
		return
	}
	el, ok := t.index[id]
	if !ok {
		return
	}
	t.subs.Remove(el)
	delete(t.index, id)
	if t.subs.Len() == 0 {
		delete(b.topics, activityID)
	}
}

// Tap registers a handler that sees every event of every activity, after the
// activity's own subscribers.
func (b *Bus) Tap(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.taps = append(b.taps, h)
}

// Publish delivers an event synchronously, in registration order, then to the
// taps. Publishing with nobody listening is a no-op.
func (b *Bus) Publish(activityID string, typ models.EventType, payload any) {
	b.mu.RLock()
	var handlers []Handler
	if t, ok := b.topics[activityID]; ok {
		handlers = make([]Handler, 0, t.subs.Len()+len(b.taps))
		for el := t.subs.Front(); el != nil; el = el.Next() {
			handlers = append(handlers, el.Value.(subscriber).handler)
		}
	}
	handlers = append(handlers, b.taps...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}
	ev := models.Event{Type: typ, ActivityID: activityID, Payload: payload, At: b.now()}
	for _, h := range handlers {
		deliver(h, ev)
	}
}

func deliver(h Handler, ev models.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("bus: subscriber of %s panicked on %s: %v", ev.ActivityID, ev.Type, r)
		}
	}()
	if err := h(ev); err != nil {
		logger.Warningf("bus: subscriber of %s failed on %s: %v", ev.ActivityID, ev.Type, err)
	}
}

// Release drops every subscriber of activityID.
func (b *Bus) Release(activityID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.topics, activityID)
}

// Subscribers reports how many handlers are registered for activityID.
func (b *Bus) Subscribers(activityID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if t, ok := b.topics[activityID]; ok {
		return t.subs.Len()
	}
	return 0
}

// Topics reports how many activities currently have subscribers.
func (b *Bus) Topics() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics)
}
