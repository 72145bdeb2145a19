package monitor

import (
	"log/slog"
	"sync"

	"github.com/forgeboard/forgeboard/pkg/protocol"
)

// KeyAll subscribes a handler to every dispatched event.
const KeyAll = "*"

// Handler receives dispatched events. Handlers run synchronously on the
// ingestion path; a panicking handler is recovered and logged and never
// prevents other handlers from running.
type Handler func(env *protocol.Envelope)

// Dispatcher fans events out to registered subscribers. Keys may be the
// catch-all, an exact event type (including the synthetic connection.*
// types), or a coarse category from the protocol package. Dispatch order
// is catch-all, then exact type, then category.
type Dispatcher struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
	logger *slog.Logger
}

// Subscription is the handle returned by Subscribe; Unsubscribe removes
// the handler. Unsubscribing twice is a no-op.
type Subscription struct {
	d    *Dispatcher
	key  string
	id   int
	once sync.Once
}

// Unsubscribe removes the subscription's handler from the registry.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.d.mu.Lock()
		defer s.d.mu.Unlock()
		if handlers, ok := s.d.subs[s.key]; ok {
			delete(handlers, s.id)
			if len(handlers) == 0 {
				delete(s.d.subs, s.key)
			}
		}
	})
}

// NewDispatcher creates an empty subscriber registry.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subs:   make(map[string]map[int]Handler),
		logger: slog.Default().With("component", "dispatcher"),
	}
}

// Subscribe registers a handler for the given key and returns its handle.
func (d *Dispatcher) Subscribe(key string, fn Handler) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	if d.subs[key] == nil {
		d.subs[key] = make(map[int]Handler)
	}
	d.subs[key][id] = fn
	return &Subscription{d: d, key: key, id: id}
}

// Dispatch delivers one event to catch-all, exact-type, and category
// subscribers, in that order.
func (d *Dispatcher) Dispatch(env *protocol.Envelope) {
	d.dispatchKey(KeyAll, env)
	d.dispatchKey(env.Type, env)
	if cat := protocol.Category(env.Type); cat != "" {
		d.dispatchKey(cat, env)
	}
}

func (d *Dispatcher) dispatchKey(key string, env *protocol.Envelope) {
	// Snapshot handlers so subscribers can unsubscribe (or subscribe)
	// from inside a callback without deadlocking on the registry lock.
	d.mu.RLock()
	handlers := make([]Handler, 0, len(d.subs[key]))
	for _, fn := range d.subs[key] {
		handlers = append(handlers, fn)
	}
	d.mu.RUnlock()

	for _, fn := range handlers {
		d.invoke(key, env, fn)
	}
}

// invoke runs a single handler, containing any panic.
func (d *Dispatcher) invoke(key string, env *protocol.Envelope, fn Handler) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Subscriber panicked",
				"key", key, "event_type", env.Type, "panic", r)
		}
	}()
	fn(env)
}

// SubscriberCounts returns the number of handlers per key, for the debug
// dump.
func (d *Dispatcher) SubscriberCounts() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	counts := make(map[string]int, len(d.subs))
	for key, handlers := range d.subs {
		counts[key] = len(handlers)
	}
	return counts
}
