// Package messaging is an in-process message target: producers post typed
// messages, listeners receive them in post order.
package messaging

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Message is one posted unit. Data holds the full JSON body as received.
type Message struct {
	Type   string
	Origin string
	Data   json.RawMessage
}

type Listener func(Message)

// Target dispatches posted messages to its listeners synchronously, in the
// order Post is called. Messages posted from one goroutine are therefore
// delivered FIFO.
type Target struct {
	log zerolog.Logger

	mu        sync.Mutex
	dispatch  sync.Mutex
	listeners map[uint64]Listener
	order     []uint64
	next      uint64
}

func NewTarget(log zerolog.Logger) *Target {
	return &Target{
		log:       log,
		listeners: make(map[uint64]Listener),
	}
}

// AddListener attaches fn and returns a function that detaches it.
func (t *Target) AddListener(fn Listener) (remove func()) {
	t.mu.Lock()
	id := t.next
	t.next++
	t.listeners[id] = fn
	t.order = append(t.order, id)
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { t.removeListener(id) })
	}
}

// Listeners returns the number of attached listeners.
func (t *Target) Listeners() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners)
}

// Post delivers msg to every listener before returning. A listener that
// panics is logged and stays attached. Listeners must not Post to the same
// target.
func (t *Target) Post(msg Message) {
	t.dispatch.Lock()
	defer t.dispatch.Unlock()

	t.mu.Lock()
	fns := make([]Listener, 0, len(t.order))
	for _, id := range t.order {
		fns = append(fns, t.listeners[id])
	}
	t.mu.Unlock()

	for _, fn := range fns {
		t.deliver(fn, msg)
	}
}

func (t *Target) deliver(fn Listener, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error().Interface("panic", r).Str("type", msg.Type).Msg("Message listener panicked")
		}
	}()
	fn(msg)
}

func (t *Target) removeListener(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.listeners, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}
