package eventbus

import (
	"sync"

	"photonix-core/internal/logging"
	"photonix-core/internal/metrics"
)

// Handler receives a published event. A panic or error from a Handler is
// logged; a handler is removed from its topic after maxFailures consecutive
// failures.
type Handler func(event Event) error

// Event is the payload delivered to subscribers.
type Event struct {
	Topic string
	Data  any
	Trace *TraceContext
}

const maxFailures = 5

type subscription struct {
	handler  Handler
	failures int
}

// Bus is an in-process, synchronous, multi-subscriber topic bus.
type Bus struct {
	mu   sync.Mutex
	subs map[string][]*subscription
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]*subscription)}
}

// Subscribe registers handler on topic and returns an unsubscribe function.
func (b *Bus) Subscribe(topic string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	sub := &subscription{handler: handler}
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[topic]
		for i, s := range list {
			if s == sub {
				b.subs[topic] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers data to every subscriber of topic, synchronously and in
// registration order. Handler panics and errors are logged and counted;
// a handler removed after maxFailures consecutive failures.
func (b *Bus) Publish(topic string, data any, trace *TraceContext) {
	metrics.EventBusPublished.WithLabelValues(topic).Inc()

	b.mu.Lock()
	subs := append([]*subscription(nil), b.subs[topic]...)
	b.mu.Unlock()

	event := Event{Topic: topic, Data: data, Trace: trace}

	var toRemove []*subscription
	for _, sub := range subs {
		if b.invoke(topic, sub, event) {
			sub.failures = 0
		} else {
			sub.failures++
			if sub.failures >= maxFailures {
				toRemove = append(toRemove, sub)
			}
		}
	}

	if len(toRemove) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[topic]
	for _, dead := range toRemove {
		for i, s := range list {
			if s == dead {
				list = append(list[:i], list[i+1:]...)
				metrics.EventBusHandlersRemoved.WithLabelValues(topic).Inc()
				logging.Warn("eventbus: removed handler on topic %q after %d consecutive failures", topic, maxFailures)
				break
			}
		}
	}
	b.subs[topic] = list
}

func (b *Bus) invoke(topic string, sub *subscription, event Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			metrics.EventBusHandlerErrors.WithLabelValues(topic).Inc()
			logging.Error("eventbus: handler on topic %q panicked: %v", topic, r)
			ok = false
		}
	}()

	if err := sub.handler(event); err != nil {
		metrics.EventBusHandlerErrors.WithLabelValues(topic).Inc()
		logging.Error("eventbus: handler on topic %q returned error: %v", topic, err)
		return false
	}
	return true
}

// Topics used across the gallery core.
const (
	TopicItemAdded          = "item-added"
	TopicItemRemoved        = "item-removed"
	TopicThumbnailGenerated = "thumbnail-generated"
	TopicHLSGenerated       = "hls-generated"
	TopicIndexProgress      = "index-progress"
)
