package auth

import (
	"sync"
	"time"
)

// EventType enumerates the domain events the engine publishes.
type EventType string

const (
	EventLoginSuccess           EventType = "auth.login.success"
	EventLoginFailure           EventType = "auth.login.failure"
	EventSessionCreated         EventType = "auth.session.created"
	EventSessionRevoked         EventType = "auth.session.revoked"
	EventTokenRefreshed         EventType = "auth.token.refreshed"
	EventPolicyDenied           EventType = "auth.policy.denied"
	EventPasswordResetRequested EventType = "auth.password.reset.requested"
	EventPasswordResetCompleted EventType = "auth.password.reset.completed"
)

// Event carries a minimal payload: ids plus a reason where applicable.
type Event struct {
	Type       EventType
	UserID     string
	SessionID  string
	TenantID   string
	Reason     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// EventHandler consumes a published event.
type EventHandler func(event Event)

// EventBus is a process-wide synchronous publish/subscribe for domain
// events. Subscribers are registered once at startup; publishing is
// fire-and-forget and a panicking subscriber never fails the triggering
// operation.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]EventHandler
	all         []EventHandler
	logger      Logger
}

// NewEventBus creates an empty bus.
func NewEventBus(logger Logger) *EventBus {
	if logger == nil {
		logger = defLogger{}
	}
	return &EventBus{
		subscribers: map[EventType][]EventHandler{},
		logger:      logger,
	}
}

// Subscribe registers a handler for one event type.
func (b *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish dispatches the event synchronously to every matching subscriber.
// Subscriber failures are isolated so one bad subscriber cannot break the
// publishing operation.
func (b *EventBus) Publish(event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subscribers[event.Type])+len(b.all))
	handlers = append(handlers, b.subscribers[event.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.dispatch(handler, event)
	}
}

func (b *EventBus) dispatch(handler EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("event subscriber panicked", "event", string(event.Type), "panic", r)
		}
	}()
	handler(event)
}
