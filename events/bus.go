// Package events dispatches committed domain events to in-process
// subscribers.
package events

import (
	"sync"

	"encyclopedia-cms/models"

	"go.uber.org/zap"
)

// Handler receives a committed event. Handlers run on the publisher's
// goroutine and must not block.
type Handler func(event models.DomainEvent)

type Bus struct {
	mu       sync.RWMutex
	handlers map[models.EventKind][]Handler
	all      []Handler
	log      *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[models.EventKind][]Handler),
		log:      log,
	}
}

// Subscribe registers h for the given kinds, or for every kind when none
// are given.
func (b *Bus) Subscribe(h Handler, kinds ...models.EventKind) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(kinds) == 0 {
		b.all = append(b.all, h)
		return
	}
	for _, kind := range kinds {
		b.handlers[kind] = append(b.handlers[kind], h)
	}
}

func (b *Bus) Publish(events ...models.DomainEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, event := range events {
		b.log.Debug("event",
			zap.String("kind", string(event.Kind)),
			zap.String("id", event.ID),
			zap.Uint("article_id", event.ArticleID),
		)
		for _, h := range b.handlers[event.Kind] {
			b.dispatch(h, event)
		}
		for _, h := range b.all {
			b.dispatch(h, event)
		}
	}
}

func (b *Bus) dispatch(h Handler, event models.DomainEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				zap.String("kind", string(event.Kind)),
				zap.Any("panic", r),
			)
		}
	}()
	h(event)
}
