// Package notify fans committed audit entries out to subscribers after the
// owning transaction has committed.
package notify

import (
	"io"
	"log/slog"
	"sync"

	"github.com/rpggio/fabtrack/internal/domain/audit"
)

// Handler receives one committed batch. Each subscription drains its own queue on a
// goroutine, so a handler sees batches in publish order and never concurrently.
type Handler func(entries []audit.Entry)

type subscription struct {
	handler Handler
	mu      sync.Mutex
	queue   [][]audit.Entry
	running bool
}

// Bus is an in-memory publish/subscribe bus keyed by entity type.
// The empty entity type subscribes to every entry.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bus{
		subs:   make(map[string][]*subscription),
		logger: logger,
	}
}

// Subscribe registers handler for entries of entityType, or all entries when entityType is "".
func (b *Bus) Subscribe(entityType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[entityType] = append(b.subs[entityType], &subscription{handler: handler})
}

// Publish queues entries for every matching subscription and returns immediately.
func (b *Bus) Publish(entries []audit.Entry) {
	if len(entries) == 0 {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[""] {
		b.enqueue(sub, entries)
	}
	byType := make(map[string][]audit.Entry)
	for _, e := range entries {
		byType[e.EntityType] = append(byType[e.EntityType], e)
	}
	for entityType, batch := range byType {
		if entityType == "" {
			continue
		}
		for _, sub := range b.subs[entityType] {
			b.enqueue(sub, batch)
		}
	}
}

// Wait blocks until every queued batch has been handled.
func (b *Bus) Wait() {
	b.wg.Wait()
}

func (b *Bus) enqueue(sub *subscription, entries []audit.Entry) {
	batch := make([]audit.Entry, len(entries))
	copy(batch, entries)

	sub.mu.Lock()
	defer sub.mu.Unlock()
	b.wg.Add(1)
	sub.queue = append(sub.queue, batch)
	if !sub.running {
		sub.running = true
		go b.drain(sub)
	}
}

func (b *Bus) drain(sub *subscription) {
	for {
		sub.mu.Lock()
		if len(sub.queue) == 0 {
			sub.running = false
			sub.mu.Unlock()
			return
		}
		batch := sub.queue[0]
		sub.queue[0] = nil
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()

		b.deliver(sub.handler, batch)
		b.wg.Done()
	}
}

func (b *Bus) deliver(handler Handler, batch []audit.Entry) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("notification handler panicked", "panic", r, "entries", len(batch))
		}
	}()
	handler(batch)
}
