package events

import (
	"log"
	"sync"
)

// Event kinds emitted by the admin pipelines.
const (
	PluginInstalled   = "plugin.installed"
	PluginUpdated     = "plugin.updated"
	SnapshotCreated   = "snapshot.created"
	SnapshotRestored  = "snapshot.restored"
	SnapshotDeleted   = "snapshot.deleted"
	DatabaseFreshWipe = "database.fresh_restore"
)

// PluginEvent is the payload for plugin.installed and plugin.updated.
type PluginEvent struct {
	Identifier string
	Name       string
	OldVersion string
	NewVersion string
}

// SnapshotEvent is the payload for the snapshot event kinds.
type SnapshotEvent struct {
	Filename  string
	SizeBytes int64
}

// Handler receives a published event payload.
type Handler func(payload interface{})

// Bus is a publish/subscribe channel between the pipelines and any
// interested listeners.
type Bus interface {
	Publish(kind string, payload interface{})
	Subscribe(kind string, handler Handler)
}

// memoryBus dispatches events synchronously in process. Handler panics are
// recovered so a misbehaving listener cannot fail the operation that
// published the event.
type memoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus creates an in-process event bus.
func NewBus() Bus {
	return &memoryBus{handlers: make(map[string][]Handler)}
}

func (b *memoryBus) Subscribe(kind string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], handler)
}

func (b *memoryBus) Publish(kind string, payload interface{}) {
	b.mu.RLock()
	handlers := b.handlers[kind]
	b.mu.RUnlock()

	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Event handler for %s panicked: %v", kind, r)
				}
			}()
			handler(payload)
		}()
	}
}
