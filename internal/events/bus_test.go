package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus()

	var received []PluginEvent
	bus.Subscribe(PluginInstalled, func(payload interface{}) {
		event, ok := payload.(PluginEvent)
		require.True(t, ok)
		received = append(received, event)
	})

	bus.Publish(PluginInstalled, PluginEvent{Identifier: "example_addon", NewVersion: "1.0.0"})
	bus.Publish(PluginUpdated, PluginEvent{Identifier: "other_addon"})

	require.Len(t, received, 1)
	assert.Equal(t, "example_addon", received[0].Identifier)
	assert.Equal(t, "1.0.0", received[0].NewVersion)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.Publish(SnapshotCreated, SnapshotEvent{Filename: "snapshot_2025-01-01_00-00-00.fpb"})
	})
}

func TestPanickingHandlerDoesNotBlockOthers(t *testing.T) {
	bus := NewBus()

	bus.Subscribe(SnapshotDeleted, func(interface{}) {
		panic("listener bug")
	})

	called := false
	bus.Subscribe(SnapshotDeleted, func(interface{}) {
		called = true
	})

	assert.NotPanics(t, func() {
		bus.Publish(SnapshotDeleted, SnapshotEvent{Filename: "snapshot_2025-01-01_00-00-00.fpb"})
	})
	assert.True(t, called)
}
