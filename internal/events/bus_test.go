package events

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcess_DeliversInEnqueueOrderAcrossCategories(t *testing.T) {
	b := NewBus(0)

	var order []string
	b.OnDocument(nil, func(e DocumentEvent) { order = append(order, "doc:"+e.ID) })
	b.OnConnection(func(e ConnectionEvent) { order = append(order, "conn") })
	b.OnSync(func(e SyncEvent) { order = append(order, "sync") })

	b.EmitDocument(DocumentEvent{Kind: DocumentCreated, ID: "a"})
	b.EmitConnection(ConnectionEvent{Kind: ConnectionSucceeded, Connected: true})
	b.EmitDocument(DocumentEvent{Kind: DocumentUpdated, ID: "b"})
	b.EmitSync(SyncEvent{Kind: SyncCompleted, DocumentCount: 2})

	n := b.Process()
	require.Equal(t, 4, n)
	assert.Equal(t, []string{"doc:a", "conn", "doc:b", "sync"}, order)
}

func TestProcess_DropsCategoriesWithNoCallback(t *testing.T) {
	b := NewBus(0)
	b.EmitError("boom")
	n := b.Process()
	assert.Equal(t, 0, n, "no callback registered means the event is dropped, not counted")
}

func TestProcess_DrainsOnlyCurrentlyQueuedEvents(t *testing.T) {
	b := NewBus(0)
	var received int
	b.OnSync(func(SyncEvent) { received++ })

	b.EmitSync(SyncEvent{Kind: SyncStarted})
	n := b.Process()
	assert.Equal(t, 1, n)

	// A second emit after Process should not be seen by the first drain.
	b.EmitSync(SyncEvent{Kind: SyncCompleted})
	assert.Equal(t, 1, received, "process already returned before this emit happened")

	n = b.Process()
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, received)
}

func TestOnDocument_FilterRestrictsKind(t *testing.T) {
	b := NewBus(0)
	created := DocumentCreated
	var seen []string
	b.OnDocument(&created, func(e DocumentEvent) { seen = append(seen, e.ID) })

	b.EmitDocument(DocumentEvent{Kind: DocumentCreated, ID: "a"})
	b.EmitDocument(DocumentEvent{Kind: DocumentUpdated, ID: "b"})
	b.EmitDocument(DocumentEvent{Kind: DocumentCreated, ID: "c"})

	n := b.Process()
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "c"}, seen)
}

func TestReRegistration_ReplacesPriorCallback(t *testing.T) {
	b := NewBus(0)
	var firstCalled, secondCalled bool
	b.OnError(func(ErrorEvent) { firstCalled = true })
	b.OnError(func(ErrorEvent) { secondCalled = true })

	b.EmitError("x")
	b.Process()

	assert.False(t, firstCalled)
	assert.True(t, secondCalled)
}

func TestClear_RemovesAllCallbacks(t *testing.T) {
	b := NewBus(0)
	var called bool
	b.OnSync(func(SyncEvent) { called = true })
	b.Clear()

	b.EmitSync(SyncEvent{Kind: SyncStarted})
	n := b.Process()

	assert.Equal(t, 0, n)
	assert.False(t, called)
}

func TestEmit_OverflowDropsOldestAndSignalsError(t *testing.T) {
	b := NewBus(4)
	var errs []string
	b.OnError(func(e ErrorEvent) { errs = append(errs, e.Message) })
	var docs []string
	b.OnDocument(nil, func(e DocumentEvent) { docs = append(docs, e.ID) })

	for i := 0; i < 6; i++ {
		b.EmitDocument(DocumentEvent{Kind: DocumentCreated, ID: fmt.Sprintf("d%d", i)})
	}

	b.Process()

	require.NotEmpty(t, errs, "overflow should have signalled at least one error event")
	assert.Contains(t, errs[0], "event queue overflow")
	assert.NotEmpty(t, docs)
	assert.Greater(t, b.DroppedCount(CategoryDocument), uint64(0))
	assert.Equal(t, uint64(0), b.DroppedCount(CategorySync), "overflow only counts against the overflowing category")
}

func TestDrain_DiscardsWithoutDelivering(t *testing.T) {
	b := NewBus(0)
	var called bool
	b.OnSync(func(SyncEvent) { called = true })

	b.EmitSync(SyncEvent{Kind: SyncStarted})
	b.Drain()

	n := b.Process()
	assert.Equal(t, 0, n)
	assert.False(t, called)
}
