package events

import (
	"fmt"
	"sync"
)

// DefaultQueueCap is the soft cap on queued-but-undelivered events,
// per §4.5 "Queue bound".
const DefaultQueueCap = 16384

type entry struct {
	seq      uint64
	category Category
	payload  any
}

// DocumentCallback, SyncCallback, ErrorCallback, ConnectionCallback and
// ConflictCallback are the five per-category callback shapes. One slot
// exists per category; registering again replaces the previous slot.
type (
	DocumentCallback   func(DocumentEvent)
	SyncCallback       func(SyncEvent)
	ErrorCallback      func(ErrorEvent)
	ConnectionCallback func(ConnectionEvent)
	ConflictCallback   func(ConflictEvent)
)

// Bus is one engine instance's event queue plus its registered
// callback slots. Producers call the Emit* methods from any goroutine;
// only the goroutine calling Process ever runs callbacks.
type Bus struct {
	mu    sync.Mutex
	seq   uint64
	cap   int
	queue []entry

	// dropped tracks, per category, the running total of events evicted
	// by queue overflow. Unexported: read only via DroppedCount, which
	// exists so tests can assert on §8's "exactly one overflow event
	// per episode" property mechanically instead of by log-scraping.
	dropped [categoryCount]uint64

	docCB     DocumentCallback
	docFilter *DocumentEventKind

	syncCB     SyncCallback
	errCB      ErrorCallback
	connCB     ConnectionCallback
	conflictCB ConflictCallback
}

// NewBus constructs a Bus with the given soft queue cap. A cap <= 0
// uses DefaultQueueCap.
func NewBus(cap int) *Bus {
	if cap <= 0 {
		cap = DefaultQueueCap
	}
	return &Bus{cap: cap}
}

// OnDocument registers the Document callback. filter, if non-nil,
// restricts delivery to that one DocumentEventKind; nil delivers all
// kinds.
func (b *Bus) OnDocument(filter *DocumentEventKind, cb DocumentCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docCB = cb
	b.docFilter = filter
}

// OnSync registers the Sync callback.
func (b *Bus) OnSync(cb SyncCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.syncCB = cb
}

// OnError registers the Error callback.
func (b *Bus) OnError(cb ErrorCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errCB = cb
}

// OnConnection registers the Connection callback.
func (b *Bus) OnConnection(cb ConnectionCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connCB = cb
}

// OnConflict registers the Conflict callback.
func (b *Bus) OnConflict(cb ConflictCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conflictCB = cb
}

// Clear removes all registered callbacks, per the engine shutdown
// sequence's "no late enqueue can reach freed host state".
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docCB, b.docFilter = nil, nil
	b.syncCB, b.errCB, b.connCB, b.conflictCB = nil, nil, nil, nil
}

func (b *Bus) EmitDocument(e DocumentEvent) { b.emit(CategoryDocument, e) }
func (b *Bus) EmitSync(e SyncEvent)         { b.emit(CategorySync, e) }
func (b *Bus) EmitError(message string)     { b.emit(CategoryError, ErrorEvent{Message: message}) }
func (b *Bus) EmitConnection(e ConnectionEvent) { b.emit(CategoryConnection, e) }
func (b *Bus) EmitConflict(e ConflictEvent)     { b.emit(CategoryConflict, e) }

func (b *Bus) emit(category Category, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) >= b.cap {
		dropped := b.evictOldestLocked(category)
		b.dropped[category] += uint64(dropped)
		b.seq++
		b.queue = append(b.queue, entry{
			seq: b.seq, category: CategoryError,
			payload: ErrorEvent{Message: fmt.Sprintf("event queue overflow: dropped %d", dropped)},
		})
	}

	b.seq++
	b.queue = append(b.queue, entry{seq: b.seq, category: category, payload: payload})
}

// evictOldestLocked drops the oldest queued entries belonging to
// category until the queue has room for the new entry plus the
// overflow Error event, per §4.5's overflow rule. Called with mu held.
func (b *Bus) evictOldestLocked(category Category) int {
	target := b.cap - 2
	if target < 0 {
		target = 0
	}
	dropped := 0
	for len(b.queue) > target {
		idx := -1
		for i, e := range b.queue {
			if e.category == category {
				idx = i
				break
			}
		}
		if idx == -1 {
			break
		}
		b.queue = append(b.queue[:idx], b.queue[idx+1:]...)
		dropped++
	}
	return dropped
}

// Process drains every currently queued event, dispatching each to its
// registered callback in enqueue order, and returns the number of
// events actually delivered (categories with no registered callback,
// or Document events excluded by the filter, are dropped and not
// counted). It never blocks waiting for new events.
func (b *Bus) Process() int {
	b.mu.Lock()
	batch := b.queue
	b.queue = nil
	docCB, docFilter := b.docCB, b.docFilter
	syncCB, errCB, connCB, conflictCB := b.syncCB, b.errCB, b.connCB, b.conflictCB
	b.mu.Unlock()

	delivered := 0
	for _, e := range batch {
		switch e.category {
		case CategoryDocument:
			if docCB == nil {
				continue
			}
			de := e.payload.(DocumentEvent)
			if docFilter != nil && *docFilter != de.Kind {
				continue
			}
			docCB(de)
			delivered++
		case CategorySync:
			if syncCB == nil {
				continue
			}
			syncCB(e.payload.(SyncEvent))
			delivered++
		case CategoryError:
			if errCB == nil {
				continue
			}
			errCB(e.payload.(ErrorEvent))
			delivered++
		case CategoryConnection:
			if connCB == nil {
				continue
			}
			connCB(e.payload.(ConnectionEvent))
			delivered++
		case CategoryConflict:
			if conflictCB == nil {
				continue
			}
			conflictCB(e.payload.(ConflictEvent))
			delivered++
		}
	}
	return delivered
}

// Drain discards every currently queued event without dispatching,
// used during engine shutdown.
func (b *Bus) Drain() {
	b.mu.Lock()
	b.queue = nil
	b.mu.Unlock()
}

// DroppedCount returns the running total of events evicted from
// category by queue overflow since the Bus was constructed.
func (b *Bus) DroppedCount(category Category) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped[category]
}
