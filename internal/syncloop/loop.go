// Package syncloop drives the Outbound Queue drain and Inbound Apply
// dispatch: it pulls pending changes off the Local Store in FIFO order,
// sends them over the transport, correlates acks by document id, and
// applies inbound change frames as they arrive.
package syncloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nodalsync/engine/internal/events"
	"github.com/nodalsync/engine/internal/model"
	"github.com/nodalsync/engine/internal/store"
	"github.com/nodalsync/engine/internal/transport"
	"github.com/nodalsync/engine/pkg/protocol"
)

const (
	ackTimeout        = 30 * time.Second
	idlePollInterval  = 200 * time.Millisecond
	reconnectPollTick = 200 * time.Millisecond
)

// Loop is the engine's internal worker: it owns no state of its own
// beyond in-flight ack correlation, delegating everything durable to
// the Store and everything observable to the Bus.
type Loop struct {
	store           *store.Store
	tr              *transport.Transport
	bus             *events.Bus
	tombstoneCycles int

	mu      sync.Mutex
	waiters map[string]chan protocol.ServerFrame
}

// New constructs a Loop over the given Store, Transport and event Bus.
// tombstoneCycles is the number of full reconnect cycles a tombstone
// must survive before it becomes eligible for local purge; a value
// <= 0 defaults to 1.
func New(st *store.Store, tr *transport.Transport, bus *events.Bus, tombstoneCycles int) *Loop {
	if tombstoneCycles <= 0 {
		tombstoneCycles = 1
	}
	return &Loop{
		store:           st,
		tr:              tr,
		bus:             bus,
		tombstoneCycles: tombstoneCycles,
		waiters:         make(map[string]chan protocol.ServerFrame),
	}
}

// Run blocks until ctx is cancelled, driving inbound dispatch, outbound
// drain, and tombstone-purge-on-reconnect concurrently.
func (l *Loop) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); l.dispatchInbound(ctx) }()
	go func() { defer wg.Done(); l.drainOutbound(ctx) }()
	go func() { defer wg.Done(); l.watchReconnects(ctx) }()
	wg.Wait()
}

func (l *Loop) dispatchInbound(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-l.tr.Inbound():
			if !ok {
				return
			}
			l.handleInbound(ctx, frame)
		}
	}
}

func (l *Loop) handleInbound(ctx context.Context, frame protocol.ServerFrame) {
	switch frame.Type {
	case protocol.TypeAck:
		l.deliverWaiter(frame.ID, frame)
	case protocol.TypeChange:
		l.applyChange(ctx, frame)
	case protocol.TypeError:
		l.bus.EmitError(frame.Message)
	case protocol.TypePong:
		// Heartbeat liveness is tracked by the transport's read deadline;
		// nothing to do here.
	}
}

func (l *Loop) applyChange(ctx context.Context, frame protocol.ServerFrame) {
	change := store.RemoteChange{
		ID: frame.ID, Op: frame.Op, ServerRevision: frame.ServerRevision,
		Body: frame.Body, UpdatedAt: time.UnixMilli(frame.UpdatedAt).UTC(),
	}
	outcome, err := l.store.ApplyRemote(ctx, change)
	if err != nil {
		l.bus.EmitError(fmt.Sprintf("apply remote change for %s: %v", frame.ID, err))
		return
	}

	switch outcome.Kind {
	case store.ApplyCreated:
		l.emitDocument(events.DocumentCreated, outcome.Document)
	case store.ApplyUpdated:
		l.emitDocument(events.DocumentUpdated, outcome.Document)
	case store.ApplyDeleted:
		l.emitDocument(events.DocumentDeleted, outcome.Document)
	case store.ApplyConflict:
		l.bus.EmitConflict(events.ConflictEvent{
			ID: outcome.Document.ID, WinningBody: outcome.ConflictWinning, LosingBody: outcome.ConflictLosing,
		})
		if outcome.ServerWon {
			kind := events.DocumentUpdated
			if outcome.FollowupKind == store.ApplyDeleted {
				kind = events.DocumentDeleted
			}
			l.emitDocument(kind, outcome.Document)
		}
	case store.ApplyIgnored:
		// Stale or already-applied frame; nothing to surface.
	}
}

func (l *Loop) emitDocument(kind events.DocumentEventKind, doc model.Document) {
	l.bus.EmitDocument(events.DocumentEvent{
		Kind: kind, ID: doc.ID, Title: doc.Title(), Body: doc.Body,
	})
}

func (l *Loop) drainOutbound(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if l.tr.State() != transport.Connected {
			if !sleepCtx(ctx, idlePollInterval) {
				return
			}
			continue
		}

		pending, err := l.store.ListPendingFIFO(ctx)
		if err != nil {
			l.bus.EmitError(fmt.Sprintf("list pending changes: %v", err))
			if !sleepCtx(ctx, idlePollInterval) {
				return
			}
			continue
		}
		if len(pending) == 0 {
			if !sleepCtx(ctx, idlePollInterval) {
				return
			}
			continue
		}

		l.bus.EmitSync(events.SyncEvent{Kind: events.SyncStarted})
		processed := 0
		for _, pc := range pending {
			if ctx.Err() != nil {
				return
			}
			if l.tr.State() != transport.Connected {
				break
			}
			if err := l.sendAndAwaitAck(ctx, pc); err != nil {
				_ = l.store.RecordAttemptFailure(ctx, pc.DocumentID, err)
				break
			}
			processed++
		}
		l.bus.EmitSync(events.SyncEvent{Kind: events.SyncCompleted, DocumentCount: processed})
	}
}

func (l *Loop) sendAndAwaitAck(ctx context.Context, pc model.PendingChange) error {
	ch := make(chan protocol.ServerFrame, 1)
	l.mu.Lock()
	l.waiters[pc.DocumentID] = ch
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.waiters, pc.DocumentID)
		l.mu.Unlock()
	}()

	frame := protocol.Mutation(string(pc.Kind), pc.DocumentID, pc.BodyAtEnqueue, pc.LocalRevisionAtEnqueue)
	if err := l.tr.Send(frame); err != nil {
		return fmt.Errorf("send mutation: %w", err)
	}

	select {
	case ack := <-ch:
		return l.store.AckPending(ctx, pc.DocumentID, ack.ServerRevision)
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(ackTimeout):
		return errors.New("ack timeout")
	}
}

func (l *Loop) deliverWaiter(id string, frame protocol.ServerFrame) {
	l.mu.Lock()
	ch := l.waiters[id]
	l.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- frame:
	default:
	}
}

// watchReconnects purges tombstones once they have survived
// tombstoneCycles full reconnect cycles, the Open Question resolution
// for tombstone quiescence: a tombstone acknowledged before an earlier
// disconnect is safe to remove once the client has proven, across that
// many reconnects, that it can still reach the server.
func (l *Loop) watchReconnects(ctx context.Context) {
	ticker := time.NewTicker(reconnectPollTick)
	defer ticker.Stop()

	prev := transport.Disconnected
	var lastConnectAt time.Time
	connectCount := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := l.tr.State()
			if cur == transport.Connected && prev != transport.Connected {
				connectCount++
				if connectCount > l.tombstoneCycles {
					_, _ = l.store.PurgeTombstones(ctx, lastConnectAt)
				}
				lastConnectAt = time.Now().UTC()
			}
			prev = cur
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
