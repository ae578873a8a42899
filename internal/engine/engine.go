// Package engine is the facade tying the Local Store, Transport State
// Machine, Sync Loop and Event System into the single entry point host
// code constructs, drives, and destroys (§6 "External interfaces").
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nodalsync/engine/internal/events"
	"github.com/nodalsync/engine/internal/model"
	"github.com/nodalsync/engine/internal/store"
	"github.com/nodalsync/engine/internal/syncloop"
	"github.com/nodalsync/engine/internal/transport"
	"github.com/nodalsync/engine/pkg/protocol"
)

// Engine is the opaque handle host code operates on. It owns its Local
// Store, Transport, event Bus and internal worker; none of it is
// shared across instances. The zero value is not usable; construct one
// with New.
type Engine struct {
	store documentStore
	tr    *transport.Transport
	bus   *events.Bus

	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New validates cfg, opens the Local Store, and starts the internal
// worker (Transport State Machine + Sync Loop). ctx bounds only the
// store-open/migrate step; the engine's own lifetime is independent of
// it and ends only on Close.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, newError(protocol.InvalidInput, err)
	}

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, newError(protocol.Database, fmt.Errorf("open local store: %w", err))
	}

	bus := events.NewBus(cfg.EventQueueCap)

	trCfg := transport.Config{
		ServerURL: cfg.ServerURL, Email: cfg.Email, APIKey: cfg.APIKey, APISecret: cfg.APISecret,
		BaseBackoff: cfg.BaseBackoff, MaxBackoff: cfg.MaxBackoff,
		PingInterval: cfg.HeartbeatInterval, PingTimeout: cfg.HeartbeatTimeout,
	}
	hooks := transport.Hooks{
		OnAttempted: func(n int) {
			bus.EmitConnection(events.ConnectionEvent{Kind: events.ConnectionAttempted, AttemptNumber: n})
		},
		OnSucceeded: func() {
			bus.EmitConnection(events.ConnectionEvent{Kind: events.ConnectionSucceeded, Connected: true})
		},
		OnLost: func() {
			bus.EmitConnection(events.ConnectionEvent{Kind: events.ConnectionLost})
		},
		OnAuthFailed: func(reason string) {
			bus.EmitError(fmt.Sprintf("authentication failed: %s", reason))
		},
	}
	tr := transport.New(trCfg, hooks)
	loop := syncloop.New(st, tr, bus, cfg.TombstoneCycles)

	runCtx, cancel := context.WithCancel(context.Background())
	e := &Engine{store: st, tr: tr, bus: bus, cancel: cancel}

	e.wg.Add(2)
	go func() { defer e.wg.Done(); tr.Run(runCtx) }()
	go func() { defer e.wg.Done(); loop.Run(runCtx) }()

	return e, nil
}

// CreateDocument enqueues body as a new document and returns its id.
func (e *Engine) CreateDocument(ctx context.Context, body json.RawMessage) (string, error) {
	m, err := e.store.PutLocal(ctx, "", body)
	if err != nil {
		return "", mapStoreErr(err)
	}
	e.emitDocument(events.DocumentCreated, m.Document)
	return m.Document.ID, nil
}

// UpdateDocument replaces the body of an existing document. Unlike the
// Local Store's put_local (which creates when id is unknown), the
// engine's update_document requires the document to already exist: an
// unknown id is InvalidInput, per §7.
func (e *Engine) UpdateDocument(ctx context.Context, id string, body json.RawMessage) error {
	if _, err := e.store.Get(ctx, id); err != nil {
		return mapStoreErr(err)
	}
	m, err := e.store.PutLocal(ctx, id, body)
	if err != nil {
		return mapStoreErr(err)
	}
	e.emitDocument(events.DocumentUpdated, m.Document)
	return nil
}

// DeleteDocument tombstones (or, if never synced, physically removes)
// the document with the given id. Idempotent on an already-tombstoned
// document.
func (e *Engine) DeleteDocument(ctx context.Context, id string) error {
	m, err := e.store.DeleteLocal(ctx, id)
	if err != nil {
		return mapStoreErr(err)
	}
	e.emitDocument(events.DocumentDeleted, m.Document)
	return nil
}

// GetDocument returns the full record for id, or InvalidInput if it
// does not exist (or is tombstoned).
func (e *Engine) GetDocument(ctx context.Context, id string) (model.Document, error) {
	doc, err := e.store.Get(ctx, id)
	if err != nil {
		return model.Document{}, mapStoreErr(err)
	}
	return doc, nil
}

// GetAllDocuments returns every live document ordered by updated_at
// descending.
func (e *Engine) GetAllDocuments(ctx context.Context) ([]model.Document, error) {
	docs, err := e.store.List(ctx)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	live := docs[:0]
	for _, d := range docs {
		if !d.Deleted {
			live = append(live, d)
		}
	}
	return live, nil
}

// CountDocuments returns the number of live (non-tombstoned) documents.
func (e *Engine) CountDocuments(ctx context.Context) (uint64, error) {
	n, err := e.store.CountLive(ctx)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	return n, nil
}

// CountPendingSync returns the number of unacknowledged local changes.
func (e *Engine) CountPendingSync(ctx context.Context) (uint64, error) {
	n, err := e.store.CountPending(ctx)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	return n, nil
}

// IsConnected reports whether the Transport State Machine currently
// holds an authenticated session.
func (e *Engine) IsConnected() bool {
	return e.tr.State() == transport.Connected
}

// ConfigureSearch replaces the configured JSON-path expressions and
// rebuilds the FTS index from them.
func (e *Engine) ConfigureSearch(ctx context.Context, paths []string) error {
	if err := e.store.ConfigureSearch(ctx, paths); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// SearchDocuments runs an FTS query against the configured index.
func (e *Engine) SearchDocuments(ctx context.Context, query string, limit int) ([]model.Document, error) {
	docs, err := e.store.Search(ctx, query, limit)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return docs, nil
}

// RebuildSearchIndex re-derives the FTS content from the currently
// configured paths.
func (e *Engine) RebuildSearchIndex(ctx context.Context) error {
	if err := e.store.RebuildSearchIndex(ctx); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// RegisterDocumentCallback replaces the Document event callback slot.
// filter, if non-nil, restricts delivery to that one kind.
func (e *Engine) RegisterDocumentCallback(filter *events.DocumentEventKind, cb events.DocumentCallback) {
	e.bus.OnDocument(filter, cb)
}

// RegisterSyncCallback replaces the Sync event callback slot.
func (e *Engine) RegisterSyncCallback(cb events.SyncCallback) { e.bus.OnSync(cb) }

// RegisterErrorCallback replaces the Error event callback slot.
func (e *Engine) RegisterErrorCallback(cb events.ErrorCallback) { e.bus.OnError(cb) }

// RegisterConnectionCallback replaces the Connection event callback
// slot.
func (e *Engine) RegisterConnectionCallback(cb events.ConnectionCallback) { e.bus.OnConnection(cb) }

// RegisterConflictCallback replaces the Conflict event callback slot.
func (e *Engine) RegisterConflictCallback(cb events.ConflictCallback) { e.bus.OnConflict(cb) }

// ProcessEvents drains every currently queued event, dispatching each
// to its registered callback on the calling goroutine, and returns the
// number delivered. It never blocks waiting for new events.
func (e *Engine) ProcessEvents() uint32 {
	return uint32(e.bus.Process())
}

// Close stops the internal worker, closes the transport, drains and
// discards any un-consumed events, clears all registered callbacks,
// and releases the store. It is synchronous and idempotent.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.cancel()
	e.wg.Wait()
	e.bus.Drain()
	e.bus.Clear()
	return mapStoreErr(e.store.Close())
}

func (e *Engine) emitDocument(kind events.DocumentEventKind, doc model.Document) {
	e.bus.EmitDocument(events.DocumentEvent{Kind: kind, ID: doc.ID, Title: doc.Title(), Body: doc.Body})
}
