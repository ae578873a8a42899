// Package events implements the cross-thread Event System (§4.5): a
// single multi-producer, single-consumer queue partitioned into five
// typed categories, drained by host code via Process.
package events

import (
	"encoding/json"

	"github.com/nodalsync/engine/pkg/protocol"
)

// Category identifies which typed family an event belongs to.
type Category int

const (
	CategoryDocument Category = iota
	CategorySync
	CategoryError
	CategoryConnection
	CategoryConflict

	categoryCount
)

// DocumentEventKind is the Document category's sub-kind.
type DocumentEventKind int

const (
	DocumentCreated DocumentEventKind = iota
	DocumentUpdated
	DocumentDeleted
)

// WireCode returns the stable numeric event-kind code (spec.md §6)
// this sub-kind is reported under at the host boundary.
func (k DocumentEventKind) WireCode() protocol.EventKind {
	switch k {
	case DocumentCreated:
		return protocol.DocumentCreated
	case DocumentUpdated:
		return protocol.DocumentUpdated
	default:
		return protocol.DocumentDeleted
	}
}

// DocumentEvent carries a local-store mutation outcome.
type DocumentEvent struct {
	Kind  DocumentEventKind
	ID    string
	Title string
	Body  json.RawMessage
}

// Code returns this event's stable numeric wire code.
func (e DocumentEvent) Code() protocol.EventKind { return e.Kind.WireCode() }

// SyncEventKind is the Sync category's sub-kind.
type SyncEventKind int

const (
	SyncStarted SyncEventKind = iota
	SyncCompleted
)

// WireCode returns the stable numeric event-kind code this sub-kind is
// reported under at the host boundary.
func (k SyncEventKind) WireCode() protocol.EventKind {
	if k == SyncStarted {
		return protocol.SyncStarted
	}
	return protocol.SyncCompleted
}

// SyncEvent marks the start or completion of a sync loop pass.
type SyncEvent struct {
	Kind          SyncEventKind
	DocumentCount int // populated only for SyncCompleted
}

// Code returns this event's stable numeric wire code.
func (e SyncEvent) Code() protocol.EventKind { return e.Kind.WireCode() }

// ErrorEvent carries a free-form sync error description.
type ErrorEvent struct {
	Message string
}

// Code returns this event's stable numeric wire code. The Error
// category has no sub-kinds, so it always reports protocol.SyncError.
func (e ErrorEvent) Code() protocol.EventKind { return protocol.SyncError }

// ConnectionEventKind is the Connection category's sub-kind.
type ConnectionEventKind int

const (
	ConnectionLost ConnectionEventKind = iota
	ConnectionAttempted
	ConnectionSucceeded
)

// WireCode returns the stable numeric event-kind code this sub-kind is
// reported under at the host boundary.
func (k ConnectionEventKind) WireCode() protocol.EventKind {
	switch k {
	case ConnectionLost:
		return protocol.ConnectionLost
	case ConnectionAttempted:
		return protocol.ConnectionAttempted
	default:
		return protocol.ConnectionSucceeded
	}
}

// ConnectionEvent reports a transport state transition.
type ConnectionEvent struct {
	Kind          ConnectionEventKind
	Connected     bool // true only for ConnectionSucceeded
	AttemptNumber int  // populated only for ConnectionAttempted
}

// Code returns this event's stable numeric wire code.
func (e ConnectionEvent) Code() protocol.EventKind { return e.Kind.WireCode() }

// ConflictEvent reports a last-writer-wins resolution between a pending
// local change and an incoming server change.
type ConflictEvent struct {
	ID          string
	WinningBody json.RawMessage
	LosingBody  json.RawMessage
}

// Code returns this event's stable numeric wire code. The Conflict
// category has no sub-kinds, so it always reports
// protocol.ConflictDetected.
func (e ConflictEvent) Code() protocol.EventKind { return protocol.ConflictDetected }
