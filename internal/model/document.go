// Package model holds the data types persisted by the Local Store:
// documents, pending changes, and the errors the store surfaces. It has
// no dependency on how those rows are stored (sqlite) or moved over the
// wire (protocol), so it can be imported by every layer above the store.
package model

import (
	"encoding/json"
	"time"
)

// Document is a JSON-bodied record identified by a UUID. Body is kept as
// a json.RawMessage: the store never interprets its contents.
type Document struct {
	ID            string          `json:"id"`
	Body          json.RawMessage `json:"body"`
	SyncRevision  int64           `json:"sync_revision"`
	LocalRevision int64           `json:"local_revision"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Deleted       bool            `json:"deleted"`
}

// Title extracts the "title" string field from Body, or "" if absent or
// the body isn't a JSON object with a string title.
func (d Document) Title() string {
	if len(d.Body) == 0 {
		return ""
	}
	var probe struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(d.Body, &probe); err != nil {
		return ""
	}
	return probe.Title
}

// PendingChangeKind enumerates the three shapes an unsynced local
// mutation can take.
type PendingChangeKind string

const (
	PendingCreate PendingChangeKind = "create"
	PendingUpdate PendingChangeKind = "update"
	PendingDelete PendingChangeKind = "delete"
)

// PendingChange describes one document's unsynced local mutation. There
// is at most one PendingChange per document (invariant 4 in spec §3).
type PendingChange struct {
	DocumentID             string            `json:"document_id"`
	Kind                   PendingChangeKind `json:"kind"`
	BodyAtEnqueue          json.RawMessage   `json:"body_at_enqueue,omitempty"`
	LocalRevisionAtEnqueue int64             `json:"local_revision_at_enqueue"`
	Attempts               int               `json:"attempts"`
	LastError              string            `json:"last_error,omitempty"`
	EnqueuedAt             time.Time         `json:"enqueued_at"`
}
