package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/nodalsync/engine/internal/model"
)

// RemoteChange is a decoded inbound server frame naming a document
// mutation, per the wire protocol's "change" frame.
type RemoteChange struct {
	ID             string
	Op             string // "create" | "update" | "delete"
	ServerRevision int64
	Body           json.RawMessage // nil for delete
	UpdatedAt      time.Time
}

// ApplyOutcomeKind classifies what ApplyRemote actually did, so the
// caller (the sync loop) knows which events to emit.
type ApplyOutcomeKind int

const (
	ApplyIgnored ApplyOutcomeKind = iota
	ApplyCreated
	ApplyUpdated
	ApplyDeleted
	ApplyConflict
)

// ApplyOutcome describes the result of applying one inbound change.
type ApplyOutcome struct {
	Kind     ApplyOutcomeKind
	Document model.Document

	// Populated only when Kind == ApplyConflict.
	ConflictWinning  json.RawMessage
	ConflictLosing   json.RawMessage
	ServerWon        bool
	// FollowupKind names the Document* event that accompanies a
	// conflict resolution, per §4.4 ("then the corresponding Document*
	// event").
	FollowupKind ApplyOutcomeKind
}

// ApplyRemote merges one server change frame into the Local Store,
// implementing the §4.4 conflict resolution algorithm.
func (s *Store) ApplyRemote(ctx context.Context, change RemoteChange) (ApplyOutcome, error) {
	var out ApplyOutcome

	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		existing, pending, err := getForUpdate(ctx, tx, change.ID)
		notFound := errors.Is(err, model.ErrNotFound)
		if err != nil && !notFound {
			return err
		}

		if notFound {
			if change.Op == protocolDelete {
				out = ApplyOutcome{Kind: ApplyIgnored}
				return nil
			}
			doc := model.Document{
				ID: change.ID, Body: change.Body, SyncRevision: change.ServerRevision,
				LocalRevision: 0, UpdatedAt: change.UpdatedAt,
			}
			if err := upsertDocument(ctx, tx, doc); err != nil {
				return err
			}
			if err := reindexDocument(ctx, tx, doc); err != nil {
				return err
			}
			out = ApplyOutcome{Kind: ApplyCreated, Document: doc}
			return nil
		}

		// Idempotence: ignore frames the client already applied, per §5.
		if change.ServerRevision <= existing.SyncRevision {
			out = ApplyOutcome{Kind: ApplyIgnored, Document: existing}
			return nil
		}

		if pending == nil {
			doc := existing
			doc.SyncRevision = change.ServerRevision
			if change.Op == protocolDelete {
				doc.Deleted = true
			} else {
				doc.Body = change.Body
			}
			if err := upsertDocument(ctx, tx, doc); err != nil {
				return err
			}
			if err := reindexDocument(ctx, tx, doc); err != nil {
				return err
			}
			kind := ApplyUpdated
			if change.Op == protocolDelete {
				kind = ApplyDeleted
			}
			out = ApplyOutcome{Kind: kind, Document: doc}
			return nil
		}

		// Conflict: a pending local change targets the same document.
		// An exact tie favors the server, per the last-writer-wins-by-
		// updated_at-with-server-tie-break policy.
		serverWins := !change.UpdatedAt.Before(existing.UpdatedAt)
		if serverWins {
			doc := existing
			doc.SyncRevision = change.ServerRevision
			if change.Op == protocolDelete {
				doc.Deleted = true
			} else {
				doc.Body = change.Body
			}
			if err := upsertDocument(ctx, tx, doc); err != nil {
				return err
			}
			if err := deletePendingRow(ctx, tx, change.ID); err != nil {
				return err
			}
			if err := reindexDocument(ctx, tx, doc); err != nil {
				return err
			}
			followup := ApplyUpdated
			if change.Op == protocolDelete {
				followup = ApplyDeleted
			}
			out = ApplyOutcome{
				Kind: ApplyConflict, Document: doc, ServerWon: true,
				ConflictWinning: change.Body, ConflictLosing: pending.BodyAtEnqueue,
				FollowupKind: followup,
			}
			return nil
		}

		// Local wins: keep the pending change, but move sync_revision
		// forward so the next push carries the right base revision.
		doc := existing
		doc.SyncRevision = change.ServerRevision
		if err := upsertDocument(ctx, tx, doc); err != nil {
			return err
		}
		out = ApplyOutcome{
			Kind: ApplyConflict, Document: doc, ServerWon: false,
			ConflictWinning: pending.BodyAtEnqueue, ConflictLosing: change.Body,
			FollowupKind: ApplyUpdated,
		}
		return nil
	})
	if err != nil {
		return ApplyOutcome{}, err
	}
	return out, nil
}

const protocolDelete = "delete"
