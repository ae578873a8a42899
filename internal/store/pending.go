package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nodalsync/engine/internal/model"
)

// ListPendingFIFO returns every pending change ordered by last
// modification (enqueued_at ascending), the coalesced-FIFO order the
// Outbound Queue drains in per §4.2.
func (s *Store) ListPendingFIFO(ctx context.Context) ([]model.PendingChange, error) {
	var out []model.PendingChange
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT document_id, kind, body, local_revision_at_enqueue, attempts, last_error, enqueued_at
			FROM pending_changes
			ORDER BY enqueued_at ASC`)
		if err != nil {
			return fmt.Errorf("list pending query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			pc, err := scanPending(rows)
			if err != nil {
				return err
			}
			out = append(out, pc)
		}
		return rows.Err()
	})
	return out, err
}

// RecordAttemptFailure increments attempts and records the error for a
// pending change, leaving it at the head of the queue (§4.2 "Attempt
// accounting").
func (s *Store) RecordAttemptFailure(ctx context.Context, documentID string, sendErr error) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE pending_changes SET attempts = attempts + 1, last_error = ?
			WHERE document_id = ?`, sendErr.Error(), documentID)
		if err != nil {
			return fmt.Errorf("record attempt failure: %w", err)
		}
		return nil
	})
}

// AckPending removes the pending change for documentID and atomically
// sets the document's sync_revision, per §4.2 "On ack". If the document
// was tombstoned and this ack was for its delete, the row is physically
// removed once the configured number of reconnect cycles has elapsed;
// callers track that cycle count and call PurgeTombstones separately, so
// AckPending itself only updates sync_revision and clears the queue
// entry, matching the conservative removal rule decided in
// SPEC_FULL.md §9.
func (s *Store) AckPending(ctx context.Context, documentID string, serverRevision int64) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_changes WHERE document_id = ?`, documentID); err != nil {
			return fmt.Errorf("ack delete pending: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE documents SET sync_revision = ? WHERE id = ?`, serverRevision, documentID); err != nil {
			return fmt.Errorf("ack update sync_revision: %w", err)
		}
		return nil
	})
}

// RejectCreate rolls a document's sync_revision back to 0 after the
// server rejects a client-chosen id on create, per the open-question
// resolution in SPEC_FULL.md §9. The pending change (still a create) is
// left in place so the next drain cycle retries it.
func (s *Store) RejectCreate(ctx context.Context, documentID string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE documents SET sync_revision = 0 WHERE id = ?`, documentID)
		if err != nil {
			return fmt.Errorf("reject create: %w", err)
		}
		return nil
	})
}

// PurgeTombstones physically removes tombstoned documents that have no
// pending change (their delete was acknowledged) and whose updated_at is
// at or before olderThan, a cutoff time the caller derives from its
// reconnect-cycle count. It returns the number of rows removed.
func (s *Store) PurgeTombstones(ctx context.Context, olderThan time.Time) (int, error) {
	var n int
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT d.id FROM documents d
			LEFT JOIN pending_changes p ON p.document_id = d.id
			WHERE d.deleted = 1 AND p.document_id IS NULL AND d.updated_at <= ?`, olderThan.UnixNano())
		if err != nil {
			return fmt.Errorf("purge query: %w", err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("purge scan: %w", err)
			}
			ids = append(ids, id)
		}
		rows.Close()

		for _, id := range ids {
			if err := deleteDocumentRow(ctx, tx, id); err != nil {
				return err
			}
			if err := removeFromIndex(ctx, tx, id); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func getPending(ctx context.Context, tx *sql.Tx, documentID string) (model.PendingChange, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT document_id, kind, body, local_revision_at_enqueue, attempts, last_error, enqueued_at
		FROM pending_changes WHERE document_id = ?`, documentID)
	pc, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PendingChange{}, model.ErrNotFound
	}
	return pc, err
}

func upsertPending(ctx context.Context, tx *sql.Tx, pc model.PendingChange) error {
	var body any
	if pc.BodyAtEnqueue != nil {
		body = string(pc.BodyAtEnqueue)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO pending_changes (document_id, kind, body, local_revision_at_enqueue, attempts, last_error, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			kind = excluded.kind,
			body = excluded.body,
			local_revision_at_enqueue = excluded.local_revision_at_enqueue,
			attempts = excluded.attempts,
			enqueued_at = excluded.enqueued_at`,
		pc.DocumentID, string(pc.Kind), body, pc.LocalRevisionAtEnqueue, pc.Attempts, pc.LastError, pc.EnqueuedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert pending: %w", err)
	}
	return nil
}

func deletePendingRow(ctx context.Context, tx *sql.Tx, documentID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_changes WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete pending row: %w", err)
	}
	return nil
}

func scanPending(row scannable) (model.PendingChange, error) {
	var (
		pc          model.PendingChange
		kind        string
		body        sql.NullString
		lastErr     sql.NullString
		enqueuedNs  int64
	)
	if err := row.Scan(&pc.DocumentID, &kind, &body, &pc.LocalRevisionAtEnqueue, &pc.Attempts, &lastErr, &enqueuedNs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PendingChange{}, model.ErrNotFound
		}
		return model.PendingChange{}, fmt.Errorf("scan pending: %w", err)
	}
	pc.Kind = model.PendingChangeKind(kind)
	if body.Valid {
		pc.BodyAtEnqueue = json.RawMessage(body.String)
	}
	pc.LastError = lastErr.String
	pc.EnqueuedAt = time.Unix(0, enqueuedNs).UTC()
	return pc, nil
}
