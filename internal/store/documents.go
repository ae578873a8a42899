package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nodalsync/engine/internal/idgen"
	"github.com/nodalsync/engine/internal/model"
)

// Mutation describes the outcome of a local write: the resulting
// Document plus, when one was written or changed, the PendingChange now
// on file for it. Callers (the engine facade) use this to decide which
// events to emit.
type Mutation struct {
	Document      model.Document
	PendingChange *model.PendingChange
	// PhysicallyDeleted is true for the "delete after create" coalescing
	// rule, where the document row never leaves the local store's wire
	// scope and is removed outright rather than tombstoned (§4.2).
	PhysicallyDeleted bool
}

// PutLocal creates a document (id == "") or updates one (id != ""),
// generating an id when absent, bumping local_revision, writing the
// coalesced PendingChange, and maintaining the search index, all inside
// one transaction.
func (s *Store) PutLocal(ctx context.Context, id string, body json.RawMessage) (Mutation, error) {
	if !json.Valid(body) {
		return Mutation{}, model.ErrInvalidBody
	}

	var result Mutation
	now := time.Now().UTC()

	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		creating := id == ""
		if creating {
			id = idgen.New()
		}

		existing, existingPending, err := getForUpdate(ctx, tx, id)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return err
		}
		found := err == nil

		if found && existingPending != nil && existingPending.Kind == model.PendingDelete {
			return model.ErrTombstoned
		}

		var doc model.Document
		var pc model.PendingChange

		switch {
		case !found:
			doc = model.Document{ID: id, Body: body, LocalRevision: 1, UpdatedAt: now}
			pc = model.PendingChange{
				DocumentID: id, Kind: model.PendingCreate, BodyAtEnqueue: body,
				LocalRevisionAtEnqueue: doc.LocalRevision, EnqueuedAt: now,
			}
		case existingPending == nil:
			doc = existing
			doc.Body = body
			doc.LocalRevision++
			doc.UpdatedAt = now
			pc = model.PendingChange{
				DocumentID: id, Kind: model.PendingUpdate, BodyAtEnqueue: body,
				LocalRevisionAtEnqueue: doc.LocalRevision, EnqueuedAt: now,
			}
		default:
			// Coalesce: an update after a pending create stays a create
			// with the replaced body; an update after a pending update
			// just replaces the body (§4.2).
			doc = existing
			doc.Body = body
			doc.LocalRevision++
			doc.UpdatedAt = now
			kind := existingPending.Kind
			pc = model.PendingChange{
				DocumentID: id, Kind: kind, BodyAtEnqueue: body,
				LocalRevisionAtEnqueue: doc.LocalRevision, EnqueuedAt: now,
				Attempts: existingPending.Attempts,
			}
		}

		if err := upsertDocument(ctx, tx, doc); err != nil {
			return err
		}
		if err := upsertPending(ctx, tx, pc); err != nil {
			return err
		}
		if err := reindexDocument(ctx, tx, doc); err != nil {
			return err
		}

		result = Mutation{Document: doc, PendingChange: &pc}
		return nil
	})
	if err != nil {
		return Mutation{}, err
	}
	return result, nil
}

// DeleteLocal tombstones a document, or physically removes it if it was
// never known to the server (pending create). Idempotent on an
// already-tombstoned document.
func (s *Store) DeleteLocal(ctx context.Context, id string) (Mutation, error) {
	var result Mutation
	now := time.Now().UTC()

	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		existing, existingPending, err := getForUpdate(ctx, tx, id)
		if errors.Is(err, model.ErrNotFound) {
			return model.ErrNotFound
		}
		if err != nil {
			return err
		}

		if existing.Deleted && (existingPending == nil || existingPending.Kind == model.PendingDelete) {
			// Already tombstoned: idempotent no-op success.
			result = Mutation{Document: existing, PendingChange: existingPending}
			return nil
		}

		if existingPending != nil && existingPending.Kind == model.PendingCreate {
			// Never known to server: delete it outright, pending change
			// gone with it.
			if err := deleteDocumentRow(ctx, tx, id); err != nil {
				return err
			}
			if err := deletePendingRow(ctx, tx, id); err != nil {
				return err
			}
			if err := removeFromIndex(ctx, tx, id); err != nil {
				return err
			}
			result = Mutation{Document: existing, PhysicallyDeleted: true}
			return nil
		}

		doc := existing
		doc.Deleted = true
		doc.LocalRevision++
		doc.UpdatedAt = now

		pc := model.PendingChange{
			DocumentID: id, Kind: model.PendingDelete,
			LocalRevisionAtEnqueue: doc.LocalRevision, EnqueuedAt: now,
		}
		if existingPending != nil {
			pc.Attempts = existingPending.Attempts
		}

		if err := upsertDocument(ctx, tx, doc); err != nil {
			return err
		}
		if err := upsertPending(ctx, tx, pc); err != nil {
			return err
		}
		if err := removeFromIndex(ctx, tx, id); err != nil {
			return err
		}

		result = Mutation{Document: doc, PendingChange: &pc}
		return nil
	})
	if err != nil {
		return Mutation{}, err
	}
	return result, nil
}

// Get returns the live document with the given id, or model.ErrNotFound
// if there is none or it is tombstoned.
func (s *Store) Get(ctx context.Context, id string) (model.Document, error) {
	var doc model.Document
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		d, err := getDocument(ctx, tx, id)
		if err != nil {
			return err
		}
		if d.Deleted {
			return model.ErrNotFound
		}
		doc = d
		return nil
	})
	return doc, err
}

// List returns every document ordered by updated_at descending, ties
// broken by id, per §4.1.
func (s *Store) List(ctx context.Context) ([]model.Document, error) {
	var docs []model.Document
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, body, sync_revision, local_revision, updated_at, deleted
			FROM documents
			ORDER BY updated_at DESC, id ASC`)
		if err != nil {
			return fmt.Errorf("list query: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			d, err := scanDocument(rows)
			if err != nil {
				return err
			}
			docs = append(docs, d)
		}
		return rows.Err()
	})
	return docs, err
}

// CountLive returns the number of non-deleted documents.
func (s *Store) CountLive(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE deleted = 0`).Scan(&n)
	})
	return n, err
}

// CountPending returns the number of unsynced pending changes.
func (s *Store) CountPending(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_changes`).Scan(&n)
	})
	return n, err
}

// --- row-level helpers shared by documents.go, pending.go, apply.go ---

func getDocument(ctx context.Context, tx *sql.Tx, id string) (model.Document, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, body, sync_revision, local_revision, updated_at, deleted
		FROM documents WHERE id = ?`, id)
	return scanDocumentRow(row)
}

// getForUpdate fetches a document and its pending change (if any) for
// mutation under the write lock. Returns model.ErrNotFound if the
// document row is absent.
func getForUpdate(ctx context.Context, tx *sql.Tx, id string) (model.Document, *model.PendingChange, error) {
	doc, err := getDocument(ctx, tx, id)
	if err != nil {
		return model.Document{}, nil, err
	}
	pc, err := getPending(ctx, tx, id)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return model.Document{}, nil, err
	}
	if errors.Is(err, model.ErrNotFound) {
		return doc, nil, nil
	}
	return doc, &pc, nil
}

func upsertDocument(ctx context.Context, tx *sql.Tx, d model.Document) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, body, sync_revision, local_revision, updated_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			body = excluded.body,
			sync_revision = excluded.sync_revision,
			local_revision = excluded.local_revision,
			updated_at = excluded.updated_at,
			deleted = excluded.deleted`,
		d.ID, string(d.Body), d.SyncRevision, d.LocalRevision, d.UpdatedAt.UnixNano(), boolToInt(d.Deleted))
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

func deleteDocumentRow(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete document row: %w", err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDocumentRow(row *sql.Row) (model.Document, error) {
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Document{}, model.ErrNotFound
	}
	return d, err
}

func scanDocument(row scannable) (model.Document, error) {
	var (
		d            model.Document
		body         string
		updatedAtNs  int64
		deletedInt   int
	)
	if err := row.Scan(&d.ID, &body, &d.SyncRevision, &d.LocalRevision, &updatedAtNs, &deletedInt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Document{}, model.ErrNotFound
		}
		return model.Document{}, fmt.Errorf("scan document: %w", err)
	}
	d.Body = json.RawMessage(body)
	d.UpdatedAt = time.Unix(0, updatedAtNs).UTC()
	d.Deleted = deletedInt != 0
	return d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
