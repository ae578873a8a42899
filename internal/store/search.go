package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nodalsync/engine/internal/model"
	"github.com/nodalsync/engine/internal/search"
)

// ConfigureSearch replaces the configured JSON-path expressions and
// rebuilds the index from scratch, per §4.6 "rebuilt on configure".
func (s *Store) ConfigureSearch(ctx context.Context, paths []string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if err := setSearchConfig(ctx, tx, paths); err != nil {
			return err
		}
		return reindexAll(ctx, tx, paths)
	})
}

// RebuildSearchIndex re-derives the FTS content from the currently
// configured paths without changing the configuration.
func (s *Store) RebuildSearchIndex(ctx context.Context) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		paths, err := getSearchConfig(ctx, tx)
		if err != nil {
			return err
		}
		return reindexAll(ctx, tx, paths)
	})
}

// SearchConfig returns the currently configured JSON-path expressions,
// in order.
func (s *Store) SearchConfig(ctx context.Context) ([]string, error) {
	var paths []string
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		p, err := getSearchConfig(ctx, tx)
		if err != nil {
			return err
		}
		paths = p
		return nil
	})
	return paths, err
}

// Search runs an FTS5 query and returns matching documents ranked by
// relevance, ties broken by updated_at descending, per §4.6.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]model.Document, error) {
	if limit <= 0 {
		limit = 50
	}
	var docs []model.Document
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT d.id, d.body, d.sync_revision, d.local_revision, d.updated_at, d.deleted
			FROM documents_fts f
			JOIN documents d ON d.id = f.id
			WHERE f.content MATCH ? AND d.deleted = 0
			ORDER BY bm25(documents_fts), d.updated_at DESC
			LIMIT ?`, query, limit)
		if err != nil {
			return fmt.Errorf("search query: %w", err)
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

func setSearchConfig(ctx context.Context, tx *sql.Tx, paths []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM search_config`); err != nil {
		return fmt.Errorf("clear search config: %w", err)
	}
	for i, p := range paths {
		if _, err := tx.ExecContext(ctx, `INSERT INTO search_config (position, json_path) VALUES (?, ?)`, i, p); err != nil {
			return fmt.Errorf("insert search config: %w", err)
		}
	}
	return nil
}

func getSearchConfig(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT json_path FROM search_config ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("query search config: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan search config: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// reindexDocument maintains the FTS row for a single document inside
// the caller's transaction, using whatever paths are currently
// configured.
func reindexDocument(ctx context.Context, tx *sql.Tx, d model.Document) error {
	paths, err := getSearchConfig(ctx, tx)
	if err != nil {
		return err
	}
	return reindexOne(ctx, tx, d, paths)
}

func reindexOne(ctx context.Context, tx *sql.Tx, d model.Document, paths []string) error {
	if err := removeFromIndex(ctx, tx, d.ID); err != nil {
		return err
	}
	if len(paths) == 0 || d.Deleted {
		return nil
	}
	content := search.Extract(d.Body, paths)
	if content == "" {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO documents_fts (id, content) VALUES (?, ?)`, d.ID, content); err != nil {
		return fmt.Errorf("insert fts row: %w", err)
	}
	return nil
}

func removeFromIndex(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents_fts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove fts row: %w", err)
	}
	return nil
}

func reindexAll(ctx context.Context, tx *sql.Tx, paths []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents_fts`); err != nil {
		return fmt.Errorf("clear fts: %w", err)
	}
	if len(paths) == 0 {
		return nil
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT id, body, sync_revision, local_revision, updated_at, deleted
		FROM documents WHERE deleted = 0`)
	if err != nil {
		return fmt.Errorf("reindex query: %w", err)
	}
	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			rows.Close()
			return err
		}
		docs = append(docs, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, d := range docs {
		if err := reindexOne(ctx, tx, d, paths); err != nil {
			return err
		}
	}
	return nil
}
