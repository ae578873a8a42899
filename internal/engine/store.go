package engine

import (
	"context"
	"encoding/json"

	"github.com/nodalsync/engine/internal/model"
	"github.com/nodalsync/engine/internal/store"
)

//go:generate moq -out store_mock.go . documentStore

// documentStore is the subset of *store.Store the facade calls
// directly. Narrowing it to an interface lets engine_test.go exercise
// error-mapping paths a real sqlite-backed Store can't easily be made
// to fail on demand.
type documentStore interface {
	PutLocal(ctx context.Context, id string, body json.RawMessage) (store.Mutation, error)
	DeleteLocal(ctx context.Context, id string) (store.Mutation, error)
	Get(ctx context.Context, id string) (model.Document, error)
	List(ctx context.Context) ([]model.Document, error)
	CountLive(ctx context.Context) (uint64, error)
	CountPending(ctx context.Context) (uint64, error)
	ConfigureSearch(ctx context.Context, paths []string) error
	Search(ctx context.Context, query string, limit int) ([]model.Document, error)
	RebuildSearchIndex(ctx context.Context) error
	Close() error
}
