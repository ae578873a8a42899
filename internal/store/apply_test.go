package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyRemote_CreateWithNoLocalRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	out, err := s.ApplyRemote(ctx, RemoteChange{
		ID: "11111111-1111-1111-1111-111111111111", Op: "create",
		ServerRevision: 1, Body: []byte(`{"v":1}`), UpdatedAt: time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, ApplyCreated, out.Kind)

	got, err := s.Get(ctx, out.Document.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.SyncRevision)
	require.Equal(t, int64(0), got.LocalRevision)
}

func TestApplyRemote_DeleteWithNoLocalRowIgnored(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	out, err := s.ApplyRemote(ctx, RemoteChange{
		ID: "22222222-2222-2222-2222-222222222222", Op: "delete", ServerRevision: 1,
	})
	require.NoError(t, err)
	require.Equal(t, ApplyIgnored, out.Kind)
}

func TestApplyRemote_NoPendingOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m, err := s.PutLocal(ctx, "", []byte(`{"v":1}`))
	require.NoError(t, err)
	require.NoError(t, s.AckPending(ctx, m.Document.ID, 1))

	out, err := s.ApplyRemote(ctx, RemoteChange{
		ID: m.Document.ID, Op: "update", ServerRevision: 2,
		Body: []byte(`{"v":2}`), UpdatedAt: time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, ApplyUpdated, out.Kind)

	got, err := s.Get(ctx, m.Document.ID)
	require.NoError(t, err)
	require.JSONEq(t, `{"v":2}`, string(got.Body))
	require.Equal(t, int64(2), got.SyncRevision)
}

func TestApplyRemote_IgnoresStaleRevision(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m, err := s.PutLocal(ctx, "", []byte(`{"v":1}`))
	require.NoError(t, err)
	require.NoError(t, s.AckPending(ctx, m.Document.ID, 5))

	out, err := s.ApplyRemote(ctx, RemoteChange{
		ID: m.Document.ID, Op: "update", ServerRevision: 5,
		Body: []byte(`{"v":"stale"}`), UpdatedAt: time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, ApplyIgnored, out.Kind)

	got, err := s.Get(ctx, m.Document.ID)
	require.NoError(t, err)
	require.JSONEq(t, `{"v":1}`, string(got.Body))
}

func TestApplyRemote_ConflictServerWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	local := time.Now().Add(-1 * time.Hour)
	server := time.Now()

	m, err := s.PutLocal(ctx, "", []byte(`{"v":"local"}`))
	require.NoError(t, err)
	require.NoError(t, forceUpdatedAt(ctx, s, m.Document.ID, local))

	out, err := s.ApplyRemote(ctx, RemoteChange{
		ID: m.Document.ID, Op: "update", ServerRevision: 7,
		Body: []byte(`{"v":"server"}`), UpdatedAt: server,
	})
	require.NoError(t, err)
	require.Equal(t, ApplyConflict, out.Kind)
	require.True(t, out.ServerWon)
	require.JSONEq(t, `{"v":"server"}`, string(out.ConflictWinning))
	require.JSONEq(t, `{"v":"local"}`, string(out.ConflictLosing))

	got, err := s.Get(ctx, m.Document.ID)
	require.NoError(t, err)
	require.JSONEq(t, `{"v":"server"}`, string(got.Body))

	pending, err := s.ListPendingFIFO(ctx)
	require.NoError(t, err)
	require.Empty(t, pending, "server win discards the pending change")
}

func TestApplyRemote_ConflictLocalWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	local := time.Now()
	server := time.Now().Add(-1 * time.Hour)

	m, err := s.PutLocal(ctx, "", []byte(`{"v":"local"}`))
	require.NoError(t, err)
	require.NoError(t, forceUpdatedAt(ctx, s, m.Document.ID, local))

	out, err := s.ApplyRemote(ctx, RemoteChange{
		ID: m.Document.ID, Op: "update", ServerRevision: 9,
		Body: []byte(`{"v":"server"}`), UpdatedAt: server,
	})
	require.NoError(t, err)
	require.Equal(t, ApplyConflict, out.Kind)
	require.False(t, out.ServerWon)

	got, err := s.Get(ctx, m.Document.ID)
	require.NoError(t, err)
	require.JSONEq(t, `{"v":"local"}`, string(got.Body), "local wins: body untouched")
	require.Equal(t, int64(9), got.SyncRevision, "revision still advances so the next push carries the right base")

	pending, err := s.ListPendingFIFO(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1, "local win retains the pending change")
}

func TestApplyRemote_ConflictExactTieFavorsServer(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tie := time.Now()

	m, err := s.PutLocal(ctx, "", []byte(`{"v":"local"}`))
	require.NoError(t, err)
	require.NoError(t, forceUpdatedAt(ctx, s, m.Document.ID, tie))

	out, err := s.ApplyRemote(ctx, RemoteChange{
		ID: m.Document.ID, Op: "update", ServerRevision: 11,
		Body: []byte(`{"v":"server"}`), UpdatedAt: tie,
	})
	require.NoError(t, err)
	require.Equal(t, ApplyConflict, out.Kind)
	require.True(t, out.ServerWon, "an exact updated_at tie must favor the server")

	got, err := s.Get(ctx, m.Document.ID)
	require.NoError(t, err)
	require.JSONEq(t, `{"v":"server"}`, string(got.Body))

	pending, err := s.ListPendingFIFO(ctx)
	require.NoError(t, err)
	require.Empty(t, pending, "server win discards the pending change")
}

func forceUpdatedAt(ctx context.Context, s *Store, id string, at time.Time) error {
	_, err := s.DB().ExecContext(ctx, `UPDATE documents SET updated_at = ? WHERE id = ?`, at.UnixNano(), id)
	return err
}
