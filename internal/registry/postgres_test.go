package registry

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkm/pgstac-mosaic/internal/mosaic"
	"github.com/rkm/pgstac-mosaic/internal/stac"
)

var columns = []string{"hash", "search", "metadata", "created_at", "lastused", "usecount"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestPostgresStore_Register(t *testing.T) {
	mock := newMock(t)
	store := NewPostgresStore(mock)

	def := definition("sentinel-2-l2a")
	id, err := Fingerprint(def)
	require.NoError(t, err)
	search, err := CanonicalJSON(def)
	require.NoError(t, err)

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO mosaic_searches (hash, search, metadata)")).
		WithArgs(id, string(search), `{"type":"mosaic","name":"s2"}`).
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow(id, search, []byte(`{"type":"mosaic","name":"s2"}`), created, created, int64(1)))

	entry, err := store.Register(context.Background(), def, mosaic.Metadata{Name: "s2"})
	require.NoError(t, err)
	assert.Equal(t, id, entry.ID)
	assert.Equal(t, def, entry.Definition)
	assert.Equal(t, "s2", entry.Metadata.Name)
	assert.Equal(t, created, entry.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RegisterKeepFirstDoesNotOverwriteMetadata(t *testing.T) {
	mock := newMock(t)
	store := NewPostgresStore(mock, WithMetadataPolicy(KeepFirst))

	def := definition("landsat")
	id, _ := Fingerprint(def)
	search, _ := CanonicalJSON(def)
	now := time.Now().UTC()

	mock.ExpectQuery(`ON CONFLICT \(hash\) DO UPDATE SET\s+lastused = now\(\),\s+usecount = mosaic_searches.usecount \+ 1\s+RETURNING`).
		WithArgs(id, string(search), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow(id, search, []byte(`{"type":"mosaic","name":"first"}`), now, now, int64(2)))

	entry, err := store.Register(context.Background(), def, mosaic.Metadata{Name: "second"})
	require.NoError(t, err)
	assert.Equal(t, "first", entry.Metadata.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RegisterInvalidMetadataSkipsBackend(t *testing.T) {
	mock := newMock(t)
	store := NewPostgresStore(mock)

	_, err := store.Register(context.Background(), definition("c"), mosaic.Metadata{Type: "other"})
	require.Error(t, err)
	assert.True(t, mosaic.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	mock := newMock(t)
	store := NewPostgresStore(mock)

	def := definition("naip")
	id, _ := Fingerprint(def)
	search, _ := CanonicalJSON(def)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	used := created.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE mosaic_searches")).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(columns).AddRow(id, search, []byte(`{"type":"mosaic"}`), created, used, int64(5)))

	entry, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, used, entry.LastUsed)
	assert.Equal(t, int64(5), entry.UseCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	mock := newMock(t)
	store := NewPostgresStore(mock)
	id := "ffffffffffffffffffffffffffffffff"

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE mosaic_searches")).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Get(context.Background(), id)
	require.Error(t, err)
	assert.True(t, mosaic.IsNotFound(err))
	assert.Equal(t, "SearchId `"+id+"` not found", err.Error())
}

func TestPostgresStore_PeekDoesNotUpdate(t *testing.T) {
	mock := newMock(t)
	store := NewPostgresStore(mock)
	id := "ffffffffffffffffffffffffffffffff"

	mock.ExpectQuery(`^SELECT hash, search, metadata, created_at, lastused, usecount FROM mosaic_searches WHERE hash = \$1$`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Peek(context.Background(), id)
	assert.True(t, mosaic.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TimeoutIsBackendUnavailable(t *testing.T) {
	mock := newMock(t)
	store := NewPostgresStore(mock, WithTimeout(time.Second))

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE mosaic_searches")).
		WithArgs("abc").
		WillReturnError(context.DeadlineExceeded)

	_, err := store.Get(context.Background(), "abc")
	require.Error(t, err)
	assert.True(t, mosaic.IsBackendUnavailable(err))
	assert.False(t, mosaic.IsNotFound(err))
}

func TestPostgresStore_StatementTimeoutIsBackendUnavailable(t *testing.T) {
	mock := newMock(t)
	store := NewPostgresStore(mock)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE mosaic_searches")).
		WithArgs("abc").
		WillReturnError(&pgconn.PgError{Code: "57014", Message: "canceling statement due to statement timeout"})

	_, err := store.Get(context.Background(), "abc")
	require.Error(t, err)
	assert.True(t, mosaic.IsBackendUnavailable(err))
}

func TestPostgresStore_OtherErrorsAreWrapped(t *testing.T) {
	mock := newMock(t)
	store := NewPostgresStore(mock)
	boom := errors.New("relation does not exist")

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE mosaic_searches")).
		WithArgs("abc").
		WillReturnError(boom)

	_, err := store.Get(context.Background(), "abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, mosaic.IsBackendUnavailable(err))
}

func TestPostgresStore_List(t *testing.T) {
	mock := newMock(t)
	store := NewPostgresStore(mock)

	def := definition("a")
	id, _ := Fingerprint(def)
	search, _ := CanonicalJSON(def)
	now := time.Now().UTC()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM mosaic_searches WHERE metadata->>$1::text = $2::text")).
		WithArgs("owner", "team-0").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE metadata->>$1::text = $2::text ORDER BY metadata->$3::text DESC, seq ASC LIMIT $4 OFFSET $5")).
		WithArgs("owner", "team-0", "num", 1, 1).
		WillReturnRows(pgxmock.NewRows(columns).AddRow(id, search, []byte(`{"type":"mosaic","num":2}`), now, now, int64(1)))
	mock.ExpectCommit()

	res, err := store.List(context.Background(), ListParams{
		Filters: []stac.MetadataFilter{{Key: "owner", Value: "team-0"}},
		Sortby:  &stac.SortbyItem{Field: "num", Direction: stac.SortDesc},
		Limit:   1,
		Offset:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Matched)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, id, res.Entries[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRollsBackOnError(t *testing.T) {
	mock := newMock(t)
	store := NewPostgresStore(mock)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM mosaic_searches")).
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	_, err := store.List(context.Background(), ListParams{})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildPage(t *testing.T) {
	tests := []struct {
		name     string
		params   ListParams
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "default order",
			params:   ListParams{Limit: 10},
			wantSQL:  " ORDER BY seq ASC LIMIT $1",
			wantArgs: []any{10},
		},
		{
			name:     "last used",
			params:   ListParams{Sortby: &stac.SortbyItem{Field: stac.SortLastUsed, Direction: stac.SortDesc}},
			wantSQL:  " ORDER BY lastused DESC, seq ASC",
			wantArgs: []any{},
		},
		{
			name:     "metadata key ascending",
			params:   ListParams{Sortby: &stac.SortbyItem{Field: "num", Direction: stac.SortAsc}, Offset: 2},
			wantSQL:  " ORDER BY metadata->$1::text ASC, seq ASC OFFSET $2",
			wantArgs: []any{"num", 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := buildPage("", nil, tt.params)
			assert.Equal(t, "SELECT "+entryColumns+" FROM mosaic_searches"+tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}
