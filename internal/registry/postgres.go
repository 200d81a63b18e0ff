package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rkm/pgstac-mosaic/internal/db"
	"github.com/rkm/pgstac-mosaic/internal/mosaic"
	"github.com/rkm/pgstac-mosaic/internal/stac"
)

// DB is the subset of *pgxpool.Pool used by the stores. Each call acquires a
// pooled connection for its own duration only.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

const entryColumns = `hash, search, metadata, created_at, lastused, usecount`

const registerLastWriteWinsSQL = `
	INSERT INTO mosaic_searches (hash, search, metadata)
	VALUES ($1, $2::jsonb, $3::jsonb)
	ON CONFLICT (hash) DO UPDATE SET
		lastused = now(),
		usecount = mosaic_searches.usecount + 1,
		metadata = EXCLUDED.metadata
	RETURNING ` + entryColumns

const registerKeepFirstSQL = `
	INSERT INTO mosaic_searches (hash, search, metadata)
	VALUES ($1, $2::jsonb, $3::jsonb)
	ON CONFLICT (hash) DO UPDATE SET
		lastused = now(),
		usecount = mosaic_searches.usecount + 1
	RETURNING ` + entryColumns

const getSQL = `
	UPDATE mosaic_searches
	SET lastused = now(), usecount = usecount + 1
	WHERE hash = $1
	RETURNING ` + entryColumns

const peekSQL = `SELECT ` + entryColumns + ` FROM mosaic_searches WHERE hash = $1`

// PostgresStore persists entries in the mosaic_searches table.
type PostgresStore struct {
	db   DB
	opts options
}

// NewPostgresStore creates a store over db.
func NewPostgresStore(db DB, opts ...Option) *PostgresStore {
	return &PostgresStore{db: db, opts: buildOptions(opts)}
}

// Register implements Store with a single INSERT ... ON CONFLICT statement,
// so concurrent first registrations of one id resolve to one row.
func (s *PostgresStore) Register(ctx context.Context, def mosaic.SearchDefinition, md mosaic.Metadata) (*mosaic.Entry, error) {
	if err := md.Validate(); err != nil {
		return nil, err
	}
	search, err := CanonicalJSON(def)
	if err != nil {
		return nil, err
	}
	id, err := Fingerprint(def)
	if err != nil {
		return nil, err
	}
	meta, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	query := registerLastWriteWinsSQL
	if s.opts.policy == KeepFirst {
		query = registerKeepFirstSQL
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	entry, err := scanEntry(s.db.QueryRow(ctx, query, id, string(search), string(meta)))
	if err != nil {
		return nil, classify("register", err)
	}
	return entry, nil
}

// Get implements Store. The touch and the read are one UPDATE ... RETURNING.
func (s *PostgresStore) Get(ctx context.Context, id string) (*mosaic.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	entry, err := scanEntry(s.db.QueryRow(ctx, getSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &mosaic.NotFoundError{ID: id}
		}
		return nil, classify("get", err)
	}
	return entry, nil
}

// Peek implements Store.
func (s *PostgresStore) Peek(ctx context.Context, id string) (*mosaic.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	entry, err := scanEntry(s.db.QueryRow(ctx, peekSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &mosaic.NotFoundError{ID: id}
		}
		return nil, classify("peek", err)
	}
	return entry, nil
}

// List implements Store. The count and the page are read in one repeatable
// read transaction so matched and entries agree.
func (s *PostgresStore) List(ctx context.Context, params ListParams) (*ListResult, error) {
	where, args := buildWhere(params.Filters)
	countSQL := `SELECT count(*) FROM mosaic_searches` + where
	pageSQL, pageArgs := buildPage(where, args, params)

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, classify("list", err)
	}

	result, err := s.list(ctx, tx, countSQL, args, pageSQL, pageArgs)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, classify("list", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, classify("list", err)
	}
	return result, nil
}

func (s *PostgresStore) list(ctx context.Context, tx pgx.Tx, countSQL string, countArgs []any, pageSQL string, pageArgs []any) (*ListResult, error) {
	var matched int64
	if err := tx.QueryRow(ctx, countSQL, countArgs...).Scan(&matched); err != nil {
		return nil, fmt.Errorf("count searches: %w", err)
	}

	rows, err := tx.Query(ctx, pageSQL, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("query searches: %w", err)
	}
	defer rows.Close()

	result := &ListResult{Entries: make([]*mosaic.Entry, 0), Matched: int(matched)}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result.Entries = append(result.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate searches: %w", err)
	}
	return result, nil
}

// buildWhere turns metadata equality filters into a parameterized clause.
func buildWhere(filters []stac.MetadataFilter) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(filters))
	args := make([]any, 0, 2*len(filters))
	for _, f := range filters {
		args = append(args, f.Key, f.Value)
		clauses = append(clauses, fmt.Sprintf("metadata->>$%d::text = $%d::text", len(args)-1, len(args)))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// buildPage appends ordering and pagination to the filtered select. Absent
// metadata values sort last ascending and first descending; seq breaks ties
// in registration order.
func buildPage(where string, args []any, params ListParams) (string, []any) {
	pageArgs := make([]any, 0, len(args)+3)
	pageArgs = append(pageArgs, args...)

	var b strings.Builder
	b.WriteString(`SELECT ` + entryColumns + ` FROM mosaic_searches`)
	b.WriteString(where)

	key, desc := sortKey(params.Sortby)
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	switch key {
	case "":
		b.WriteString(" ORDER BY seq ASC")
	case stac.SortLastUsed:
		fmt.Fprintf(&b, " ORDER BY lastused %s, seq ASC", dir)
	default:
		pageArgs = append(pageArgs, key)
		fmt.Fprintf(&b, " ORDER BY metadata->$%d::text %s, seq ASC", len(pageArgs), dir)
	}

	if params.Limit > 0 {
		pageArgs = append(pageArgs, params.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(pageArgs))
	}
	if params.Offset > 0 {
		pageArgs = append(pageArgs, params.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(pageArgs))
	}
	return b.String(), pageArgs
}

func scanEntry(row pgx.Row) (*mosaic.Entry, error) {
	var (
		entry  mosaic.Entry
		search []byte
		meta   []byte
	)
	if err := row.Scan(&entry.ID, &search, &meta, &entry.CreatedAt, &entry.LastUsed, &entry.UseCount); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(search, &entry.Definition); err != nil {
		return nil, fmt.Errorf("decode search %s: %w", entry.ID, err)
	}
	if len(meta) == 0 {
		entry.Metadata = mosaic.DefaultMetadata()
	} else if err := json.Unmarshal(meta, &entry.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", entry.ID, err)
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.LastUsed = entry.LastUsed.UTC()
	return &entry, nil
}

// classify maps connectivity failures and timeouts to BackendUnavailableError.
func classify(op string, err error) error {
	if db.Unavailable(err) {
		return &mosaic.BackendUnavailableError{Op: op, Err: err}
	}
	return fmt.Errorf("%s search: %w", op, err)
}
