package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rkm/pgstac-mosaic/internal/db"
	"github.com/rkm/pgstac-mosaic/internal/mosaic"
)

// Querier is the subset of *pgxpool.Pool used by the pgstac backend.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	assetsSQL      = `SELECT id, collection, bbox, assets FROM mosaic_assets($1::jsonb, $2)`
	collectionsSQL = `SELECT id FROM pgstac.collections ORDER BY id`
	versionSQL     = `SELECT pgstac.get_version()`
	readonlySQL    = `SELECT pgstac.readonly()`
	postgresSQL    = `SHOW server_version`
)

// Pgstac implements AssetBackend on a pgstac database through the
// mosaic_assets function.
type Pgstac struct {
	db      Querier
	timeout time.Duration
	logger  *slog.Logger
}

// NewPgstac creates a new pgstac backend. Every query is bounded by timeout.
func NewPgstac(db Querier, timeout time.Duration, logger *slog.Logger) *Pgstac {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Pgstac{db: db, timeout: timeout, logger: logger}
}

// Name returns the backend name.
func (b *Pgstac) Name() string {
	return "pgstac"
}

// Assets implements AssetBackend. Rows keep the order produced by
// mosaic_assets (datetime descending, then id), and asset keys keep the
// order pgstac stores them in.
func (b *Pgstac) Assets(ctx context.Context, query map[string]any, limit int) ([]mosaic.AssetMatch, error) {
	var q []byte
	if len(query) > 0 {
		var err error
		if q, err = json.Marshal(query); err != nil {
			return nil, fmt.Errorf("encode query: %w", err)
		}
	} else {
		q = []byte(`{}`)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	rows, err := b.db.Query(ctx, assetsSQL, string(q), limit)
	if err != nil {
		return nil, classify("assets", err)
	}
	defer rows.Close()

	matches := make([]mosaic.AssetMatch, 0)
	for rows.Next() {
		var (
			m    mosaic.AssetMatch
			bbox []byte
		)
		if err := rows.Scan(&m.ID, &m.Collection, &bbox, &m.Assets); err != nil {
			return nil, classify("assets", err)
		}
		if len(bbox) > 0 {
			if err := json.Unmarshal(bbox, &m.BBox); err != nil {
				return nil, fmt.Errorf("decode bbox of item %s: %w", m.ID, err)
			}
		}
		if m.Assets == nil {
			m.Assets = []string{}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("assets", err)
	}

	b.logger.Debug("resolved assets", "backend", b.Name(), "items", len(matches))
	return matches, nil
}

// Collections implements AssetBackend.
func (b *Pgstac) Collections(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	rows, err := b.db.Query(ctx, collectionsSQL)
	if err != nil {
		return nil, classify("collections", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classify("collections", err)
	}
	return ids, nil
}

// Health implements AssetBackend. A reachable database without pgstac is
// reported online with an empty pgstac version.
func (b *Pgstac) Health(ctx context.Context) (*Health, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	h := &Health{Versions: map[string]string{}}

	var pg string
	if err := b.db.QueryRow(ctx, postgresSQL).Scan(&pg); err != nil {
		return h, classify("health", err)
	}
	h.Online = true
	h.Versions["postgresql"] = pg

	var version string
	if err := b.db.QueryRow(ctx, versionSQL).Scan(&version); err != nil {
		b.logger.Warn("pgstac version unavailable", "error", err)
		return h, nil
	}
	h.Versions["pgstac"] = version

	if err := b.db.QueryRow(ctx, readonlySQL).Scan(&h.ReadOnly); err != nil {
		b.logger.Debug("pgstac readonly flag unavailable", "error", err)
	}
	return h, nil
}

// classify maps connectivity failures and timeouts to BackendUnavailableError.
func classify(op string, err error) error {
	if db.Unavailable(err) {
		return &mosaic.BackendUnavailableError{Op: op, Err: err}
	}
	return fmt.Errorf("pgstac %s: %w", op, err)
}
