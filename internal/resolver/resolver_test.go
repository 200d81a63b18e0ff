package resolver

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/rkm/pgstac-mosaic/internal/backend"
	"github.com/rkm/pgstac-mosaic/internal/mosaic"
	"github.com/rkm/pgstac-mosaic/internal/registry"
	"github.com/rkm/pgstac-mosaic/internal/tms"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// spyBackend records the queries it is asked to evaluate.
type spyBackend struct {
	backend.AssetBackend
	calls   int
	queries []map[string]any
	limits  []int
}

func (s *spyBackend) Assets(ctx context.Context, query map[string]any, limit int) ([]mosaic.AssetMatch, error) {
	s.calls++
	s.queries = append(s.queries, query)
	s.limits = append(s.limits, limit)
	return s.AssetBackend.Assets(ctx, query, limit)
}

func square(minX, minY, maxX, maxY float64) geom.T {
	return geom.NewBounds(geom.XY).Set(minX, minY, maxX, maxY).Polygon()
}

type fixture struct {
	store    *registry.MemoryStore
	backend  *spyBackend
	resolver *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem, err := backend.NewMemory([]*backend.Item{
		{ID: "a1", Collection: "alpha", Geometry: square(0, 0, 1, 1), Assets: []string{"visual", "nir"}},
		{ID: "a2", Collection: "alpha", Geometry: square(2, 0, 3, 1), Assets: []string{"visual"}},
		{ID: "b1", Collection: "beta", Geometry: square(0, 0, 1, 1), Assets: []string{"data"}},
	}, quietLogger())
	require.NoError(t, err)

	spy := &spyBackend{AssetBackend: mem}
	store := registry.NewMemoryStore()
	r := New(store, spy,
		WithLimit(50),
		WithTracer(noop.NewTracerProvider().Tracer("test")),
		WithLogger(quietLogger()),
	)
	return &fixture{store: store, backend: spy, resolver: r}
}

func (f *fixture) register(t *testing.T, def mosaic.SearchDefinition) string {
	t.Helper()
	e, err := f.store.Register(context.Background(), def, mosaic.DefaultMetadata())
	require.NoError(t, err)
	return e.ID
}

func matchIDs(ms []mosaic.AssetMatch) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}

func TestResolve_PointCoveredByOneItem(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, mosaic.SearchDefinition{Collections: []string{"alpha"}})

	got, err := f.resolver.Resolve(context.Background(), id, mosaic.Point{X: 0.5, Y: 0.5}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
	assert.Equal(t, []string{"visual", "nir"}, got[0].Assets)
	assert.Equal(t, []int{50}, f.backend.limits)
}

func TestResolve_PointOutsideIsEmptyNotError(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, mosaic.SearchDefinition{Collections: []string{"alpha"}})

	got, err := f.resolver.Resolve(context.Background(), id, mosaic.Point{X: 50, Y: 50}, 0)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestResolve_UnknownIDIsNotFound(t *testing.T) {
	f := newFixture(t)
	id := "0123456789abcdef0123456789abcdef"

	geometries := []mosaic.QueryGeometry{
		mosaic.Point{X: 0, Y: 0},
		mosaic.Tile{TileMatrixSet: tms.WebMercatorQuad, Z: 0},
		mosaic.BBox{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1},
		mosaic.Polygon{Geom: square(0, 0, 1, 1)},
	}
	for _, g := range geometries {
		t.Run(g.Kind(), func(t *testing.T) {
			_, err := f.resolver.Resolve(context.Background(), id, g, 0)
			require.Error(t, err)
			assert.True(t, mosaic.IsNotFound(err))
			assert.Contains(t, err.Error(), id)
		})
	}
	assert.Zero(t, f.backend.calls)
}

func TestResolve_FilterComposition(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, mosaic.SearchDefinition{
		Collections: []string{"alpha"},
		IDs:         []string{"a2", "b1"},
	})

	got, err := f.resolver.Resolve(context.Background(), id, mosaic.BBox{MinX: -10, MinY: -10, MaxX: 10, MaxY: 10}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, matchIDs(got))

	got, err = f.resolver.Resolve(context.Background(), id, mosaic.BBox{MinX: 0.1, MinY: 0.1, MaxX: 0.9, MaxY: 0.9}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolve_OutsideRegisteredBBoxStillQueriesBackend(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, mosaic.SearchDefinition{BBox: []float64{0, 0, 1, 1}})

	got, err := f.resolver.Resolve(context.Background(), id, mosaic.Point{X: 2.5, Y: 0.5}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, f.backend.calls)
}

func TestResolve_Tile(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, mosaic.SearchDefinition{Collections: []string{"alpha", "beta"}})

	got, err := f.resolver.Resolve(context.Background(), id, mosaic.Tile{TileMatrixSet: tms.WebMercatorQuad, Z: 0, X: 0, Y: 0}, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "a2", "b1"}, matchIDs(got))

	// z=2 x=0 y=0 is the far north-west corner, away from every item.
	got, err = f.resolver.Resolve(context.Background(), id, mosaic.Tile{Z: 2, X: 0, Y: 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolve_WebMercatorPoint(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, mosaic.SearchDefinition{Collections: []string{"alpha"}})
	x, y := tms.LonLatToMercator(2.5, 0.5)

	got, err := f.resolver.Resolve(context.Background(), id, mosaic.Point{X: x, Y: y, CRS: mosaic.WebMercator}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, matchIDs(got))
}

func TestResolve_TouchesEntry(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, mosaic.SearchDefinition{Collections: []string{"alpha"}})

	_, err := f.resolver.Resolve(context.Background(), id, mosaic.Point{X: 0.5, Y: 0.5}, 0)
	require.NoError(t, err)

	e, err := f.store.Peek(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.UseCount)
}

func TestResolve_ExplicitLimit(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, mosaic.SearchDefinition{Collections: []string{"alpha", "beta"}})

	got, err := f.resolver.Resolve(context.Background(), id, mosaic.BBox{MinX: -1, MinY: -1, MaxX: 4, MaxY: 2}, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, []int{1}, f.backend.limits)
}

func TestResolve_InvalidGeometry(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, mosaic.SearchDefinition{Collections: []string{"alpha"}})

	tests := []struct {
		name string
		g    mosaic.QueryGeometry
	}{
		{"unknown tile matrix set", mosaic.Tile{TileMatrixSet: "LINZAntarticaMapTilegrid", Z: 0}},
		{"tile out of range", mosaic.Tile{TileMatrixSet: tms.WebMercatorQuad, Z: 1, X: 5, Y: 0}},
		{"inverted bbox", mosaic.BBox{MinX: 1, MinY: 0, MaxX: 0, MaxY: 1}},
		{"unsupported crs", mosaic.Point{X: 1, Y: 1, CRS: "EPSG:32633"}},
		{"empty polygon", mosaic.Polygon{}},
		{"missing geometry", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.resolver.Resolve(context.Background(), id, tt.g, 0)
			require.Error(t, err)
			assert.True(t, mosaic.IsValidation(err), "got %v", err)
		})
	}
	assert.Zero(t, f.backend.calls)
}

func TestResolveEntry_LeavesUsageAlone(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, mosaic.SearchDefinition{Collections: []string{"alpha"}})
	ctx := context.Background()

	entry, err := f.store.Peek(ctx, id)
	require.NoError(t, err)
	before := entry.UseCount

	for _, g := range []mosaic.QueryGeometry{mosaic.Point{X: 0.5, Y: 0.5}, mosaic.Point{X: 2.5, Y: 0.5}} {
		got, err := f.resolver.ResolveEntry(ctx, entry, g, 0)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	}

	after, err := f.store.Peek(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before, after.UseCount)
	assert.Equal(t, 2, f.backend.calls)
}

func TestResolve_BackendUnavailable(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, mosaic.SearchDefinition{Collections: []string{"alpha"}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	r := New(registryWithoutContext{f.store}, f.backend, WithLogger(quietLogger()))
	_, err := r.Resolve(ctx, id, mosaic.Point{X: 0.5, Y: 0.5}, 0)
	require.Error(t, err)
	assert.True(t, mosaic.IsBackendUnavailable(err))
	assert.False(t, mosaic.IsNotFound(err))
}

// registryWithoutContext ignores cancellation so the backend sees it first.
type registryWithoutContext struct {
	store *registry.MemoryStore
}

func (r registryWithoutContext) Get(_ context.Context, id string) (*mosaic.Entry, error) {
	return r.store.Get(context.Background(), id)
}

func TestQuery(t *testing.T) {
	filter := map[string]any{"op": "=", "args": []any{map[string]any{"property": "platform"}, "sat-1"}}
	def := mosaic.SearchDefinition{
		Collections: []string{"c1"},
		IDs:         []string{"i1", "i2"},
		BBox:        []float64{0, 0, 10, 10},
		Filter:      filter,
	}

	q, err := Query(def, geom.NewPointFlat(geom.XY, []float64{1, 2}))
	require.NoError(t, err)

	got, err := json.Marshal(q)
	require.NoError(t, err)
	want := `{"args":[` +
		`{"args":[{"property":"platform"},"sat-1"],"op":"="},` +
		`{"args":[{"property":"collection"},["c1"]],"op":"in"},` +
		`{"args":[{"property":"id"},["i1","i2"]],"op":"in"},` +
		`{"args":[{"property":"geometry"},{"bbox":[0,0,10,10]}],"op":"s_intersects"},` +
		`{"args":[{"property":"geometry"},{"coordinates":[1,2],"type":"Point"}],"op":"s_intersects"}` +
		`],"op":"and"}`
	assert.JSONEq(t, want, string(got))
}

func TestQuery_OmitsAbsentTerms(t *testing.T) {
	q, err := Query(mosaic.SearchDefinition{}, nil)
	require.NoError(t, err)
	assert.Nil(t, q)

	q, err = Query(mosaic.SearchDefinition{Collections: []string{"c1"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "in", q["op"])
}
