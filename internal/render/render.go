// Package render defines the boundary to the raster renderer that turns
// resolved assets into pixels or statistics.
package render

import (
	"context"
	"errors"
	"net/url"

	"github.com/rkm/pgstac-mosaic/internal/mosaic"
)

// ErrNotImplemented is returned by renderers that do not produce output.
var ErrNotImplemented = errors.New("rendering is not available in this deployment")

// Request describes one rendering call.
type Request struct {
	Entry    *mosaic.Entry
	Assets   []mosaic.AssetMatch
	Geometry mosaic.QueryGeometry
	// Params are the caller's rendering query parameters (assets, expression, rescale...).
	Params url.Values
	// Format is the requested image format extension, empty for the default.
	Format string
}

// Image is an encoded raster.
type Image struct {
	ContentType string
	Data        []byte
}

// Renderer produces images and statistics from resolved assets.
type Renderer interface {
	Render(ctx context.Context, req Request) (*Image, error)
	Statistics(ctx context.Context, req Request) (map[string]any, error)
}

// Unavailable is the Renderer used when no renderer is configured.
type Unavailable struct{}

// Render implements Renderer.
func (Unavailable) Render(context.Context, Request) (*Image, error) {
	return nil, ErrNotImplemented
}

// Statistics implements Renderer.
func (Unavailable) Statistics(context.Context, Request) (map[string]any, error) {
	return nil, ErrNotImplemented
}
