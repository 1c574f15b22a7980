// Package render defines the renderer capability used to produce tiles and
// exports for a project, plus a built-in debug renderer.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/mattjoyce/tilegw/internal/config"
)

//go:generate mockgen -destination=mocks/mock_renderer.go -package=mocks github.com/mattjoyce/tilegw/internal/render Renderer

var (
	// ErrRenderFailure wraps any failure of a renderer to produce output.
	ErrRenderFailure = errors.New("render failed")
	// ErrInvalidTile is returned for coordinates outside the tile pyramid.
	ErrInvalidTile = errors.New("invalid tile coordinates")
	// ErrUnsupportedFormat is returned for export formats the renderer cannot produce.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// MaxZoom is the deepest zoom level accepted in tile paths.
const MaxZoom = 30

// Kind selects the renderer flavour a handle is built for.
type Kind string

const (
	KindRaster Kind = "raster"
	KindVector Kind = "vector"
)

// KindFromExt maps a tile path extension to a Kind. Only "json" is vector.
func KindFromExt(ext string) Kind {
	if ext == "json" {
		return KindVector
	}
	return KindRaster
}

// Tile is a z/x/y address in the web mercator pyramid.
type Tile struct {
	maptile.Tile
}

// NewTile validates z/x/y and returns the tile.
func NewTile(z, x, y int) (Tile, error) {
	if z < 0 || z > MaxZoom {
		return Tile{}, fmt.Errorf("%w: zoom %d out of range [0, %d]", ErrInvalidTile, z, MaxZoom)
	}
	limit := 1 << uint(z)
	if x < 0 || x >= limit || y < 0 || y >= limit {
		return Tile{}, fmt.Errorf("%w: %d/%d/%d", ErrInvalidTile, z, x, y)
	}
	return Tile{maptile.New(uint32(x), uint32(y), maptile.Zoom(z))}, nil
}

// ParseTile parses decimal z, x and y strings.
func ParseTile(z, x, y string) (Tile, error) {
	var n [3]int
	for i, s := range [3]string{z, x, y} {
		v, err := strconv.Atoi(s)
		if err != nil {
			return Tile{}, fmt.Errorf("%w: %q is not an integer", ErrInvalidTile, s)
		}
		n[i] = v
	}
	return NewTile(n[0], n[1], n[2])
}

func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// Handle is one renderer instance prepared for a project configuration.
// Handles are owned by exactly one pool.
type Handle struct {
	ID      string
	Kind    Kind
	Project *config.Project
	Created time.Time
}

// RasterRequest describes one raster tile render.
type RasterRequest struct {
	Tile     Tile
	Size     int
	Metatile int
	Scale    float64
}

// ExportOptions are the parameters accepted by /export/.
type ExportOptions struct {
	Format string
	Width  int
	Height int
	Zoom   int
	Bounds orb.Bound
	Scale  float64
}

// ExportResult is the rendered export payload.
type ExportResult struct {
	Data        []byte
	ContentType string
	Ext         string
}

// Renderer produces tiles and exports. Handles are expensive to create and
// are pooled by the caller.
type Renderer interface {
	NewHandle(ctx context.Context, cfg *config.Project, kind Kind) (*Handle, error)
	CloseHandle(h *Handle) error
	RenderRaster(ctx context.Context, h *Handle, req RasterRequest) (image.Image, error)
	RenderVector(ctx context.Context, h *Handle, tile Tile) (*geojson.FeatureCollection, error)
	Export(ctx context.Context, cfg *config.Project, opts ExportOptions) (*ExportResult, error)
}
