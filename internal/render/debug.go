package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mattjoyce/tilegw/internal/config"
)

// Debug is a renderer that draws tile outlines. It exercises the full request
// path without a map engine.
type Debug struct {
	// Delay is added to every render, used to keep handles busy in tests.
	Delay time.Duration

	created atomic.Int64
	closed  atomic.Int64
}

// NewDebug returns a Debug renderer.
func NewDebug() *Debug {
	return &Debug{}
}

// Created reports how many handles were created.
func (d *Debug) Created() int64 { return d.created.Load() }

// Closed reports how many handles were closed.
func (d *Debug) Closed() int64 { return d.closed.Load() }

func (d *Debug) NewHandle(ctx context.Context, cfg *config.Project, kind Kind) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: no project configuration", ErrRenderFailure)
	}
	d.created.Add(1)
	return &Handle{
		ID:      uuid.NewString(),
		Kind:    kind,
		Project: cfg,
		Created: time.Now(),
	}, nil
}

func (d *Debug) CloseHandle(h *Handle) error {
	d.closed.Add(1)
	return nil
}

func (d *Debug) RenderRaster(ctx context.Context, h *Handle, req RasterRequest) (image.Image, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	size := req.Size
	if size <= 0 {
		size = h.Project.TileSize
	}
	if req.Scale > 1 {
		size = int(float64(size) * req.Scale)
	}
	bg, err := ParseColor(h.Project.Background)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailure, err)
	}
	return outline(size, size, bg), nil
}

func (d *Debug) RenderVector(ctx context.Context, h *Handle, tile Tile) (*geojson.FeatureCollection, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	bound := tile.Bound()

	fc := geojson.NewFeatureCollection()
	outlineFeature := geojson.NewFeature(bound.ToPolygon())
	outlineFeature.Properties["tile"] = tile.String()
	outlineFeature.Properties["kind"] = "outline"
	fc.Append(outlineFeature)

	center := geojson.NewFeature(bound.Center())
	center.Properties["tile"] = tile.String()
	center.Properties["kind"] = "center"
	fc.Append(center)

	for _, layer := range h.Project.Layers {
		f := geojson.NewFeature(bound.Center())
		f.Properties["layer"] = layer.ID
		for k, v := range layer.Properties {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	return fc, nil
}

func (d *Debug) Export(ctx context.Context, cfg *config.Project, opts ExportOptions) (*ExportResult, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	switch strings.ToLower(opts.Format) {
	case "", "png":
		bg, err := ParseColor(cfg.Background)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRenderFailure, err)
		}
		w, h := opts.Width, opts.Height
		if w <= 0 {
			w = cfg.TileSize
		}
		if h <= 0 {
			h = cfg.TileSize
		}
		data, err := EncodePNG(outline(w, h, bg))
		if err != nil {
			return nil, err
		}
		return &ExportResult{Data: data, ContentType: "image/png", Ext: "png"}, nil
	case "json", "geojson":
		bound := opts.Bounds
		if bound.IsEmpty() {
			bound = orb.Bound{Min: orb.Point{-180, -85.0511}, Max: orb.Point{180, 85.0511}}
		}
		fc := geojson.NewFeatureCollection()
		f := geojson.NewFeature(bound.ToPolygon())
		f.Properties["project"] = cfg.Name
		fc.Append(f)
		data, err := EncodeGeoJSON(fc)
		if err != nil {
			return nil, err
		}
		return &ExportResult{Data: data, ContentType: "application/geo+json", Ext: "geojson"}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, opts.Format)
	}
}

func (d *Debug) wait(ctx context.Context) error {
	if d.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// outline fills a w×h image with bg and draws a one pixel darker border.
func outline(w, h int, bg color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)

	edge := color.RGBA{R: bg.R / 2, G: bg.G / 2, B: bg.B / 2, A: 255}
	for x := 0; x < w; x++ {
		img.SetRGBA(x, 0, edge)
		img.SetRGBA(x, h-1, edge)
	}
	for y := 0; y < h; y++ {
		img.SetRGBA(0, y, edge)
		img.SetRGBA(w-1, y, edge)
	}
	return img
}

// ParseColor parses #rgb or #rrggbb. An empty string is white.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(s) {
	case 0:
		return color.RGBA{R: 255, G: 255, B: 255, A: 255}, nil
	case 3:
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	case 6:
	default:
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
