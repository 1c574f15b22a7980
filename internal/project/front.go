package project

import (
	"context"
	"fmt"
	"time"

	"github.com/mattjoyce/tilegw/internal/config"
	"github.com/mattjoyce/tilegw/internal/events"
	"github.com/mattjoyce/tilegw/internal/render"
)

// Front is the project metadata handed to the browser client.
type Front struct {
	config.Project
	URL        string `json:"url"`
	Tiles      string `json:"tiles"`
	Vector     string `json:"vectorTiles"`
	Generation string `json:"generation"`
}

// Front returns client metadata for the installed configuration.
func (p *Project) Front() (*Front, error) {
	ps := p.current.Load()
	if ps == nil {
		return nil, ErrNotLoaded
	}
	return &Front{
		Project:    *ps.cfg,
		URL:        p.url,
		Tiles:      p.url + "tile/{z}/{x}/{y}.png",
		Vector:     p.url + "tile/{z}/{x}/{y}.json",
		Generation: ps.raster.Generation() + "/" + ps.vector.Generation(),
	}, nil
}

// Export renders an export on a raster handle. The handle bounds how many
// exports and raster tiles run at once.
func (p *Project) Export(ctx context.Context, opts render.ExportOptions) (*render.ExportResult, error) {
	started := time.Now()
	lease, err := p.Acquire(ctx, render.KindRaster)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	res, err := p.renderer.Export(ctx, lease.Config, opts)
	ev := events.Export{
		Project:    lease.Config.Name,
		Format:     opts.Format,
		DurationMS: time.Since(started).Milliseconds(),
	}
	if err != nil {
		ev.Error = err.Error()
		p.publish(events.ExportCompleted, ev)
		return nil, fmt.Errorf("export %s: %w", lease.Config.Name, err)
	}
	ev.Bytes = len(res.Data)
	ev.Format = res.Ext
	p.publish(events.ExportCompleted, ev)
	return res, nil
}

// Renderer returns the renderer that builds this project's handles.
func (p *Project) Renderer() render.Renderer { return p.renderer }
