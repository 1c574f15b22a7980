package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/time/rate"

	"github.com/mattjoyce/tilegw/internal/config"
	"github.com/mattjoyce/tilegw/internal/metrics"
	"github.com/mattjoyce/tilegw/internal/pool"
	"github.com/mattjoyce/tilegw/internal/project"
	"github.com/mattjoyce/tilegw/internal/render"
)

//go:embed templates/main.html
var defaultMainTemplate string

var mainTemplate = template.Must(template.New("main").Parse(defaultMainTemplate))

// ProjectServer dispatches project-relative paths to handlers.
type ProjectServer struct {
	parent   *Server
	project  *project.Project
	metrics  *metrics.Metrics
	logger   *slog.Logger
	loadWait time.Duration
	exports  *rate.Limiter
}

// mainPage is the data passed to the main page template.
type mainPage struct {
	Name        string
	Description string
	Scripts     []string
	Styles      []string
	OptionsURL  string
	PollURL     string
	ReloadURL   string
	Front       *project.Front
}

// Serve handles one request whose path relative to the project mount is rel.
func (ps *ProjectServer) Serve(w http.ResponseWriter, r *http.Request, rel string) {
	m := MatchPath(rel, ps.parent.hasProjectRoute)
	switch m.Route {
	case RouteRedirect:
		ps.parent.Redirect(w, r, ps.parent.ProjectURL())
	case RouteMain:
		ps.handleMain(w, r)
	case RouteOptions:
		ps.handleOptions(w, r)
	case RoutePoll:
		ps.handlePoll(w, r)
	case RouteExport:
		ps.handleExport(w, r)
	case RouteReload:
		ps.handleReload(w, r)
	case RouteProject:
		if fn, ok := ps.parent.projectRoute(m.Path); ok {
			fn(w, r)
			return
		}
		ps.parent.NotFound(w, r)
	case RouteTile:
		ps.handleTile(w, r, m)
	default:
		ps.parent.NotFound(w, r)
	}
}

// waitLoaded defers the request until the project is Loaded. It writes 503
// and returns false if the wait times out.
func (ps *ProjectServer) waitLoaded(w http.ResponseWriter, r *http.Request) bool {
	ctx := r.Context()
	if ps.loadWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ps.loadWait)
		defer cancel()
	}
	if err := ps.project.WaitLoaded(ctx); err != nil {
		msg := "project not loaded"
		if last := ps.project.LastError(); last != nil {
			msg += ": " + last.Error()
		}
		ps.parent.writeError(w, http.StatusServiceUnavailable, msg)
		return false
	}
	return true
}

func (ps *ProjectServer) handleMain(w http.ResponseWriter, r *http.Request) {
	if !ps.waitLoaded(w, r) {
		return
	}
	front, err := ps.project.Front()
	if err != nil {
		ps.parent.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	tmpl, err := ps.template(&front.Project)
	if err != nil {
		ps.logger.Error("main page template", "error", err)
		ps.parent.writeError(w, http.StatusInternalServerError, "main page template: "+err.Error())
		return
	}

	base := ps.parent.ProjectURL()
	page := mainPage{
		Name:        front.Name,
		Description: front.Description,
		Scripts:     front.Scripts,
		Styles:      front.Styles,
		OptionsURL:  base + "options/",
		PollURL:     base + "poll/",
		ReloadURL:   base + "reload/",
		Front:       front,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, page); err != nil {
		ps.logger.Warn("render main page", "error", err)
	}
}

// template returns the project template when ui.template is set, otherwise
// the embedded default.
func (ps *ProjectServer) template(cfg *config.Project) (*template.Template, error) {
	path := cfg.TemplatePath()
	if path == "" {
		return mainTemplate, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return template.New("main").Parse(string(data))
}

func (ps *ProjectServer) handleOptions(w http.ResponseWriter, r *http.Request) {
	if !ps.waitLoaded(w, r) {
		return
	}
	front, err := ps.project.Front()
	if err != nil {
		ps.parent.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	data, err := json.Marshal(front)
	if err != nil {
		ps.parent.writeError(w, http.StatusInternalServerError, "encode project metadata")
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "no-cache")
	fmt.Fprintf(w, "var project = %s;\n", data)
}

func (ps *ProjectServer) handlePoll(w http.ResponseWriter, r *http.Request) {
	msgs := ps.project.Notifications().Drain()
	if ps.metrics != nil {
		ps.metrics.ObservePoll(len(msgs) > 0)
	}
	w.Header().Set("Cache-Control", "no-cache")
	if len(msgs) == 0 {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	respondJSON(w, http.StatusOK, msgs)
}

func (ps *ProjectServer) handleReload(w http.ResponseWriter, r *http.Request) {
	err := ps.project.Reload(r.Context())
	if ps.metrics != nil {
		ps.metrics.ObserveReload(err)
	}
	if err != nil {
		ps.logger.Warn("reload failed", "error", err)
		ps.parent.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, ReloadResponse{Reloaded: true, Generation: ps.project.Generation()})
}

func (ps *ProjectServer) handleExport(w http.ResponseWriter, r *http.Request) {
	opts, err := parseExportOptions(r)
	if err != nil {
		ps.parent.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ps.exports != nil {
		if res := ps.exports.Reserve(); !res.OK() || res.Delay() > 0 {
			wait := res.Delay()
			res.Cancel()
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Round(time.Second)/time.Second)+1))
			ps.parent.writeError(w, http.StatusTooManyRequests, "export rate limit exceeded")
			return
		}
	}
	if !ps.waitLoaded(w, r) {
		return
	}

	res, err := ps.project.Export(context.WithoutCancel(r.Context()), opts)
	if ps.metrics != nil {
		ps.metrics.ObserveExport(err)
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, render.ErrUnsupportedFormat) {
			status = http.StatusBadRequest
		}
		ps.logger.Warn("export failed", "format", opts.Format, "error", err)
		ps.parent.writeError(w, status, err.Error())
		return
	}

	name := ps.parent.config.ProjectName
	if cfg := ps.project.Config(); cfg != nil {
		name = cfg.Slug()
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, name, res.Ext))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	_, _ = w.Write(res.Data)
}

func parseExportOptions(r *http.Request) (render.ExportOptions, error) {
	q := r.URL.Query()
	opts := render.ExportOptions{Format: strings.ToLower(q.Get("format")), Scale: 1}
	if opts.Format == "" {
		opts.Format = "png"
	}

	ints := map[string]*int{"width": &opts.Width, "height": &opts.Height, "zoom": &opts.Zoom}
	for key, dst := range ints {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("%s must be a non-negative integer", key)
		}
		*dst = n
	}
	if v := q.Get("scale"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return opts, fmt.Errorf("scale must be a positive number")
		}
		opts.Scale = f
	}
	if v := q.Get("bbox"); v != "" {
		b, err := parseBBox(v)
		if err != nil {
			return opts, err
		}
		opts.Bounds = b
	}
	return opts, nil
}

// parseBBox parses "minLon,minLat,maxLon,maxLat".
func parseBBox(v string) (orb.Bound, error) {
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox must have four comma separated numbers")
	}
	var n [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox: %q is not a number", p)
		}
		n[i] = f
	}
	if n[0] > n[2] || n[1] > n[3] {
		return orb.Bound{}, fmt.Errorf("bbox minimum exceeds maximum")
	}
	return orb.Bound{Min: orb.Point{n[0], n[1]}, Max: orb.Point{n[2], n[3]}}, nil
}

func (ps *ProjectServer) handleTile(w http.ResponseWriter, r *http.Request, m Match) {
	kind := render.KindFromExt(m.Ext)
	tile, err := render.ParseTile(m.Z, m.X, m.Y)
	if err != nil {
		ps.parent.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ps.waitLoaded(w, r) {
		ps.observeTile(kind, http.StatusServiceUnavailable, 0)
		return
	}

	lease, err := ps.project.Acquire(r.Context(), kind)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		if !errors.Is(err, pool.ErrPoolUnavailable) {
			ps.logger.Warn("acquire renderer", "kind", kind, "error", err)
		}
		ps.observeTile(kind, status, 0)
		ps.parent.writeError(w, status, err.Error())
		return
	}
	defer lease.Release()
	if ps.metrics != nil {
		ps.metrics.ObserveAcquire(string(kind), lease.Wait)
	}

	// The render finishes even if the client goes away; the handle is
	// returned by the deferred Release either way.
	ctx := context.WithoutCancel(r.Context())
	started := time.Now()
	body, contentType, err := ps.renderTile(ctx, lease, kind, tile)
	if err != nil {
		ps.logger.Error("tile render failed", "tile", tile.String(), "kind", kind,
			"generation", lease.Generation(), "error", err)
		ps.observeTile(kind, http.StatusInternalServerError, time.Since(started))
		ps.parent.writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	ps.observeTile(kind, http.StatusOK, time.Since(started))

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	_, _ = w.Write(body)
}

func (ps *ProjectServer) renderTile(ctx context.Context, lease *project.Lease, kind render.Kind, tile render.Tile) ([]byte, string, error) {
	renderer := ps.project.Renderer()
	if kind == render.KindVector {
		fc, err := renderer.RenderVector(ctx, lease.Handle, tile)
		if err != nil {
			return nil, "", err
		}
		body, err := render.EncodeGeoJSON(fc)
		return body, "application/javascript", err
	}

	img, err := renderer.RenderRaster(ctx, lease.Handle, render.RasterRequest{
		Tile:     tile,
		Size:     lease.Config.TileSize,
		Metatile: lease.Config.Metatile,
		Scale:    1,
	})
	if err != nil {
		return nil, "", err
	}
	body, err := render.EncodePNG(img)
	return body, "image/png", err
}

func (ps *ProjectServer) observeTile(kind render.Kind, status int, d time.Duration) {
	if ps.metrics != nil {
		ps.metrics.ObserveTile(string(kind), status, d)
	}
}
