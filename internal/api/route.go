package api

import "strings"

// Route identifies the handler for a project-relative path.
type Route int

const (
	RouteNotFound Route = iota
	RouteRedirect
	RouteMain
	RouteOptions
	RoutePoll
	RouteExport
	RouteReload
	RouteProject
	RouteTile
)

var routeNames = map[Route]string{
	RouteNotFound: "not_found",
	RouteRedirect: "redirect",
	RouteMain:     "main",
	RouteOptions:  "options",
	RoutePoll:     "poll",
	RouteExport:   "export",
	RouteReload:   "reload",
	RouteProject:  "project",
	RouteTile:     "tile",
}

func (r Route) String() string {
	if n, ok := routeNames[r]; ok {
		return n
	}
	return "unknown"
}

// Match is the result of dispatching a path.
type Match struct {
	Route Route
	// Path is the matched project-relative path.
	Path string
	// Tile coordinates and extension for RouteTile, unparsed.
	Z, X, Y, Ext string
}

var fixedRoutes = map[string]Route{
	"":          RouteRedirect,
	"/":         RouteMain,
	"/options/": RouteOptions,
	"/poll/":    RoutePoll,
	"/export/":  RouteExport,
	"/reload/":  RouteReload,
}

// MatchPath maps a project-relative path (no query string) onto a route.
// registered reports whether a parent-registered project route exists for
// the path; it may be nil.
func MatchPath(path string, registered func(string) bool) Match {
	if r, ok := fixedRoutes[path]; ok {
		return Match{Route: r, Path: path}
	}
	if registered != nil && registered(path) {
		return Match{Route: RouteProject, Path: path}
	}

	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) == 4 && parts[0] == "tile" && strings.HasPrefix(path, "/") {
		m := Match{Route: RouteTile, Path: path, Z: parts[1], X: parts[2], Y: parts[3]}
		if i := strings.LastIndexByte(m.Y, '.'); i >= 0 {
			m.Y, m.Ext = m.Y[:i], m.Y[i+1:]
		}
		return m
	}
	return Match{Route: RouteNotFound, Path: path}
}
