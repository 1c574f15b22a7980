package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchPath(t *testing.T) {
	registered := func(p string) bool { return p == "/status/" || p == "/tile/" }

	tests := []struct {
		path string
		want Match
	}{
		{"", Match{Route: RouteRedirect, Path: ""}},
		{"/", Match{Route: RouteMain, Path: "/"}},
		{"/options/", Match{Route: RouteOptions, Path: "/options/"}},
		{"/poll/", Match{Route: RoutePoll, Path: "/poll/"}},
		{"/export/", Match{Route: RouteExport, Path: "/export/"}},
		{"/reload/", Match{Route: RouteReload, Path: "/reload/"}},
		{"/status/", Match{Route: RouteProject, Path: "/status/"}},
		{"/tile/", Match{Route: RouteProject, Path: "/tile/"}},
		{"/tile/3/2/1.png", Match{Route: RouteTile, Path: "/tile/3/2/1.png", Z: "3", X: "2", Y: "1", Ext: "png"}},
		{"/tile/0/0/0.json", Match{Route: RouteTile, Path: "/tile/0/0/0.json", Z: "0", X: "0", Y: "0", Ext: "json"}},
		{"/tile/1/1/1", Match{Route: RouteTile, Path: "/tile/1/1/1", Z: "1", X: "1", Y: "1"}},
		{"/tile/1/1/1.tar.gz", Match{Route: RouteTile, Path: "/tile/1/1/1.tar.gz", Z: "1", X: "1", Y: "1.tar", Ext: "gz"}},
		{"/tile/1/1", Match{Route: RouteNotFound, Path: "/tile/1/1"}},
		{"/tile/1/1/1/1.png", Match{Route: RouteNotFound, Path: "/tile/1/1/1/1.png"}},
		{"/tiles/1/1/1.png", Match{Route: RouteNotFound, Path: "/tiles/1/1/1.png"}},
		{"/options", Match{Route: RouteNotFound, Path: "/options"}},
		{"/unknown/", Match{Route: RouteNotFound, Path: "/unknown/"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchPath(tt.path, registered))
		})
	}
}

func TestMatchPathNilRegistry(t *testing.T) {
	assert.Equal(t, RouteNotFound, MatchPath("/status/", nil).Route)
	assert.Equal(t, RouteMain, MatchPath("/", nil).Route)
}

func TestRouteString(t *testing.T) {
	assert.Equal(t, "tile", RouteTile.String())
	assert.Equal(t, "redirect", RouteRedirect.String())
	assert.Equal(t, "unknown", Route(99).String())
}
