package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsHidden(t *testing.T) {
	tests := map[string]bool{
		"project.yaml":       false,
		".project.yaml.swp":  true,
		"styles/.tmp":        true,
		".git/config":        true,
		"data/roads.geojson": false,
		"./roads.geojson":    false,
	}
	for name, want := range tests {
		assert.Equal(t, want, IsHidden(name), name)
	}
}

func TestToChange(t *testing.T) {
	root := "/srv/map"

	c, ok := toChange(root, fsnotify.Event{Name: "/srv/map/project.yaml", Op: fsnotify.Write})
	require.True(t, ok)
	assert.Equal(t, Change{Op: OpWrite, Name: "project.yaml"}, c)

	c, ok = toChange(root, fsnotify.Event{Name: "/srv/map/a.mss", Op: fsnotify.Create | fsnotify.Write})
	require.True(t, ok)
	assert.Equal(t, OpCreate, c.Op)

	_, ok = toChange(root, fsnotify.Event{Name: "/srv/map/.a.mss.swp", Op: fsnotify.Write})
	assert.False(t, ok)

	_, ok = toChange(root, fsnotify.Event{Name: "/srv/map", Op: fsnotify.Remove})
	assert.False(t, ok, "removing the root itself is not a file change")
	_, ok = toChange(root, fsnotify.Event{Name: "/srv/map/", Op: fsnotify.Rename})
	assert.False(t, ok)
}

func TestFSIgnored(t *testing.T) {
	f := NewFS(WithIgnore("/srv/map/data/tilegw.db", "/srv/map/data/tilegw.lock", "/srv/map/cache", ""))

	tests := []struct {
		path string
		want bool
	}{
		{"/srv/map/data/tilegw.db", true},
		{"/srv/map/data/tilegw.db-wal", true},
		{"/srv/map/data/tilegw.db-shm", true},
		{"/srv/map/data/tilegw.lock", true},
		{"/srv/map/cache/12/3/4.png", true},
		{"/srv/map/cache", true},
		{"/srv/map/data/coast.geojson", false},
		{"/srv/map/data/tilegw.dbx", false},
		{"/srv/map/cached.mss", false},
		{"/srv/map/project.yaml", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.ignored(tt.path), tt.path)
	}
	assert.False(t, NewFS().ignored("/srv/map/data/tilegw.db"))
}

func TestFSSkipsIgnoredStateFiles(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	dbPath := filepath.Join(dataDir, "tilegw.db")
	lockPath := filepath.Join(dataDir, "tilegw.lock")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	require.NoError(t, NewFS(WithIgnore(dbPath, lockPath)).Start(ctx, root, rec.add))

	for _, name := range []string{dbPath, dbPath + "-wal", dbPath + "-shm", lockPath} {
		require.NoError(t, os.WriteFile(name, []byte("x"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "coast.geojson"), []byte("{}"), 0o644))

	want := filepath.Join("data", "coast.geojson")
	require.Eventually(t, func() bool {
		return contains(rec.names(), want)
	}, 2*time.Second, 10*time.Millisecond)

	for _, n := range rec.names() {
		assert.Equal(t, want, n, "unexpected change delivered")
	}
}

type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) add(c Change) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, c.Name)
	}
	return out
}

func TestFSDeliversVisibleChanges(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	require.NoError(t, NewFS().Start(ctx, root, rec.add))

	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "style.mss"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		for _, n := range rec.names() {
			if n == "style.mss" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	assert.NotContains(t, rec.names(), ".hidden")
}

func TestFSStartMissingRoot(t *testing.T) {
	err := NewFS().Start(context.Background(), filepath.Join(t.TempDir(), "missing"), func(Change) {})
	assert.Error(t, err)
}

func TestFSWatchesSubdirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "styles"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	require.NoError(t, NewFS().Start(ctx, root, rec.add))

	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "HEAD"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "styles", "roads.mss"), []byte("x"), 0o644))
	require.Eventually(t, func() bool {
		return contains(rec.names(), filepath.Join("styles", "roads.mss"))
	}, 2*time.Second, 10*time.Millisecond)

	// A directory created after Start is picked up once its create event lands.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data"), 0o755))
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(root, "data", "coast.geojson"), []byte("{}"), 0o644)
		return contains(rec.names(), filepath.Join("data", "coast.geojson"))
	}, 2*time.Second, 20*time.Millisecond)

	for _, n := range rec.names() {
		assert.False(t, IsHidden(n), "hidden change delivered: %s", n)
	}
}

func contains(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}
