package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ferryline/photoferry/config"
	"github.com/ferryline/photoferry/model"
)

type listing struct {
	files []model.RemoteEntry
	dirs  []string
	err   error
}

// mockLister serves canned directory listings and records which
// directories were requested.
type mockLister struct {
	tree   map[string]listing
	listed []string
}

func (m *mockLister) List(ctx context.Context, dir string) ([]model.RemoteEntry, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	m.listed = append(m.listed, dir)
	l, ok := m.tree[dir]
	if !ok {
		return nil, nil, errors.New("no such directory")
	}
	return l.files, l.dirs, l.err
}

func file(dir, name string, size int64, ext string) model.RemoteEntry {
	return model.RemoteEntry{
		Path: dir + "/" + name,
		Dir:  dir,
		Name: name,
		Ext:  ext,
		Size: size,
	}
}

func testDiscoveryConfig() *config.DiscoveryConfig {
	return &config.DiscoveryConfig{
		MinFileSize: 100,
		MaxFileSize: 10000,
		Extensions:  []string{".mkv", ".mp4"},
	}
}

func TestNewWalker_Validation(t *testing.T) {
	_, err := NewWalker(nil, testDiscoveryConfig(), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "lister")

	badCfg := &config.DiscoveryConfig{
		MinFileSize: 5000,
		MaxFileSize: 100,
		Extensions:  []string{".mkv"},
	}
	_, err = NewWalker(&mockLister{}, badCfg, nil)
	require.Error(t, err)
}

func TestWalker_FiltersBySizeAndExtension(t *testing.T) {
	lister := &mockLister{tree: map[string]listing{
		"/": {files: []model.RemoteEntry{
			file("/", "keep.mkv", 500, ".mkv"),
			file("/", "tiny.mkv", 10, ".mkv"),
			file("/", "huge.mkv", 50000, ".mkv"),
			file("/", "wrong.txt", 500, ".txt"),
			file("/", "edge-min.mp4", 100, ".mp4"),
			file("/", "edge-max.mp4", 10000, ".mp4"),
		}},
	}}

	w, err := NewWalker(lister, testDiscoveryConfig(), nil)
	require.NoError(t, err)

	got, err := w.Discover(context.Background(), "/")
	require.NoError(t, err)

	var paths []string
	for _, e := range got {
		paths = append(paths, e.Path)
	}
	require.Equal(t, []string{"/edge-min.mp4", "/keep.mkv", "/edge-max.mp4"}, paths)
}

func TestWalker_SmallestFirst(t *testing.T) {
	lister := &mockLister{tree: map[string]listing{
		"/": {
			files: []model.RemoteEntry{file("/", "big.mkv", 9000, ".mkv")},
			dirs:  []string{"/a", "/b"},
		},
		"/a": {files: []model.RemoteEntry{
			file("/a", "mid.mkv", 5000, ".mkv"),
			file("/a", "twin2.mkv", 300, ".mkv"),
		}},
		"/b": {files: []model.RemoteEntry{
			file("/b", "twin1.mkv", 300, ".mkv"),
			file("/b", "small.mkv", 200, ".mkv"),
		}},
	}}

	w, err := NewWalker(lister, testDiscoveryConfig(), nil)
	require.NoError(t, err)

	got, err := w.Discover(context.Background(), "/")
	require.NoError(t, err)

	var paths []string
	for _, e := range got {
		paths = append(paths, e.Path)
	}
	// Ascending by size, path breaks the tie between the twins.
	require.Equal(t, []string{
		"/b/small.mkv",
		"/a/twin2.mkv",
		"/b/twin1.mkv",
		"/a/mid.mkv",
		"/big.mkv",
	}, paths)
}

func TestWalker_SkipsFailedSubtree(t *testing.T) {
	lister := &mockLister{tree: map[string]listing{
		"/": {dirs: []string{"/broken", "/ok"}},
		"/broken": {
			err: errors.New("421 service not available"),
		},
		"/ok": {files: []model.RemoteEntry{
			file("/ok", "survivor.mkv", 500, ".mkv"),
		}},
	}}

	w, err := NewWalker(lister, testDiscoveryConfig(), nil)
	require.NoError(t, err)

	got, err := w.Discover(context.Background(), "/")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "/ok/survivor.mkv", got[0].Path)
	require.Contains(t, lister.listed, "/broken")
	require.Contains(t, lister.listed, "/ok")
}

func TestWalker_RootListingError(t *testing.T) {
	lister := &mockLister{tree: map[string]listing{}}

	w, err := NewWalker(lister, testDiscoveryConfig(), nil)
	require.NoError(t, err)

	got, err := w.Discover(context.Background(), "/")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestWalker_DepthFirstTraversal(t *testing.T) {
	lister := &mockLister{tree: map[string]listing{
		"/":       {dirs: []string{"/a", "/b"}},
		"/a":      {dirs: []string{"/a/deep"}},
		"/a/deep": {files: []model.RemoteEntry{file("/a/deep", "x.mkv", 500, ".mkv")}},
		"/b":      {},
	}}

	w, err := NewWalker(lister, testDiscoveryConfig(), nil)
	require.NoError(t, err)

	got, err := w.Discover(context.Background(), "/")
	require.NoError(t, err)
	require.Len(t, got, 1)

	// /a/deep must be fully explored before /b is listed.
	require.Equal(t, []string{"/", "/a", "/a/deep", "/b"}, lister.listed)
}

func TestWalker_ContextCancelled(t *testing.T) {
	lister := &mockLister{tree: map[string]listing{
		"/": {files: []model.RemoteEntry{file("/", "x.mkv", 500, ".mkv")}},
	}}

	w, err := NewWalker(lister, testDiscoveryConfig(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = w.Discover(ctx, "/")
	require.ErrorIs(t, err, context.Canceled)
}
