package catalog

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ferryline/photoferry/config"
	"github.com/ferryline/photoferry/model"
)

func newTestCatalog(t *testing.T) (*Catalog, func()) {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "catalog-*.db")
	require.NoError(t, err)

	cfg := &config.CatalogConfig{
		Path: tmpFile.Name(),
	}
	c, err := Open(cfg)
	require.NoError(t, err)

	return c, func() {
		c.Close()
		os.Remove(tmpFile.Name())
	}
}

func entry(path string, size int64) model.RemoteEntry {
	return model.RemoteEntry{
		Path: path,
		Dir:  "/films",
		Name: "x.mkv",
		Ext:  ".mkv",
		Size: size,
	}
}

func TestOpenInvalidPath(t *testing.T) {
	cfg := &config.CatalogConfig{
		Path: "/invalid/path.db",
	}
	_, err := Open(cfg)
	require.Error(t, err)
}

func TestOpenEmptyPathRejected(t *testing.T) {
	_, err := Open(&config.CatalogConfig{})
	require.Error(t, err)
}

func TestObserveAndGet(t *testing.T) {
	c, cleanup := newTestCatalog(t)
	defer cleanup()

	require.NoError(t, c.Observe(entry("/films/a.mkv", 100)))

	got, err := c.Get("/films/a.mkv")
	require.NoError(t, err)
	require.Equal(t, int64(100), got.Size)
	require.Equal(t, ".mkv", got.Ext)
	require.Equal(t, "/films", got.Dir)
	require.False(t, got.FirstSeen.IsZero())

	_, err = c.Get("/missing")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestObserveKeepsFirstSeen(t *testing.T) {
	c, cleanup := newTestCatalog(t)
	defer cleanup()

	require.NoError(t, c.Observe(entry("/films/a.mkv", 100)))
	first, err := c.Get("/films/a.mkv")
	require.NoError(t, err)

	require.NoError(t, c.Observe(entry("/films/a.mkv", 200)))
	second, err := c.Get("/films/a.mkv")
	require.NoError(t, err)

	require.Equal(t, first.FirstSeen, second.FirstSeen)
	require.Equal(t, int64(200), second.Size)
	require.False(t, second.LastSeen.Before(second.FirstSeen))
}

func TestByDir(t *testing.T) {
	c, cleanup := newTestCatalog(t)
	defer cleanup()

	require.NoError(t, c.Observe(entry("/films/a.mkv", 1)))
	require.NoError(t, c.Observe(entry("/films/b.mkv", 2)))
	require.NoError(t, c.Observe(entry("/other/c.mkv", 3)))

	results, err := c.ByDir("/films")
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Contains(t, results, "/films/a.mkv")
	require.Contains(t, results, "/films/b.mkv")
}

func TestCountAndDumpAll(t *testing.T) {
	c, cleanup := newTestCatalog(t)
	defer cleanup()

	require.NoError(t, c.Observe(entry("/films/a.mkv", 50)))

	count, err := c.Count()
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	all, err := c.DumpAll()
	require.NoError(t, err)
	got, ok := all["/films/a.mkv"]
	require.True(t, ok, "expected key '/films/a.mkv' in results")
	require.Equal(t, int64(50), got.Size)
}

func TestPruneDropsStaleEntries(t *testing.T) {
	c, cleanup := newTestCatalog(t)
	defer cleanup()

	require.NoError(t, c.Observe(entry("/films/a.mkv", 1)))
	require.NoError(t, c.Observe(entry("/films/b.mkv", 2)))

	removed, err := c.Prune(time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	count, err := c.Count()
	require.NoError(t, err)
	require.Zero(t, count)

	require.NoError(t, c.Observe(entry("/films/c.mkv", 3)))
	removed, err = c.Prune(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestIterateBatchesSpansAllEntries(t *testing.T) {
	c, cleanup := newTestCatalog(t)
	defer cleanup()

	for i := 0; i < 25; i++ {
		require.NoError(t, c.Observe(entry(fmt.Sprintf("/films/file%02d.mkv", i), int64(i))))
	}

	ctx := context.Background()
	batchCh, errCh := c.IterateBatches(ctx, 10)

	allReceived := make(map[string]model.CatalogEntry)
	batchCount := 0
	for {
		select {
		case batch, ok := <-batchCh:
			if !ok {
				goto done
			}
			batchCount++
			for k, v := range batch {
				allReceived[k] = v
			}
		case err, ok := <-errCh:
			if ok {
				require.NoError(t, err)
			}
		}
	}
done:
	require.Equal(t, 3, batchCount)
	require.Len(t, allReceived, 25)
}

func TestIterateBatchesAllowsWritesBetweenBatches(t *testing.T) {
	c, cleanup := newTestCatalog(t)
	defer cleanup()

	for i := 0; i < 40; i++ {
		require.NoError(t, c.Observe(entry(fmt.Sprintf("/films/file%02d.mkv", i), int64(i))))
	}

	ctx := context.Background()
	batchCh, errCh := c.IterateBatches(ctx, 10)

	seen := 0
	for batch := range batchCh {
		seen += len(batch)
		// Writes interleave with iteration because each batch uses its own
		// short transaction.
		require.NoError(t, c.Observe(entry(fmt.Sprintf("/new/during%d.mkv", seen), 1)))
	}
	if err, ok := <-errCh; ok {
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, seen, 40)
}

func TestIterateBatchesCancelled(t *testing.T) {
	c, cleanup := newTestCatalog(t)
	defer cleanup()

	for i := 0; i < 30; i++ {
		require.NoError(t, c.Observe(entry(fmt.Sprintf("/films/file%02d.mkv", i), int64(i))))
	}

	ctx, cancel := context.WithCancel(context.Background())
	batchCh, errCh := c.IterateBatches(ctx, 5)

	<-batchCh
	cancel()

	// Drain; iteration must finish promptly with a context error or close.
	for range batchCh {
	}
	if err, ok := <-errCh; ok {
		require.ErrorIs(t, err, context.Canceled)
	}
}
