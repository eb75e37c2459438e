// Package local_test tests the local filesystem snapshot store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/metal-price-harvester/internal/storage/local"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newStore(t *testing.T) (*local.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir}, fixedClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)})
	require.NoError(t, err)
	return store, dir
}

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()}, nil)
		require.NoError(t, err)
		assert.NotNil(t, store)
	})
	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "23MET_DATA")
		_, err := local.New(local.Config{BaseDir: dir}, nil)
		require.NoError(t, err)
		assert.DirExists(t, dir)
	})
	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{}, nil)
		assert.Error(t, err)
	})
	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file}, nil)
		assert.Error(t, err)
	})
	t.Run("BaseDirNotWritable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		tempDir := t.TempDir()
		// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
		require.NoError(t, os.Chmod(tempDir, 0o500))
		_, err := local.New(local.Config{BaseDir: tempDir}, nil)
		assert.Error(t, err)
		// #nosec G302 -- reverting permissions to allow cleanup in the test environment.
		require.NoError(t, os.Chmod(tempDir, 0o700))
	})
}

func TestPutListRead(t *testing.T) {
	store, dir := newStore(t)
	ctx := context.Background()

	snap, err := store.Put(ctx, "metallservis.html", "https://23met.ru/plist/metallservis", []byte("<html>b</html>"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "metallservis.html"), snap.Path)
	assert.Equal(t, "https://23met.ru/plist/metallservis", snap.URL)

	_, err = store.Put(ctx, "alfa.html", "https://23met.ru/plist/alfa", []byte("<html>a</html>"))
	require.NoError(t, err)
	_, err = store.PutObject(ctx, "proxy.json", "application/json", []byte(`{"HTTPS":[]}`))
	require.NoError(t, err)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2, "artifacts and sidecars are not snapshots")
	assert.Equal(t, filepath.Join(dir, "alfa.html"), list[0].Path)
	assert.Equal(t, "https://23met.ru/plist/alfa", list[0].URL)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), list[0].FetchedAt)

	body, err := store.Read(ctx, list[1])
	require.NoError(t, err)
	assert.Equal(t, "<html>b</html>", string(body))
}

func TestListWithoutSidecar(t *testing.T) {
	store, dir := newStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy.html"), []byte("x"), 0o600))

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].URL)
	assert.False(t, list[0].FetchedAt.IsZero())
}

func TestPutOverwritesSameName(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Put(ctx, "same.html", "https://23met.ru/plist/same", []byte("<html>same</html>"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	body, err := store.Read(ctx, list[0])
	require.NoError(t, err)
	assert.Equal(t, "<html>same</html>", string(body))
}

func TestPurgeKeepsArtifacts(t *testing.T) {
	store, dir := newStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, "Page0.html", "https://proxylib.com/free-proxy-list/?proxy_page=0", []byte("x"))
	require.NoError(t, err)
	_, err = store.PutObject(ctx, "update_setting.json", "application/json", []byte("{}"))
	require.NoError(t, err)

	require.NoError(t, store.Purge(ctx))
	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoFileExists(t, filepath.Join(dir, "Page0.html.meta.json"))
	assert.FileExists(t, filepath.Join(dir, "update_setting.json"))
}

func TestPathTraversal(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, "../escape.html", "https://x", []byte("x"))
	require.Error(t, err)
	_, err = store.PutObject(ctx, "", "text/plain", []byte("x"))
	require.Error(t, err)
	_, err = store.GetObject(ctx, "../../etc/passwd")
	require.Error(t, err)
}

func TestObjectRoundTrip(t *testing.T) {
	store, dir := newStore(t)
	ctx := context.Background()

	uri, err := store.PutObject(ctx, "out/result.csv", "text/csv", []byte("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(dir, "out", "result.csv"), uri)

	data, err := store.GetObject(ctx, "out/result.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))
}
