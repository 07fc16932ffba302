package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tempDirInCwd creates the watch root under the working directory; paths
// outside it are rejected by design.
func tempDirInCwd(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp(".", "watchtest-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "created", EventTypeCreated.String())
	assert.Equal(t, "modified", EventTypeModified.String())
	assert.Equal(t, "deleted", EventTypeDeleted.String())
	assert.Equal(t, "renamed", EventTypeRenamed.String())
}

func TestExtensionFilter(t *testing.T) {
	filter := ExtensionFilter([]string{".quill", ".html"})

	assert.True(t, filter("page.quill"))
	assert.True(t, filter("dir/index.html"))
	assert.True(t, filter("UPPER.QUILL"))
	assert.False(t, filter("notes.txt"))
	assert.False(t, filter("noext"))
}

func TestNoHiddenFilter(t *testing.T) {
	assert.True(t, NoHiddenFilter("templates/page.quill"))
	assert.True(t, NoHiddenFilter("./templates/page.quill"))
	assert.False(t, NoHiddenFilter(".git/config"))
	assert.False(t, NoHiddenFilter("templates/.hidden.quill"))
	assert.False(t, NoHiddenFilter("a/.cache/b.quill"))
}

func TestValidatePath(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)

	clean, err := validatePath(filepath.Join(cwd, "templates"))
	require.NoError(t, err)
	assert.NotContains(t, clean, "..")

	_, err = validatePath("/etc/passwd")
	assert.Error(t, err)

	_, err = validatePath("../outside")
	assert.Error(t, err)

	// A sibling directory sharing cwd as a name prefix is still outside.
	_, err = validatePath(cwd + "-sibling")
	assert.Error(t, err)

	// The working directory itself is inside.
	_, err = validatePath(cwd)
	assert.NoError(t, err)
}

func TestWatcher_AddPathRejectsOutsideCwd(t *testing.T) {
	fw, err := NewFileWatcher(10*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	assert.Error(t, fw.AddPath("/tmp"))
	assert.Error(t, fw.AddRecursive("../elsewhere"))
}

func TestWatcher_DebouncesBurstIntoOneBatch(t *testing.T) {
	dir := tempDirInCwd(t)

	fw, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	fw.AddFilter(ExtensionFilter([]string{".quill"}))

	var mu sync.Mutex
	var batches [][]ChangeEvent
	fw.AddHandler(func(events []ChangeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, events)
		return nil
	})

	require.NoError(t, fw.AddPath(dir))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	// A burst of writes to the same file inside the debounce window.
	path := filepath.Join(dir, "page.quill")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("v"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) >= 1
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, batches)
	// Deduplication by path collapses the burst to a single event.
	assert.Len(t, batches[0], 1)
	assert.Equal(t, path, batches[0][0].Path)
}

func TestWatcher_FilterSuppressesEvents(t *testing.T) {
	dir := tempDirInCwd(t)

	fw, err := NewFileWatcher(30*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	fw.AddFilter(ExtensionFilter([]string{".quill"}))

	var mu sync.Mutex
	got := 0
	fw.AddHandler(func(events []ChangeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		got += len(events)
		return nil
	})

	require.NoError(t, fw.AddPath(dir))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, got, "filtered extensions must not reach handlers")
}

func TestWatcher_SeparateFilesStayDistinct(t *testing.T) {
	dir := tempDirInCwd(t)

	fw, err := NewFileWatcher(80*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	var mu sync.Mutex
	paths := map[string]bool{}
	fw.AddHandler(func(events []ChangeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			paths[filepath.Base(e.Path)] = true
		}
		return nil
	})

	require.NoError(t, fw.AddPath(dir))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.quill"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.quill"), []byte("b"), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return paths["a.quill"] && paths["b.quill"]
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWatcher_AddRecursiveWalksSubdirectories(t *testing.T) {
	dir := tempDirInCwd(t)
	sub := filepath.Join(dir, "partials")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	fw, err := NewFileWatcher(30*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	var mu sync.Mutex
	seen := false
	fw.AddHandler(func(events []ChangeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen = true
		return nil
	})

	require.NoError(t, fw.AddRecursive(dir))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(sub, "card.quill"), []byte("x"), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen
	}, 2*time.Second, 20*time.Millisecond)
}
