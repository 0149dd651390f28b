package local_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/afd-harvester/internal/afd"
	"github.com/JakeFAU/afd-harvester/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "deletion_discussions")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.NotNil(t, store)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries, "writability check leaves no file behind")
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		dir := t.TempDir()
		// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
		require.NoError(t, os.Chmod(dir, 0o500))
		t.Cleanup(func() {
			// #nosec G302 -- reverting permissions to allow cleanup.
			_ = os.Chmod(dir, 0o700)
		})
		_, err := local.New(local.Config{BaseDir: dir})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("WritesDocument", func(t *testing.T) {
		data := []byte(`{"case_title":"Wikipedia:Articles_for_deletion/Foo"}`)
		uri, err := store.PutObject(ctx, "Foo.json", "application/json", bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(dir, "Foo.json"), uri)
		assert.True(t, store.Exists("Foo.json"))

		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(filepath.Join(dir, "Foo.json"))
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("Overwrites", func(t *testing.T) {
		_, err := store.PutObject(ctx, "Bar.json", "application/json", bytes.NewBufferString("old"))
		require.NoError(t, err)
		_, err = store.PutObject(ctx, "Bar.json", "application/json", bytes.NewBufferString("new"))
		require.NoError(t, err)
		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(filepath.Join(dir, "Bar.json"))
		require.NoError(t, err)
		assert.Equal(t, "new", string(got))
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(ctx, "", "application/json", bytes.NewBufferString("data"))
		assert.ErrorIs(t, err, afd.ErrInvalidName)
	})

	t.Run("Traversal", func(t *testing.T) {
		_, err := store.PutObject(ctx, "../escape.json", "application/json", bytes.NewBufferString("data"))
		assert.ErrorIs(t, err, afd.ErrInvalidName)
		assert.False(t, store.Exists("missing.json"))
	})

	t.Run("NameTooLong", func(t *testing.T) {
		name := strings.Repeat("%E6%97%A5", 40) + ".json"
		_, err := store.PutObject(ctx, name, "application/json", bytes.NewBufferString("data"))
		require.ErrorIs(t, err, afd.ErrInvalidName)
		assert.NotErrorIs(t, err, afd.ErrStorage)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temp file %s left behind", e.Name())
		}
	})
}
