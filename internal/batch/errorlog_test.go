package batch

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorLogAppendAndRead(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "case_meta_data", "1_errors.log")
	log, err := OpenErrorLog(path)
	require.NoError(t, err)

	require.NoError(t, log.Append(3, "Foo", errors.New("boom")))
	require.NoError(t, log.Append(4, "Bar\tBaz", errors.New("line one\nline two")))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "3\tFoo\tboom\n4\tBar Baz\tline one line two\n", string(raw))

	entries, err := ReadErrorLog(path)
	require.NoError(t, err)
	assert.Equal(t, []ErrorEntry{
		{Chunk: 3, Title: "Foo", Message: "boom"},
		{Chunk: 4, Title: "Bar Baz", Message: "line one line two"},
	}, entries)
}

func TestErrorLogConcurrentAppends(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "errors.log")
	log, err := OpenErrorLog(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, log.Append(1, "T", errors.New("e")))
		}()
	}
	wg.Wait()

	entries, err := ReadErrorLog(path)
	require.NoError(t, err)
	assert.Len(t, entries, 50)
}

func TestReadErrorLogRejectsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "errors.log")
	require.NoError(t, os.WriteFile(path, []byte("1\tok\tfine\n\nnot-a-number\tx\ty\n"), 0o600))
	_, err := ReadErrorLog(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")

	_, err = ReadErrorLog(filepath.Join(t.TempDir(), "missing.log"))
	require.Error(t, err)
}

func TestRedoTitles(t *testing.T) {
	t.Parallel()

	got := RedoTitles([]ErrorEntry{
		{Chunk: 1, Title: "A"}, {Chunk: 2, Title: "B"}, {Chunk: 3, Title: "A"}, {Chunk: 3, Title: ""},
	})
	assert.Equal(t, []string{"A", "B"}, got)
}
